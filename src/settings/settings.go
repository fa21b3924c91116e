package settings

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

type Arguments struct {
	// The file path to the snapshot files
	DataDir string `yaml:"data_dir"`

	ConfigFile string `yaml:"-"`

	// Snapshot cadence in seconds; 0 disables the periodic saver
	SnapshotInterval int `yaml:"snapshot_interval"`

	// How many rotated snapshot files to keep
	SnapshotKeep int `yaml:"snapshot_keep"`

	// Passphrase for snapshot encryption; empty means plaintext snapshots
	SnapshotPassphrase string `yaml:"snapshot_passphrase"`

	// Upper bound on the summed size of all document bodies, in bytes.
	// 0 means unlimited.
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`

	// Default shard count for hash indexes created without an explicit one
	DefaultShardCount int `yaml:"default_shard_count"`

	// Branching factor of ordered indexes
	BTreeOrder int `yaml:"btree_order"`

	// Bounded LRU sizes; 0 disables the cache
	HashCacheSize  int `yaml:"hash_cache_size"`
	QueryCacheSize int `yaml:"query_cache_size"`

	// Verbose is bound to a flag and the config file; no logger setup in
	// this module reads it
	Verbose bool `yaml:"verbose"`

	Debug bool `yaml:"debug"`

	Version string `yaml:"-"`
}

var (
	instance *Arguments
	once     sync.Once
)

// GetSettings returns the global settings instance
func GetSettings() *Arguments {
	once.Do(func() {
		instance = &Arguments{
			DataDir:           "./datafiles",
			SnapshotInterval:  60,
			SnapshotKeep:      5,
			DefaultShardCount: 16,
			BTreeOrder:        32,
			HashCacheSize:     100000,
			QueryCacheSize:    1024,
		}
	})
	return instance
}

// LoadConfigFile overlays values from a YAML config file onto the settings
func LoadConfigFile(args *Arguments, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, args); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	return nil
}
