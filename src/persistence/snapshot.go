package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"ghostdb/src/models"
)

const FormatVersion = 1

// DocumentSnapshot is one frozen document
type DocumentSnapshot struct {
	ID        string                 `bson:"id"`
	Fields    map[string]interface{} `bson:"fields"`
	CreatedAt time.Time              `bson:"created_at"`
	UpdatedAt time.Time              `bson:"updated_at"`
}

// CollectionSnapshot freezes one collection: its documents, its schema,
// and the descriptors of its indexes. Index contents are never
// persisted; on load the indexes are rebuilt by replaying the documents
// through the index manager.
type CollectionSnapshot struct {
	Name    string                   `bson:"name"`
	Schema  []models.FieldDefinition `bson:"schema,omitempty"`
	Docs    []DocumentSnapshot       `bson:"docs"`
	Indexes []models.IndexDescriptor `bson:"indexes,omitempty"`
}

// Snapshot is the single blob the whole store serializes into
type Snapshot struct {
	FormatVersion int                  `bson:"format_version"`
	TakenAt       time.Time            `bson:"taken_at"`
	Collections   []CollectionSnapshot `bson:"collections"`
}

// Encode marshals the snapshot to BSON, sealing it when a passphrase is
// given
func Encode(s *Snapshot, passphrase string) ([]byte, error) {
	data, err := bson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if passphrase == "" {
		return data, nil
	}
	sealed, err := encrypt(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt snapshot: %w", err)
	}
	return sealed, nil
}

// Decode unmarshals a snapshot blob, decrypting when it carries the
// encryption magic
func Decode(data []byte, passphrase string) (*Snapshot, error) {
	if isEncrypted(data) {
		if passphrase == "" {
			return nil, errors.New("snapshot is encrypted and no passphrase is configured")
		}
		plain, err := decrypt(data, passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
		}
		data = plain
	}

	var s Snapshot
	if err := bson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", s.FormatVersion)
	}
	return &s, nil
}

// WriteFile encodes the snapshot and writes it atomically: into a temp
// file first, renamed over the target when complete.
func WriteFile(path string, s *Snapshot, passphrase string) error {
	data, err := Encode(s, passphrase)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize snapshot file: %w", err)
	}
	return nil
}

// ReadFile loads and decodes a snapshot file
func ReadFile(path, passphrase string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}
	return Decode(data, passphrase)
}

// snapshotPattern matches the rotated snapshot files in a data dir
const snapshotPattern = "ghostdb_*.snap"

// LatestFile returns the newest snapshot file in the directory, or ""
// when none exists. File names embed a sortable timestamp.
func LatestFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, snapshotPattern))
	if err != nil {
		return "", fmt.Errorf("failed to list snapshot files: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
