package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Saver snapshots the store on a fixed cadence, writing timestamped
// files into the data directory and pruning the oldest beyond the keep
// count.
type Saver struct {
	dir        string
	interval   time.Duration
	keep       int
	passphrase string
	source     func() (*Snapshot, error)
	logger     *zap.SugaredLogger
}

// NewSaver creates a Saver. source is called at each tick to freeze the
// store's current state.
func NewSaver(dir string, interval time.Duration, keep int, passphrase string,
	source func() (*Snapshot, error), logger *zap.SugaredLogger) *Saver {
	if keep < 1 {
		keep = 1
	}
	return &Saver{
		dir:        dir,
		interval:   interval,
		keep:       keep,
		passphrase: passphrase,
		source:     source,
		logger:     logger,
	}
}

// Run blocks, saving every interval until the context is cancelled. A
// failed save is logged and retried at the next tick.
func (s *Saver) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SaveNow(); err != nil {
				s.logger.Warnf("Snapshot save failed: %v", err)
			}
		}
	}
}

// SaveNow freezes the store and writes one snapshot file immediately
func (s *Saver) SaveNow() error {
	snap, err := s.source()
	if err != nil {
		return fmt.Errorf("failed to freeze store: %w", err)
	}

	name := fmt.Sprintf("ghostdb_%s.snap", snap.TakenAt.Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(s.dir, name)
	if err := WriteFile(path, snap, s.passphrase); err != nil {
		return err
	}
	s.logger.Infof("Saved snapshot %s (%d collections)", name, len(snap.Collections))

	return s.rotate()
}

// rotate deletes the oldest snapshot files beyond the keep count
func (s *Saver) rotate() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, snapshotPattern))
	if err != nil {
		return fmt.Errorf("failed to list snapshot files: %w", err)
	}
	if len(matches) <= s.keep {
		return nil
	}
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-s.keep] {
		if err := os.Remove(stale); err != nil {
			s.logger.Warnf("Failed to remove stale snapshot %s: %v", stale, err)
		} else {
			s.logger.Debugf("Removed stale snapshot %s", stale)
		}
	}
	return nil
}
