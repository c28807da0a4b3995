// Package objectstore implements the content-addressed baseline store
// at <vault>/.cast/objects/<sha256> (spec §4.5): write-once, idempotent,
// append-only from the engine's perspective.
//
// Grounded on the pack's edirooss-zmux-server internal/infrastructure/
// objectstore shape (a small, mutex-free-by-construction store keyed by
// content), generalized from an in-memory map to an on-disk,
// hash-addressed directory.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/castlock"
)

// Store is a content-addressed directory of normalized baselines.
type Store struct {
	dir string
}

// New returns a Store rooted at dir (typically <vault>/.cast/objects).
// The directory is created if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, casterr.IO(dir, err)
	}
	return &Store{dir: dir}, nil
}

// Digest returns the hex SHA-256 of content without storing it.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *Store) path(digest string) string {
	return filepath.Join(s.dir, digest)
}

// Has reports whether an object for digest already exists.
func (s *Store) Has(digest string) (bool, error) {
	_, err := os.Stat(s.path(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, casterr.IO(s.path(digest), err)
}

// Put computes content's digest and writes it if absent, returning the
// digest either way. A second Put of identical content is a safe no-op
// (write-once, idempotent, per spec §4.5).
func (s *Store) Put(content []byte) (string, error) {
	digest := Digest(content)
	exists, err := s.Has(digest)
	if err != nil {
		return "", err
	}
	if exists {
		return digest, nil
	}
	if err := castlock.WriteAtomic(s.path(digest), content, 0o444); err != nil {
		return "", casterr.IO(s.path(digest), err)
	}
	return digest, nil
}

// Get returns the bytes stored under digest, or (nil, false) if absent.
func (s *Store) Get(digest string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, casterr.IO(s.path(digest), err)
	}
	return data, true, nil
}

// Stats is a read-only snapshot for CLI reporting; it does not
// participate in sync decisions.
type Stats struct {
	ObjectCount int
	TotalBytes  int64
}

// Stat walks the store directory and reports its size. Garbage
// collecting objects unreferenced by any peer-state entry is out of
// scope per spec §4.5 and is not implemented here.
func (s *Store) Stat() (Stats, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Stats{}, casterr.IO(s.dir, err)
	}
	var stats Stats
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.ObjectCount++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}
