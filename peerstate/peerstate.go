// Package peerstate implements the per-ordered-pair sync journal (spec
// §4.6): the sole authority for baseline selection during planning.
package peerstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/castlock"
)

// Result is the outcome recorded for an identifier's last sync action.
type Result string

const (
	ResultCreate   Result = "CREATE"
	ResultUpdate   Result = "UPDATE"
	ResultMerge    Result = "MERGE"
	ResultConflict Result = "CONFLICT"
	ResultSkip     Result = "SKIP"
)

// Entry is one identifier's journal row.
type Entry struct {
	SourceDigest     string    `json:"source_digest"`
	DestDigest       string    `json:"dest_digest"`
	BaseObjectDigest string    `json:"base_object_digest,omitempty"`
	LastResult       Result    `json:"last_result"`
	LastTimestamp    time.Time `json:"last_timestamp"`
}

// Journal is one ordered pair's persistent mapping, identifier -> Entry.
type Journal struct {
	path    string
	entries map[string]Entry
}

// PeerID derives the on-disk journal filename for an ordered
// (local, remote) vault-id pair.
func PeerID(localVaultID, remoteVaultID string) string {
	return fmt.Sprintf("%s__%s", localVaultID, remoteVaultID)
}

// Load reads (or, if absent, initializes empty) the journal for dir's
// peers directory and the given ordered pair.
func Load(peersDir, localVaultID, remoteVaultID string) (*Journal, error) {
	path := filepath.Join(peersDir, PeerID(localVaultID, remoteVaultID)+".json")
	j := &Journal{path: path, entries: make(map[string]Entry)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, casterr.IO(path, err)
	}
	if err := json.Unmarshal(raw, &j.entries); err != nil {
		return nil, casterr.IndexCorrupted(err)
	}
	return j, nil
}

// Snapshot is a read-only copy handed to the planner, which reads but
// never writes peer state directly (spec §4.6).
type Snapshot map[string]Entry

// Snapshot returns a defensive copy of the journal's current entries.
func (j *Journal) Snapshot() Snapshot {
	out := make(Snapshot, len(j.entries))
	for k, v := range j.entries {
		out[k] = v
	}
	return out
}

// Get returns the entry for id, if any.
func (j *Journal) Get(id string) (Entry, bool) {
	e, ok := j.entries[id]
	return e, ok
}

// Update is the journal's only mutator: callers (the applier) set
// fields by replacing the whole entry for id.
func (j *Journal) Update(id string, entry Entry) {
	if j.entries == nil {
		j.entries = make(map[string]Entry)
	}
	j.entries[id] = entry
}

// Save persists the journal atomically to its backing file.
func (j *Journal) Save() error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return casterr.IO(j.path, err)
	}
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return casterr.IO(j.path, err)
	}
	if err := castlock.WriteAtomic(j.path, data, 0o644); err != nil {
		return casterr.IO(j.path, err)
	}
	return nil
}
