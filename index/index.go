// Package index maintains the per-vault mapping from cast-id to the
// file it currently lives at, rebuilding incrementally from
// (path, size, mtime) cache keys (spec §4.4).
package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/castlock"
	"github.com/castsync/cast/identity"
	"github.com/castsync/cast/normalize"
	"github.com/castsync/cast/selector"
)

// Entry is one tracked file's cached metadata.
type Entry struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mtime"`
	FullDigest string    `json:"full_digest"`
	BodyDigest string    `json:"body_digest"`
	Vaults     []string  `json:"vaults,omitempty"`
	DocType    string    `json:"doc_type,omitempty"`
}

// Snapshot is a read-only view keyed by identifier, the shape the
// planner consumes for both the source and destination side.
type Snapshot map[string]Entry

// ByPath indexes a snapshot by relative path, used for the
// incremental-build cache lookup.
func (s Snapshot) ByPath() map[string]Entry {
	out := make(map[string]Entry, len(s))
	for _, e := range s {
		out[e.Path] = e
	}
	return out
}

// Index is one vault's persisted index.json.
type Index struct {
	path    string
	entries map[string]Entry
}

// Load reads path (typically <vault>/.cast/index.json), returning an
// empty Index if the file does not exist yet.
func Load(path string) (*Index, error) {
	ix := &Index{path: path, entries: make(map[string]Entry)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ix, nil
		}
		return nil, casterr.IO(path, err)
	}
	if err := json.Unmarshal(raw, &ix.entries); err != nil {
		return nil, casterr.IndexCorrupted(err)
	}
	return ix, nil
}

// Save persists the index as a single atomically-written JSON document
// (spec §4.4: "Persistence is a single JSON document written atomically").
func (ix *Index) Save() error {
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return casterr.IO(ix.path, err)
	}
	data, err := json.MarshalIndent(ix.entries, "", "  ")
	if err != nil {
		return casterr.IndexCorrupted(err)
	}
	if err := castlock.WriteAtomic(ix.path, data, 0o644); err != nil {
		return casterr.IO(ix.path, err)
	}
	return nil
}

// LookupByID returns the entry for id, if tracked.
func (ix *Index) LookupByID(id string) (Entry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Upsert inserts or replaces the entry for e.ID, used by the applier
// to keep the index current without a full rebuild after each action.
func (ix *Index) Upsert(e Entry) {
	if ix.entries == nil {
		ix.entries = make(map[string]Entry)
	}
	ix.entries[e.ID] = e
}

// Remove deletes the entry for id, if present.
func (ix *Index) Remove(id string) {
	delete(ix.entries, id)
}

// Snapshot returns a defensive copy of the current entries.
func (ix *Index) Snapshot() Snapshot {
	out := make(Snapshot, len(ix.entries))
	for k, v := range ix.entries {
		out[k] = v
	}
	return out
}

// Mode selects how Build reuses cached digests.
type Mode int

const (
	Incremental Mode = iota
	Rebuild
)

// Options configures one Build call.
type Options struct {
	Root          string
	Patterns      selector.Patterns
	EphemeralKeys []string
	AutoFix       bool
	Mode          Mode
}

// fileResult is one worker's outcome for a single selected path.
type fileResult struct {
	path  string
	entry Entry
	err   error
}

// Build rescans Root under Patterns, replaces ix's entries in place, and
// returns any per-file structural errors (the file is skipped, not
// fatal). On a fatal error ix is left unchanged. A
// non-nil error return is fatal to the whole build — in particular
// casterr.DuplicateID, per spec's "Identity uniqueness" invariant.
func Build(ix *Index, opts Options) ([]error, error) {
	paths, err := selector.Select(opts.Root, opts.Patterns)
	if err != nil {
		return nil, casterr.IO(opts.Root, err)
	}

	cache := map[string]Entry{}
	if opts.Mode == Incremental {
		cache = ix.Snapshot().ByPath()
	}

	results := processPaths(opts, paths, cache)

	var fileErrs []error
	next := make(map[string]Entry, len(paths))
	var located []identity.Located
	for _, r := range results {
		if r.err != nil {
			fileErrs = append(fileErrs, r.err)
			continue
		}
		if r.entry.ID == "" {
			continue // no header, or header without cast-id: not indexed
		}
		next[r.entry.ID] = r.entry
		located = append(located, identity.Located{ID: r.entry.ID, Path: r.entry.Path})
	}

	if dups := identity.FindDuplicates(located); len(dups) > 0 {
		for id, dupPaths := range dups {
			return fileErrs, casterr.DuplicateID(id, dupPaths)
		}
	}

	ix.entries = next
	return fileErrs, nil
}

func processPaths(opts Options, paths []string, cache map[string]Entry) []fileResult {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	if workers > len(paths) && len(paths) > 0 {
		workers = len(paths)
	}

	jobs := make(chan string)
	out := make(chan fileResult, len(paths))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				out <- processOne(opts, p, cache[p])
			}
		}()
	}
	go func() {
		for _, p := range paths {
			jobs <- p
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]fileResult, 0, len(paths))
	for r := range out {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	return results
}

func processOne(opts Options, relPath string, cached Entry) fileResult {
	absPath := filepath.Join(opts.Root, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return fileResult{path: relPath, err: casterr.IO(absPath, err)}
	}

	if cached.Path == relPath && cached.Size == info.Size() && cached.ModTime.Equal(info.ModTime()) {
		return fileResult{path: relPath, entry: cached}
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return fileResult{path: relPath, err: casterr.IO(absPath, err)}
	}

	doc, err := normalize.Parse(raw)
	if err != nil {
		return fileResult{path: relPath, err: casterr.Encoding(absPath, err)}
	}
	if !doc.HasHeader {
		return fileResult{path: relPath, entry: Entry{Path: relPath, Size: info.Size(), ModTime: info.ModTime()}}
	}

	header := doc.Header
	if opts.AutoFix {
		injected, didInject, err := identity.InjectIfEligible(header)
		if err != nil {
			return fileResult{path: relPath, err: err}
		}
		if didInject {
			header = injected
			doc.Header = header
			if err := castlock.WriteAtomic(absPath, normalize.Serialize(header, doc.Body), info.Mode()); err != nil {
				return fileResult{path: relPath, err: casterr.IO(absPath, err)}
			}
			if info, err = os.Stat(absPath); err != nil {
				return fileResult{path: relPath, err: casterr.IO(absPath, err)}
			}
		}
	}

	id, ok := identity.Of(header)
	if !ok {
		return fileResult{path: relPath, entry: Entry{Path: relPath, Size: info.Size(), ModTime: info.ModTime()}}
	}

	file := normalize.Canonicalize(doc, opts.EphemeralKeys)
	return fileResult{path: relPath, entry: Entry{
		ID:         id,
		Path:       relPath,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		FullDigest: file.Digest.Full,
		BodyDigest: file.Digest.Body,
		Vaults:     participationSummary(header),
		DocType:    docType(header),
	}}
}

func participationSummary(header normalize.Header) []string {
	v, ok := header.Get("cast-vaults")
	if !ok || v.Kind != normalize.KindSequence {
		return nil
	}
	out := make([]string, 0, len(v.Sequence))
	for _, item := range v.Sequence {
		if item.Kind == normalize.KindScalar {
			out = append(out, item.Scalar)
		}
	}
	return out
}

func docType(header normalize.Header) string {
	v, ok := header.Get("cast-type")
	if !ok || v.Kind != normalize.KindScalar {
		return ""
	}
	return v.Scalar
}
