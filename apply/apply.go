// Package apply executes a planned action list against a destination
// vault (spec §4.9): the only package that mutates the destination
// filesystem, index, or peer-state journal, all under the vault's
// exclusive lock.
package apply

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/castlock"
	"github.com/castsync/cast/conflict"
	"github.com/castsync/cast/index"
	"github.com/castsync/cast/merge"
	"github.com/castsync/cast/normalize"
	"github.com/castsync/cast/objectstore"
	"github.com/castsync/cast/peerstate"
	"github.com/castsync/cast/planner"
)

// Options bundles everything one Apply call needs. Now defaults to
// time.Now when nil; tests override it for deterministic conflict
// filenames.
type Options struct {
	SourceRoot    string
	DestRoot      string
	DestIndex     *index.Index
	Peers         *peerstate.Journal
	Objects       *objectstore.Store
	SourceVaultID string
	DestVaultID   string
	EphemeralKeys []string
	LockTimeout   time.Duration
	Now           func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Failure records one action that did not apply cleanly; the applier
// continues past these per spec §7's "a single broken file cannot
// block a large sync".
type Failure struct {
	Action planner.Action
	Err    error
}

// Result summarizes one Apply call.
type Result struct {
	Applied    []planner.Action
	Failed     []Failure
	Conflicts  []string
	Collisions []string
}

// Apply acquires the destination vault's lock, executes actions in
// order, then persists the index and peer-state journal and releases
// the lock. Failures on individual actions are recorded in the result
// rather than aborting the run.
func Apply(actions planner.ActionList, opts Options) (Result, error) {
	lockPath := filepath.Join(opts.DestRoot, ".cast", ".lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return Result{}, casterr.IO(lockPath, err)
	}
	lock, err := castlock.Acquire(lockPath, opts.LockTimeout)
	if err != nil {
		return Result{}, err
	}
	defer lock.Release()

	var result Result
	for _, action := range actions {
		if err := applyOne(action, opts, &result); err != nil {
			result.Failed = append(result.Failed, Failure{Action: action, Err: err})
			continue
		}
		result.Applied = append(result.Applied, action)
	}

	if err := opts.DestIndex.Save(); err != nil {
		return result, err
	}
	if err := opts.Peers.Save(); err != nil {
		return result, err
	}
	return result, nil
}

func applyOne(action planner.Action, opts Options, result *Result) error {
	switch action.Kind {
	case planner.Create:
		return applyCreate(action, opts, result)
	case planner.Update:
		return applyUpdate(action, opts)
	case planner.Skip:
		return applySkip(action, opts)
	case planner.Merge:
		return applyMerge(action, opts, result)
	case planner.Conflict:
		return applyDirectConflict(action, opts, result)
	case planner.Delete:
		return applyDelete(action, opts)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func destAbs(opts Options, rel string) string {
	return filepath.Join(opts.DestRoot, filepath.FromSlash(rel))
}

func srcAbs(opts Options, rel string) string {
	return filepath.Join(opts.SourceRoot, filepath.FromSlash(rel))
}

func readAndParse(path string) (*normalize.Document, os.FileMode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, casterr.IO(path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, casterr.IO(path, err)
	}
	doc, err := normalize.Parse(raw)
	if err != nil {
		return nil, 0, casterr.Encoding(path, err)
	}
	return doc, info.Mode(), nil
}

func applyCreate(action planner.Action, opts Options, result *Result) error {
	srcPath := srcAbs(opts, action.SourcePath)
	doc, mode, err := readAndParse(srcPath)
	if err != nil {
		return err
	}

	destPath := destAbs(opts, action.DestPath)
	if _, err := os.Stat(destPath); err == nil {
		event := casterr.PathCollision(action.DestPath)
		renamedRel := collisionPath(action.DestPath, action.ID)
		destPath = destAbs(opts, renamedRel)
		result.Collisions = append(result.Collisions, fmt.Sprintf("%s: written to %s instead", event, renamedRel))
	} else if !os.IsNotExist(err) {
		return casterr.IO(destPath, err)
	}

	// Only source's reserved/identifier-routed keys cross into a brand
	// new destination file; local keys have no destination copy to
	// preserve, so merge.MergeHeader against an empty header strips them.
	header := merge.MergeHeader(doc.Header, normalize.Header{})
	out := normalize.Serialize(header, doc.Body)
	if err := writeFinal(destPath, out, mode); err != nil {
		return err
	}

	final := &normalize.Document{HasHeader: true, Header: header, Body: doc.Body}
	file := normalize.Canonicalize(final, opts.EphemeralKeys)
	if err := indexEntry(opts, action.ID, destPath, file); err != nil {
		return err
	}
	baseline, err := opts.Objects.Put(file.Body)
	if err != nil {
		return err
	}
	recordPeer(opts, action.ID, file, baseline, peerstate.ResultCreate)
	return nil
}

func collisionPath(destPath, id string) string {
	ext := filepath.Ext(destPath)
	stem := destPath[:len(destPath)-len(ext)]
	return fmt.Sprintf("%s.%s%s", stem, id, ext)
}

func applyUpdate(action planner.Action, opts Options) error {
	srcDoc, _, err := readAndParse(srcAbs(opts, action.SourcePath))
	if err != nil {
		return err
	}
	destPath := destAbs(opts, action.DestPath)
	destDoc, mode, err := readAndParse(destPath)
	if err != nil {
		return err
	}

	mergedHeader := merge.MergeHeader(srcDoc.Header, destDoc.Header)
	out := normalize.Serialize(mergedHeader, srcDoc.Body)
	if err := writeFinal(destPath, out, mode); err != nil {
		return err
	}

	final := &normalize.Document{HasHeader: true, Header: mergedHeader, Body: srcDoc.Body}
	file := normalize.Canonicalize(final, opts.EphemeralKeys)
	if err := indexEntry(opts, action.ID, destPath, file); err != nil {
		return err
	}
	baseline, err := opts.Objects.Put(file.Body)
	if err != nil {
		return err
	}
	recordPeer(opts, action.ID, file, baseline, peerstate.ResultUpdate)
	return nil
}

func applySkip(action planner.Action, opts Options) error {
	destPath := destAbs(opts, action.DestPath)
	destDoc, _, err := readAndParse(destPath)
	if err != nil {
		return err
	}
	file := normalize.Canonicalize(destDoc, opts.EphemeralKeys)
	recordPeer(opts, action.ID, file, action.BaselineDigest, peerstate.ResultSkip)
	return nil
}

func applyDelete(action planner.Action, opts Options) error {
	destPath := destAbs(opts, action.DestPath)
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return casterr.IO(destPath, err)
	}
	opts.DestIndex.Remove(action.ID)
	return nil
}

func applyMerge(action planner.Action, opts Options, result *Result) error {
	srcDoc, _, err := readAndParse(srcAbs(opts, action.SourcePath))
	if err != nil {
		return err
	}
	destPath := destAbs(opts, action.DestPath)
	destDoc, _, err := readAndParse(destPath)
	if err != nil {
		return err
	}

	base, err := loadBaseline(opts, action.BaselineDigest)
	if err != nil {
		return err
	}

	mergedHeader := merge.MergeHeader(srcDoc.Header, destDoc.Header)
	mergedBody, hunks := merge.MergeBody(base, srcDoc.Body, destDoc.Body, opts.SourceVaultID, opts.DestVaultID)

	if len(hunks) == 0 {
		out := normalize.Serialize(mergedHeader, mergedBody)
		if err := writeFinal(destPath, out, 0o644); err != nil {
			return err
		}
		final := &normalize.Document{HasHeader: true, Header: mergedHeader, Body: mergedBody}
		file := normalize.Canonicalize(final, opts.EphemeralKeys)
		if err := indexEntry(opts, action.ID, destPath, file); err != nil {
			return err
		}
		baseline, err := opts.Objects.Put(file.Body)
		if err != nil {
			return err
		}
		recordPeer(opts, action.ID, file, baseline, peerstate.ResultMerge)
		return nil
	}

	return materializeConflict(action, opts, mergedHeader, mergedBody, result)
}

func applyDirectConflict(action planner.Action, opts Options, result *Result) error {
	srcDoc, _, err := readAndParse(srcAbs(opts, action.SourcePath))
	if err != nil {
		return err
	}
	destPath := destAbs(opts, action.DestPath)
	destDoc, _, err := readAndParse(destPath)
	if err != nil {
		return err
	}

	mergedHeader := merge.MergeHeader(srcDoc.Header, destDoc.Header)
	interleaved := fmt.Sprintf("<<<<<<< %s\n%s\n=======\n%s\n>>>>>>> %s",
		opts.SourceVaultID, string(srcDoc.Body), string(destDoc.Body), opts.DestVaultID)

	return materializeConflict(action, opts, mergedHeader, []byte(interleaved), result)
}

func materializeConflict(action planner.Action, opts Options, header normalize.Header, body []byte, result *Result) error {
	at := opts.now()
	conflictRel := conflict.Path(action.DestPath, at)
	out := conflict.Materialize(header, body, at)
	if err := writeFinal(destAbs(opts, conflictRel), out, 0o644); err != nil {
		return err
	}
	result.Conflicts = append(result.Conflicts, conflictRel)

	peer, _ := opts.Peers.Get(action.ID)
	peer.LastResult = peerstate.ResultConflict
	peer.LastTimestamp = at
	opts.Peers.Update(action.ID, peer)
	return nil
}

func loadBaseline(opts Options, digest string) ([]byte, error) {
	if digest == "" {
		return nil, nil
	}
	data, ok, err := opts.Objects.Get(digest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, casterr.MissingBaseline("", digest)
	}
	return data, nil
}

func writeFinal(path string, data []byte, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return casterr.IO(path, err)
	}
	if err := castlock.WriteAtomic(path, data, mode); err != nil {
		return casterr.IO(path, err)
	}
	return nil
}

// indexEntry updates the destination index entry for id after a
// successful CREATE/UPDATE/MERGE write to destPath.
func indexEntry(opts Options, id, destPath string, file *normalize.File) error {
	info, err := os.Stat(destPath)
	if err != nil {
		return casterr.IO(destPath, err)
	}
	rel, err := filepath.Rel(opts.DestRoot, destPath)
	if err != nil {
		return casterr.IO(destPath, err)
	}
	opts.DestIndex.Upsert(index.Entry{
		ID:         id,
		Path:       filepath.ToSlash(rel),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		FullDigest: file.Digest.Full,
		BodyDigest: file.Digest.Body,
	})
	return nil
}

func recordPeer(opts Options, id string, file *normalize.File, baselineDigest string, result peerstate.Result) {
	opts.Peers.Update(id, peerstate.Entry{
		SourceDigest:     file.Digest.Body,
		DestDigest:       file.Digest.Body,
		BaseObjectDigest: baselineDigest,
		LastResult:       result,
		LastTimestamp:    opts.now(),
	})
}
