// Package planner implements the sync decision table of spec §4.7: a
// pure function from (source index, destination index, peer state,
// mode) to an ordered action list. It performs no I/O and holds no
// state between calls, the property the "Planner purity" testable
// property depends on.
package planner

import (
	"regexp"
	"sort"

	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/index"
	"github.com/castsync/cast/peerstate"
)

// Mode is the sync relationship between the source and destination
// vault for this run, derived from each side's participation-list role
// (or forced by the operator for Mirror).
type Mode int

const (
	Broadcast Mode = iota
	Bidirectional
	Mirror
)

// Kind is the action the applier must take for one identifier.
type Kind string

const (
	Create   Kind = "CREATE"
	Update   Kind = "UPDATE"
	Skip     Kind = "SKIP"
	Merge    Kind = "MERGE"
	Conflict Kind = "CONFLICT"
	Delete   Kind = "DELETE"
)

// Action is one identifier's planned decision.
type Action struct {
	ID             string
	DestPath       string
	SourcePath     string
	Kind           Kind
	BaselineDigest string
}

// ActionList is the planner's output, always sorted by destination
// path with identifier as tie-breaker (spec §4.7).
type ActionList []Action

// Options bundles everything Plan needs. MissingBaselines names
// identifiers whose peer-state entry records a baseline digest the
// object store no longer has; the caller (which holds the object
// store handle) computes this set, keeping Plan itself I/O-free.
type Options struct {
	Source          index.Snapshot
	Dest            index.Snapshot
	Peers           peerstate.Snapshot
	Mode            Mode
	LocalVaultID    string
	RemoteVaultID   string
	DeleteOnMirror  bool
	MissingBaselines map[string]bool
}

// Plan computes the ordered action list for one sync run. Returned
// errors are non-fatal per-identifier diagnostics (IneligiblePair,
// MissingBaseline); they do not stop classification of the remaining
// identifiers.
func Plan(opts Options) (ActionList, []error) {
	var actions ActionList
	var errs []error

	ids := unionIDs(opts.Source, opts.Dest)
	for _, id := range ids {
		src, hasSrc := opts.Source[id]
		dst, hasDst := opts.Dest[id]

		if !eligible(src, hasSrc, dst, hasDst, opts.LocalVaultID, opts.RemoteVaultID) {
			errs = append(errs, casterr.IneligiblePair(id))
			if hasDst {
				actions = append(actions, Action{ID: id, DestPath: dst.Path, SourcePath: src.Path, Kind: Skip})
			}
			continue
		}

		if opts.MissingBaselines[id] {
			errs = append(errs, casterr.MissingBaseline(id, opts.Peers[id].BaseObjectDigest))
			actions = append(actions, Action{ID: id, DestPath: destPath(src, dst), SourcePath: srcPath(src), Kind: Conflict})
			continue
		}

		action, ok := classify(id, src, hasSrc, dst, hasDst, opts.Peers[id], opts.Mode, opts.DeleteOnMirror)
		if ok {
			actions = append(actions, action)
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].DestPath != actions[j].DestPath {
			return actions[i].DestPath < actions[j].DestPath
		}
		return actions[i].ID < actions[j].ID
	})
	return actions, errs
}

func unionIDs(src, dst index.Snapshot) []string {
	seen := make(map[string]bool, len(src)+len(dst))
	var ids []string
	for id := range src {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range dst {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func classify(id string, src index.Entry, hasSrc bool, dst index.Entry, hasDst bool, peer peerstate.Entry, mode Mode, deleteOnMirror bool) (Action, bool) {
	switch {
	case hasSrc && !hasDst:
		return Action{ID: id, DestPath: src.Path, SourcePath: src.Path, Kind: Create}, true

	case !hasSrc && hasDst:
		if mode == Mirror && deleteOnMirror {
			return Action{ID: id, DestPath: dst.Path, Kind: Delete}, true
		}
		return Action{}, false

	case src.BodyDigest == dst.BodyDigest:
		return Action{ID: id, DestPath: dst.Path, SourcePath: src.Path, Kind: Skip, BaselineDigest: peer.BaseObjectDigest}, true

	default:
		baseline := peer.BaseObjectDigest
		srcChanged := baseline == "" || src.BodyDigest != baseline
		dstChanged := baseline == "" || dst.BodyDigest != baseline

		var kind Kind
		switch {
		case baseline == "":
			switch mode {
			case Broadcast, Mirror:
				kind = Update
			default:
				kind = Conflict
			}
		case srcChanged && !dstChanged:
			kind = Update
		case !srcChanged && dstChanged:
			if mode == Mirror {
				kind = Update
			} else {
				kind = Skip
			}
		default: // both changed
			switch mode {
			case Bidirectional:
				kind = Merge
			default:
				kind = Update
			}
		}
		return Action{ID: id, DestPath: dst.Path, SourcePath: src.Path, Kind: kind, BaselineDigest: baseline}, true
	}
}

func eligible(src index.Entry, hasSrc bool, dst index.Entry, hasDst bool, local, remote string) bool {
	if hasSrc && participates(src.Vaults, local, remote) {
		return true
	}
	return hasDst && participates(dst.Vaults, local, remote)
}

func participates(vaults []string, local, remote string) bool {
	if len(vaults) == 0 {
		return false
	}
	var foundLocal, foundRemote bool
	for _, v := range vaults {
		id, _, ok := ParseParticipant(v)
		if !ok {
			continue
		}
		if id == local {
			foundLocal = true
		}
		if id == remote {
			foundRemote = true
		}
	}
	return foundLocal && foundRemote
}

var participantPattern = regexp.MustCompile(`^\s*(\S+)\s*\(\s*(cast|sync)\s*\)\s*$`)

// ParseParticipant parses one cast-vaults entry of the form
// "<vault-id> (<role>)" into its vault id and role.
func ParseParticipant(entry string) (id, role string, ok bool) {
	m := participantPattern.FindStringSubmatch(entry)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// DeriveMode inspects one document's participation list and returns
// the sync mode implied by the (local, remote) role pairing. It does
// not consider an operator-forced Mirror override; callers apply that
// separately.
func DeriveMode(vaults []string, local, remote string) (Mode, bool) {
	var localRole, remoteRole string
	var foundLocal, foundRemote bool
	for _, v := range vaults {
		id, role, ok := ParseParticipant(v)
		if !ok {
			continue
		}
		if id == local {
			localRole, foundLocal = role, true
		}
		if id == remote {
			remoteRole, foundRemote = role, true
		}
	}
	if !foundLocal || !foundRemote {
		return Broadcast, false
	}
	if remoteRole == "cast" && localRole == "sync" {
		return Broadcast, true
	}
	if remoteRole == "sync" && localRole == "sync" {
		return Bidirectional, true
	}
	return Broadcast, false
}

func destPath(src index.Entry, dst index.Entry) string {
	if dst.Path != "" {
		return dst.Path
	}
	return src.Path
}

func srcPath(src index.Entry) string {
	return src.Path
}
