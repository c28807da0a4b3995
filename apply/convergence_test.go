package apply

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/index"
	"github.com/castsync/cast/objectstore"
	"github.com/castsync/cast/peerstate"
	"github.com/castsync/cast/planner"
	"github.com/castsync/cast/selector"
)

// rebuild (re)builds and persists the index rooted at root, picking up
// whatever files are on disk right now.
func rebuild(t *testing.T, root string) *index.Index {
	t.Helper()
	ix, err := index.Load(filepath.Join(root, ".cast", "index.json"))
	require.NoError(t, err)
	_, err = index.Build(ix, index.Options{
		Root:     root,
		Patterns: selector.Patterns{Include: []string{"**/*.md"}},
		Mode:     index.Incremental,
	})
	require.NoError(t, err)
	require.NoError(t, ix.Save())
	return ix
}

// runSync plans and applies one direction of a sync between two real,
// on-disk vault roots and returns the result.
func runSync(t *testing.T, sourceRoot, destRoot, sourceVaultID, destVaultID string) Result {
	t.Helper()
	sourceIx := rebuild(t, sourceRoot)
	destIx := rebuild(t, destRoot)

	peers, err := peerstate.Load(filepath.Join(destRoot, ".cast", "peers"), destVaultID, sourceVaultID)
	require.NoError(t, err)
	objects, err := objectstore.New(filepath.Join(destRoot, ".cast", "objects"))
	require.NoError(t, err)

	actions, planErrs := planner.Plan(planner.Options{
		Source:        sourceIx.Snapshot(),
		Dest:          destIx.Snapshot(),
		Peers:         peers.Snapshot(),
		Mode:          planner.Bidirectional,
		LocalVaultID:  destVaultID,
		RemoteVaultID: sourceVaultID,
	})
	require.Empty(t, planErrs)

	result, err := Apply(actions, Options{
		SourceRoot:    sourceRoot,
		DestRoot:      destRoot,
		DestIndex:     destIx,
		Peers:         peers,
		Objects:       objects,
		SourceVaultID: sourceVaultID,
		DestVaultID:   destVaultID,
	})
	require.NoError(t, err)
	return result
}

// TestSyncConvergence exercises the quantified "Sync convergence"
// property end to end against real vault directories: forward sync,
// then the reverse, then forward again must be a no-op.
func TestSyncConvergence(t *testing.T) {
	vaultA, vaultB := t.TempDir(), t.TempDir()
	write(t, vaultA, "note.md", "---\ncast-id: 55555555-5555-4555-8555-555555555555\ncast-vaults:\n    - A (sync)\n    - B (sync)\n---\nhello\n")

	forward := runSync(t, vaultA, vaultB, "A", "B")
	require.Len(t, forward.Applied, 1)
	require.Equal(t, planner.Create, forward.Applied[0].Kind)
	require.Empty(t, forward.Failed)
	require.Empty(t, forward.Conflicts)

	bRaw, err := os.ReadFile(filepath.Join(vaultB, "note.md"))
	require.NoError(t, err)
	require.Contains(t, string(bRaw), "hello")

	reverse := runSync(t, vaultB, vaultA, "B", "A")
	require.Len(t, reverse.Applied, 1)
	require.Equal(t, planner.Skip, reverse.Applied[0].Kind)
	require.Empty(t, reverse.Failed)
	require.Empty(t, reverse.Conflicts)

	forwardAgain := runSync(t, vaultA, vaultB, "A", "B")
	require.Len(t, forwardAgain.Applied, 1)
	require.Equal(t, planner.Skip, forwardAgain.Applied[0].Kind)
	require.Empty(t, forwardAgain.Failed)
	require.Empty(t, forwardAgain.Conflicts)

	aRaw, err := os.ReadFile(filepath.Join(vaultA, "note.md"))
	require.NoError(t, err)
	require.Equal(t, string(aRaw), string(bRaw))
}
