package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/selector"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func defaultOptions(root string) Options {
	return Options{
		Root:     root,
		Patterns: selector.Patterns{Include: []string{"**/*.md"}},
		Mode:     Rebuild,
	}
}

func TestBuildIndexesHeaderedFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\ncast-id: 11111111-1111-4111-8111-111111111111\n---\nbody\n")
	writeFile(t, root, "b.md", "no header here\n")

	ix, err := Load(filepath.Join(root, ".cast", "index.json"))
	require.NoError(t, err)

	fileErrs, err := Build(ix, defaultOptions(root))
	require.NoError(t, err)
	require.Empty(t, fileErrs)

	snap := ix.Snapshot()
	require.Len(t, snap, 1)
	entry, ok := ix.LookupByID("11111111-1111-4111-8111-111111111111")
	require.True(t, ok)
	require.Equal(t, "a.md", entry.Path)
	require.NotEmpty(t, entry.FullDigest)
	require.NotEmpty(t, entry.BodyDigest)
}

func TestBuildDetectsDuplicateIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\ncast-id: 22222222-2222-4222-8222-222222222222\n---\nbody a\n")
	writeFile(t, root, "b.md", "---\ncast-id: 22222222-2222-4222-8222-222222222222\n---\nbody b\n")

	ix, err := Load(filepath.Join(root, ".cast", "index.json"))
	require.NoError(t, err)

	_, err = Build(ix, defaultOptions(root))
	require.Error(t, err)
}

func TestBuildAutoFixInjectsIdentifiers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\ncast-vaults: [work]\n---\nbody\n")

	ix, err := Load(filepath.Join(root, ".cast", "index.json"))
	require.NoError(t, err)

	opts := defaultOptions(root)
	opts.AutoFix = true
	fileErrs, err := Build(ix, opts)
	require.NoError(t, err)
	require.Empty(t, fileErrs)
	require.Len(t, ix.Snapshot(), 1)

	raw, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "cast-id:")
}

func TestIncrementalBuildReusesCacheForUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\ncast-id: 33333333-3333-4333-8333-333333333333\n---\nbody\n")

	ix, err := Load(filepath.Join(root, ".cast", "index.json"))
	require.NoError(t, err)

	opts := defaultOptions(root)
	_, err = Build(ix, opts)
	require.NoError(t, err)
	first, _ := ix.LookupByID("33333333-3333-4333-8333-333333333333")

	opts.Mode = Incremental
	_, err = Build(ix, opts)
	require.NoError(t, err)
	second, _ := ix.LookupByID("33333333-3333-4333-8333-333333333333")

	require.Equal(t, first.FullDigest, second.FullDigest)
	require.Equal(t, first.ModTime, second.ModTime)
}

func TestSaveLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\ncast-id: 44444444-4444-4444-8444-444444444444\n---\nbody\n")

	path := filepath.Join(root, ".cast", "index.json")
	ix, err := Load(path)
	require.NoError(t, err)
	_, err = Build(ix, defaultOptions(root))
	require.NoError(t, err)
	require.NoError(t, ix.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	entry, ok := reloaded.LookupByID("44444444-4444-4444-8444-444444444444")
	require.True(t, ok)
	require.Equal(t, "a.md", entry.Path)
}
