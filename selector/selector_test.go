package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func TestSelectDoubleStarAndExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes/a.md")
	writeFile(t, root, "notes/sub/b.md")
	writeFile(t, root, "notes/sub/c.txt")
	writeFile(t, root, "drafts/d.md")
	writeFile(t, root, ".cast/index.json")

	got, err := Select(root, Patterns{
		Include: []string{"**/*.md"},
		Exclude: []string{"drafts/**"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"notes/a.md", "notes/sub/b.md"}, got)
}

func TestSelectHiddenExcludedByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden.md")
	writeFile(t, root, "visible.md")

	got, err := Select(root, Patterns{Include: []string{"**/*.md", "*.md"}})
	require.NoError(t, err)
	require.Equal(t, []string{"visible.md"}, got)
}

func TestSelectHiddenOptIn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden.md")

	got, err := Select(root, Patterns{Include: []string{"*.md"}, IncludeHidden: true})
	require.NoError(t, err)
	require.Equal(t, []string{".hidden.md"}, got)
}

func TestSelectStableAcrossCalls(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.md")
	writeFile(t, root, "a.md")

	first, err := Select(root, Patterns{Include: []string{"*.md"}})
	require.NoError(t, err)
	second, err := Select(root, Patterns{Include: []string{"*.md"}})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, []string{"a.md", "b.md"}, first)
}

func TestSelectSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.md")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.md"), filepath.Join(root, "link.md")))

	got, err := Select(root, Patterns{Include: []string{"*.md"}})
	require.NoError(t, err)
	require.Equal(t, []string{"real.md"}, got)
}
