package vaultconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	path := Path(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaultsIncludeAndLineEndings(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "vault:\n  id: work\n")

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "work", cfg.VaultID)
	require.Equal(t, []string{"**/*.md"}, cfg.Include)
	require.Equal(t, LineEndingsLF, cfg.LineEndings)
}

func TestLoadParsesAllRecognizedKeys(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
cast-version: "1"
vault:
  id: work
index:
  include: ["**/*.md"]
  exclude: ["drafts/**"]
  max_file_size: 1048576
merge:
  ephemeral_keys: [updated_at]
advanced:
  line_endings: crlf
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, []string{"drafts/**"}, cfg.Exclude)
	require.Equal(t, int64(1048576), cfg.MaxFileSize)
	require.Equal(t, []string{"updated_at"}, cfg.EphemeralKeys)
	require.Equal(t, LineEndingsCRLF, cfg.LineEndings)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}
