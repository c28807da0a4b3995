// Package registry reads the CLI-only global vault registry (spec §6:
// "The CLI/front-end provides {vault-id -> absolute-path}. The engine
// accepts vault roots as input parameters and does not read the
// registry directly"). Nothing in the engine packages imports this
// one; only cmd/cast does.
//
// Grounded on the teacher's stores/ini store, which wraps
// gopkg.in/ini.v1 over a sops.TreeBranches shape; here the shape is
// flat, one section per vault id.
package registry

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/ini.v1"

	"github.com/castsync/cast/casterr"
)

const fileName = "registry.ini"

// Registry is the parsed ~/.cast/registry.ini: vault id to absolute path.
type Registry struct {
	path string
	file *ini.File
}

// DefaultPath returns the conventional registry location under the
// user's home directory.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cast", fileName), nil
}

// Load reads path, tolerating a missing file by returning an empty registry.
func Load(path string) (*Registry, error) {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return nil, casterr.ConfigError(path, err)
	}
	return &Registry{path: path, file: file}, nil
}

// Lookup returns the absolute path registered for vaultID.
func (r *Registry) Lookup(vaultID string) (string, bool) {
	if !r.file.HasSection(vaultID) {
		return "", false
	}
	key := r.file.Section(vaultID).Key("path")
	if key.String() == "" {
		return "", false
	}
	return key.String(), true
}

// Set registers (or updates) vaultID's absolute path.
func (r *Registry) Set(vaultID, absPath string) {
	r.file.Section(vaultID).Key("path").SetValue(absPath)
}

// VaultIDs lists every registered vault id.
func (r *Registry) VaultIDs() []string {
	var ids []string
	for _, s := range r.file.Sections() {
		if s.Name() == ini.DefaultSection {
			continue
		}
		ids = append(ids, s.Name())
	}
	return ids
}

// Save persists the registry back to its source path.
func (r *Registry) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return casterr.IO(r.path, err)
	}
	if err := r.file.SaveTo(r.path); err != nil {
		return casterr.IO(r.path, err)
	}
	return nil
}
