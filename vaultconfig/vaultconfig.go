// Package vaultconfig loads a vault's .cast/config.yaml (spec §6): the
// include/exclude patterns, ephemeral-key list, vault id, and the
// cast-version gate. Grounded on the teacher's config.FindConfigFile /
// config.Load shape, simplified from its multi-format-store config to
// Cast's flat key set.
package vaultconfig

import (
	"os"
	"path/filepath"

	"github.com/blang/semver"
	yaml "go.yaml.in/yaml/v3"

	"github.com/castsync/cast/casterr"
)

// SupportedVersion is the cast-version this engine implements. Configs
// whose major version is greater are refused; any other version is
// accepted.
var SupportedVersion = semver.MustParse("1.0.0")

// LineEndingPolicy controls the output line-ending convention for
// written files.
type LineEndingPolicy string

const (
	LineEndingsLF     LineEndingPolicy = "lf"
	LineEndingsCRLF   LineEndingPolicy = "crlf"
	LineEndingsNative LineEndingPolicy = "native"
)

// raw mirrors the on-disk YAML shape exactly, keeping the public
// Config free of yaml tags.
type raw struct {
	CastVersion string `yaml:"cast-version"`
	Vault       struct {
		ID string `yaml:"id"`
	} `yaml:"vault"`
	Index struct {
		Include     []string `yaml:"include"`
		Exclude     []string `yaml:"exclude"`
		MaxFileSize int64    `yaml:"max_file_size"`
	} `yaml:"index"`
	Merge struct {
		EphemeralKeys []string `yaml:"ephemeral_keys"`
	} `yaml:"merge"`
	Advanced struct {
		LineEndings string `yaml:"line_endings"`
	} `yaml:"advanced"`
}

// Config is one vault's parsed .cast/config.yaml.
type Config struct {
	VaultID       string
	Include       []string
	Exclude       []string
	MaxFileSize   int64
	EphemeralKeys []string
	LineEndings   LineEndingPolicy
}

// Path returns the conventional config file path under vaultRoot.
func Path(vaultRoot string) string {
	return filepath.Join(vaultRoot, ".cast", "config.yaml")
}

// Load reads and validates vaultRoot's config file, refusing to
// operate on a cast-version this engine cannot safely interpret.
func Load(vaultRoot string) (*Config, error) {
	path := Path(vaultRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, casterr.IO(path, err)
	}

	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, casterr.ConfigError(path, err)
	}

	if err := checkVersion(r.CastVersion); err != nil {
		return nil, err
	}

	cfg := &Config{
		VaultID:       r.Vault.ID,
		Include:       r.Index.Include,
		Exclude:       r.Index.Exclude,
		MaxFileSize:   r.Index.MaxFileSize,
		EphemeralKeys: r.Merge.EphemeralKeys,
		LineEndings:   LineEndingPolicy(r.Advanced.LineEndings),
	}
	if len(cfg.Include) == 0 {
		cfg.Include = []string{"**/*.md"}
	}
	if cfg.LineEndings == "" {
		cfg.LineEndings = LineEndingsLF
	}
	return cfg, nil
}

func checkVersion(version string) error {
	if version == "" {
		return nil // unset config predates versioning; accept it
	}
	v, err := semver.Parse(normalizeVersion(version))
	if err != nil {
		return casterr.ConfigError("cast-version", err)
	}
	if v.Major > SupportedVersion.Major {
		return casterr.ErrUnsupportedVersion
	}
	return nil
}

// normalizeVersion expands Cast's bare "1"-style cast-version into a
// full semver string semver.Parse accepts.
func normalizeVersion(version string) string {
	dots := 0
	for _, r := range version {
		if r == '.' {
			dots++
		}
	}
	for ; dots < 2; dots++ {
		version += ".0"
	}
	return version
}
