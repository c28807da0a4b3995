// Command cast is the CLI front-end wiring every engine package
// together: index, plan, apply, and the global vault registry. The
// engine packages never read the registry themselves (spec §6); only
// this binary does.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/castsync/cast/apply"
	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/castlog"
	"github.com/castsync/cast/index"
	"github.com/castsync/cast/objectstore"
	"github.com/castsync/cast/peerstate"
	"github.com/castsync/cast/planner"
	"github.com/castsync/cast/registry"
	"github.com/castsync/cast/runreport"
	"github.com/castsync/cast/selector"
	"github.com/castsync/cast/vaultconfig"
)

var log = castlog.New("CAST")

func main() {
	app := cli.NewApp()
	app.Name = "cast"
	app.Usage = "decentralized Markdown vault sync"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "verbose, v", Usage: "enable debug logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("verbose") {
			castlog.SetLevel(logrus.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		indexCommand(),
		syncCommand(),
		vaultsCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(casterr.ExitFilesystemError)
	}
}

func indexCommand() cli.Command {
	return cli.Command{
		Name:      "index",
		Usage:     "build or refresh a vault's index",
		ArgsUsage: "<vault-path>",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "rebuild", Usage: "ignore cached digests and re-hash every file"},
			cli.BoolFlag{Name: "auto-fix", Usage: "inject missing cast-id headers"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.NewExitError("usage: cast index <vault-path>", casterr.ExitConfigError)
			}
			root := c.Args().Get(0)
			cfg, err := vaultconfig.Load(root)
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitConfigError)
			}

			mode := index.Incremental
			if c.Bool("rebuild") {
				mode = index.Rebuild
			}

			ix, err := index.Load(filepath.Join(root, ".cast", "index.json"))
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
			}
			fileErrs, err := index.Build(ix, index.Options{
				Root:          root,
				Patterns:      selector.Patterns{Include: cfg.Include, Exclude: cfg.Exclude},
				EphemeralKeys: cfg.EphemeralKeys,
				AutoFix:       c.Bool("auto-fix"),
				Mode:          mode,
			})
			for _, fe := range fileErrs {
				log.WithField("error", fe).Warn("skipped file during indexing")
			}
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitCode(err))
			}
			if err := ix.Save(); err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
			}
			fmt.Printf("indexed %d documents in %s\n", len(ix.Snapshot()), root)
			return nil
		},
	}
}

func syncCommand() cli.Command {
	return cli.Command{
		Name:      "sync",
		Usage:     "sync one vault into another",
		ArgsUsage: "<source-vault-path> <dest-vault-path>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "mode", Value: "bidirectional", Usage: "broadcast | bidirectional | mirror"},
			cli.BoolFlag{Name: "delete", Usage: "mirror mode only: remove dest-only files"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.NewExitError("usage: cast sync <source-vault-path> <dest-vault-path>", casterr.ExitConfigError)
			}
			sourceRoot, destRoot := c.Args().Get(0), c.Args().Get(1)

			sourceCfg, err := vaultconfig.Load(sourceRoot)
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitConfigError)
			}
			destCfg, err := vaultconfig.Load(destRoot)
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitConfigError)
			}

			sourceIx, err := index.Load(filepath.Join(sourceRoot, ".cast", "index.json"))
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
			}
			if _, err := index.Build(sourceIx, index.Options{
				Root: sourceRoot, Patterns: selector.Patterns{Include: sourceCfg.Include, Exclude: sourceCfg.Exclude},
				EphemeralKeys: sourceCfg.EphemeralKeys, Mode: index.Incremental,
			}); err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitCode(err))
			}

			destIx, err := index.Load(filepath.Join(destRoot, ".cast", "index.json"))
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
			}
			if _, err := index.Build(destIx, index.Options{
				Root: destRoot, Patterns: selector.Patterns{Include: destCfg.Include, Exclude: destCfg.Exclude},
				EphemeralKeys: destCfg.EphemeralKeys, Mode: index.Incremental,
			}); err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitCode(err))
			}

			mode, err := resolveMode(c, sourceIx, destIx, destCfg.VaultID, sourceCfg.VaultID)
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitConfigError)
			}
			if mode == planner.Mirror && c.Bool("delete") && term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Printf("This will delete files in %s that are absent from %s. Continue? (y/n): ", destRoot, sourceRoot)
				var response string
				if _, err := fmt.Scanln(&response); err != nil {
					return cli.NewExitError(err.Error(), casterr.ExitConfigError)
				}
				if response != "y" {
					return cli.NewExitError("aborted by user", casterr.ExitConfigError)
				}
			}

			peers, err := peerstate.Load(filepath.Join(destRoot, ".cast", "peers"), destCfg.VaultID, sourceCfg.VaultID)
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
			}
			objects, err := objectstore.New(filepath.Join(destRoot, ".cast", "objects"))
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
			}

			missing := make(map[string]bool)
			for id, e := range peers.Snapshot() {
				if e.BaseObjectDigest == "" {
					continue
				}
				ok, err := objects.Has(e.BaseObjectDigest)
				if err != nil {
					return cli.NewExitError(err.Error(), casterr.ExitCode(err))
				}
				if !ok {
					missing[id] = true
				}
			}

			actions, planErrs := planner.Plan(planner.Options{
				Source:        sourceIx.Snapshot(),
				Dest:          destIx.Snapshot(),
				Peers:         peers.Snapshot(),
				Mode:          mode,
				LocalVaultID:  destCfg.VaultID,
				RemoteVaultID: sourceCfg.VaultID,
				DeleteOnMirror: c.Bool("delete"),
				MissingBaselines: missing,
			})
			for _, pe := range planErrs {
				log.WithField("error", pe).Debug("elided identifier during planning")
			}

			result, err := apply.Apply(actions, apply.Options{
				SourceRoot:    sourceRoot,
				DestRoot:      destRoot,
				DestIndex:     destIx,
				Peers:         peers,
				Objects:       objects,
				SourceVaultID: sourceCfg.VaultID,
				DestVaultID:   destCfg.VaultID,
				EphemeralKeys: destCfg.EphemeralKeys,
			})
			if err != nil {
				return cli.NewExitError(err.Error(), casterr.ExitCode(err))
			}

			report := runreport.New(peerstate.PeerID(destCfg.VaultID, sourceCfg.VaultID), planErrs, result, nil)
			report.Render(os.Stdout)
			fmt.Println(report.Summary())
			os.Exit(report.ExitCode())
			return nil
		},
	}
}

// resolveMode implements spec §4.7: the sync mode is derived from the
// (local, remote) role pairing each participating document declares in
// its cast-vaults header, not read off a flag. Mirror is the one
// exception — it is never inferable from participation roles alone, so
// an explicit --mode=mirror always wins. If no document in either
// index names both vault ids (e.g. a brand-new, still-empty vault
// pair), derivation has nothing to work from and falls back to the
// operator's --mode flag.
func resolveMode(c *cli.Context, sourceIx, destIx *index.Index, localVaultID, remoteVaultID string) (planner.Mode, error) {
	if c.String("mode") == "mirror" {
		return planner.Mirror, nil
	}

	if mode, ok := deriveModeFromParticipation(sourceIx, destIx, localVaultID, remoteVaultID); ok {
		return mode, nil
	}

	return parseMode(c.String("mode"))
}

// deriveModeFromParticipation scans the union of both indices, in
// identifier order for determinism, for the first document whose
// cast-vaults entries name both localVaultID and remoteVaultID, and
// derives the mode from their role pairing.
func deriveModeFromParticipation(sourceIx, destIx *index.Index, localVaultID, remoteVaultID string) (planner.Mode, bool) {
	source := sourceIx.Snapshot()
	dest := destIx.Snapshot()

	ids := make(map[string]bool, len(source)+len(dest))
	for id := range source {
		ids[id] = true
	}
	for id := range dest {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		if e, ok := source[id]; ok {
			if mode, ok := planner.DeriveMode(e.Vaults, localVaultID, remoteVaultID); ok {
				return mode, true
			}
		}
		if e, ok := dest[id]; ok {
			if mode, ok := planner.DeriveMode(e.Vaults, localVaultID, remoteVaultID); ok {
				return mode, true
			}
		}
	}
	return 0, false
}

func parseMode(s string) (planner.Mode, error) {
	switch s {
	case "broadcast":
		return planner.Broadcast, nil
	case "bidirectional":
		return planner.Bidirectional, nil
	case "mirror":
		return planner.Mirror, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want broadcast, bidirectional, or mirror)", s)
	}
}

func vaultsCommand() cli.Command {
	return cli.Command{
		Name:  "vaults",
		Usage: "manage the local vault registry",
		Subcommands: []cli.Command{
			{
				Name:      "add",
				ArgsUsage: "<vault-id> <path>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.NewExitError("usage: cast vaults add <vault-id> <path>", casterr.ExitConfigError)
					}
					reg, err := openRegistry()
					if err != nil {
						return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
					}
					abs, err := filepath.Abs(c.Args().Get(1))
					if err != nil {
						return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
					}
					reg.Set(c.Args().Get(0), abs)
					if err := reg.Save(); err != nil {
						return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
					}
					return nil
				},
			},
			{
				Name: "list",
				Action: func(c *cli.Context) error {
					reg, err := openRegistry()
					if err != nil {
						return cli.NewExitError(err.Error(), casterr.ExitFilesystemError)
					}
					for _, id := range reg.VaultIDs() {
						path, _ := reg.Lookup(id)
						fmt.Printf("%s\t%s\n", id, path)
					}
					return nil
				},
			},
		},
	}
}

func openRegistry() (*registry.Registry, error) {
	path, err := registry.DefaultPath()
	if err != nil {
		return nil, err
	}
	return registry.Load(path)
}
