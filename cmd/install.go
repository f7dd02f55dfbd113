/*
 * mlinstall: modlist installer engine
 * Copyright © 2026 Mario Finelli
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgemods/mlinstall/internal/download"
	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/hashcache"
	"github.com/forgemods/mlinstall/internal/install"
	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/nativetool"
	"github.com/forgemods/mlinstall/internal/patch"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
	"github.com/forgemods/mlinstall/internal/vfs"
)

var (
	installModlistPath   string
	installDir           string
	downloadsDir         string
	gameDir              string
	installKnownModified []string
)

// installCmd is the thin binding named in §6.2: it parses the modlist
// bundle, wires every C4-C9 component behind install.Dependencies, and
// drives install.Engine.Run to completion.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "install a modlist bundle",
	Long: `Install a packaged modlist bundle into a game's mod-staging directory.

Resolves the game install if --game is omitted, downloads every archive
the bundle's directives reference, extracts and patches them into
--install-dir, and rewrites the manager's own configuration for the
resolved paths. Exits 0 on success, 1 if the bundle requires manual
downloads (see the printed list), 2 on any other failure.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		ml, err := modlist.Load(installModlistPath)
		if err != nil {
			return fmt.Errorf("load modlist %s: %w", installModlistPath, err)
		}

		cfg := modlist.InstallerConfiguration{
			InstallDirectory:   installDir,
			DownloadsDirectory: downloadsDir,
			GameDirectory:      gameDir,
			Modlist:            ml,
			ScreenWidth:        viper.GetInt("install.screenWidth"),
			ScreenHeight:       viper.GetInt("install.screenHeight"),
			VideoMemorySizeMB:  viper.GetInt64("install.videoMemorySizeMB"),
		}

		deps, cleanup, err := buildInstallDependencies(ctx, cfg)
		if err != nil {
			return fmt.Errorf("wire install dependencies: %w", err)
		}
		defer cleanup()

		engine := install.New(cfg, deps, installKnownModified)
		result, err := engine.Run(ctx)
		if err != nil {
			if result != nil {
				printManualDownloads(result.ManualDownloads)
			}
			return err
		}

		fmt.Println("install complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().StringVar(&installModlistPath, "modlist", "", "path to the .modlist bundle (required)")
	installCmd.Flags().StringVar(&installDir, "install-dir", "", "directory to install mods into (required)")
	installCmd.Flags().StringVar(&downloadsDir, "downloads-dir", "", "directory holding (or to receive) archive downloads (required)")
	installCmd.Flags().StringVar(&gameDir, "game-dir", "", "game install directory (auto-resolved from the modlist's game type if omitted)")
	installCmd.Flags().StringSliceVar(&installKnownModified, "known-modified", nil, "install-relative paths exempt from hash-mismatch failures")

	_ = installCmd.MarkFlagRequired("modlist")
	_ = installCmd.MarkFlagRequired("install-dir")
	_ = installCmd.MarkFlagRequired("downloads-dir")
}

// buildInstallDependencies wires every supporting component behind one
// install.Dependencies value, returning a cleanup func that releases
// the resources it acquired.
func buildInstallDependencies(ctx context.Context, cfg modlist.InstallerConfiguration) (install.Dependencies, func(), error) {
	st, err := store.Open(ctx, viper.GetString("store"), 0)
	if err != nil {
		return install.Dependencies{}, nil, fmt.Errorf("open store: %w", err)
	}

	temp, err := fsx.NewTempManager(viper.GetString("tmp_dir"))
	if err != nil {
		st.Close()
		return install.Dependencies{}, nil, fmt.Errorf("setup temp manager: %w", err)
	}
	if err := temp.SweepCrashResidue(); err != nil {
		st.Close()
		return install.Dependencies{}, nil, fmt.Errorf("sweep stale temp residue: %w", err)
	}

	patches, err := patch.New(st, viper.GetString("patch_cache_dir"))
	if err != nil {
		st.Close()
		return install.Dependencies{}, nil, fmt.Errorf("open patch cache: %w", err)
	}

	downloadsRes := rate.New("downloads", viper.GetInt64("resources.downloads"), 0)
	vfsRes := rate.New("vfs", viper.GetInt64("resources.vfs"), 0)
	hashingRes := rate.New("fileHashing", viper.GetInt64("resources.fileHashing"), 0)
	extractorRes := rate.New("fileExtractor", viper.GetInt64("resources.fileExtractor"), 0)
	installerRes := rate.New("installer", viper.GetInt64("resources.installer"), 0)

	downloads := download.New(downloadsRes, cfg.GameDirectory)
	hashes := hashcache.New(st, hashingRes)

	archiveToolPath := resolveNativeTool(viper.GetString("nativetool.archiveTool"))
	payloadToolPath := resolveNativeTool(viper.GetString("nativetool.payloadTool"))
	extractor := &extract.Dispatcher{
		ArchiveTool:     nativetool.HostTool{},
		ArchiveToolPath: archiveToolPath,
		PayloadTool:     nativetool.HostTool{},
		PayloadToolPath: payloadToolPath,
		Temp:            temp,
		CaseRoots:       viper.GetStringSlice("nativetool.caseRoots"),
	}

	vfsIndex := vfs.New(st, extractor, vfsRes, temp)

	deps := install.Dependencies{
		Store:     st,
		Downloads: downloads,
		Extract:   extractor,
		VFS:       vfsIndex,
		Hashes:    hashes,
		Patches:   patches,
		Installer: installerRes,
	}

	cleanup := func() {
		downloadsRes.Close()
		vfsRes.Close()
		hashingRes.Close()
		extractorRes.Close()
		installerRes.Close()
		_ = st.Close()
	}
	return deps, cleanup, nil
}

// resolveNativeTool resolves name to an absolute path via PATH lookup,
// falling back to name itself (exec.Command resolves relative names
// against PATH too, so a lookup miss here is not fatal by itself — the
// dispatcher surfaces the failure when it actually tries to run it).
func resolveNativeTool(name string) string {
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

func printManualDownloads(manual []install.ManualDownload) {
	if len(manual) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("manual downloads required:")
	for _, m := range manual {
		fmt.Printf("  - %s\n", m.Archive.Name)
		if m.Prompt != "" {
			fmt.Printf("      %s\n", m.Prompt)
		}
		if m.URL != "" {
			fmt.Printf("      %s\n", m.URL)
		}
	}
}
