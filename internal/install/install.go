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

// Package install implements C8, the 15-phase installer state machine
// (§4.7): it takes a parsed modlist plus the engine's supporting
// components (C4-C7, C9) and drives a modlist installation to
// completion, phase by phase, cancellable at every boundary. Grounded
// on cmd/doctor.go's ordered-checks, first-failure-wins checklist
// style, generalised from "run every check and report" into "run every
// phase in strict order and stop at the first one that fails".
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/download"
	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/gamelocate"
	"github.com/forgemods/mlinstall/internal/hashcache"
	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/patch"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
	"github.com/forgemods/mlinstall/internal/vfs"
)

// Dependencies are the already-constructed components the engine wires
// together. Each is process-wide but explicitly constructor-injected
// rather than an ambient global, per §9's "global mutable state" note.
type Dependencies struct {
	Store     *store.Store
	Downloads *download.Dispatcher
	Extract   *extract.Dispatcher
	VFS       *vfs.Index
	Hashes    *hashcache.Cache
	Patches   *patch.Cache
	// Installer gates the install run itself as one task of the
	// Installer resource (§5's named-resources table).
	Installer *rate.Resource
}

// ManualDownload is one archive the intervention handler must surface
// to the user (§4.7 phase 4, §7 "user intervention required").
type ManualDownload struct {
	Archive modlist.Archive
	Prompt  string
	URL     string
}

// Result is returned by a successful Run, and also alongside
// ErrManualDownloads when the manual-download gate stops the run.
type Result struct {
	ManualDownloads []ManualDownload
}

// Engine drives one modlist installation.
type Engine struct {
	deps Dependencies
	cfg  modlist.InstallerConfiguration

	knownModifiedAllowList map[string]bool

	installDir   fsx.AbsolutePath
	downloadsDir fsx.AbsolutePath
	gameDir      fsx.AbsolutePath

	directives []modlist.Directive
	// hashedArchives maps an archive's content hash to its verified
	// on-disk path under downloadsDir (§4.7 phase 3's "hashed-archives
	// map").
	hashedArchives map[modlist.Hash]string
	manual         []ManualDownload
}

// New returns an Engine for cfg. knownModifiedAllowList names directive
// targets (the `to` path, relative to the install directory) exempted
// from fatal hash-mismatch treatment (§8 invariant 1) — a modlist author
// or user-supplied list of files expected to be hand-edited after
// install.
func New(cfg modlist.InstallerConfiguration, deps Dependencies, knownModifiedAllowList []string) *Engine {
	allow := make(map[string]bool, len(knownModifiedAllowList))
	for _, p := range knownModifiedAllowList {
		allow[filepath.ToSlash(p)] = true
	}
	return &Engine{
		deps:                   deps,
		cfg:                    cfg,
		knownModifiedAllowList: allow,
		hashedArchives:         make(map[modlist.Hash]string),
	}
}

type phase struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes all 15 phases in strict order, returning CANCELLED at
// the next phase boundary once ctx is done (§5). Once a phase
// completes, Run never re-enters it (§7).
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	job, err := e.deps.Installer.Begin(ctx, "install "+e.cfg.Modlist.Name, 0)
	if err != nil {
		return nil, fmt.Errorf("begin installer job: %w", err)
	}
	defer e.deps.Installer.Finish(job)

	phases := []phase{
		{"configure", e.phaseConfigure},
		{"optimise modlist", e.phaseOptimise},
		{"hash archives", e.phaseHashArchives},
		{"download archives", e.phaseDownloadArchives},
		{"manual-download gate", e.phaseManualGate},
		{"rehash and corruption recovery", e.phaseRehashRecovery},
		{"extract modlist bundle", e.phaseExtractBundle},
		{"prime vfs", e.phasePrimeVFS},
		{"build folder structure", e.phaseBuildFolders},
		{"install archives", e.phaseInstallArchives},
		{"install inline files", e.phaseInstallInline},
		{"write meta files", e.phaseWriteMeta},
		{"build container archives", e.phaseBuildContainers},
		{"generate merge patches", e.phaseGenerateMergePatches},
		{"finalise", e.phaseFinalise},
	}

	for _, p := range phases {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		if err := p.run(ctx); err != nil {
			// The manual-download gate carries its findings back even
			// on failure so a caller can print them before exiting.
			if p.name == "manual-download gate" {
				return &Result{ManualDownloads: e.manual}, fmt.Errorf("phase %q: %w", p.name, err)
			}
			return nil, fmt.Errorf("phase %q: %w", p.name, err)
		}
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
	}

	return &Result{ManualDownloads: e.manual}, nil
}

// phaseConfigure validates directories, resolves the game folder, and
// creates the install/downloads directories (§4.7 phase 1).
func (e *Engine) phaseConfigure(ctx context.Context) error {
	gameDir := e.cfg.GameDirectory
	if gameDir == "" {
		resolved, err := gamelocate.Resolve(e.cfg.Modlist.GameType)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrGameMissing, err)
		}
		gameDir = resolved
	}
	if info, err := os.Stat(gameDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrGameMissing, gameDir)
	}
	e.gameDir = fsx.AbsolutePath(gameDir)

	if e.cfg.InstallDirectory == "" || e.cfg.DownloadsDirectory == "" {
		return fmt.Errorf("%w: install and downloads directories are required", ErrGameInvalid)
	}
	if err := os.MkdirAll(e.cfg.InstallDirectory, 0o755); err != nil {
		return fmt.Errorf("%w: create install directory: %s", ErrGameInvalid, err)
	}
	if err := os.MkdirAll(e.cfg.DownloadsDirectory, 0o755); err != nil {
		return fmt.Errorf("%w: create downloads directory: %s", ErrGameInvalid, err)
	}
	for _, dir := range []string{e.cfg.InstallDirectory, e.cfg.DownloadsDirectory} {
		f, err := os.CreateTemp(dir, ".mlinstall-write-check-*")
		if err != nil {
			return fmt.Errorf("%w: %s is not writable: %s", ErrGameInvalid, dir, err)
		}
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	e.installDir = fsx.AbsolutePath(e.cfg.InstallDirectory)
	e.downloadsDir = fsx.AbsolutePath(e.cfg.DownloadsDirectory)
	return nil
}

// phaseOptimise collapses directives that share both `to` and hash,
// keeping one (§4.7 phase 2).
func (e *Engine) phaseOptimise(ctx context.Context) error {
	seen := make(map[string]modlist.Hash, len(e.cfg.Modlist.Directives))
	out := make([]modlist.Directive, 0, len(e.cfg.Modlist.Directives))
	for _, d := range e.cfg.Modlist.Directives {
		if h, ok := seen[d.Target()]; ok && h == d.ExpectedHash() {
			continue
		}
		seen[d.Target()] = d.ExpectedHash()
		out = append(out, d)
	}
	e.directives = out
	return nil
}

// phaseBuildFolders creates every directive's `to`-parent directory
// (§4.7 phase 9).
func (e *Engine) phaseBuildFolders(ctx context.Context) error {
	for _, d := range e.directives {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		target := e.installDir.Join(fsx.RelativePath(d.Target()))
		if under, err := fsx.IsUnderDir(e.installDir, target); err != nil || !under {
			return fmt.Errorf("directive target %s lies outside the install directory", d.Target())
		}
		if err := os.MkdirAll(filepath.Dir(string(target)), 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", d.Target(), err)
		}
	}
	return nil
}

// isKnownModified reports whether to is on the user's known-modified
// allow-list (§8 invariant 1), exempting it from fatal hash-mismatch
// treatment.
func (e *Engine) isKnownModified(to string) bool {
	return e.knownModifiedAllowList[filepath.ToSlash(to)]
}

// archivePath returns the expected on-disk path for archive inside the
// downloads directory.
func (e *Engine) archivePath(a modlist.Archive) string {
	return filepath.Join(string(e.downloadsDir), a.Name)
}
