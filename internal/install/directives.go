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

package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
)

// stageToTemp streams r into a fresh temp file beside target, hashing as
// it writes, and returns the staged path plus the resulting hash. The
// caller renames the staged file into place only after verifying the
// hash — this is how every directive-produced file reaches install/ by
// an atomic rename rather than a partial in-place write (§8 scenario
// "Cancel at phase 10").
func stageToTemp(ctx context.Context, dir string, r io.Reader) (string, modlist.Hash, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.CreateTemp(dir, ".staged-*")
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := modlist.NewHasher()
	buf := make([]byte, 1<<20)
	if _, err := fsx.CopyWithContext(ctx, io.MultiWriter(f, h), r, buf); err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), modlist.SumHash(h), nil
}

// commitStaged renames staged into place at target, fsyncing the
// destination directory afterward.
func commitStaged(staged, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		_ = os.Remove(staged)
		return err
	}
	if err := os.Rename(staged, target); err != nil {
		_ = os.Remove(staged)
		return err
	}
	_ = fsx.FsyncDir(filepath.Dir(target))
	return nil
}

// phaseInstallArchives extracts every FromArchive/PatchedFromArchive
// directive via the VFS and the extraction dispatcher, verifies the
// result's hash, applies the binary diff for patched variants, and
// commits the result atomically (§4.7 phase 10).
func (e *Engine) phaseInstallArchives(ctx context.Context) error {
	for _, d := range e.directives {
		var from modlist.FromArchive
		var patchBlobID string
		switch v := d.(type) {
		case modlist.FromArchive:
			from = v
		case modlist.PatchedFromArchive:
			from = v.FromArchive
			patchBlobID = v.PatchBlobID
		default:
			continue
		}

		if ctx.Err() != nil {
			return ErrCancelled
		}

		if err := e.installOneArchiveDirective(ctx, d, from, patchBlobID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) installOneArchiveDirective(ctx context.Context, d modlist.Directive, from modlist.FromArchive, patchBlobID string) error {
	locs, err := e.deps.VFS.Locations(ctx, from.Hash)
	if err != nil || len(locs) == 0 {
		return fmt.Errorf("locate %s in vfs: %w", from.To, err)
	}
	loc := locs[0]

	archiveHash, err := modlist.ParseHash(loc.ArchiveHash)
	if err != nil {
		return fmt.Errorf("parse vfs archive hash for %s: %w", from.To, err)
	}
	archivePath, ok := e.hashedArchives[archiveHash]
	if !ok {
		return fmt.Errorf("archive for %s not present in downloads", from.To)
	}

	target := string(e.installDir.Join(fsx.RelativePath(from.To)))
	scratch := filepath.Dir(target)

	innerPath := fsx.RelativePath(loc.InnerPath)
	source := extract.NewFileStreamFactory(archivePath)
	results, err := extract.GatheringExtract(ctx, e.deps.Extract, source, filepath.Ext(archivePath), extract.Options{
		OnlyFiles: map[fsx.RelativePath]bool{innerPath: true},
	}, func(rel fsx.RelativePath, ef *extract.ExtractedFile) (stagedResult, error) {
		rc, err := ef.GetStream()
		if err != nil {
			return stagedResult{}, err
		}
		defer rc.Close()

		if patchBlobID != "" {
			patchBytes := e.cfg.Modlist.InlineBlobs[patchBlobID]
			patchedPath, err := e.deps.Patches.Apply(ctx, patchBlobID, rc, patchBytes)
			if err != nil {
				return stagedResult{}, err
			}
			pf, err := os.Open(patchedPath)
			if err != nil {
				return stagedResult{}, err
			}
			defer pf.Close()
			return stageAndReturn(ctx, scratch, pf)
		}
		return stageAndReturn(ctx, scratch, rc)
	})
	if err != nil {
		return fmt.Errorf("extract %s: %w", from.To, err)
	}
	res, ok := results[innerPath]
	if !ok {
		return fmt.Errorf("extract %s: inner path %s not produced", from.To, innerPath)
	}
	staged, gotHash := res.staged, res.hash

	if gotHash != d.ExpectedHash() && !e.isKnownModified(d.Target()) {
		_ = os.Remove(staged)
		return fmt.Errorf("hash mismatch for %s: got %s want %s", from.To, gotHash, d.ExpectedHash())
	}
	return commitStaged(staged, target)
}

type stagedResult struct {
	staged string
	hash   modlist.Hash
}

func stageAndReturn(ctx context.Context, dir string, r io.Reader) (stagedResult, error) {
	path, h, err := stageToTemp(ctx, dir, r)
	if err != nil {
		return stagedResult{}, err
	}
	return stagedResult{staged: path, hash: h}, nil
}
