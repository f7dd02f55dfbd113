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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/patch"
)

// phaseGenerateMergePatches concatenates each MergedPatch directive's
// declared sources in order and applies the embedded binary diff,
// verifying the result's hash (§4.7 phase 14).
func (e *Engine) phaseGenerateMergePatches(ctx context.Context) error {
	for _, d := range e.directives {
		mp, ok := d.(modlist.MergedPatch)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if err := e.generateOneMergePatch(ctx, mp); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) generateOneMergePatch(ctx context.Context, mp modlist.MergedPatch) error {
	sources := make([]io.Reader, 0, len(mp.Sources))
	for _, sourceHash := range mp.Sources {
		data, err := e.readSourceByHash(ctx, sourceHash)
		if err != nil {
			return fmt.Errorf("merge patch %s: %w", mp.To, err)
		}
		sources = append(sources, bytes.NewReader(data))
	}

	patchBytes := e.cfg.Modlist.InlineBlobs[mp.PatchBlobID]
	patchedPath, err := e.deps.Patches.Apply(ctx, mp.PatchBlobID, patch.Concat(sources...), patchBytes)
	if err != nil {
		return fmt.Errorf("merge patch %s: %w", mp.To, err)
	}
	pf, err := os.Open(patchedPath)
	if err != nil {
		return fmt.Errorf("merge patch %s: %w", mp.To, err)
	}
	defer pf.Close()

	target := string(e.installDir.Join(fsx.RelativePath(mp.To)))
	staged, gotHash, err := stageToTemp(ctx, filepath.Dir(target), pf)
	if err != nil {
		return fmt.Errorf("merge patch %s: stage result: %w", mp.To, err)
	}
	if gotHash != mp.Hash && !e.isKnownModified(mp.To) {
		_ = os.Remove(staged)
		return fmt.Errorf("merge patch %s: hash mismatch: got %s want %s", mp.To, gotHash, mp.Hash)
	}
	if err := commitStaged(staged, target); err != nil {
		return fmt.Errorf("merge patch %s: commit: %w", mp.To, err)
	}
	return nil
}

// readSourceByHash resolves a MergedPatch source hash to its bytes via
// the VFS, the same way phaseInstallArchives locates FromArchive
// entries.
func (e *Engine) readSourceByHash(ctx context.Context, hash modlist.Hash) ([]byte, error) {
	locs, err := e.deps.VFS.Locations(ctx, hash)
	if err != nil || len(locs) == 0 {
		return nil, fmt.Errorf("locate source %s in vfs: %w", hash, err)
	}
	loc := locs[0]

	archiveHash, err := modlist.ParseHash(loc.ArchiveHash)
	if err != nil {
		return nil, fmt.Errorf("parse vfs archive hash: %w", err)
	}
	archivePath, ok := e.hashedArchives[archiveHash]
	if !ok {
		return nil, fmt.Errorf("archive for source %s not present in downloads", hash)
	}

	innerPath := fsx.RelativePath(loc.InnerPath)
	source := extract.NewFileStreamFactory(archivePath)
	results, err := extract.GatheringExtract(ctx, e.deps.Extract, source, filepath.Ext(archivePath), extract.Options{
		OnlyFiles: map[fsx.RelativePath]bool{innerPath: true},
	}, func(rel fsx.RelativePath, ef *extract.ExtractedFile) ([]byte, error) {
		rc, err := ef.GetStream()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	})
	if err != nil {
		return nil, fmt.Errorf("extract source %s: %w", hash, err)
	}
	data, ok := results[innerPath]
	if !ok {
		return nil, fmt.Errorf("source %s not produced by extraction", hash)
	}
	return data, nil
}
