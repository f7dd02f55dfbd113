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

	"github.com/forgemods/mlinstall/internal/modlist"
)

// phaseExtractBundle validates that every opaque blob a directive
// references is present in the already-decoded bundle (§4.7 phase 7).
// modlist.Load extracts the bundle ZIP and its inline blobs eagerly
// during configuration, ahead of the install run proper; this phase is
// the run's own check that directive blobs it will need later were
// loaded rather than silently missing.
func (e *Engine) phaseExtractBundle(ctx context.Context) error {
	for _, d := range e.directives {
		blobID := ""
		switch v := d.(type) {
		case modlist.InlineFile:
			blobID = v.BlobID
		case modlist.RemappedInlineFile:
			blobID = v.BlobID
		case modlist.MergedPatch:
			blobID = v.PatchBlobID
		case modlist.PatchedFromArchive:
			blobID = v.PatchBlobID
		default:
			continue
		}
		if blobID == "" {
			continue
		}
		if _, ok := e.cfg.Modlist.InlineBlobs[blobID]; !ok {
			return fmt.Errorf("directive %q references missing blob %q", d.Target(), blobID)
		}
	}
	return nil
}

// phasePrimeVFS ensures every (source-archive-hash, inner-path) pair
// the directives reference is represented in the VFS index before any
// extraction is attempted (§4.7 phase 8).
func (e *Engine) phasePrimeVFS(ctx context.Context) error {
	var required []modlist.Hash
	seen := make(map[modlist.Hash]bool)
	archiveHashToPath := make(map[modlist.Hash]string)

	addArchive := func(h modlist.Hash) {
		if !seen[h] {
			seen[h] = true
			required = append(required, h)
		}
		if path, ok := e.hashedArchives[h]; ok {
			archiveHashToPath[h] = path
		}
	}

	for _, d := range e.directives {
		switch v := d.(type) {
		case modlist.FromArchive:
			addArchive(v.SourceArchiveHash)
		case modlist.PatchedFromArchive:
			addArchive(v.SourceArchiveHash)
		}
	}

	missing, err := e.deps.VFS.Prime(ctx, required, archiveHashToPath)
	if err != nil {
		return fmt.Errorf("prime vfs: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %d archive(s) unresolved in vfs", ErrDownloadFailed, len(missing))
	}
	return nil
}
