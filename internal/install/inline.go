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
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
)

// phaseInstallInline writes every InlineFile/RemappedInlineFile
// directive's embedded bytes to its target and verifies the hash
// (§4.7 phase 11). RemappedInlineFile's path-template substitution
// happens later, at Finalise (§4.7 phase 15).
func (e *Engine) phaseInstallInline(ctx context.Context) error {
	for _, d := range e.directives {
		var inline modlist.InlineFile
		switch v := d.(type) {
		case modlist.InlineFile:
			inline = v
		case modlist.RemappedInlineFile:
			inline = v.InlineFile
		default:
			continue
		}

		if ctx.Err() != nil {
			return ErrCancelled
		}

		blob, ok := e.cfg.Modlist.InlineBlobs[inline.BlobID]
		if !ok {
			return fmt.Errorf("inline file %s: missing blob %q", inline.To, inline.BlobID)
		}

		target := string(e.installDir.Join(fsx.RelativePath(inline.To)))
		staged, gotHash, err := stageToTemp(ctx, filepath.Dir(target), bytes.NewReader(blob))
		if err != nil {
			return fmt.Errorf("stage inline file %s: %w", inline.To, err)
		}
		if gotHash != inline.Hash && !e.isKnownModified(inline.To) {
			_ = os.Remove(staged)
			return fmt.Errorf("hash mismatch for inline file %s: got %s want %s", inline.To, gotHash, inline.Hash)
		}
		if err := commitStaged(staged, target); err != nil {
			return fmt.Errorf("commit inline file %s: %w", inline.To, err)
		}
	}
	return nil
}
