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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/download"
	"github.com/forgemods/mlinstall/internal/modlist"
)

// phaseHashArchives computes hashes for every file already present in
// the downloads directory, populating hashedArchives (§4.7 phase 3).
func (e *Engine) phaseHashArchives(ctx context.Context) error {
	entries, err := os.ReadDir(string(e.downloadsDir))
	if err != nil {
		return fmt.Errorf("list downloads directory: %w", err)
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".part" || filepath.Ext(entry.Name()) == ".meta" {
			continue
		}
		path := filepath.Join(string(e.downloadsDir), entry.Name())
		h, err := e.deps.Hashes.ComputeOrCache(ctx, path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		e.hashedArchives[h] = path
	}
	return nil
}

// phaseDownloadArchives fetches every modlist archive not already in
// hashedArchives. Manual-state archives are collected rather than
// fetched (§4.7 phase 4).
func (e *Engine) phaseDownloadArchives(ctx context.Context) error {
	for _, a := range e.cfg.Modlist.Archives {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if _, ok := e.hashedArchives[a.Hash]; ok {
			continue
		}

		target := e.archivePath(a)
		err := e.deps.Downloads.Download(ctx, a, target)
		if errors.Is(err, download.ErrManual) {
			if ms, ok := a.State.(modlist.ManualState); ok {
				e.manual = append(e.manual, ManualDownload{Archive: a, Prompt: ms.Prompt, URL: ms.URL})
			} else {
				e.manual = append(e.manual, ManualDownload{Archive: a})
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("download %s: %w", a.Name, err)
		}

		h, err := e.deps.Hashes.ComputeOrCache(ctx, target)
		if err != nil {
			return fmt.Errorf("hash downloaded %s: %w", a.Name, err)
		}
		e.hashedArchives[h] = target
	}
	return nil
}

// phaseManualGate terminates with ErrManualDownloads if any archive
// requires user intervention (§4.7 phase 5).
func (e *Engine) phaseManualGate(ctx context.Context) error {
	if len(e.manual) > 0 {
		return ErrManualDownloads
	}
	return nil
}

// phaseRehashRecovery rehashes every non-manual archive; any whose file
// is missing or hash-mismatched is presumed corrupt, deleted, and
// re-downloaded once more. A second miss is fatal (§4.7 phase 6, §8
// "Corrupt archive recovery").
func (e *Engine) phaseRehashRecovery(ctx context.Context) error {
	for _, a := range e.cfg.Modlist.Archives {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if _, ok := a.State.(modlist.ManualState); ok {
			continue
		}
		if _, ok := e.hashedArchives[a.Hash]; ok {
			continue
		}

		target := e.archivePath(a)
		_ = os.Remove(target)

		if err := e.deps.Downloads.Download(ctx, a, target); err != nil {
			return fmt.Errorf("%w: re-download %s: %s", ErrDownloadFailed, a.Name, err)
		}
		h, err := e.deps.Hashes.ComputeOrCache(ctx, target)
		if err != nil {
			return fmt.Errorf("%w: rehash %s: %s", ErrDownloadFailed, a.Name, err)
		}
		if h != a.Hash {
			return fmt.Errorf("%w: %s still hash-mismatched after re-download", ErrDownloadFailed, a.Name)
		}
		e.hashedArchives[h] = target
	}
	return nil
}
