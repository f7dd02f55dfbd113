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
	"os"
	"strings"

	"github.com/forgemods/mlinstall/internal/modlist"
)

// phaseWriteMeta writes an `archive.meta` sidecar beside every file in
// the downloads directory: `installed=true` plus the archive's
// source-specific ini-lines when it matches a modlist archive by
// size-then-hash, `removed=true` otherwise — unless a user-maintained
// meta file already exists without a `removed` key (§4.7 phase 12, §8
// invariant 10).
func (e *Engine) phaseWriteMeta(ctx context.Context) error {
	archivesByHash := make(map[modlist.Hash]modlist.Archive, len(e.cfg.Modlist.Archives))
	for _, a := range e.cfg.Modlist.Archives {
		archivesByHash[a.Hash] = a
	}
	// A file replaced by a download stays recorded under its old hash
	// too; a path that matches under any hash is never marked removed.
	matched := make(map[string]bool, len(e.hashedArchives))
	for h, path := range e.hashedArchives {
		if a, ok := archivesByHash[h]; ok && archiveSizeMatches(path, a.Size) {
			matched[path] = true
		}
	}

	for h, path := range e.hashedArchives {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		metaPath := path + ".meta"
		if a, ok := archivesByHash[h]; ok && archiveSizeMatches(path, a.Size) {
			lines, err := e.deps.Downloads.MetaINILines(a)
			if err != nil {
				return fmt.Errorf("meta lines for %s: %w", a.Name, err)
			}
			content := "[General]\ninstalled=true\n" + strings.Join(lines, "\n")
			if len(lines) > 0 {
				content += "\n"
			}
			if err := os.WriteFile(metaPath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write meta for %s: %w", a.Name, err)
			}
			continue
		}

		if matched[path] {
			continue
		}
		if userMetaHasNoRemovedKey(metaPath) {
			continue
		}
		if err := os.WriteFile(metaPath, []byte("[General]\nremoved=true\n"), 0o644); err != nil {
			return fmt.Errorf("write removed meta %s: %w", metaPath, err)
		}
	}
	return nil
}

// archiveSizeMatches reports whether the file at path has the expected
// size, the first half of the "by size-then-hash" match §4.7 phase 12
// and §8 invariant 10 specify for reconciling downloads against the
// modlist's archive list.
func archiveSizeMatches(path string, expected int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() == expected
}

// userMetaHasNoRemovedKey reports whether metaPath already exists and
// does not carry a `removed` key, in which case it is left untouched as
// a user-maintained file.
func userMetaHasNoRemovedKey(metaPath string) bool {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "removed") {
			return false
		}
	}
	return true
}
