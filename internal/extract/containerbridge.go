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

package extract

import (
	"fmt"
	"io"
	"time"

	"github.com/forgemods/mlinstall/internal/container"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/sig"
)

// extractContainer bridges to package container's Reader for the two
// game-native container formats (§4.4.2: BSA, BA2). Container entries
// don't carry a modification time of their own; the installer treats
// them as authored at extraction time.
func extractContainer[T any](
	source StreamFactory,
	ft sig.FileType,
	opts Options,
	mapFn func(fsx.RelativePath, *ExtractedFile) (T, error),
) (map[fsx.RelativePath]T, error) {
	path := source.ArchivePath()
	if path == "" {
		return nil, fmt.Errorf("container extraction requires an on-disk archive path")
	}

	r, err := container.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}
	defer r.Close()

	entries, err := r.Files()
	if err != nil {
		return nil, fmt.Errorf("list container %s: %w", path, err)
	}

	result := make(map[fsx.RelativePath]T)
	now := time.Now()
	for _, ce := range entries {
		rel := fsx.RelativePath(ce.Path).Clean()
		if opts.ShouldExtract != nil && !opts.ShouldExtract(rel) {
			continue
		}

		entry := ce
		ef := &ExtractedFile{
			name:    rel,
			modTime: now,
			streamFn: func() (io.ReadCloser, error) {
				return entry.StreamFactory()
			},
		}

		val, err := mapFn(rel, ef)
		if err != nil {
			return nil, fmt.Errorf("map container entry %s: %w", rel, err)
		}
		result[rel] = val
	}

	if !resultCountSatisfies(opts, len(result)) {
		return nil, fmt.Errorf("container extraction sanity check failed: expected %d files, got %d",
			len(opts.OnlyFiles), len(result))
	}
	return result, nil
}
