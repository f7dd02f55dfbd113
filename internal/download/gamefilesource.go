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

package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/modlist"
)

// gameFileSource "fetches" an archive whose bytes already live in the
// target game installation (modlist.GameFileState) by copying rather
// than downloading.
type gameFileSource struct {
	gameDir string
}

func (s *gameFileSource) Fetch(ctx context.Context, archive modlist.Archive, targetPath string, progress func(processed, total int64)) error {
	state, ok := archive.State.(modlist.GameFileState)
	if !ok {
		return fmt.Errorf("gameFileSource: unsupported state %T", archive.State)
	}

	src := filepath.Join(s.gameDir, state.GameFileRelativePath)
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open game file %s: %w", src, err)
	}
	defer in.Close()

	partial := partialPath(targetPath)
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		return err
	}
	out, err := os.Create(partial)
	if err != nil {
		return err
	}
	defer out.Close()

	written, err := io.Copy(&progressWriter{w: out, total: archive.Size, progress: progress}, in)
	if err != nil {
		return err
	}
	_ = written

	if err := out.Close(); err != nil {
		return err
	}
	return finalizeDownload(partial, targetPath)
}

func (s *gameFileSource) MetaINILines(archive modlist.Archive) []string {
	state, ok := archive.State.(modlist.GameFileState)
	if !ok {
		return nil
	}
	return []string{fmt.Sprintf("gameFile=%s", state.GameFileRelativePath)}
}
