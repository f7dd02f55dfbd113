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

	"github.com/forgemods/mlinstall/internal/modlist"
)

// manualSource never fetches anything; Dispatcher.Download short-circuits
// to ErrManual before reaching it (§4.7 phase 4). It exists only so the
// registry has a complete entry for every ArchiveState variant and so
// MetaINILines still has somewhere to route a manual archive's sidecar
// fields once the user has supplied the file by hand.
type manualSource struct{}

func (s *manualSource) Fetch(ctx context.Context, archive modlist.Archive, targetPath string, progress func(processed, total int64)) error {
	return ErrManual
}

func (s *manualSource) MetaINILines(archive modlist.Archive) []string {
	state, ok := archive.State.(modlist.ManualState)
	if !ok {
		return nil
	}
	lines := []string{fmt.Sprintf("manualURL=%s", state.URL)}
	if state.Prompt != "" {
		lines = append(lines, fmt.Sprintf("prompt=%s", state.Prompt))
	}
	return lines
}
