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
	"os"
	"path/filepath"
	"strings"
)

// NormalizeBackslashes walks dest and rewrites any entry whose basename
// contains a literal backslash into nested directories (§4.4.4): some
// native archive tools, when run on a host whose filesystem treats '\'
// as an ordinary filename character, leave Windows-style paths flattened
// into a single filename instead of a directory tree.
func NormalizeBackslashes(dest string) error {
	var offenders []string

	err := filepath.Walk(dest, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.Contains(info.Name(), `\`) {
			offenders = append(offenders, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range offenders {
		dir := filepath.Dir(p)
		name := filepath.Base(p)
		segments := strings.Split(name, `\`)
		target := filepath.Join(append([]string{dir}, segments...)...)

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("normalise %s: %w", p, err)
		}
		if err := os.Rename(p, target); err != nil {
			return fmt.Errorf("normalise %s: %w", p, err)
		}
	}
	return nil
}
