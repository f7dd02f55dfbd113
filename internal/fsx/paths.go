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

// Package fsx provides the path and stream primitives shared by every
// other package: typed absolute/relative paths and a scoped temporary
// file manager.
package fsx

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RelativePath is a path relative to some archive or install root. It is
// not interconvertible with AbsolutePath: the two are kept as distinct
// types so a relative path can never be accidentally used as a
// filesystem path without first being joined onto a root.
//
// The canonical internal separator is "/". A backslash appearing inside
// a RelativePath is a data value, not a separator — see the note on
// native-tool output in package extract.
type RelativePath string

// Clean returns p with "/" separators normalised and "." segments
// collapsed, without touching any backslash content.
func (p RelativePath) Clean() RelativePath {
	return RelativePath(path_Clean(string(p)))
}

func path_Clean(s string) string {
	// Hand-rolled rather than path.Clean: a leading "/" is dropped and a
	// ".." that would climb above the root is discarded, so the result
	// always stays relative.
	cleaned := strings.TrimPrefix(s, "/")
	parts := strings.Split(cleaned, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, "/")
}

// String returns the raw path string.
func (p RelativePath) String() string { return string(p) }

// HasBackslash reports whether any segment of the path carries a literal
// backslash, the invariant violation that post-extraction normalisation
// must repair (see package extract).
func (p RelativePath) HasBackslash() bool {
	return strings.ContainsRune(string(p), '\\')
}

// AbsolutePath is a fully resolved filesystem path.
type AbsolutePath string

// Join resolves a RelativePath against this absolute root. The relative
// path's "/" separators are converted to the host separator; backslash
// data bytes inside path segments are left untouched since they are not
// separators here.
func (a AbsolutePath) Join(rel RelativePath) AbsolutePath {
	segments := strings.Split(string(rel), "/")
	return AbsolutePath(filepath.Join(append([]string{string(a)}, segments...)...))
}

func (a AbsolutePath) String() string { return string(a) }

// IsUnderDir reports whether target lies within root, following the
// teacher's fsutil.IsUnderDir containment check (used by the installer
// to validate that every directive's `to` path stays inside the install
// directory).
func IsUnderDir(root, target AbsolutePath) (bool, error) {
	rel, err := filepath.Rel(string(root), string(target))
	if err != nil {
		return false, fmt.Errorf("relativize %s against %s: %w", target, root, err)
	}
	if rel == "." {
		return true, nil
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..", nil
}
