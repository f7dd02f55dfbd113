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

package nativetool

import (
	"fmt"
	"strings"
)

// DefaultCaseRoots resolves the Open Question in spec.md §9: the
// reference enumerates case variants for exactly these six well-known
// directory names. Configurable via viper key nativetool.caseRoots;
// this is the default.
var DefaultCaseRoots = []string{"textures", "meshes", "sounds", "music", "scripts", "interface"}

// PatternVariants returns, for one requested relative path, every
// variant form the native tool might need: forward-slash and backslash
// forms, with and without a leading separator, and with case variants
// substituted for any of caseRoots appearing as the first path segment
// (title-case and lowercase), per §4.4.3.
func PatternVariants(relPath string, caseRoots []string) []string {
	if caseRoots == nil {
		caseRoots = DefaultCaseRoots
	}

	bases := caseVariants(relPath, caseRoots)

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, base := range bases {
		fwd := strings.ReplaceAll(base, `\`, "/")
		back := strings.ReplaceAll(base, "/", `\`)
		add(fwd)
		add(back)
		add("/" + fwd)
		add(`\` + back)
	}
	return out
}

func caseVariants(relPath string, caseRoots []string) []string {
	segments := strings.SplitN(relPath, "/", 2)
	if len(segments) < 2 {
		return []string{relPath}
	}
	root, rest := segments[0], segments[1]

	for _, r := range caseRoots {
		if strings.EqualFold(root, r) {
			title := strings.ToUpper(r[:1]) + r[1:]
			lower := strings.ToLower(r)
			return []string{lower + "/" + rest, title + "/" + rest}
		}
	}
	return []string{relPath}
}

// WritePatternFile renders the quoted-pattern-per-line file content the
// dispatcher writes before invoking the native tool with `@<pattern-file>`.
func WritePatternFile(relPaths []string, caseRoots []string) string {
	var b strings.Builder
	for _, p := range relPaths {
		for _, variant := range PatternVariants(p, caseRoots) {
			fmt.Fprintf(&b, "%q\n", variant)
		}
	}
	return b.String()
}
