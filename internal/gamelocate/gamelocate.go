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

// Package gamelocate resolves an InstallerConfiguration's GameDirectory
// from its GameType when the caller leaves it unset (spec.md §3:
// "game directory (auto-resolved from game-type if absent)"). Adapted
// from the teacher's internal/refresh.go Steam-library/app-manifest
// scanner: the same VDF parsing and path canonicalisation, repointed
// from "enumerate every installed game for a catalogue refresh" to
// "find the one install directory a known game-type maps to".
package gamelocate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/andygrunwald/vdf"
)

// ErrGameNotFound is returned when every discoverable Steam library was
// scanned and none has an install for the requested game type.
var ErrGameNotFound = errors.New("gamelocate: no install found for game type")

// ErrUnknownGameType is returned for a game type this resolver has no
// Steam app-id mapping for.
var ErrUnknownGameType = errors.New("gamelocate: unknown game type")

// steamAppIDs maps a modlist's GameType (the same lowercase-no-spaces
// domain strings used in modlist.NexusState.GameDomain) to the Steam
// app-id whose manifest names its install directory. This table covers
// the Bethesda titles the modlist ecosystem targets; unlisted game
// types are a spec-resolvable Open Question left for a config override
// (see DESIGN.md).
var steamAppIDs = map[string]string{
	"morrowind":            "22320",
	"oblivion":             "22330",
	"skyrim":               "72850",
	"skyrimspecialedition": "489830",
	"fallout3":             "22300",
	"falloutnv":            "22380",
	"fallout4":             "377160",
}

// Resolve returns the install directory for gameType by scanning every
// discoverable Steam library for an app-manifest matching its app-id.
func Resolve(gameType string) (string, error) {
	appID, ok := steamAppIDs[strings.ToLower(gameType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGameType, gameType)
	}

	libs, err := discoverSteamLibraries()
	if err != nil {
		return "", err
	}

	for _, lib := range libs {
		manifestPath := filepath.Join(lib, "steamapps", fmt.Sprintf("appmanifest_%s.acf", appID))
		installDir, err := parseAppManifestInstallDir(manifestPath)
		if err != nil {
			continue
		}
		return filepath.Join(lib, "steamapps", "common", installDir), nil
	}

	return "", fmt.Errorf("%w: %q (app-id %s)", ErrGameNotFound, gameType, appID)
}

// discoverSteamLibraries finds Steam library roots by locating and
// parsing steamapps/libraryfolders.vdf from the usual installation
// roots, returning canonicalised, deduplicated, deterministically
// ordered paths.
func discoverSteamLibraries() ([]string, error) {
	seenRoots := make(map[string]struct{})
	var uniqRoots []string
	for _, r := range candidateSteamRoots() {
		canon, err := canonicalizePathBestEffort(expandHome(r))
		if err != nil {
			canon = filepath.Clean(r)
		}
		if _, ok := seenRoots[canon]; ok {
			continue
		}
		seenRoots[canon] = struct{}{}
		uniqRoots = append(uniqRoots, canon)
	}

	libSet := make(map[string]struct{})
	for _, root := range uniqRoots {
		vdfPath := filepath.Join(root, "steamapps", "libraryfolders.vdf")
		f, err := os.Open(vdfPath)
		if err != nil {
			continue
		}
		parsed, err := vdf.NewParser(f).Parse()
		f.Close()
		if err != nil {
			continue
		}

		for _, p := range extractLibraryPaths(parsed) {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			canon, err := canonicalizePathBestEffort(expandHome(p))
			if err != nil {
				canon = filepath.Clean(p)
			}
			libSet[canon] = struct{}{}
		}
		// The root itself is always a library (the default one), even
		// when libraryfolders.vdf only lists the *additional* ones.
		libSet[root] = struct{}{}
	}

	libs := make([]string, 0, len(libSet))
	for p := range libSet {
		libs = append(libs, p)
	}
	sort.Strings(libs)
	return libs, nil
}

func parseAppManifestInstallDir(manifestPath string) (string, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	parsed, err := vdf.NewParser(f).Parse()
	if err != nil {
		return "", err
	}

	appStateAny, ok := parsed["AppState"]
	if !ok {
		appStateAny, ok = parsed["appstate"]
	}
	appState, ok := appStateAny.(map[string]any)
	if !ok {
		return "", fmt.Errorf("manifest missing AppState map: %s", manifestPath)
	}

	installDir := strings.TrimSpace(asString(appState["installdir"]))
	if installDir == "" {
		return "", fmt.Errorf("manifest missing installdir: %s", manifestPath)
	}
	return installDir, nil
}

func candidateSteamRoots() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(xdg.DataHome, "Steam"),
		filepath.Join(home, ".local", "share", "Steam"),
		filepath.Join(home, ".steam", "steam"),
		filepath.Join(home, ".var", "app", "com.valvesoftware.Steam", "data", "Steam"),
	}
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

func canonicalizePathBestEffort(p string) (string, error) {
	p = filepath.Clean(p)
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		p = abs
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return filepath.Clean(real), nil
	}
	return p, nil
}

// extractLibraryPaths supports both the old ("1" "/path") and new
// ("1" { "path" "/path" ... }) libraryfolders.vdf shapes.
func extractLibraryPaths(parsed any) []string {
	root, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}
	lf, ok := root["libraryfolders"].(map[string]any)
	if !ok {
		return nil
	}

	var out []string
	for k, v := range lf {
		if _, err := strconv.Atoi(k); err != nil {
			continue
		}
		switch vv := v.(type) {
		case string:
			out = append(out, vv)
		case map[string]any:
			if p, ok := vv["path"].(string); ok && strings.TrimSpace(p) != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
