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

package gamelocate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryFoldersVDF = `"libraryfolders"
{
	"0"
	{
		"path"		"%s"
	}
}
`

const appManifestVDF = `"AppState"
{
	"appid"		"489830"
	"name"		"Skyrim Special Edition"
	"installdir"		"Skyrim Special Edition"
}
`

func writeFakeSteamLibrary(t *testing.T, home string) string {
	t.Helper()

	libRoot := filepath.Join(home, ".local", "share", "Steam")
	steamapps := filepath.Join(libRoot, "steamapps")
	require.NoError(t, os.MkdirAll(steamapps, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(steamapps, "common", "Skyrim Special Edition"), 0o755))

	require.NoError(t, os.WriteFile(
		filepath.Join(steamapps, "libraryfolders.vdf"),
		[]byte(fmt.Sprintf(libraryFoldersVDF, libRoot)), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(steamapps, "appmanifest_489830.acf"),
		[]byte(appManifestVDF), 0o644))

	return libRoot
}

func TestResolveFindsInstallDirFromFakeSteamLibrary(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	libRoot := writeFakeSteamLibrary(t, home)

	dir, err := Resolve("skyrimspecialedition")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(libRoot, "steamapps", "common", "Skyrim Special Edition"), dir)
}

func TestResolveRejectsUnknownGameType(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := Resolve("some-game-nobody-made")
	assert.ErrorIs(t, err, ErrUnknownGameType)
}

func TestResolveReturnsNotFoundWhenNoMatchingManifest(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFakeSteamLibrary(t, home)

	_, err := Resolve("fallout4")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestExtractLibraryPathsHandlesOldAndNewShapes(t *testing.T) {
	old := map[string]any{
		"libraryfolders": map[string]any{
			"0": "/a",
			"1": "/b",
		},
	}
	assert.ElementsMatch(t, []string{"/a", "/b"}, extractLibraryPaths(old))

	newer := map[string]any{
		"libraryfolders": map[string]any{
			"0": map[string]any{"path": "/c"},
		},
	}
	assert.Equal(t, []string{"/c"}, extractLibraryPaths(newer))
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, filepath.Join(home, "Steam"), expandHome("~/Steam"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
}

func TestErrorsAreDistinguishable(t *testing.T) {
	assert.False(t, errors.Is(ErrGameNotFound, ErrUnknownGameType))
}
