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

package container

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildContainer(t *testing.T, kind Kind, files map[string]string, lossy map[string]bool) string {
	t.Helper()

	b, err := NewBuilder(kind)
	require.NoError(t, err)

	for path, content := range files {
		err := b.AddFile(FileState{Path: path, Lossy: lossy[path]}, bytes.NewBufferString(content))
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "out.container")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, b.WriteTo(f))
	return path
}

func TestBSARoundTrip(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"textures/a.dds": "dds-bytes",
		"meshes/b.nif":   "nif-bytes",
	}
	path := buildContainer(t, KindBSA, files, nil)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.Files()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got := map[string]string{}
	for _, e := range entries {
		rc, err := e.StreamFactory()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		got[e.Path] = string(data)
	}
	assert.Equal(t, files, got)
}

func TestBA2RoundTrip(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"materials/rock.bgsm": "material-bytes",
	}
	path := buildContainer(t, KindBA2, files, nil)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.Files()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "materials/rock.bgsm", entries[0].Path)
}

func TestContainerLossyFlagSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"textures/lossy.dds": "texture-bytes",
		"scripts/a.pex":      "script-bytes",
	}
	lossy := map[string]bool{"textures/lossy.dds": true}
	path := buildContainer(t, KindBSA, files, lossy)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.Files()
	require.NoError(t, err)

	for _, e := range entries {
		if e.Path == "textures/lossy.dds" {
			assert.True(t, e.Lossy, "lossy entries skip per-file hash verification on readback")
		} else {
			assert.False(t, e.Lossy)
		}
	}
}

func TestOpenReaderRejectsUnrecognisedMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bogus.container")
	require.NoError(t, os.WriteFile(path, []byte("NOPE1234"), 0o644))

	_, err := OpenReader(path)
	assert.Error(t, err)
}

func TestNewBuilderUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(Kind("XYZ"))
	assert.Error(t, err)
}
