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
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFetchesHTTPArchive(t *testing.T) {
	t.Parallel()

	content := "archive-bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer srv.Close()

	res := rate.New("downloads", 2, 0)
	defer res.Close()
	d := New(res, "")

	dest := filepath.Join(t.TempDir(), "archive.bin")
	archive := modlist.Archive{
		Name:  "archive.bin",
		Size:  int64(len(content)),
		State: modlist.HTTPState{URL: srv.URL},
	}

	err := d.Download(context.Background(), archive, dest)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestDownloadManualArchiveReturnsErrManual(t *testing.T) {
	t.Parallel()

	res := rate.New("downloads", 2, 0)
	defer res.Close()
	d := New(res, "")

	archive := modlist.Archive{
		Name:  "manual.bin",
		State: modlist.ManualState{URL: "https://example.invalid/manual", Prompt: "log in and click download"},
	}

	err := d.Download(context.Background(), archive, filepath.Join(t.TempDir(), "manual.bin"))
	assert.ErrorIs(t, err, ErrManual)
}

func TestDownloadResumesFromPartialFile(t *testing.T) {
	t.Parallel()

	full := "0123456789"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Write([]byte(full))
			return
		}
		w.Header().Set("Content-Range", "bytes 5-9/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[5:]))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "archive.bin")
	require.NoError(t, os.WriteFile(partialPath(dest), []byte(full[:5]), 0o644))

	res := rate.New("downloads", 2, 0)
	defer res.Close()
	d := New(res, "")

	archive := modlist.Archive{Name: "archive.bin", Size: int64(len(full)), State: modlist.HTTPState{URL: srv.URL}}
	err := d.Download(context.Background(), archive, dest)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, full, string(got))
}

func TestGameFileSourceCopiesFromGameDirectory(t *testing.T) {
	t.Parallel()

	gameDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "data.bin"), []byte("game-bytes"), 0o644))

	res := rate.New("downloads", 2, 0)
	defer res.Close()
	d := New(res, gameDir)

	dest := filepath.Join(t.TempDir(), "out.bin")
	archive := modlist.Archive{
		Name:  "out.bin",
		Size:  10,
		State: modlist.GameFileState{GameFileRelativePath: "data.bin"},
	}
	require.NoError(t, d.Download(context.Background(), archive, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "game-bytes", string(got))
}

func TestMetaINILinesPerSource(t *testing.T) {
	t.Parallel()

	res := rate.New("downloads", 2, 0)
	defer res.Close()
	d := New(res, "")

	lines, err := d.MetaINILines(modlist.Archive{State: modlist.HTTPState{URL: "https://example.com/a.zip"}})
	require.NoError(t, err)
	assert.Contains(t, lines, "directURL=https://example.com/a.zip")

	lines, err = d.MetaINILines(modlist.Archive{State: modlist.NexusState{GameDomain: "skyrimspecialedition", ModID: 1, FileID: 2}})
	require.NoError(t, err)
	assert.Contains(t, lines, "gameName=skyrimspecialedition")
	assert.Contains(t, lines, "modID=1")
	assert.Contains(t, lines, "fileID=2")
}

func TestChunkedSeekableStreamReadsRanges(t *testing.T) {
	t.Parallel()

	full := "the quick brown fox"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Header().Set("Content-Length", "19")
			w.Write([]byte(full))
			return
		}
		w.Header().Set("Content-Range", "bytes 4-18/19")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[4:]))
	}))
	defer srv.Close()

	res := rate.New("downloads", 2, 0)
	defer res.Close()
	d := New(res, "")

	stream, err := d.ChunkedSeekableStream(context.Background(), modlist.Archive{
		Size:  int64(len(full)),
		State: modlist.HTTPState{URL: srv.URL},
	})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Seek(4, io.SeekStart)
	require.NoError(t, err)

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, full[4:], string(got))
}
