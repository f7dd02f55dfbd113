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

package install

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemods/mlinstall/internal/container"
	"github.com/forgemods/mlinstall/internal/download"
	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/hashcache"
	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
	"github.com/forgemods/mlinstall/internal/vfs"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, cfg modlist.InstallerConfiguration) *Engine {
	t.Helper()
	st := newTestStore(t)

	hashRes := rate.New("hashing", 4, 0)
	t.Cleanup(hashRes.Close)
	dlRes := rate.New("downloads", 4, 0)
	t.Cleanup(dlRes.Close)
	installRes := rate.New("install", 1, 0)
	t.Cleanup(installRes.Close)

	deps := Dependencies{
		Store:     st,
		Downloads: download.New(dlRes, cfg.GameDirectory),
		Hashes:    hashcache.New(st, hashRes),
		Installer: installRes,
	}
	return New(cfg, deps, nil)
}

// newArchiveTestEngine extends newTestEngine with a real VFS index and
// extraction dispatcher, for scenarios that need phasePrimeVFS and
// phaseInstallArchives to actually resolve a FromArchive directive
// rather than exercising only the manual-gate/corrupt-recovery paths.
func newArchiveTestEngine(t *testing.T, cfg modlist.InstallerConfiguration) *Engine {
	t.Helper()
	st := newTestStore(t)

	hashRes := rate.New("hashing", 4, 0)
	t.Cleanup(hashRes.Close)
	dlRes := rate.New("downloads", 4, 0)
	t.Cleanup(dlRes.Close)
	installRes := rate.New("install", 1, 0)
	t.Cleanup(installRes.Close)
	vfsRes := rate.New("vfs-prime", 2, 0)
	t.Cleanup(vfsRes.Close)

	temp, err := fsx.NewTempManager(filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)

	extractor := &extract.Dispatcher{Temp: temp}

	deps := Dependencies{
		Store:     st,
		Downloads: download.New(dlRes, cfg.GameDirectory),
		Hashes:    hashcache.New(st, hashRes),
		Installer: installRes,
		Extract:   extractor,
		VFS:       vfs.New(st, extractor, vfsRes, temp),
	}
	return New(cfg, deps, nil)
}

// buildTestBSA writes a BSA container at dir/name holding files, where
// files maps an entry path to its raw content, mirroring
// internal/vfs's own test helper since that one is unexported.
func buildTestBSA(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()

	b, err := container.NewBuilder(container.KindBSA)
	require.NoError(t, err)
	for path, data := range files {
		require.NoError(t, b.AddFile(container.FileState{Path: path}, bytes.NewReader(data)))
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, b.WriteTo(f))
	return path
}

// hashOf returns the modlist hash of content.
func hashOf(content []byte) modlist.Hash {
	h := modlist.NewHasher()
	_, _ = h.Write(content)
	return modlist.SumHash(h)
}

// countFiles returns the number of regular files anywhere under root.
func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

// TestRunManualOnlyModlistGatesAtManualGate covers the "manual-only
// modlist" scenario (§8): every archive is ManualState, so phase 4
// collects all of them and phase 5 fails the whole run with
// ErrManualDownloads, without ever reaching a download attempt.
func TestRunManualOnlyModlistGatesAtManualGate(t *testing.T) {
	t.Parallel()

	gameDir := t.TempDir()
	installDir := t.TempDir()
	downloadsDir := t.TempDir()

	archives := []modlist.Archive{
		{Name: "one.7z", Hash: 1, Size: 10, State: modlist.ManualState{Prompt: "log in and grab one.7z", URL: "https://example.invalid/one"}},
		{Name: "two.7z", Hash: 2, Size: 20, State: modlist.ManualState{Prompt: "log in and grab two.7z", URL: "https://example.invalid/two"}},
	}

	cfg := modlist.InstallerConfiguration{
		InstallDirectory:   installDir,
		DownloadsDirectory: downloadsDir,
		GameDirectory:      gameDir,
		Modlist: modlist.Modlist{
			Name:        "manual-only",
			Archives:    archives,
			InlineBlobs: map[string][]byte{},
		},
	}

	e := newTestEngine(t, cfg)
	result, err := e.Run(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, e.manual, result.ManualDownloads)
	require.ErrorIs(t, err, ErrManualDownloads)
	require.Len(t, e.manual, len(archives))
	for i, m := range e.manual {
		assert.Equal(t, archives[i].Name, m.Archive.Name)
		assert.NotEmpty(t, m.URL)
	}
}

// TestRunRecoversFromCorruptArchive covers the "corrupt archive
// recovery" scenario (§8): a downloads-directory file that doesn't
// match its declared hash is replaced by a fresh download (phase 4
// fetches every archive whose hash is not among the hashed downloads),
// and the run otherwise completes.
func TestRunRecoversFromCorruptArchive(t *testing.T) {
	t.Parallel()

	gameDir := t.TempDir()
	installDir := t.TempDir()
	downloadsDir := t.TempDir()

	goodContent := []byte("the real archive bytes, all 1024 of them padded out-ish")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(goodContent)
	}))
	t.Cleanup(srv.Close)

	h := modlist.NewHasher()
	_, _ = h.Write(goodContent)
	wantHash := modlist.SumHash(h)

	archive := modlist.Archive{
		Name:  "corrupt.7z",
		Hash:  wantHash,
		Size:  int64(len(goodContent)),
		State: modlist.HTTPState{URL: srv.URL},
	}

	// Pre-seed the downloads directory with 1024 bytes of garbage under
	// the archive's expected name, simulating a prior truncated/corrupt
	// download.
	corruptPath := filepath.Join(downloadsDir, archive.Name)
	require.NoError(t, os.WriteFile(corruptPath, make([]byte, 1024), 0o644))

	cfg := modlist.InstallerConfiguration{
		InstallDirectory:   installDir,
		DownloadsDirectory: downloadsDir,
		GameDirectory:      gameDir,
		Modlist: modlist.Modlist{
			Name:        "recovers",
			Archives:    []modlist.Archive{archive},
			InlineBlobs: map[string][]byte{},
		},
	}

	e := newTestEngine(t, cfg)
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.ManualDownloads)

	got, err := os.ReadFile(corruptPath)
	require.NoError(t, err)
	assert.Equal(t, goodContent, got)
}

// TestRunFailsPermanentlyWhenReDownloadStillCorrupt covers the fatal
// half of the same scenario: when the re-fetched archive still doesn't
// match, the run reports ErrDownloadFailed rather than looping forever.
func TestRunFailsPermanentlyWhenReDownloadStillCorrupt(t *testing.T) {
	t.Parallel()

	gameDir := t.TempDir()
	installDir := t.TempDir()
	downloadsDir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("still not what you wanted"))
	}))
	t.Cleanup(srv.Close)

	archive := modlist.Archive{
		Name:  "neverright.7z",
		Hash:  modlist.Hash(0xdeadbeef),
		Size:  1024,
		State: modlist.HTTPState{URL: srv.URL},
	}
	require.NoError(t, os.WriteFile(filepath.Join(downloadsDir, archive.Name), make([]byte, 1024), 0o644))

	cfg := modlist.InstallerConfiguration{
		InstallDirectory:   installDir,
		DownloadsDirectory: downloadsDir,
		GameDirectory:      gameDir,
		Modlist: modlist.Modlist{
			Name:        "never-right",
			Archives:    []modlist.Archive{archive},
			InlineBlobs: map[string][]byte{},
		},
	}

	e := newTestEngine(t, cfg)
	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

// TestPhaseInstallArchivesReturnsCancelledWithoutPartialWrites covers
// the "cancel at phase 10" scenario (§8): a context already cancelled
// before Install archives runs yields ErrCancelled and leaves no
// partially-written file under the install directory.
func TestPhaseInstallArchivesReturnsCancelledWithoutPartialWrites(t *testing.T) {
	t.Parallel()

	installDir := t.TempDir()
	e := &Engine{
		installDir: fsx.AbsolutePath(installDir),
		directives: []modlist.Directive{
			modlist.FromArchive{
				To:                "textures/example.dds",
				Hash:              1,
				SourceArchiveHash: 2,
				InnerPath:         "example.dds",
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.phaseInstallArchives(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, countFiles(t, installDir))
}

// TestIsKnownModifiedNormalisesSeparators confirms an allow-list entry
// written with the host path separator matches the "/"-separated To
// value. A backslash is a separator only where the host uses it; on
// other hosts it is part of the name.
func TestIsKnownModifiedNormalisesSeparators(t *testing.T) {
	t.Parallel()

	e := New(modlist.InstallerConfiguration{}, Dependencies{}, []string{filepath.Join("textures", "example.dds")})
	assert.True(t, e.isKnownModified("textures/example.dds"))
	assert.False(t, e.isKnownModified("textures/other.dds"))
}

// TestPhaseOptimiseDropsDuplicateDirectives confirms phase 2 collapses
// directives that share both target and expected hash.
func TestPhaseOptimiseDropsDuplicateDirectives(t *testing.T) {
	t.Parallel()

	e := New(modlist.InstallerConfiguration{
		Modlist: modlist.Modlist{
			Directives: []modlist.Directive{
				modlist.InlineFile{To: "readme.txt", Hash: 1, BlobID: "a"},
				modlist.InlineFile{To: "readme.txt", Hash: 1, BlobID: "a"},
				modlist.InlineFile{To: "other.txt", Hash: 2, BlobID: "b"},
			},
		},
	}, Dependencies{}, nil)

	require.NoError(t, e.phaseOptimise(context.Background()))
	assert.Len(t, e.directives, 2)
}

// TestRunInstallsFromArchiveDirectiveViaVFS is the end-to-end regression
// test for phase 8 (prime vfs) feeding phase 10 (install archives): a
// modlist with a single FromArchive directive must prime the VFS keyed
// by the archive's own hash, then resolve and extract the directive's
// inner entry through that same archive hash.
func TestRunInstallsFromArchiveDirectiveViaVFS(t *testing.T) {
	t.Parallel()

	gameDir := t.TempDir()
	installDir := t.TempDir()
	downloadsDir := t.TempDir()
	sourceDir := t.TempDir()

	entryContent := []byte("a texture, extracted from an archive via the vfs")
	archivePath := buildTestBSA(t, sourceDir, "textures.bsa", map[string][]byte{
		"textures/wall.dds": entryContent,
	})
	archiveBytes, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	archiveHash := hashOf(archiveBytes)
	entryHash := hashOf(entryContent)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archiveBytes)
	}))
	t.Cleanup(srv.Close)

	archive := modlist.Archive{
		Name:  "textures.bsa",
		Hash:  archiveHash,
		Size:  int64(len(archiveBytes)),
		State: modlist.HTTPState{URL: srv.URL},
	}

	cfg := modlist.InstallerConfiguration{
		InstallDirectory:   installDir,
		DownloadsDirectory: downloadsDir,
		GameDirectory:      gameDir,
		Modlist: modlist.Modlist{
			Name:        "from-archive",
			Archives:    []modlist.Archive{archive},
			InlineBlobs: map[string][]byte{},
			Directives: []modlist.Directive{
				modlist.FromArchive{
					To:                "textures/wall.dds",
					Hash:              entryHash,
					SourceArchiveHash: archiveHash,
					InnerPath:         "textures/wall.dds",
				},
			},
		},
	}

	e := newArchiveTestEngine(t, cfg)
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.ManualDownloads)

	got, err := os.ReadFile(filepath.Join(installDir, "textures", "wall.dds"))
	require.NoError(t, err)
	assert.Equal(t, entryContent, got)
}
