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

package vfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgemods/mlinstall/internal/container"
	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBTARBytes constructs a minimal valid BTAR v1.3 blob holding the
// given entries, matching the format internal/extract's BTAR reader
// expects.
func buildBTARBytes(entries map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString("BTAR")
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(3))
	for name, payload := range entries {
		binary.Write(&buf, binary.BigEndian, uint16(len(name)))
		buf.WriteString(name)
		binary.Write(&buf, binary.BigEndian, uint64(len(payload)))
		buf.WriteString(payload)
	}
	return buf.Bytes()
}

// buildBSA writes a BSA container at dir/name holding files, where
// files maps an entry path to its raw content.
func buildBSA(t *testing.T, dir, name string, files map[string][]byte) string {
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

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	temp, err := fsx.NewTempManager(filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)

	res := rate.New("vfs-prime", 2, 0)
	t.Cleanup(res.Close)

	return New(st, &extract.Dispatcher{}, res, temp)
}

func TestBuildFlatArchiveIndexesEveryEntry(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := buildBSA(t, dir, "flat.bsa", map[string][]byte{
		"meshes/a.nif":   []byte("mesh-bytes"),
		"textures/b.dds": []byte("texture-bytes"),
	})

	archiveHash := modlist.SumHash(modlist.NewHasher())
	require.NoError(t, idx.Build(ctx, path, archiveHash, ".bsa"))

	aHash := hashOf(t, "mesh-bytes")
	locs, err := idx.Locations(ctx, aHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, archiveHash.String(), locs[0].ArchiveHash)
	assert.Equal(t, "meshes/a.nif", locs[0].InnerPath)
	assert.Equal(t, int64(len("mesh-bytes")), locs[0].Size)

	bHash := hashOf(t, "texture-bytes")
	locs, err = idx.Locations(ctx, bHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "textures/b.dds", locs[0].InnerPath)
}

func TestBuildRecursesIntoNestedArchive(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()

	dir := t.TempDir()
	nested := buildBTARBytes(map[string]string{"inner/data.txt": "nested-payload"})
	path := buildBSA(t, dir, "outer.bsa", map[string][]byte{
		"readme.txt":    []byte("top-level"),
		"payload.btar": nested,
	})

	archiveHash := modlist.SumHash(modlist.NewHasher())
	require.NoError(t, idx.Build(ctx, path, archiveHash, ".bsa"))

	// The top-level entries are indexed against the outer archive hash.
	topHash := hashOf(t, "top-level")
	locs, err := idx.Locations(ctx, topHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, archiveHash.String(), locs[0].ArchiveHash)

	nestedArchiveHash := hashOf(t, string(nested))
	locs, err = idx.Locations(ctx, nestedArchiveHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "payload.btar", locs[0].InnerPath)

	// The nested archive's own hash becomes a valid lookup key for its
	// own inner entries.
	innerHash := hashOf(t, "nested-payload")
	locs, err = idx.Locations(ctx, innerHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, nestedArchiveHash.String(), locs[0].ArchiveHash)
	assert.Equal(t, "inner/data.txt", locs[0].InnerPath)
}

// TestPrimeBuildsMissingArchivesAndIsIdempotent confirms Prime's
// required and archiveHashToPath share the archive-hash keyspace (not
// the content-hash keyspace of the entries an archive produces), and
// that re-priming an already-indexed archive is harmless thanks to
// IndexEntry's upsert.
func TestPrimeBuildsMissingArchivesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := buildBSA(t, dir, "a.bsa", map[string][]byte{"f.txt": []byte("primed")})
	archiveHash := modlist.SumHash(modlist.NewHasher())
	fHash := hashOf(t, "primed")

	pathsByArchive := map[modlist.Hash]string{archiveHash: path}

	missing, err := idx.Prime(ctx, []modlist.Hash{archiveHash}, pathsByArchive)
	require.NoError(t, err)
	assert.Empty(t, missing)

	locs, err := idx.Locations(ctx, fHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, archiveHash.String(), locs[0].ArchiveHash)

	// Priming the same archive again is harmless: IndexEntry's upsert
	// means the repeat Build doesn't duplicate rows or error.
	missing, err = idx.Prime(ctx, []modlist.Hash{archiveHash}, pathsByArchive)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPrimeReportsMissingArchives(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()

	unknown := hashOf(t, "never-indexed")
	missing, err := idx.Prime(ctx, []modlist.Hash{unknown}, map[modlist.Hash]string{})
	require.NoError(t, err)
	assert.Equal(t, []modlist.Hash{unknown}, missing)
}

func TestForgetArchiveRemovesItsEntries(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := buildBSA(t, dir, "a.bsa", map[string][]byte{"f.txt": []byte("gone-soon")})
	archiveHash := modlist.SumHash(modlist.NewHasher())
	fHash := hashOf(t, "gone-soon")

	require.NoError(t, idx.Build(ctx, path, archiveHash, ".bsa"))
	locs, err := idx.Locations(ctx, fHash)
	require.NoError(t, err)
	require.Len(t, locs, 1)

	require.NoError(t, idx.ForgetArchive(ctx, archiveHash))

	locs, err = idx.Locations(ctx, fHash)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func hashOf(t *testing.T, content string) modlist.Hash {
	t.Helper()
	h := modlist.NewHasher()
	_, err := io.Copy(h, bytes.NewReader([]byte(content)))
	require.NoError(t, err)
	return modlist.SumHash(h)
}
