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

// Package vfs implements C7, the virtual file system: a content-addressed
// index of files living inside downloaded archives, so the installer can
// answer "which (archive, inner-path) should I extract?" for any
// directive. Grounded on internal/blobstore's content-addressed layout
// plus internal/refresh.go's upsert-then-mark-stale scan pattern, with
// the content hash keyed through package hashcache's digest.
package vfs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/forgemods/mlinstall/internal/extract"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
)

// DefaultMaxDepth bounds the archive-inside-archive recursion (§4.6
// "recursed to a bounded depth").
const DefaultMaxDepth = 4

// Index builds and queries the VFS.
type Index struct {
	st       *store.Store
	dispatch *extract.Dispatcher
	resource *rate.Resource
	temp     *fsx.TempManager
	maxDepth int
}

// New returns an Index. resource governs Priming concurrency (§4.6 "its
// own max-tasks"), distinct from the extraction Dispatcher's own
// resource usage. temp stages archive-shaped entries to disk for
// recursive indexing, since native extraction requires an on-disk
// source.
func New(st *store.Store, dispatch *extract.Dispatcher, resource *rate.Resource, temp *fsx.TempManager) *Index {
	return &Index{st: st, dispatch: dispatch, resource: resource, temp: temp, maxDepth: DefaultMaxDepth}
}

// Build recursively indexes every entry inside the archive at path,
// whose own content hash is archiveHash, caching results in the store
// keyed by archiveHash (§4.6 "Build"). Archive-shaped entries are
// recursed into, each one's own hash becoming its own cache key, down to
// maxDepth.
func (idx *Index) Build(ctx context.Context, path string, archiveHash modlist.Hash, archiveExt string) error {
	return idx.build(ctx, path, archiveHash, archiveExt, 0)
}

func (idx *Index) build(ctx context.Context, path string, archiveHash modlist.Hash, archiveExt string, depth int) error {
	if depth >= idx.maxDepth {
		return nil
	}

	source := extract.NewFileStreamFactory(path)
	type indexed struct {
		rel  fsx.RelativePath
		hash modlist.Hash
		size int64
	}

	entries, err := extract.GatheringExtract(ctx, idx.dispatch, source, archiveExt, extract.Options{
		ShouldExtract: func(fsx.RelativePath) bool { return true },
	}, func(rel fsx.RelativePath, ef *extract.ExtractedFile) (indexed, error) {
		rc, err := ef.GetStream()
		if err != nil {
			return indexed{}, err
		}
		defer rc.Close()

		h := modlist.NewHasher()
		n, err := io.Copy(h, rc)
		if err != nil {
			return indexed{}, fmt.Errorf("hash %s: %w", rel, err)
		}
		return indexed{rel: rel, hash: modlist.SumHash(h), size: n}, nil
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}

	now := time.Now().Unix()
	for rel, entry := range entries {
		if err := idx.st.IndexEntry(ctx, entry.hash.String(), store.VFSLocation{
			ArchiveHash: archiveHash.String(),
			InnerPath:   string(rel),
			Size:        entry.size,
			MTime:       now,
		}); err != nil {
			return fmt.Errorf("record vfs entry %s: %w", rel, err)
		}

		if !looksLikeArchive(string(rel)) {
			continue
		}
		if err := idx.materializeAndRecurse(ctx, path, rel, entry.hash, depth); err != nil {
			return err
		}
	}
	return nil
}

func looksLikeArchive(rel string) bool {
	switch filepath.Ext(rel) {
	case ".zip", ".7z", ".rar", ".bsa", ".ba2", ".btar":
		return true
	default:
		return false
	}
}

// materializeAndRecurse stages one archive-shaped entry out to a
// temporary file (native extraction requires an on-disk source) and
// recurses Build on it.
func (idx *Index) materializeAndRecurse(ctx context.Context, outerPath string, rel fsx.RelativePath, entryHash modlist.Hash, depth int) error {
	source := extract.NewFileStreamFactory(outerPath)
	_, err := extract.GatheringExtract(ctx, idx.dispatch, source, filepath.Ext(outerPath), extract.Options{
		ShouldExtract: func(r fsx.RelativePath) bool { return r == rel },
	}, func(r fsx.RelativePath, ef *extract.ExtractedFile) (bool, error) {
		scope, err := idx.temp.Acquire("vfs-nested")
		if err != nil {
			return false, err
		}
		defer scope.Release()

		stagedPath := string(scope.Dir) + "/" + filepath.Base(string(rel))
		if err := ef.Move(stagedPath); err != nil {
			return false, fmt.Errorf("stage nested archive %s: %w", rel, err)
		}
		return true, idx.build(ctx, stagedPath, entryHash, filepath.Ext(string(rel)), depth+1)
	})
	return err
}

// Locations returns every (archive, inner-path) known to produce the
// given content hash.
func (idx *Index) Locations(ctx context.Context, hash modlist.Hash) ([]store.VFSLocation, error) {
	return idx.st.Locations(ctx, hash.String())
}

// Prime ensures every (source-archive-hash, inner-path) pair referenced
// by required is represented in the index, building from
// archiveHashToPath. An archive-hash is skipped only when it is itself
// indexed as the content hash of an entry (an archive nested in one
// already built); a top-level archive is rebuilt on every call, which
// IndexEntry's upsert keeps free of duplicate rows. It returns the
// archive hashes that could not be resolved at all (§4.6 "Missing
// archives are reported before any extraction is attempted").
func (idx *Index) Prime(ctx context.Context, required []modlist.Hash, archiveHashToPath map[modlist.Hash]string) ([]modlist.Hash, error) {
	var missing []modlist.Hash

	for _, h := range required {
		locs, err := idx.Locations(ctx, h)
		if err == nil && len(locs) > 0 {
			continue
		}

		path, ok := archiveHashToPath[h]
		if !ok {
			missing = append(missing, h)
			continue
		}

		job, err := idx.resource.Begin(ctx, fmt.Sprintf("Priming %s", filepath.Base(path)), 0)
		if err != nil {
			return missing, err
		}
		buildErr := idx.Build(ctx, path, h, filepath.Ext(path))
		idx.resource.Finish(job)
		if buildErr != nil {
			return missing, buildErr
		}
	}
	return missing, nil
}

// ForgetArchive removes every index entry recorded under archiveHash —
// used when an archive is found corrupt and re-downloaded (§4.7 phase 6).
func (idx *Index) ForgetArchive(ctx context.Context, archiveHash modlist.Hash) error {
	return idx.st.ForgetArchive(ctx, archiveHash.String())
}
