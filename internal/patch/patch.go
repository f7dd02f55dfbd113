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

// Package patch materialises the two directive kinds that reconstruct a
// target file from a binary diff against bytes already on disk:
// MergedPatch (diff against the concatenation of several sources) and
// PatchedFromArchive (diff against one freshly-extracted file). It
// wraps gabstv/go-bsdiff's patch-apply routine with the same
// hash-addressed, stage-then-rename materialisation idiom
// internal/blobstore used for archive ingest (see DESIGN.md), reusing
// internal/fsx's directory-fsync helper instead of reimplementing it.
package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabstv/go-bsdiff/pkg/bspatch"

	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/store"
)

// ErrEmptyPatch is returned when patchBytes is empty; a genuine bsdiff
// blob is never zero-length, so this indicates a malformed bundle
// rather than a legitimate identity patch.
var ErrEmptyPatch = errors.New("patch: empty patch blob")

// Cache materialises and caches the output of applying a binary patch,
// keyed by the modlist bundle's patch-blob-id (§3 "PatchCache — on-disk
// binary-patch intermediate storage").
type Cache struct {
	st   *store.Store
	root string
}

// New returns a Cache rooted at dir, creating it if necessary.
func New(st *store.Store, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir patch cache root %s: %w", dir, err)
	}
	return &Cache{st: st, root: dir}, nil
}

// Apply reconstructs the patched file for patchBlobID from old (the
// pre-image byte stream — a single source for PatchedFromArchive, or
// the in-order concatenation of several for MergedPatch, see Concat)
// and patchBytes (the bsdiff-format blob carried inline in the bundle),
// returning the path to the materialised result. A prior call for the
// same patchBlobID is served from cache without re-running bspatch.
func (c *Cache) Apply(ctx context.Context, patchBlobID string, old io.Reader, patchBytes []byte) (string, error) {
	if len(patchBytes) == 0 {
		return "", ErrEmptyPatch
	}

	if cached, err := c.st.LookupPatch(ctx, patchBlobID); err == nil {
		if info, statErr := os.Stat(cached); statErr == nil && !info.IsDir() {
			return cached, nil
		}
	}

	dest := filepath.Join(c.root, patchBlobID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("mkdir patch cache entry dir: %w", err)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create patch staging file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	if err := bspatch.Reader(old, f, bytes.NewReader(patchBytes)); err != nil {
		return "", fmt.Errorf("apply patch %s: %w", patchBlobID, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("fsync patch staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close patch staging file: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("rename patch into place: %w", err)
	}
	_ = fsx.FsyncDir(filepath.Dir(dest))

	info, err := os.Stat(dest)
	if err != nil {
		return "", fmt.Errorf("stat materialised patch %s: %w", dest, err)
	}
	if err := c.st.RecordPatch(ctx, patchBlobID, dest, info.Size()); err != nil {
		return "", fmt.Errorf("record patch cache %s: %w", patchBlobID, err)
	}
	return dest, nil
}

// Concat streams several sources in declared order as a single Reader,
// the pre-image MergedPatch diffs against (§4.7 phase 14 "concatenate
// sources (in declared order)").
func Concat(sources ...io.Reader) io.Reader {
	return io.MultiReader(sources...)
}

