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

// Package hashcache implements C4: a persistent path → (size, mtime,
// hash) store keyed by identity, gated by a rate.Resource so that
// concurrent readers of disjoint paths proceed in parallel up to the
// hash-cache resource limit. Grounded on internal/db.go and
// internal/blobstore/db.go's find-or-insert idiom, adapted to the
// spec's xxhash64 Hash type instead of the teacher's sha256 blob key.
package hashcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
)

// Cache is C4's persistent path → hash store.
type Cache struct {
	st       *store.Store
	resource *rate.Resource
}

// New wraps st with the given rate-limited resource gating concurrent
// hashing.
func New(st *store.Store, resource *rate.Resource) *Cache {
	return &Cache{st: st, resource: resource}
}

// ErrMiss is returned by Lookup when no fresh cache entry exists.
var ErrMiss = store.ErrHashCacheMiss

// Lookup returns the cached hash for path if the file's current size
// and mtime match the cached triple exactly.
func (c *Cache) Lookup(ctx context.Context, path string) (modlist.Hash, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	raw, err := c.st.LookupHash(ctx, path, info.Size(), info.ModTime().UnixNano())
	if err != nil {
		return 0, err
	}

	h, err := modlist.ParseHash(raw)
	if err != nil {
		return 0, fmt.Errorf("parse cached hash for %s: %w", path, err)
	}
	if h.IsZero() {
		// Zero digests must never be trusted; purge lazily and report a miss.
		_ = c.st.PurgeZeroHashes(ctx, raw)
		return 0, ErrMiss
	}
	return h, nil
}

// ComputeOrCache returns the cached hash for path, or computes a
// streaming fingerprint and writes the triple on success. Hashing runs
// under the File Hashing resource (§5).
func (c *Cache) ComputeOrCache(ctx context.Context, path string) (modlist.Hash, error) {
	if h, err := c.Lookup(ctx, path); err == nil {
		return h, nil
	} else if !errors.Is(err, ErrMiss) {
		return 0, err
	}

	job, err := c.resource.Begin(ctx, "hash "+path, 0)
	if err != nil {
		return 0, fmt.Errorf("begin hash job for %s: %w", path, err)
	}
	defer c.resource.Finish(job)

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	hasher := modlist.NewHasher()
	buf := make([]byte, 1<<20)
	total := int64(0)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			total += int64(n)
			if err := c.resource.Report(ctx, job, int64(n)); err != nil {
				return 0, fmt.Errorf("hash %s cancelled: %w", path, err)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return 0, fmt.Errorf("read %s: %w", path, rerr)
		}
	}

	h := modlist.SumHash(hasher)
	if h.IsZero() {
		return 0, fmt.Errorf("computed zero hash for %s: rejecting", path)
	}

	if err := c.st.WriteHash(ctx, path, info.Size(), info.ModTime().UnixNano(), h.String()); err != nil {
		return 0, err
	}
	return h, nil
}

// Write force-inserts hash for path after the caller has produced the
// file by means that already know its digest (e.g. container build
// readback), bypassing recomputation.
func (c *Cache) Write(ctx context.Context, path string, h modlist.Hash) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return c.st.WriteHash(ctx, path, info.Size(), info.ModTime().UnixNano(), h.String())
}
