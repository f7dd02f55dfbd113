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

package hashcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forgemods/mlinstall/internal/rate"
	"github.com/forgemods/mlinstall/internal/store"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "store.db"), time.Minute)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	res := rate.New("hashing", 4, 0)
	t.Cleanup(res.Close)

	return New(st, res)
}

func TestComputeOrCacheThenLookup(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	assert.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	h1, err := c.ComputeOrCache(context.Background(), path)
	assert.NoError(t, err)
	assert.False(t, h1.IsZero())

	h2, err := c.Lookup(context.Background(), path)
	assert.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeOrCacheInvalidatesOnMtimeChange(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	assert.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h1, err := c.ComputeOrCache(context.Background(), path)
	assert.NoError(t, err)

	// Touch with different content and mtime; cache must not return the
	// stale value.
	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, os.WriteFile(path, []byte("hello!!"), 0o644))
	assert.NoError(t, os.Chtimes(path, time.Now().Add(time.Hour), time.Now().Add(time.Hour)))

	h2, err := c.ComputeOrCache(context.Background(), path)
	assert.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestWriteForceInserts(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	assert.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h, err := c.ComputeOrCache(context.Background(), path)
	assert.NoError(t, err)

	assert.NoError(t, c.Write(context.Background(), path, h))
	got, err := c.Lookup(context.Background(), path)
	assert.NoError(t, err)
	assert.Equal(t, h, got)
}
