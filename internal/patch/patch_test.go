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

package patch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemods/mlinstall/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyReconstructsNewFromDiff(t *testing.T) {
	t.Parallel()

	oldData := []byte("the quick brown fox jumps over the lazy dog")
	newData := []byte("the quick brown fox leaps over one lazy dog")
	patchBytes, err := bsdiff.Bytes(oldData, newData)
	require.NoError(t, err)

	c, err := New(openTestStore(t), filepath.Join(t.TempDir(), "patches"))
	require.NoError(t, err)

	path, err := c.Apply(context.Background(), "blob-1", bytes.NewReader(oldData), patchBytes)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, newData, got)
}

func TestApplyServesSecondCallFromCache(t *testing.T) {
	t.Parallel()

	oldData := []byte("alpha beta gamma delta")
	newData := []byte("alpha beta gamma epsilon")
	patchBytes, err := bsdiff.Bytes(oldData, newData)
	require.NoError(t, err)

	c, err := New(openTestStore(t), filepath.Join(t.TempDir(), "patches"))
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.Apply(ctx, "blob-2", bytes.NewReader(oldData), patchBytes)
	require.NoError(t, err)

	// A second call must not need a readable pre-image at all once cached.
	second, err := c.Apply(ctx, "blob-2", badReader{}, patchBytes)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyRejectsEmptyPatch(t *testing.T) {
	t.Parallel()

	c, err := New(openTestStore(t), filepath.Join(t.TempDir(), "patches"))
	require.NoError(t, err)

	_, err = c.Apply(context.Background(), "blob-3", bytes.NewReader([]byte("x")), nil)
	assert.ErrorIs(t, err, ErrEmptyPatch)
}

func TestConcatPreservesDeclaredOrder(t *testing.T) {
	t.Parallel()

	r := Concat(bytes.NewReader([]byte("one-")), bytes.NewReader([]byte("two-")), bytes.NewReader([]byte("three")))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "one-two-three", string(got))
}

// badReader always fails; used to assert a cache hit never reads the
// pre-image at all.
type badReader struct{}

func (badReader) Read([]byte) (int, error) {
	return 0, errors.New("pre-image reader must not be used on a cache hit")
}
