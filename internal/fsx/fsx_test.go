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

package fsx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelativePathClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   RelativePath
		want RelativePath
	}{
		{"already clean", "a/b.txt", "a/b.txt"},
		{"leading slash", "/a/b.txt", "a/b.txt"},
		{"dot segment", "a/./b.txt", "a/b.txt"},
		{"dotdot segment", "a/b/../c.txt", "a/c.txt"},
		{"preserves backslash data", `a/b\c.txt`, `a/b\c.txt`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.in.Clean())
		})
	}
}

func TestRelativePathHasBackslash(t *testing.T) {
	t.Parallel()

	assert.True(t, RelativePath(`textures\a.dds`).HasBackslash())
	assert.False(t, RelativePath("textures/a.dds").HasBackslash())
}

func TestIsUnderDir(t *testing.T) {
	t.Parallel()

	root := AbsolutePath(filepath.Join("tmp", "install"))

	tests := []struct {
		name   string
		target AbsolutePath
		want   bool
	}{
		{"direct child", root.Join("a.txt"), true},
		{"nested child", root.Join("a/b/c.txt"), true},
		{"root itself", root, true},
		{"escapes via dotdot", AbsolutePath(filepath.Join("tmp", "install", "..", "other")), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := IsUnderDir(root, tt.target)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTempManagerAcquireRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr, err := NewTempManager(dir)
	assert.NoError(t, err)

	scope, err := mgr.Acquire("extract")
	assert.NoError(t, err)
	assert.DirExists(t, string(scope.Dir))

	assert.NoError(t, scope.Release())
	assert.NoDirExists(t, string(scope.Dir))

	// Releasing twice is a no-op, not an error.
	assert.NoError(t, scope.Release())
}
