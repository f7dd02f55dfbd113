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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/container"
	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
)

// phaseBuildContainers assembles every CreateBSA directive's output
// container from its already-staged file states (the files the
// directive sources from are the ones Install archives/Install inline
// files already wrote to their `to` paths), then verifies each
// non-lossy entry's readback hash against the staged file that fed it
// (§4.7 phase 13, §4.8).
func (e *Engine) phaseBuildContainers(ctx context.Context) error {
	for _, d := range e.directives {
		createBSA, ok := d.(modlist.CreateBSA)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if err := e.buildOneContainer(ctx, createBSA); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildOneContainer(ctx context.Context, d modlist.CreateBSA) error {
	var kind container.Kind
	switch d.State {
	case modlist.ContainerBSA:
		kind = container.KindBSA
	case modlist.ContainerBA2:
		kind = container.KindBA2
	default:
		return fmt.Errorf("build container %s: unknown kind %q", d.To, d.State)
	}

	builder, err := container.NewBuilder(kind)
	if err != nil {
		return fmt.Errorf("build container %s: %w", d.To, err)
	}

	sourceHashes := make(map[string]modlist.Hash, len(d.FileStates))
	for _, fs := range d.FileStates {
		sourcePath := string(e.installDir.Join(fsx.RelativePath(fs.Path)))
		f, err := os.Open(sourcePath)
		if err != nil {
			return fmt.Errorf("build container %s: open staged file %s: %w", d.To, fs.Path, err)
		}
		err = builder.AddFile(container.FileState{Path: fs.Path, Lossy: fs.Lossy}, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("build container %s: add %s: %w", d.To, fs.Path, err)
		}

		if !fs.Lossy {
			h, err := e.deps.Hashes.ComputeOrCache(ctx, sourcePath)
			if err != nil {
				return fmt.Errorf("build container %s: hash staged %s: %w", d.To, fs.Path, err)
			}
			sourceHashes[fs.Path] = h
		}
	}

	target := string(e.installDir.Join(fsx.RelativePath(d.To)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("build container %s: %w", d.To, err)
	}
	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("build container %s: create output: %w", d.To, err)
	}
	if err := builder.WriteTo(out); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("build container %s: %w", d.To, err)
	}
	out.Close()

	if err := verifyContainerReadback(tmp, sourceHashes); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("build container %s: %w", d.To, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("build container %s: commit: %w", d.To, err)
	}
	_ = fsx.FsyncDir(filepath.Dir(target))
	return nil
}

// verifyContainerReadback opens the just-written container and confirms
// every non-lossy entry's bytes hash to the same digest as the staged
// file that fed it (§4.8 "Reader symmetry").
func verifyContainerReadback(path string, sourceHashes map[string]modlist.Hash) error {
	r, err := container.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open container readback: %w", err)
	}
	defer r.Close()

	entries, err := r.Files()
	if err != nil {
		return fmt.Errorf("list container entries: %w", err)
	}

	for _, entry := range entries {
		want, ok := sourceHashes[entry.Path]
		if !ok {
			continue // lossy entry, excluded from per-file verification
		}
		rc, err := entry.StreamFactory()
		if err != nil {
			return fmt.Errorf("open container entry %s: %w", entry.Path, err)
		}
		h := modlist.NewHasher()
		_, err = io.Copy(h, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("hash container entry %s: %w", entry.Path, err)
		}
		if got := modlist.SumHash(h); got != want {
			return fmt.Errorf("container entry %s hash mismatch: got %s want %s", entry.Path, got, want)
		}
	}
	return nil
}
