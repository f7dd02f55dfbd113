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

package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/nativetool"
)

// extractViaNativeBackend extracts via an external binary into a
// temporary destination directory, then walks that directory to build
// the result mapping. It implements §4.4.1's "External native archive
// tool" and "External installer-payload tool" rows, §4.4.3's
// pattern-file/exit-code contract, §4.4.4's backslash normalisation,
// and §4.4.4.1's encoding fallback.
//
// Go does not support type parameters on methods, so this is a plain
// function taking the Dispatcher explicitly rather than a generic
// method.
func extractViaNativeBackend[T any](
	ctx context.Context,
	d *Dispatcher,
	source StreamFactory,
	opts Options,
	mapFn func(fsx.RelativePath, *ExtractedFile) (T, error),
	tool nativetool.NativeTool,
	toolPath string,
) (map[fsx.RelativePath]T, error) {
	result, err := runNativeExtract(ctx, d, source, opts, mapFn, tool, toolPath)
	if err != nil {
		return nil, err
	}
	if resultCountSatisfies(opts, len(result)) {
		return result, nil
	}

	if d.FallbackArchiveTool == nil {
		return nil, fmt.Errorf("extraction sanity check failed: expected %d files, got %d (missing: %s)",
			len(opts.OnlyFiles), len(result), joinRel(missingFiles(opts, result)))
	}

	fallbackResult, ferr := runNativeExtract(ctx, d, source, opts, mapFn, d.FallbackArchiveTool, d.FallbackArchiveToolPath)
	if ferr != nil || !resultCountSatisfies(opts, len(fallbackResult)) {
		return nil, fmt.Errorf("extraction sanity check failed even after encoding fallback: expected %d files, got %d (missing: %s)",
			len(opts.OnlyFiles), len(result), joinRel(missingFiles(opts, result)))
	}
	return fallbackResult, nil
}

func runNativeExtract[T any](
	ctx context.Context,
	d *Dispatcher,
	source StreamFactory,
	opts Options,
	mapFn func(fsx.RelativePath, *ExtractedFile) (T, error),
	tool nativetool.NativeTool,
	toolPath string,
) (map[fsx.RelativePath]T, error) {
	scope, err := d.Temp.Acquire("extract")
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	dest := string(scope.Dir)
	archivePath := source.ArchivePath()
	if archivePath == "" {
		return nil, fmt.Errorf("native backend requires an on-disk archive path")
	}

	var patternFile string
	if opts.OnlyFiles != nil {
		rels := make([]fsx.RelativePath, 0, len(opts.OnlyFiles))
		for r := range opts.OnlyFiles {
			rels = append(rels, r)
		}
		content := nativetool.WritePatternFile(relStrings(rels), d.CaseRoots)
		patternFile = filepath.Join(filepath.Dir(dest), filepath.Base(dest)+".patterns")
		if err := os.WriteFile(patternFile, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write pattern file: %w", err)
		}
		defer os.Remove(patternFile)
	}

	translatedDest := tool.Translate(dest)
	translatedSource := tool.Translate(archivePath)
	translatedPattern := ""
	if patternFile != "" {
		translatedPattern = tool.Translate(patternFile)
	}

	args := nativetool.ExtractArgs(translatedDest, translatedSource, translatedPattern)
	if _, err := nativetool.RunWithRetry(ctx, tool, toolPath, args, "", dest, archivePath); err != nil {
		return nil, fmt.Errorf("native extract %s: %w", archivePath, err)
	}

	if err := NormalizeBackslashes(dest); err != nil {
		return nil, fmt.Errorf("normalise extracted tree: %w", err)
	}

	return mapExtractedDir(dest, opts, mapFn)
}

func relStrings(rels []fsx.RelativePath) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = string(r)
	}
	return out
}

// mapExtractedDir walks dest (after backslash normalisation) and
// invokes mapFn for every file passing opts.ShouldExtract, in archive
// order approximated by a lexical filesystem walk (native tools don't
// expose their original entry order once extracted to disk).
func mapExtractedDir[T any](dest string, opts Options, mapFn func(fsx.RelativePath, *ExtractedFile) (T, error)) (map[fsx.RelativePath]T, error) {
	result := make(map[fsx.RelativePath]T)

	err := filepath.Walk(dest, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := relFromOSPath(dest, p)
		if opts.ShouldExtract != nil && !opts.ShouldExtract(rel) {
			return nil
		}

		entryPath := p
		ef := &ExtractedFile{
			name:    rel,
			modTime: info.ModTime(),
			streamFn: func() (io.ReadCloser, error) {
				return os.Open(entryPath)
			},
			moveFn: func(target string) error {
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return err
				}
				if err := os.Rename(entryPath, target); err != nil {
					return copyFileFallback(entryPath, target)
				}
				return nil
			},
			release: func() { _ = os.Remove(entryPath) },
		}

		val, err := mapFn(rel, ef)
		if err != nil {
			return fmt.Errorf("map %s: %w", rel, err)
		}
		result[rel] = val
		ef.Release()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func copyFileFallback(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Remove(src)
}

// extractOMOD handles the .omod-extension row of §4.4.1's table. OMOD
// archives are, in every shipped reference tool, a zip container
// carrying a conventional entry layout; the embedded unpacker here
// reuses archive/zip directly (the program owns this format's reading
// end completely, matching the stdlib-for-owned-container-formats
// idiom used for the modlist bundle itself).
func extractOMOD[T any](source StreamFactory, opts Options, mapFn func(fsx.RelativePath, *ExtractedFile) (T, error)) (map[fsx.RelativePath]T, error) {
	path := source.ArchivePath()
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open omod %s: %w", path, err)
	}
	defer zr.Close()

	result := make(map[fsx.RelativePath]T)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rel := fsx.RelativePath(f.Name).Clean()
		if opts.ShouldExtract != nil && !opts.ShouldExtract(rel) {
			continue
		}

		zf := f
		ef := &ExtractedFile{
			name:    rel,
			modTime: zf.Modified,
			streamFn: func() (io.ReadCloser, error) {
				return zf.Open()
			},
			moveFn: func(target string) error {
				rc, err := zf.Open()
				if err != nil {
					return err
				}
				defer rc.Close()
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return err
				}
				out, err := os.Create(target)
				if err != nil {
					return err
				}
				defer out.Close()
				_, err = io.Copy(out, rc)
				return err
			},
		}

		val, err := mapFn(rel, ef)
		if err != nil {
			return nil, fmt.Errorf("map omod entry %s: %w", rel, err)
		}
		result[rel] = val
	}

	if !resultCountSatisfies(opts, len(result)) {
		return nil, fmt.Errorf("omod extraction sanity check failed: expected %d files, got %d",
			len(opts.OnlyFiles), len(result))
	}
	return result, nil
}
