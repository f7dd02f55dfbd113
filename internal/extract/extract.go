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

// Package extract implements C5, the extraction dispatcher: it
// recognises an archive's format (package sig), picks the matching
// per-format extractor, and yields (relative-path, extracted-file)
// pairs to a caller-supplied mapper — the single gathering-extract
// operation of §4.4. Grounded on cmd/mods_import.go's bsdtar invocation
// for the native-tool path; the BTAR and container-format paths are
// the engine's own in-process readers (§4.4.2, package container).
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/nativetool"
	"github.com/forgemods/mlinstall/internal/sig"
)

// StreamFactory opens repeatable seekable reads over one archive. The
// dispatcher uses it both to sniff the signature and, for in-process
// extractors, to read entries directly.
type StreamFactory interface {
	Open() (io.ReadSeekCloser, error)
	Size() int64
	// ArchivePath, when non-empty, is the on-disk path to the archive;
	// required by extractors that shell out to a native tool.
	ArchivePath() string
}

// fileStreamFactory is the common case: an archive that already exists
// as a file on disk.
type fileStreamFactory struct {
	path string
}

// NewFileStreamFactory returns a StreamFactory over an on-disk archive.
func NewFileStreamFactory(path string) StreamFactory { return fileStreamFactory{path: path} }

func (f fileStreamFactory) Open() (io.ReadSeekCloser, error) { return os.Open(f.path) }
func (f fileStreamFactory) Size() int64 {
	info, err := os.Stat(f.path)
	if err != nil {
		return -1
	}
	return info.Size()
}
func (f fileStreamFactory) ArchivePath() string { return f.path }

// ExtractedFile is an opaque handle over one archive entry. It exposes
// Name, LastModified and GetStream, and either Move (consumes the
// handle, transferring ownership of bytes) or Release (if dropped
// without being moved, any backing temporary bytes are released) —
// per §3's ExtractedFile lifecycle.
type ExtractedFile struct {
	name     fsx.RelativePath
	modTime  time.Time
	streamFn func() (io.ReadCloser, error)
	moveFn   func(target string) error
	release  func()
	moved    bool
}

func (e *ExtractedFile) Name() fsx.RelativePath   { return e.name }
func (e *ExtractedFile) LastModified() time.Time { return e.modTime }

// GetStream opens a fresh read over the entry's bytes. The caller owns
// the returned ReadCloser.
func (e *ExtractedFile) GetStream() (io.ReadCloser, error) { return e.streamFn() }

// Move transfers the entry's bytes to target and consumes the handle;
// calling Move twice is an error.
func (e *ExtractedFile) Move(target string) error {
	if e.moved {
		return fmt.Errorf("extracted file %s: already moved", e.name)
	}
	e.moved = true
	return e.moveFn(target)
}

// Release frees any backing temporary bytes if the handle was never
// moved. Safe to call unconditionally once a gathering-extract call
// returns (idempotent no-op after a successful Move).
func (e *ExtractedFile) Release() {
	if e.moved || e.release == nil {
		return
	}
	e.release()
}

// Options configures one gathering-extract call.
type Options struct {
	// ShouldExtract decides, per entry, whether to materialise bytes at all.
	ShouldExtract func(fsx.RelativePath) bool
	// OnlyFiles, if non-nil, is the exact set the extractor must deliver;
	// a count mismatch at the end is fatal for the archive (for the
	// native-tool formats, after one fallback attempt, see
	// extractViaNativeBackend).
	OnlyFiles map[fsx.RelativePath]bool
	// Progress reports percent complete, 0..100.
	Progress func(percent float64)
}

// Dispatcher owns the native-tool bindings and temp-directory manager
// gathering-extract needs for the formats that extract to a temporary
// directory rather than in-process.
type Dispatcher struct {
	ArchiveTool   nativetool.NativeTool
	ArchiveToolPath string
	PayloadTool   nativetool.NativeTool
	PayloadToolPath string
	// FallbackArchiveTool, if set, is a second native backend tried once
	// when OnlyFiles was supplied and the result count falls short —
	// §4.4.4.1's encoding fallback.
	FallbackArchiveTool     nativetool.NativeTool
	FallbackArchiveToolPath string
	Temp      *fsx.TempManager
	CaseRoots []string
}

// GatheringExtract is C5's single public operation (§4.4): open source,
// recognise its format, pick the matching extractor, and yield
// (relative-path, mapped-result) pairs via mapFn for every entry that
// passes opts.ShouldExtract.
func GatheringExtract[T any](
	ctx context.Context,
	d *Dispatcher,
	source StreamFactory,
	archiveExt string,
	opts Options,
	mapFn func(fsx.RelativePath, *ExtractedFile) (T, error),
) (map[fsx.RelativePath]T, error) {
	rs, err := source.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer rs.Close()

	ft, err := sig.Detect(rs)
	if err != nil {
		return nil, fmt.Errorf("detect format: %w", err)
	}
	ft = sig.ResolveAmbiguity(ft, strings.EqualFold(archiveExt, ".bsa"))

	switch {
	case strings.EqualFold(archiveExt, ".omod"):
		// OMODs are themselves zip containers (they sniff as sig.ZIP),
		// so this extension check must be tried before the signature-based
		// ZIP/7Z/RAR case below or it is never reached.
		return extractOMOD(source, opts, mapFn)
	case ft == sig.ZIP || ft == sig.SevenZ || ft == sig.RAROld || ft == sig.RARNew:
		return extractViaNativeBackend(ctx, d, source, opts, mapFn, d.ArchiveTool, d.ArchiveToolPath)
	case ft == sig.BTAR:
		return extractBTAR(rs, opts, mapFn)
	case ft == sig.BSA || ft == sig.BA2 || (ft == sig.TES3 && strings.EqualFold(archiveExt, ".bsa")):
		return extractContainer(source, ft, opts, mapFn)
	case ft == sig.EXE:
		return extractViaNativeBackend(ctx, d, source, opts, mapFn, d.PayloadTool, d.PayloadToolPath)
	default:
		return nil, fmt.Errorf("invalid file format")
	}
}

func resultCountSatisfies(opts Options, got int) bool {
	if opts.OnlyFiles == nil {
		return true
	}
	return got == len(opts.OnlyFiles)
}

// missingFiles returns the OnlyFiles entries not present in got, for
// diagnostics when the sanity check fails.
func missingFiles[T any](opts Options, got map[fsx.RelativePath]T) []fsx.RelativePath {
	var missing []fsx.RelativePath
	for want := range opts.OnlyFiles {
		if _, ok := got[want]; !ok {
			missing = append(missing, want)
		}
	}
	return missing
}

func joinRel(paths []fsx.RelativePath) string {
	s := make([]string, len(paths))
	for i, p := range paths {
		s[i] = string(p)
	}
	return strings.Join(s, ", ")
}

func relFromOSPath(root, full string) fsx.RelativePath {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		rel = full
	}
	return fsx.RelativePath(filepath.ToSlash(rel))
}
