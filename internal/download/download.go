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

// Package download implements C6, the download dispatcher (§4.5): it
// parses an archive's source descriptor, performs a resumable fetch,
// retries transient failures, and produces the .meta sidecar content.
// Grounded on other_examples/0fed3f4c_APTlantis-Mirror-Crates's
// resumable manifest-tracked downloader — same tmp-file-then-rename
// idiom, same retryable-status-code classification, same exponential
// backoff with jitter, adapted from a flat URL-list fetcher into a
// per-archive-state registry dispatching across §3's five Archive
// states.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forgemods/mlinstall/internal/modlist"
	"github.com/forgemods/mlinstall/internal/rate"
)

// ErrManual is returned by Dispatcher.Download when the archive's state
// is modlist.ManualState — per §4.7 phase 4, such archives are routed to
// the intervention handler rather than fetched.
var ErrManual = errors.New("archive requires manual download")

// Source fetches one archive state. One implementation per
// modlist.ArchiveState variant, registered in a static table — closed
// sum, no open-world plugin discovery, per §9's tagged-states guidance.
type Source interface {
	// Fetch downloads into targetPath, honouring a pre-existing partial
	// file at targetPath+".part" whose prefix matches (resumable, §4.5).
	// progress reports (processed, total) bytes; total may be -1 if
	// unknown ahead of time.
	Fetch(ctx context.Context, archive modlist.Archive, targetPath string, progress func(processed, total int64)) error
	// MetaINILines produces the source-specific fields appended to the
	// archive's .meta sidecar (§6.3).
	MetaINILines(archive modlist.Archive) []string
}

// Dispatcher routes an Archive to the Source matching its state and
// gates every fetch through a rate.Resource (the Downloads resource,
// §5).
type Dispatcher struct {
	resource *rate.Resource
	sources  map[string]Source
	client   *http.Client
}

// New returns a Dispatcher with the engine's default Source registry.
// gameDir is the resolved game installation directory (§3
// InstallerConfiguration.GameDirectory), used to resolve
// modlist.GameFileState sources.
func New(resource *rate.Resource, gameDir string) *Dispatcher {
	client := &http.Client{Timeout: time.Hour}
	return &Dispatcher{
		resource: resource,
		client:   client,
		sources: map[string]Source{
			"http":     &httpSource{client: client},
			"cdn":      &httpSource{client: client},
			"gamefile": &gameFileSource{gameDir: gameDir},
			"nexus":    &nexusSource{client: client},
			"manual":   &manualSource{},
		},
	}
}

func sourceKey(state modlist.ArchiveState) (string, error) {
	switch state.(type) {
	case modlist.HTTPState:
		return "http", nil
	case modlist.CDNState:
		return "cdn", nil
	case modlist.GameFileState:
		return "gamefile", nil
	case modlist.NexusState:
		return "nexus", nil
	case modlist.ManualState:
		return "manual", nil
	default:
		return "", fmt.Errorf("unrecognised archive state %T", state)
	}
}

// Download fetches archive into targetPath (§4.5's download operation).
// Returns ErrManual, without touching the filesystem, for archives whose
// state is modlist.ManualState.
func (d *Dispatcher) Download(ctx context.Context, archive modlist.Archive, targetPath string) error {
	if _, ok := archive.State.(modlist.ManualState); ok {
		return ErrManual
	}

	key, err := sourceKey(archive.State)
	if err != nil {
		return err
	}
	src := d.sources[key]

	job, err := d.resource.Begin(ctx, fmt.Sprintf("Downloading %s", archive.Name), archive.Size)
	if err != nil {
		return err
	}
	defer d.resource.Finish(job)

	progress := func(processed, total int64) {
		if total <= 0 {
			return
		}
		delta := processed - job.Progress()
		if delta <= 0 {
			return
		}
		_ = d.resource.Report(ctx, job, delta)
	}

	if err := src.Fetch(ctx, archive, targetPath, progress); err != nil {
		return fmt.Errorf("download %s: %w", archive.Name, err)
	}
	return nil
}

// MetaINILines produces the .meta sidecar's source-specific fields for
// archive (§6.3).
func (d *Dispatcher) MetaINILines(archive modlist.Archive) ([]string, error) {
	key, err := sourceKey(archive.State)
	if err != nil {
		return nil, err
	}
	return d.sources[key].MetaINILines(archive), nil
}

// ChunkedSeekableStream returns a seekable read stream over archive's
// remote bytes without downloading it fully (§4.5) — used to peek into
// modlist bundles before committing to a full fetch. Only HTTPState
// supports range-addressed peeking; every other state, CDNState
// included, returns an error.
func (d *Dispatcher) ChunkedSeekableStream(ctx context.Context, archive modlist.Archive) (io.ReadSeekCloser, error) {
	switch state := archive.State.(type) {
	case modlist.HTTPState:
		return newRemoteSeeker(ctx, d.client, state.URL, state.Headers, archive.Size)
	case modlist.CDNState:
		return nil, fmt.Errorf("chunked seekable stream not supported for CDN state")
	default:
		return nil, fmt.Errorf("chunked seekable stream not supported for %T", archive.State)
	}
}

// resumeOffset returns the size of an existing partial file at path, or
// 0 if none exists — the "honour partial files with matching size
// prefix" contract of §4.5. The caller is responsible for verifying the
// final hash; a corrupt partial simply gets overwritten by a fresh
// attempt when the server rejects the Range request.
func resumeOffset(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func partialPath(targetPath string) string { return targetPath + ".part" }

func finalizeDownload(partial, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Rename(partial, target)
}
