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

// Package modlist holds the declarative data model a modlist bundle
// describes: archives, directives, and the immutable installer
// configuration they are installed against.
package modlist

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash is a 64-bit content fingerprint, stably serialised as base64.
// Equality is bitwise; two files with equal Hash are interchangeable.
type Hash uint64

// String renders the hash as the stable base64 form used in modlist
// JSON and in the hash cache.
func (h Hash) String() string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(h))
	return base64.StdEncoding.EncodeToString(b[:])
}

// IsZero reports whether h is the all-zero digest, which must be
// rejected and recomputed rather than trusted (§4.3).
func (h Hash) IsZero() bool { return h == 0 }

// ParseHash parses the base64 form back into a Hash.
func ParseHash(s string) (Hash, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", s, err)
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("parse hash %q: want 8 bytes, got %d", s, len(b))
	}
	return Hash(binary.LittleEndian.Uint64(b)), nil
}

// NewHasher returns a streaming digest compatible with Hash.
func NewHasher() *xxhash.Digest {
	return xxhash.New()
}

// SumHash finalises h into a Hash value.
func SumHash(h *xxhash.Digest) Hash {
	return Hash(h.Sum64())
}

// ArchiveState is the closed sum type over where an Archive's bytes come
// from. Each implementation supplies a stable primary-key-string used
// for deduplication and logging, per §9's "tagged archive states"
// design note: a closed sum with one constructor per source kind rather
// than open-world inheritance.
type ArchiveState interface {
	// PrimaryKeyString returns a stable identity string for this source.
	PrimaryKeyString() string
	isArchiveState()
}

// HTTPState is a directly downloadable URL.
type HTTPState struct {
	URL     string
	Headers map[string]string
}

func (s HTTPState) PrimaryKeyString() string { return "http:" + s.URL }
func (HTTPState) isArchiveState()            {}

// CDNState is a catalogued-CDN source identified by a catalogue ID; the
// download dispatcher fetches the ID as a direct URL, with no separate
// resolution step.
type CDNState struct {
	CatalogID string
}

func (s CDNState) PrimaryKeyString() string { return "cdn:" + s.CatalogID }
func (CDNState) isArchiveState()            {}

// GameFileState sources bytes from a file already present in the
// target game installation rather than from a download.
type GameFileState struct {
	GameFileRelativePath string
}

func (s GameFileState) PrimaryKeyString() string { return "game:" + s.GameFileRelativePath }
func (GameFileState) isArchiveState()            {}

// ManualState marks an archive that cannot be fetched automatically and
// must be supplied by the user (§7 "user intervention required").
type ManualState struct {
	Prompt string
	URL    string
}

func (s ManualState) PrimaryKeyString() string { return "manual:" + s.URL }
func (ManualState) isArchiveState()            {}

// NexusState is the one named third-party-repository source variant:
// a mod hosted on a Nexus-shaped mod repository, identified by game
// domain, mod ID and file ID. Headers carries out-of-band data attached
// by the collaborator that owns Nexus API credentials (§1 non-goals) —
// notably a resolved signed download URL.
type NexusState struct {
	GameDomain string
	ModID      int64
	FileID     int64
	Headers    map[string]string
}

func (s NexusState) PrimaryKeyString() string {
	return fmt.Sprintf("nexus:%s/%d/%d", s.GameDomain, s.ModID, s.FileID)
}
func (NexusState) isArchiveState() {}

// Archive is a remote or local input file referenced by one or more
// directives, identified by content hash.
type Archive struct {
	Name  string
	Hash  Hash
	Size  int64
	State ArchiveState
}

// Directive is the closed sum type over the six ways a modlist can
// produce one output file. Every directive has a target To and an
// expected Hash; no two directives in a Modlist may share To.
type Directive interface {
	Target() string
	ExpectedHash() Hash
	isDirective()
}

// FromArchive copies one entry out of an extracted archive.
type FromArchive struct {
	To                string
	Hash              Hash
	SourceArchiveHash Hash
	InnerPath         string
}

func (d FromArchive) Target() string     { return d.To }
func (d FromArchive) ExpectedHash() Hash { return d.Hash }
func (FromArchive) isDirective()         {}

// InlineFile writes bytes embedded in the modlist bundle.
type InlineFile struct {
	To     string
	Hash   Hash
	BlobID string
}

func (d InlineFile) Target() string    { return d.To }
func (d InlineFile) ExpectedHash() Hash { return d.Hash }
func (InlineFile) isDirective()        {}

// RemappedInlineFile is an InlineFile whose bytes require path-template
// substitution (install/downloads/game directory tokens) before being
// written.
type RemappedInlineFile struct {
	InlineFile
}

func (RemappedInlineFile) isDirective() {}

// FileState describes one input to a CreateBSA directive: the file's
// path relative to the install directory and whether its format is
// lossy (DX10 textures are excluded from per-file hash verification on
// readback, per §4.8).
type FileState struct {
	Path   string
	Lossy  bool
}

// CreateBSA assembles a game-native container archive from files
// already written under the install directory.
type CreateBSA struct {
	To         string
	Hash       Hash
	TempID     string
	State      ContainerKind
	FileStates []FileState
}

func (d CreateBSA) Target() string    { return d.To }
func (d CreateBSA) ExpectedHash() Hash { return d.Hash }
func (CreateBSA) isDirective()        {}

// ContainerKind names which of the two game-native container formats a
// CreateBSA directive targets.
type ContainerKind string

const (
	ContainerBSA ContainerKind = "BSA"
	ContainerBA2 ContainerKind = "BA2"
)

// MergedPatch concatenates Sources in order and applies a binary diff.
type MergedPatch struct {
	To          string
	Hash        Hash
	Sources     []Hash
	PatchBlobID string
}

func (d MergedPatch) Target() string    { return d.To }
func (d MergedPatch) ExpectedHash() Hash { return d.Hash }
func (MergedPatch) isDirective()        {}

// PatchedFromArchive is a FromArchive plus a binary diff applied after
// extraction.
type PatchedFromArchive struct {
	FromArchive
	PatchBlobID string
}

func (PatchedFromArchive) isDirective() {}

// Modlist is the full declarative manifest: name, version, target game
// type, the archives it references, the directives that produce
// installed files, and the inline blobs those directives may reference.
type Modlist struct {
	Name       string
	Version    string
	GameType   string
	Archives   []Archive
	Directives []Directive
	// InlineBlobs maps a blob ID (referenced by InlineFile.BlobID or
	// MergedPatch.PatchBlobID) to its raw bytes, as extracted from the
	// modlist bundle's opaque entries.
	InlineBlobs map[string][]byte
}

// InstallerConfiguration is the immutable input to the install state
// machine: install/downloads/game directories, the modlist itself, and
// system parameters (screen size, video memory) written into the game's
// display settings at finalise.
type InstallerConfiguration struct {
	InstallDirectory   string
	DownloadsDirectory string
	GameDirectory      string // auto-resolved from GameType if empty; see internal/gamelocate
	Modlist            Modlist
	ScreenWidth        int
	ScreenHeight       int
	VideoMemorySizeMB  int64
}
