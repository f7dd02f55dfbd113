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

package modlist

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
)

// wireModlist is the JSON shape of the single top-level "modlist" entry
// inside the bundle ZIP (§6.1). It is kept separate from Modlist so the
// wire format can evolve independently of the in-memory sum-typed
// directive model.
type wireModlist struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	GameType   string          `json:"gameType"`
	Archives   []wireArchive   `json:"archives"`
	Directives []wireDirective `json:"directives"`
}

type wireArchive struct {
	Name  string          `json:"name"`
	Hash  string          `json:"hash"`
	Size  int64           `json:"size"`
	State json.RawMessage `json:"state"`
}

type wireArchiveState struct {
	Kind string `json:"kind"`

	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	CatalogID  string            `json:"catalogId,omitempty"`
	GameFile   string            `json:"gameFile,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
	GameDomain string            `json:"gameDomain,omitempty"`
	ModID      int64             `json:"modId,omitempty"`
	FileID     int64             `json:"fileId,omitempty"`
}

type wireDirective struct {
	Kind string `json:"kind"`

	To                string          `json:"to"`
	Hash              string          `json:"hash"`
	SourceArchiveHash string          `json:"sourceArchiveHash,omitempty"`
	InnerPath         string          `json:"innerPath,omitempty"`
	BlobID            string          `json:"blobId,omitempty"`
	TempID            string          `json:"tempId,omitempty"`
	State             string          `json:"state,omitempty"`
	FileStates        []wireFileState `json:"fileStates,omitempty"`
	Sources           []string        `json:"sources,omitempty"`
	PatchBlobID       string          `json:"patchBlobId,omitempty"`
}

type wireFileState struct {
	Path  string `json:"path"`
	Lossy bool   `json:"lossy"`
}

// Load opens a modlist bundle ZIP at path and decodes it into a
// Modlist, including its opaque inline-file blobs.
func Load(path string) (Modlist, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Modlist{}, fmt.Errorf("open modlist bundle %s: %w", path, err)
	}
	defer zr.Close()
	return decode(&zr.Reader)
}

func decode(zr *zip.Reader) (Modlist, error) {
	var wire wireModlist
	var found bool

	blobs := make(map[string][]byte)

	for _, f := range zr.File {
		if f.Name == "modlist" {
			rc, err := f.Open()
			if err != nil {
				return Modlist{}, fmt.Errorf("open modlist entry: %w", err)
			}
			dec := json.NewDecoder(rc)
			err = dec.Decode(&wire)
			rc.Close()
			if err != nil {
				return Modlist{}, fmt.Errorf("parse modlist json: %w", err)
			}
			found = true
			continue
		}
		// Every other entry is an opaque inline-file blob keyed by its
		// archive name (the blob ID referenced by InlineFile.BlobID /
		// MergedPatch.PatchBlobID).
		rc, err := f.Open()
		if err != nil {
			return Modlist{}, fmt.Errorf("open blob %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Modlist{}, fmt.Errorf("read blob %s: %w", f.Name, err)
		}
		blobs[f.Name] = data
	}

	if !found {
		return Modlist{}, fmt.Errorf("modlist bundle missing top-level %q entry", "modlist")
	}

	return fromWire(wire, blobs)
}

func fromWire(wire wireModlist, blobs map[string][]byte) (Modlist, error) {
	archives := make([]Archive, 0, len(wire.Archives))
	for _, wa := range wire.Archives {
		h, err := ParseHash(wa.Hash)
		if err != nil {
			return Modlist{}, fmt.Errorf("archive %s: %w", wa.Name, err)
		}
		state, err := archiveStateFromWire(wa.State)
		if err != nil {
			return Modlist{}, fmt.Errorf("archive %s state: %w", wa.Name, err)
		}
		archives = append(archives, Archive{Name: wa.Name, Hash: h, Size: wa.Size, State: state})
	}

	seenTo := make(map[string]bool, len(wire.Directives))
	directives := make([]Directive, 0, len(wire.Directives))
	for _, wd := range wire.Directives {
		if seenTo[wd.To] {
			return Modlist{}, fmt.Errorf("duplicate directive target %q", wd.To)
		}
		seenTo[wd.To] = true

		d, err := directiveFromWire(wd)
		if err != nil {
			return Modlist{}, fmt.Errorf("directive %q: %w", wd.To, err)
		}
		directives = append(directives, d)
	}

	return Modlist{
		Name:        wire.Name,
		Version:     wire.Version,
		GameType:    wire.GameType,
		Archives:    archives,
		Directives:  directives,
		InlineBlobs: blobs,
	}, nil
}

func archiveStateFromWire(raw json.RawMessage) (ArchiveState, error) {
	var s wireArchiveState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	switch s.Kind {
	case "http":
		return HTTPState{URL: s.URL, Headers: s.Headers}, nil
	case "cdn":
		return CDNState{CatalogID: s.CatalogID}, nil
	case "game":
		return GameFileState{GameFileRelativePath: s.GameFile}, nil
	case "manual":
		return ManualState{Prompt: s.Prompt, URL: s.URL}, nil
	case "nexus":
		return NexusState{GameDomain: s.GameDomain, ModID: s.ModID, FileID: s.FileID, Headers: s.Headers}, nil
	default:
		return nil, fmt.Errorf("unknown archive state kind %q", s.Kind)
	}
}

func directiveFromWire(wd wireDirective) (Directive, error) {
	hash, err := ParseHash(wd.Hash)
	if err != nil {
		return nil, err
	}

	switch wd.Kind {
	case "fromArchive":
		srcHash, err := ParseHash(wd.SourceArchiveHash)
		if err != nil {
			return nil, err
		}
		return FromArchive{To: wd.To, Hash: hash, SourceArchiveHash: srcHash, InnerPath: wd.InnerPath}, nil
	case "inlineFile":
		return InlineFile{To: wd.To, Hash: hash, BlobID: wd.BlobID}, nil
	case "remappedInlineFile":
		return RemappedInlineFile{InlineFile{To: wd.To, Hash: hash, BlobID: wd.BlobID}}, nil
	case "createBSA":
		states := make([]FileState, 0, len(wd.FileStates))
		for _, fs := range wd.FileStates {
			states = append(states, FileState{Path: fs.Path, Lossy: fs.Lossy})
		}
		return CreateBSA{
			To:         wd.To,
			Hash:       hash,
			TempID:     wd.TempID,
			State:      ContainerKind(wd.State),
			FileStates: states,
		}, nil
	case "mergedPatch":
		sources := make([]Hash, 0, len(wd.Sources))
		for _, s := range wd.Sources {
			h, err := ParseHash(s)
			if err != nil {
				return nil, err
			}
			sources = append(sources, h)
		}
		return MergedPatch{To: wd.To, Hash: hash, Sources: sources, PatchBlobID: wd.PatchBlobID}, nil
	case "patchedFromArchive":
		srcHash, err := ParseHash(wd.SourceArchiveHash)
		if err != nil {
			return nil, err
		}
		return PatchedFromArchive{
			FromArchive: FromArchive{To: wd.To, Hash: hash, SourceArchiveHash: srcHash, InnerPath: wd.InnerPath},
			PatchBlobID: wd.PatchBlobID,
		}, nil
	default:
		return nil, fmt.Errorf("unknown directive kind %q", wd.Kind)
	}
}
