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

// Package container implements C9: format-specific readers and writers
// for the two game-native container formats identified by package sig
// (BSA and BA2). There is no file in the example corpus that reads or
// writes either format; the binary-I/O idiom (pragma-style constant
// header, setup-then-operate shape) is grounded on internal/db.go's
// SetupDB/MigrateDB pattern applied to a length-prefixed binary layout
// instead of SQL, with klauspost/compress/zlib for compressed entries
// (see DESIGN.md).
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Kind names which on-disk container format a Builder/Reader targets.
type Kind string

const (
	KindBSA Kind = "BSA"
	KindBA2 Kind = "BA2"
)

// FileState describes one input to Builder.AddFile: whether its payload
// is a lossy format (e.g. DX10 textures), which §4.8 excludes from
// per-file hash verification on readback.
type FileState struct {
	Path  string
	Lossy bool
}

// Entry is one file exposed by a Reader.
type Entry struct {
	Path            string
	Lossy           bool
	StreamFactory   func() (io.ReadCloser, error)
	UncompressedSize int64
}

// Builder accepts a sequence of (file-state, input-stream) pairs in the
// order dictated by a CreateBSA directive's file-states, then writes
// the packed output to a single seekable output stream (§4.8).
type Builder interface {
	AddFile(state FileState, r io.Reader) error
	WriteTo(w io.WriteSeeker) error
}

// Reader opens a packed container and exposes its files (§4.8 "Reader
// symmetry").
type Reader interface {
	Files() ([]Entry, error)
	Close() error
}

// NewBuilder returns a Builder for kind.
func NewBuilder(kind Kind) (Builder, error) {
	switch kind {
	case KindBSA:
		return &bsaBuilder{}, nil
	case KindBA2:
		return &ba2Builder{}, nil
	default:
		return nil, fmt.Errorf("unknown container kind %q", kind)
	}
}

// OpenReader opens an on-disk container and detects which of the two
// formats it is from its header.
func OpenReader(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read container magic: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	switch string(magic[:]) {
	case "BSA\x00", "TES3":
		return &bsaReader{f: f}, nil
	case "BTDX":
		return &ba2Reader{f: f}, nil
	default:
		f.Close()
		return nil, fmt.Errorf("unrecognised container magic %q", magic)
	}
}

func readUint32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64LE(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeUint32LE(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64LE(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
