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

package container

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

// bsaBuilder assembles a BSA-variant container: header "BSA\x00", then
// for each added file a zlib-compressed-entry table entry (name,
// lossy flag, uncompressed size, compressed size, compressed payload).
// Entries are written in the order AddFile was called, matching the
// directive's declared file-states order (§4.8).
type bsaBuilder struct {
	entries []bsaEntry
}

type bsaEntry struct {
	path             string
	lossy            bool
	uncompressedSize int64
	compressed       []byte
}

func (b *bsaBuilder) AddFile(state FileState, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input for %s: %w", state.Path, err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("compress %s: %w", state.Path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalise compression for %s: %w", state.Path, err)
	}

	b.entries = append(b.entries, bsaEntry{
		path:             state.Path,
		lossy:            state.Lossy,
		uncompressedSize: int64(len(raw)),
		compressed:       buf.Bytes(),
	})
	return nil
}

func (b *bsaBuilder) WriteTo(w io.WriteSeeker) error {
	if _, err := w.Write([]byte("BSA\x00")); err != nil {
		return err
	}
	if err := writeUint32LE(w, uint32(len(b.entries))); err != nil {
		return err
	}

	for _, e := range b.entries {
		nameBytes := []byte(e.path)
		if err := writeUint32LE(w, uint32(len(nameBytes))); err != nil {
			return err
		}
		if _, err := w.Write(nameBytes); err != nil {
			return err
		}
		lossyByte := byte(0)
		if e.lossy {
			lossyByte = 1
		}
		if _, err := w.Write([]byte{lossyByte}); err != nil {
			return err
		}
		if err := writeUint64LE(w, uint64(e.uncompressedSize)); err != nil {
			return err
		}
		if err := writeUint64LE(w, uint64(len(e.compressed))); err != nil {
			return err
		}
		if _, err := w.Write(e.compressed); err != nil {
			return err
		}
	}
	return nil
}

type bsaReader struct {
	f *os.File
}

func (r *bsaReader) Close() error { return r.f.Close() }

func (r *bsaReader) Files() ([]Entry, error) {
	if _, err := r.f.Seek(4, io.SeekStart); err != nil {
		return nil, err
	}
	count, err := readUint32LE(r.f)
	if err != nil {
		return nil, fmt.Errorf("read bsa entry count: %w", err)
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := readUint32LE(r.f)
		if err != nil {
			return nil, fmt.Errorf("read bsa entry %d name length: %w", i, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r.f, nameBytes); err != nil {
			return nil, fmt.Errorf("read bsa entry %d name: %w", i, err)
		}
		var lossyByte [1]byte
		if _, err := io.ReadFull(r.f, lossyByte[:]); err != nil {
			return nil, fmt.Errorf("read bsa entry %d lossy flag: %w", i, err)
		}
		uncompressedSize, err := readUint64LE(r.f)
		if err != nil {
			return nil, fmt.Errorf("read bsa entry %d uncompressed size: %w", i, err)
		}
		compressedSize, err := readUint64LE(r.f)
		if err != nil {
			return nil, fmt.Errorf("read bsa entry %d compressed size: %w", i, err)
		}

		offset, err := r.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		path := string(nameBytes)
		sz := int64(compressedSize)
		entries = append(entries, Entry{
			Path:             path,
			Lossy:            lossyByte[0] == 1,
			UncompressedSize: int64(uncompressedSize),
			StreamFactory: func() (io.ReadCloser, error) {
				return newCompressedEntryReader(r.f.Name(), offset, sz)
			},
		})

		if _, err := r.f.Seek(int64(compressedSize), io.SeekCurrent); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// newCompressedEntryReader opens an independent handle onto the
// container so that multiple entries can be streamed concurrently
// without fighting over the reader's shared seek position.
func newCompressedEntryReader(path string, offset, compressedSize int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	zr, err := zlib.NewReader(io.LimitReader(f, compressedSize))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zlibEntryReadCloser{zr: zr, f: f}, nil
}

type zlibEntryReadCloser struct {
	zr io.ReadCloser
	f  *os.File
}

func (z *zlibEntryReadCloser) Read(p []byte) (int, error) { return z.zr.Read(p) }
func (z *zlibEntryReadCloser) Close() error {
	err1 := z.zr.Close()
	err2 := z.f.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
