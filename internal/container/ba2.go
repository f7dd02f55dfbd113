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

// ba2Builder assembles a BA2-variant container: header "BTDX", a format
// tag ("GNRL" — general; this engine never emits the texture-chunked
// "DX10" tag, since the installer always writes whole files) and the
// same per-entry table shape as bsaBuilder.
type ba2Builder struct {
	entries []bsaEntry
}

func (b *ba2Builder) AddFile(state FileState, r io.Reader) error {
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

func (b *ba2Builder) WriteTo(w io.WriteSeeker) error {
	if _, err := w.Write([]byte("BTDX")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("GNRL")); err != nil {
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

type ba2Reader struct {
	f *os.File
}

func (r *ba2Reader) Close() error { return r.f.Close() }

func (r *ba2Reader) Files() ([]Entry, error) {
	// Skip the 4-byte "BTDX" magic already consumed by the caller's
	// detection sniff, plus the 4-byte format tag.
	if _, err := r.f.Seek(8, io.SeekStart); err != nil {
		return nil, err
	}
	count, err := readUint32LE(r.f)
	if err != nil {
		return nil, fmt.Errorf("read ba2 entry count: %w", err)
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := readUint32LE(r.f)
		if err != nil {
			return nil, fmt.Errorf("read ba2 entry %d name length: %w", i, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r.f, nameBytes); err != nil {
			return nil, fmt.Errorf("read ba2 entry %d name: %w", i, err)
		}
		var lossyByte [1]byte
		if _, err := io.ReadFull(r.f, lossyByte[:]); err != nil {
			return nil, fmt.Errorf("read ba2 entry %d lossy flag: %w", i, err)
		}
		uncompressedSize, err := readUint64LE(r.f)
		if err != nil {
			return nil, fmt.Errorf("read ba2 entry %d uncompressed size: %w", i, err)
		}
		compressedSize, err := readUint64LE(r.f)
		if err != nil {
			return nil, fmt.Errorf("read ba2 entry %d compressed size: %w", i, err)
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
