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
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/forgemods/mlinstall/internal/fsx"
)

const (
	btarMajorVersion = 1
)

// btarEntry records one entry's (start, length) window into the
// archive's underlying stream so GetStream can reopen independent
// reads over the same backing bytes without copying (§4.4.2: BTAR
// entries are read zero-copy relative to the source stream).
type btarEntry struct {
	name   string
	start  int64
	length int64
}

// extractBTAR reads the engine's own packed format (§4.4.2): big-endian
// "BTAR" magic, u16 major version (must be 1), u16 minor version (one
// of 2, 3, 4), then a sequence of (u16 name-length, name, u64
// data-length, payload) entries until EOF. Must be a free function, not
// a method, so it can carry its own type parameter.
func extractBTAR[T any](
	rs io.ReadSeeker,
	opts Options,
	mapFn func(fsx.RelativePath, *ExtractedFile) (T, error),
) (map[fsx.RelativePath]T, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var magic [4]byte
	if _, err := io.ReadFull(rs, magic[:]); err != nil {
		return nil, fmt.Errorf("read btar magic: %w", err)
	}
	if string(magic[:]) != "BTAR" {
		return nil, fmt.Errorf("not a btar archive")
	}

	major, err := readBTARUint16(rs)
	if err != nil {
		return nil, fmt.Errorf("read btar major version: %w", err)
	}
	if major != btarMajorVersion {
		return nil, fmt.Errorf("unsupported btar major version %d", major)
	}

	minor, err := readBTARUint16(rs)
	if err != nil {
		return nil, fmt.Errorf("read btar minor version: %w", err)
	}
	if minor < 2 || minor > 4 {
		return nil, fmt.Errorf("unsupported btar minor version %d", minor)
	}

	// Determine the remaining source length so a malformed length field
	// can be rejected rather than trusted into an enormous allocation
	// or an out-of-bounds seek.
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}
	remaining := end - pos

	var entries []btarEntry
	for {
		nameLen, err := readBTARUint16(rs)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read btar entry name length: %w", err)
		}
		remaining -= 2
		if int64(nameLen) > remaining {
			return nil, fmt.Errorf("btar entry name length %d exceeds remaining archive length", nameLen)
		}

		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(rs, nameBytes); err != nil {
			return nil, fmt.Errorf("read btar entry name: %w", err)
		}
		remaining -= int64(nameLen)

		dataLen, err := readBTARUint64(rs)
		if err != nil {
			return nil, fmt.Errorf("read btar entry data length: %w", err)
		}
		remaining -= 8
		if dataLen > uint64(remaining) {
			return nil, fmt.Errorf("btar entry data length %d exceeds remaining archive length", dataLen)
		}

		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		entries = append(entries, btarEntry{
			name:   string(nameBytes),
			start:  start,
			length: int64(dataLen),
		})

		next, err := rs.Seek(int64(dataLen), io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		remaining = end - next
	}

	result := make(map[fsx.RelativePath]T)
	for _, be := range entries {
		rel := fsx.RelativePath(be.name).Clean()
		if opts.ShouldExtract != nil && !opts.ShouldExtract(rel) {
			continue
		}

		entry := be
		ef := &ExtractedFile{
			name:    rel,
			modTime: time.Time{},
			streamFn: func() (io.ReadCloser, error) {
				return newBTARSectionReader(rs, entry.start, entry.length)
			},
		}

		val, err := mapFn(rel, ef)
		if err != nil {
			return nil, fmt.Errorf("map btar entry %s: %w", rel, err)
		}
		result[rel] = val
	}

	if !resultCountSatisfies(opts, len(result)) {
		return nil, fmt.Errorf("btar extraction sanity check failed: expected %d files, got %d",
			len(opts.OnlyFiles), len(result))
	}
	return result, nil
}

func readBTARUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readBTARUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// btarSectionReader is a read-only view over [start, start+length) of a
// shared io.ReadSeeker. GetStream may be called more than once per
// entry (e.g. retried hashing then installation), so every call seeks
// back to the entry's start rather than assuming sequential use.
type btarSectionReader struct {
	rs     io.ReadSeeker
	pos    int64
	start  int64
	length int64
}

func newBTARSectionReader(rs io.ReadSeeker, start, length int64) (io.ReadCloser, error) {
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	return &btarSectionReader{rs: rs, pos: 0, start: start, length: length}, nil
}

func (s *btarSectionReader) Read(p []byte) (int, error) {
	if s.pos >= s.length {
		return 0, io.EOF
	}
	max := s.length - s.pos
	if int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.rs.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *btarSectionReader) Close() error { return nil }
