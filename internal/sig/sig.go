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

// Package sig recognises a file's container format by its leading
// bytes, modelled after the vendored magic-byte matchers used
// throughout the archive-tooling ecosystem (rclone's vendored
// mime/magic package matches archive formats the same way: a table of
// byte prefixes checked in order against a short read from the start
// of the stream).
package sig

import (
	"encoding/binary"
	"io"
)

// FileType is the tagged variant returned by Detect.
type FileType string

const (
	Unknown FileType = ""
	TES3    FileType = "TES3"
	BSA     FileType = "BSA"
	BA2     FileType = "BA2"
	BTAR    FileType = "BTAR"
	ZIP     FileType = "ZIP"
	EXE     FileType = "EXE"
	RAROld  FileType = "RAR_OLD"
	RARNew  FileType = "RAR_NEW"
	SevenZ  FileType = "7Z"
)

var magics = []struct {
	typ    FileType
	prefix []byte
}{
	{ZIP, []byte{'P', 'K', 0x03, 0x04}},
	{SevenZ, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}},
	{RAROld, []byte{'R', 'a', 'r', '!', 0x1A, 0x07, 0x00}},
	{RARNew, []byte{'R', 'a', 'r', '!', 0x1A, 0x07, 0x01, 0x00}},
	{EXE, []byte{'M', 'Z'}},
	{TES3, []byte("TES3")},
	{BSA, []byte("BSA\x00")},
	{BA2, []byte("BTDX")},
}

const btarMagic = "BTAR"

// maxPrefix is the longest prefix we ever need to read to disambiguate
// every entry in the table above.
const maxPrefix = 8

// Detect reads the leading bytes of r, restores the stream position, and
// returns the recognised FileType or Unknown. False positives are only
// possible between BSA and TES3 (both use a 4-byte ASCII-ish header);
// the caller resolves that ambiguity using the filename extension, per
// §4.1's contract.
func Detect(r io.ReadSeeker) (FileType, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Unknown, err
	}
	defer r.Seek(start, io.SeekStart)

	buf := make([]byte, maxPrefix)
	n, err := io.ReadFull(r, buf)
	if err != nil && n == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Unknown, nil
		}
		return Unknown, err
	}
	buf = buf[:n]

	if len(buf) >= 4 && binary.BigEndian.Uint32(buf[:4]) == btarMagicU32() {
		return BTAR, nil
	}

	for _, m := range magics {
		if hasPrefix(buf, m.prefix) {
			return m.typ, nil
		}
	}
	return Unknown, nil
}

func btarMagicU32() uint32 {
	return binary.BigEndian.Uint32([]byte(btarMagic))
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ResolveAmbiguity applies the caller's filename-extension rule to
// disambiguate a BSA/TES3 false positive, per §4.1: "for the game-native
// containers, the first four bytes identify the variant", with TES3
// additionally routed to the BSA extractor when the filename carries a
// ".bsa" extension (§4.4.1 table).
func ResolveAmbiguity(detected FileType, hasBSAExtension bool) FileType {
	if detected == TES3 && hasBSAExtension {
		return BSA
	}
	return detected
}
