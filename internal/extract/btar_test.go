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
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBTAR(t *testing.T, minor uint16, entries map[string]string) *bytes.Reader {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("BTAR")
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, minor)

	for name, payload := range entries {
		binary.Write(&buf, binary.BigEndian, uint16(len(name)))
		buf.WriteString(name)
		binary.Write(&buf, binary.BigEndian, uint64(len(payload)))
		buf.WriteString(payload)
	}

	return bytes.NewReader(buf.Bytes())
}

func TestExtractBTARv1_3SingleEntry(t *testing.T) {
	t.Parallel()

	rs := buildBTAR(t, 3, map[string]string{"a/b.txt": "hello"})

	result, err := extractBTAR(rs, Options{}, func(rel fsx.RelativePath, ef *ExtractedFile) (string, error) {
		rc, err := ef.GetStream()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data), nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[fsx.RelativePath]string{"a/b.txt": "hello"}, result)
}

func TestExtractBTARRejectsUnsupportedMinorVersion(t *testing.T) {
	t.Parallel()

	rs := buildBTAR(t, 9, map[string]string{"a.txt": "x"})
	_, err := extractBTAR(rs, Options{}, func(rel fsx.RelativePath, ef *ExtractedFile) (string, error) {
		return "", nil
	})
	assert.Error(t, err)
}

func TestExtractBTARHonoursShouldExtract(t *testing.T) {
	t.Parallel()

	rs := buildBTAR(t, 2, map[string]string{
		"keep.txt": "yes",
		"skip.txt": "no",
	})

	opts := Options{
		ShouldExtract: func(rel fsx.RelativePath) bool { return string(rel) == "keep.txt" },
	}
	result, err := extractBTAR(rs, opts, func(rel fsx.RelativePath, ef *ExtractedFile) (string, error) {
		rc, err := ef.GetStream()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return string(data), err
	})
	require.NoError(t, err)
	assert.Equal(t, map[fsx.RelativePath]string{"keep.txt": "yes"}, result)
}
