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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HashCacheEntry mirrors one row of GlobalHashCache2.
type HashCacheEntry struct {
	Path  string
	Size  int64
	MTime int64
	Hash  string
}

// ErrHashCacheMiss is returned by LookupHash when no entry matches.
var ErrHashCacheMiss = errors.New("hash cache: miss")

// LookupHash returns the cached hash for path if one exists with the
// exact given size and mtime, per §4.3's "cache hit requires exact size
// and mtime match" invariant. Any mismatch is treated as a miss.
func (s *Store) LookupHash(ctx context.Context, path string, size, mtime int64) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM hash_cache WHERE path = ? AND size = ? AND mtime = ?`,
		path, size, mtime,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrHashCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("lookup hash cache %s: %w", path, err)
	}
	return hash, nil
}

// WriteHash force-inserts (or overwrites) the cached triple for path.
// Hash-cache updates are last-writer-wins on identical (path, size,
// mtime), per §5.
func (s *Store) WriteHash(ctx context.Context, path string, size, mtime int64, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hash_cache (path, size, mtime, hash, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   size = excluded.size,
		   mtime = excluded.mtime,
		   hash = excluded.hash,
		   updated_at = excluded.updated_at`,
		path, size, mtime, hash, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write hash cache %s: %w", path, err)
	}
	return nil
}

// PurgeZeroHashes deletes any cached entry whose hash encodes the
// all-zero digest, per §4.3: "cached entries whose base64 form encodes
// a zero digest are to be purged lazily on read."
func (s *Store) PurgeZeroHashes(ctx context.Context, zeroHashBase64 string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hash_cache WHERE hash = ?`, zeroHashBase64)
	if err != nil {
		return fmt.Errorf("purge zero hashes: %w", err)
	}
	return nil
}
