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
	"fmt"
)

// VFSLocation is one (archive-hash, inner-path) occurrence of a
// content hash, per §4.6's VFS index.
type VFSLocation struct {
	ArchiveHash string
	InnerPath   string
	Size        int64
	MTime       int64
}

// IndexEntry records that a content hash lives at a given location
// inside an archive, keyed by the outer archive's hash (§4.6 "Build").
func (s *Store) IndexEntry(ctx context.Context, hash string, loc VFSLocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vfs_index (hash, archive_hash, inner_path, size, mtime)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(hash, archive_hash, inner_path) DO UPDATE SET
		   size = excluded.size, mtime = excluded.mtime`,
		hash, loc.ArchiveHash, loc.InnerPath, loc.Size, loc.MTime,
	)
	if err != nil {
		return fmt.Errorf("index vfs entry %s: %w", hash, err)
	}
	return nil
}

// Locations returns every known (archive, inner-path) occurrence of
// hash. Callers are responsible for re-verifying that the underlying
// archive file is still present with matching size and hash before
// trusting an entry, per §3's "authoritative only if..." rule.
func (s *Store) Locations(ctx context.Context, hash string) ([]VFSLocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT archive_hash, inner_path, size, mtime FROM vfs_index WHERE hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("query vfs locations %s: %w", hash, err)
	}
	defer rows.Close()

	var out []VFSLocation
	for rows.Next() {
		var l VFSLocation
		if err := rows.Scan(&l.ArchiveHash, &l.InnerPath, &l.Size, &l.MTime); err != nil {
			return nil, fmt.Errorf("scan vfs location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ForgetArchive removes every indexed entry belonging to archiveHash,
// used when an archive is deleted for corruption recovery (§4.7 step 6)
// and must be re-indexed once it is re-downloaded.
func (s *Store) ForgetArchive(ctx context.Context, archiveHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vfs_index WHERE archive_hash = ?`, archiveHash)
	if err != nil {
		return fmt.Errorf("forget archive %s: %w", archiveHash, err)
	}
	return nil
}
