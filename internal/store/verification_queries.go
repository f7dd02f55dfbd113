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

// ErrVerificationCacheMiss is returned by CheckVerification when no
// fresh entry exists.
var ErrVerificationCacheMiss = errors.New("verification cache: miss")

// CheckVerification returns the cached verification result for key if
// it has not yet expired under the store's configured TTL.
func (s *Store) CheckVerification(ctx context.Context, key string) (bool, error) {
	var ok bool
	var expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT ok, expires_at FROM verification_cache WHERE key = ?`, key,
	).Scan(&ok, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrVerificationCacheMiss
	}
	if err != nil {
		return false, fmt.Errorf("check verification cache %s: %w", key, err)
	}

	expiry, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return false, fmt.Errorf("parse verification expiry %s: %w", key, err)
	}
	if time.Now().UTC().After(expiry) {
		return false, ErrVerificationCacheMiss
	}
	return ok, nil
}

// RecordVerification caches a verification result for key, expiring
// after the store's verificationTTL (the Open Question resolution in
// SPEC_FULL.md §9).
func (s *Store) RecordVerification(ctx context.Context, key string, ok bool) error {
	now := time.Now().UTC()
	expires := now.Add(s.verificationTTL)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_cache (key, ok, checked_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   ok = excluded.ok, checked_at = excluded.checked_at, expires_at = excluded.expires_at`,
		key, ok, now.Format(time.RFC3339Nano), expires.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record verification %s: %w", key, err)
	}
	return nil
}

// RecordPatch registers a materialised PatchCache entry: path holds the
// patched bytes produced for patchBlobID, stored on disk by
// internal/patch under a name derived from patchBlobID; this row is
// bookkeeping only.
func (s *Store) RecordPatch(ctx context.Context, patchBlobID, path string, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patch_cache (patch_blob_id, path, size, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(patch_blob_id) DO UPDATE SET
		   path = excluded.path, size = excluded.size, created_at = excluded.created_at`,
		patchBlobID, path, size, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record patch cache %s: %w", patchBlobID, err)
	}
	return nil
}

// LookupPatch returns the on-disk path for a previously materialised
// patch, if any.
func (s *Store) LookupPatch(ctx context.Context, patchBlobID string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM patch_cache WHERE patch_blob_id = ?`, patchBlobID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrHashCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("lookup patch cache %s: %w", patchBlobID, err)
	}
	return path, nil
}
