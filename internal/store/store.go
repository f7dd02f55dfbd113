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

// Package store owns the single sqlite database backing the four
// persisted stores named in §6.4: GlobalHashCache2, GlobalVFSCache5,
// VerificationCacheV3, and the PatchCache's bookkeeping row. It is
// grounded on the teacher's internal/db.go (pragma string, goose
// provider wiring) and internal/blobstore/db.go (find-or-insert query
// idiom), hand-written because the teacher's generated dbq query
// package and migrations/ directory were not present in the retrieved
// snapshot — see DESIGN.md.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

const dbPragmas = "?_foreign_keys=ON&_journal_mode=WAL&_synchronous=NORMAL"

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultVerificationTTL resolves the Open Question in spec.md §9: the
// reference uses a fixed one-day TTL; here it is a constructor
// parameter (see Open) rather than a hard-coded constant, following
// internal/db.go's constructor-injected-configuration pattern.
const DefaultVerificationTTL = 24 * time.Hour

// Store wraps the sqlite handle backing all four §6.4 stores.
type Store struct {
	db              *sql.DB
	verificationTTL time.Duration
}

// Open opens (creating if necessary) the sqlite database at path,
// applies the durability pragmas, runs pending goose migrations, and
// returns a ready Store. verificationTTL of 0 selects
// DefaultVerificationTTL.
func Open(ctx context.Context, path string, verificationTTL time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s%s", path, dbPragmas))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	if verificationTTL <= 0 {
		verificationTTL = DefaultVerificationTTL
	}

	s := &Store{db: db, verificationTTL: verificationTTL}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("prepare migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("setup goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// Close closes the underlying sqlite handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for callers (tests, doctor checks)
// that need direct access.
func (s *Store) DB() *sql.DB { return s.db }
