// Package pincache is a small SQLite-backed memoization cache for resolved
// repository pins, so the lockfile manager doesn't need to re-download and
// re-hash a tarball whose (owner, repo, rev) it has already seen.
//
// The schema-init and transactional-insert idioms are grounded on
// github.com/msg555/hcas's hcas package (hcas.go's CREATE TABLE IF NOT
// EXISTS / PRAGMA busy_timeout setup, object_writer.go's BEGIN IMMEDIATE
// transaction), trimmed down from a reference-counted multi-object content
// store to a single append/replace table: there is exactly one row per
// (owner, repo, rev) and nothing here is ever garbage collected.
package pincache

import (
	"database/sql"
	"fmt"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const busyTimeoutMs = 5000

const schemaInit = `
CREATE TABLE IF NOT EXISTS pins (
	owner       TEXT NOT NULL,
	repo        TEXT NOT NULL,
	rev         TEXT NOT NULL,
	branch      TEXT NOT NULL,
	url         TEXT NOT NULL,
	sha256      TEXT NOT NULL,
	fetched_at  INTEGER NOT NULL,
	extra_json  TEXT NOT NULL,
	computed_by TEXT NOT NULL,
	PRIMARY KEY (owner, repo, rev)
);
`

// Cache is a handle to the pin history database.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and ensures the
// pins table exists.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "opening pin cache", 0)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, errors.WrapPrefix(err, "setting busy timeout", 0)
	}

	if _, err := db.Exec(schemaInit); err != nil {
		db.Close()
		return nil, errors.WrapPrefix(err, "initializing pin cache schema", 0)
	}

	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Row is one recorded pin resolution.
type Row struct {
	Owner      string
	Repo       string
	Rev        string
	Branch     string
	URL        string
	Sha256     string
	FetchedAt  int64
	ExtraJSON  string
	ComputedBy string
}

// Lookup returns a previously recorded pin for (owner, repo, rev), or nil if
// none has been recorded.
func (c *Cache) Lookup(owner, repo, rev string) (*Row, error) {
	row := c.db.QueryRow(`
SELECT owner, repo, rev, branch, url, sha256, fetched_at, extra_json, computed_by
FROM pins WHERE owner = ? AND repo = ? AND rev = ?;
`, owner, repo, rev)

	var r Row
	err := row.Scan(&r.Owner, &r.Repo, &r.Rev, &r.Branch, &r.URL, &r.Sha256, &r.FetchedAt, &r.ExtraJSON, &r.ComputedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "looking up pin", 0)
	}
	return &r, nil
}

// Record inserts or replaces the row for (owner, repo, rev) inside a
// transaction, tagging it with a fresh computation id so repeated
// recomputations of the same pin can be told apart in logs.
func (c *Cache) Record(r Row) error {
	if r.ComputedBy == "" {
		r.ComputedBy = uuid.NewString()
	}

	tx, err := c.db.Begin()
	if err != nil {
		return errors.WrapPrefix(err, "beginning pin cache transaction", 0)
	}

	_, err = tx.Exec(`
INSERT INTO pins (owner, repo, rev, branch, url, sha256, fetched_at, extra_json, computed_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner, repo, rev) DO UPDATE SET
	branch = excluded.branch,
	url = excluded.url,
	sha256 = excluded.sha256,
	fetched_at = excluded.fetched_at,
	extra_json = excluded.extra_json,
	computed_by = excluded.computed_by;
`, r.Owner, r.Repo, r.Rev, r.Branch, r.URL, r.Sha256, r.FetchedAt, r.ExtraJSON, r.ComputedBy)
	if err != nil {
		tx.Rollback()
		return errors.WrapPrefix(err, "recording pin", 0)
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapPrefix(err, "committing pin cache transaction", 0)
	}
	return nil
}
