// Package catalog indexes resolved metadata documents in SQLite so that a
// directory or bundle of documents can be searched by dialect, title,
// keyword or digest.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kbraak/gbif-metadata-profile-sub000/core/cas"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/errors"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/metadata"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/parser"
	"github.com/kbraak/gbif-metadata-profile-sub000/core/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is one indexed document.
type Record struct {
	ID        int64
	Source    string // file path, or bundle path and entry joined by "!"
	Dialect   metadata.Type
	Digest    cas.Digest
	Title     string
	PackageID string
	License   metadata.License
	Language  string
	Published *time.Time
	Keywords  []string
	Warnings  int
	IndexedAt time.Time
}

// packageIdentified is implemented by documents with a versioned packageId.
type packageIdentified interface {
	PackageID() string
}

// RecordFor builds the record of a resolved document.
func RecordFor(source string, res *parser.Resolution) Record {
	b := res.Document.BasicMetadata()
	r := Record{
		Source:    source,
		Dialect:   res.Type(),
		Digest:    res.Digest,
		Title:     b.Title,
		License:   b.License,
		Language:  b.Language,
		Published: b.Published,
		Warnings:  len(res.Warnings),
	}
	if p, ok := res.Document.(packageIdentified); ok {
		r.PackageID = p.PackageID()
	}
	for _, k := range strings.Split(b.Subject, ";") {
		if k = strings.TrimSpace(k); k != "" {
			r.Keywords = append(r.Keywords, k)
		}
	}
	return r
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Dialect metadata.Type
	Title   string // case-insensitive substring
	Keyword string // exact keyword
	License metadata.License
}

// Catalog is a SQLite-backed document index.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the catalog at dsn, which may be sqlite.Memory.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return nil, err
	}
	c := &Catalog{db: db, now: time.Now}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := c.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := strconv.Atoi(strings.SplitN(strings.TrimPrefix(name, "migrations/"), "_", 2)[0])
		if err != nil {
			return fmt.Errorf("migration %s: bad version prefix", name)
		}
		if version <= current {
			continue
		}
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return err
		}
		if err := c.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				version, c.now().UTC().Format(time.RFC3339))
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Put inserts r, or replaces the record with the same source. It returns the
// record ID.
func (c *Catalog) Put(ctx context.Context, r Record) (int64, error) {
	if r.Source == "" {
		return 0, errors.NewValidation("source", "must not be empty")
	}
	if r.IndexedAt.IsZero() {
		r.IndexedAt = c.now()
	}

	var id int64
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO documents (source, dialect, sha256, blake3, title, package_id, license, language, published, warnings, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source) DO UPDATE SET
				dialect = excluded.dialect,
				sha256 = excluded.sha256,
				blake3 = excluded.blake3,
				title = excluded.title,
				package_id = excluded.package_id,
				license = excluded.license,
				language = excluded.language,
				published = excluded.published,
				warnings = excluded.warnings,
				indexed_at = excluded.indexed_at
			RETURNING id
		`, r.Source, r.Dialect.String(), r.Digest.SHA256, r.Digest.BLAKE3, r.Title, r.PackageID,
			r.License.String(), r.Language, formatNullableDate(r.Published), r.Warnings,
			r.IndexedAt.UTC().Format(time.RFC3339)).Scan(&id)
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM keywords WHERE document_id = ?", id); err != nil {
			return fmt.Errorf("clearing keywords: %w", err)
		}
		for _, k := range r.Keywords {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO keywords (document_id, keyword) VALUES (?, ?)", id, k); err != nil {
				return fmt.Errorf("saving keyword: %w", err)
			}
		}
		return nil
	})
	return id, err
}

// Get returns the record indexed for source.
func (c *Catalog) Get(ctx context.Context, source string) (*Record, error) {
	records, err := c.query(ctx, "WHERE d.source = ?", source)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewNotFound("document", source)
	}
	return &records[0], nil
}

// FindByDigest returns every record whose content has the given BLAKE3
// digest.
func (c *Catalog) FindByDigest(ctx context.Context, blake3 string) ([]Record, error) {
	return c.query(ctx, "WHERE d.blake3 = ?", blake3)
}

// List returns the records matching f, ordered by source.
func (c *Catalog) List(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.Dialect != 0 {
		where = append(where, "d.dialect = ?")
		args = append(args, f.Dialect.String())
	}
	if f.Title != "" {
		where = append(where, "lower(d.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Title)+"%")
	}
	if f.Keyword != "" {
		where = append(where, "EXISTS (SELECT 1 FROM keywords k WHERE k.document_id = d.id AND k.keyword = ?)")
		args = append(args, f.Keyword)
	}
	if f.License != metadata.LicenseUnspecified {
		where = append(where, "d.license = ?")
		args = append(args, f.License.String())
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	return c.query(ctx, clause, args...)
}

// Delete removes the record for source together with its keywords.
func (c *Catalog) Delete(ctx context.Context, source string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM documents WHERE source = ?", source)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("document", source)
	}
	return nil
}

// Counts returns the number of indexed documents per dialect.
func (c *Catalog) Counts(ctx context.Context) (map[metadata.Type]int, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT dialect, count(*) FROM documents GROUP BY dialect")
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	counts := map[metadata.Type]int{}
	for rows.Next() {
		var dialect string
		var n int
		if err := rows.Scan(&dialect, &n); err != nil {
			return nil, err
		}
		t, err := metadata.ParseType(dialect)
		if err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (c *Catalog) query(ctx context.Context, clause string, args ...any) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT d.id, d.source, d.dialect, d.sha256, d.blake3, d.title, d.package_id, d.license,
			d.language, d.published, d.warnings, d.indexed_at
		FROM documents d `+clause+` ORDER BY d.source`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	rows.Close()

	for i := range records {
		if records[i].Keywords, err = c.keywords(ctx, records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (c *Catalog) keywords(ctx context.Context, id int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT keyword FROM keywords WHERE document_id = ? ORDER BY keyword", id)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r         Record
		dialect   string
		license   string
		published sql.NullString
		indexedAt string
	)
	if err := rows.Scan(&r.ID, &r.Source, &dialect, &r.Digest.SHA256, &r.Digest.BLAKE3, &r.Title,
		&r.PackageID, &license, &r.Language, &published, &r.Warnings, &indexedAt); err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	var err error
	if r.Dialect, err = metadata.ParseType(dialect); err != nil {
		return nil, err
	}
	r.License = licenseFromCode(license)
	if published.Valid {
		t, err := metadata.ParseDate(published.String)
		if err != nil {
			return nil, err
		}
		r.Published = &t
	}
	if r.IndexedAt, err = time.Parse(time.RFC3339, indexedAt); err != nil {
		return nil, fmt.Errorf("parsing indexed_at: %w", err)
	}
	return &r, nil
}

func licenseFromCode(code string) metadata.License {
	switch code {
	case "", metadata.LicenseUnspecified.String():
		return metadata.LicenseUnspecified
	}
	if l, ok := metadata.ParseLicense(code); ok {
		return l
	}
	return metadata.LicenseUnsupported
}

func formatNullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return metadata.FormatDate(*t)
}
