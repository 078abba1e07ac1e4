// Package store is the local book catalogue consulted before any upstream.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-bookmeta/models"
	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps book records in a SQLite file keyed by ISBN.
type SQLiteStore struct {
	db *sql.DB

	findStmt   *sql.Stmt
	insertStmt *sql.Stmt
}

// OpenSQLite opens (or creates) the catalogue at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the database.
func (s *SQLiteStore) Close() error {
	if s.findStmt != nil {
		s.findStmt.Close()
	}
	if s.insertStmt != nil {
		s.insertStmt.Close()
	}
	return s.db.Close()
}

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            isbn13 TEXT,
            isbn10 TEXT,
            title TEXT NOT NULL,
            authors TEXT NOT NULL DEFAULT '[]',
            description TEXT NOT NULL DEFAULT '',
            publisher TEXT NOT NULL DEFAULT '',
            published_date TEXT NOT NULL DEFAULT '',
            page_count INTEGER NOT NULL DEFAULT 0,
            categories TEXT NOT NULL DEFAULT '[]',
            language TEXT NOT NULL DEFAULT '',
            cover_url TEXT NOT NULL DEFAULT '',
            thumbnail_url TEXT NOT NULL DEFAULT '',
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_isbn13 ON books(isbn13);`,
		`CREATE INDEX IF NOT EXISTS idx_books_isbn10 ON books(isbn10);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version', ?);`, schemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	s.findStmt, err = s.db.Prepare(`SELECT COALESCE(isbn13,''), COALESCE(isbn10,''), title, authors, description,
        publisher, published_date, page_count, categories, language, cover_url, thumbnail_url
        FROM books WHERE (isbn13 = ? AND ? <> '') OR (isbn10 = ? AND ? <> '') LIMIT 1`)
	if err != nil {
		return fmt.Errorf("prepare find: %w", err)
	}
	s.insertStmt, err = s.db.Prepare(`INSERT INTO books(isbn13,isbn10,title,authors,description,publisher,
        published_date,page_count,categories,language,cover_url,thumbnail_url)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	return nil
}

// FindByISBN returns the record matching either ISBN form, or nil, nil when
// the catalogue has no such book.
func (s *SQLiteStore) FindByISBN(ctx context.Context, isbn10, isbn13 string) (*models.BookRecord, error) {
	if isbn10 == "" && isbn13 == "" {
		return nil, nil
	}

	var (
		rec                 models.BookRecord
		authors, categories string
	)
	err := s.findStmt.QueryRowContext(ctx, isbn13, isbn13, isbn10, isbn10).Scan(
		&rec.ISBN13, &rec.ISBN10, &rec.Title, &authors, &rec.Description,
		&rec.Publisher, &rec.PublishedDate, &rec.PageCount, &categories,
		&rec.Language, &rec.CoverURL, &rec.ThumbnailURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find book: %w", err)
	}
	if err := json.Unmarshal([]byte(authors), &rec.Authors); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	if len(rec.Authors) == 0 {
		rec.Authors = []string{models.UnknownAuthor}
	}
	if err := json.Unmarshal([]byte(categories), &rec.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if len(rec.Categories) == 0 {
		rec.Categories = nil
	}
	return &rec, nil
}

// Upsert stores rec, replacing any row that shares either ISBN.
func (s *SQLiteStore) Upsert(ctx context.Context, rec models.BookRecord) error {
	if strings.TrimSpace(rec.Title) == "" {
		return errors.New("book record has no title")
	}
	if rec.ISBN13 == "" && rec.ISBN10 == "" {
		return errors.New("book record has no isbn")
	}

	authors, err := json.Marshal(nonNil(rec.Authors))
	if err != nil {
		return fmt.Errorf("encode authors: %w", err)
	}
	categories, err := json.Marshal(nonNil(rec.Categories))
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE (isbn13 = ? AND ? <> '') OR (isbn10 = ? AND ? <> '')`,
		rec.ISBN13, rec.ISBN13, rec.ISBN10, rec.ISBN10); err != nil {
		return fmt.Errorf("replace book: %w", err)
	}
	_, err = tx.StmtContext(ctx, s.insertStmt).ExecContext(ctx,
		nullable(rec.ISBN13), nullable(rec.ISBN10), rec.Title, string(authors), rec.Description,
		rec.Publisher, rec.PublishedDate, rec.PageCount, string(categories), rec.Language,
		rec.CoverURL, rec.ThumbnailURL,
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return tx.Commit()
}

// Count returns the number of stored books.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
