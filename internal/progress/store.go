// Package progress records which pages of a book have been narrated and
// which pages the reader bookmarked.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("progress store closed")

// Narration is a page that was narrated to completion.
type Narration struct {
	BookID      string
	Page        int
	Count       int
	CompletedAt time.Time
}

// Bookmark is a page the reader marked.
type Bookmark struct {
	BookID    string
	Page      int
	CreatedAt time.Time
}

// Store is a SQLite-backed progress store.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	clock func() time.Time
}

// Open opens or creates the store at path. The special path ":memory:"
// gives a private in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create progress dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" consistent and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init progress schema: %w", err)
	}
	log.Debug("Progress store opened", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS narrations (
    book_id TEXT NOT NULL,
    page INTEGER NOT NULL,
    plays INTEGER NOT NULL DEFAULT 1,
    completed_at INTEGER NOT NULL,
    PRIMARY KEY (book_id, page)
);
CREATE TABLE IF NOT EXISTS bookmarks (
    book_id TEXT NOT NULL,
    page INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (book_id, page)
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// RecordNarration marks page of book as narrated now.
func (s *Store) RecordNarration(ctx context.Context, bookID string, page int) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO narrations(book_id, page, plays, completed_at)
		 VALUES(?, ?, 1, ?)
		 ON CONFLICT(book_id, page) DO UPDATE SET plays = plays + 1, completed_at = excluded.completed_at`,
		bookID, page, s.clock().UnixMilli())
	if err != nil {
		return fmt.Errorf("record narration: %w", err)
	}
	return nil
}

// Narrated lists the narrated pages of a book in page order.
func (s *Store) Narrated(ctx context.Context, bookID string) ([]Narration, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT book_id, page, plays, completed_at FROM narrations
		 WHERE book_id = ? ORDER BY page ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Narration
	for rows.Next() {
		var n Narration
		var ms int64
		if err := rows.Scan(&n.BookID, &n.Page, &n.Count, &ms); err != nil {
			return nil, err
		}
		n.CompletedAt = time.UnixMilli(ms)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ToggleBookmark adds a bookmark on page, or removes it if one exists. It
// reports whether the page is bookmarked afterwards.
func (s *Store) ToggleBookmark(ctx context.Context, bookID string, page int) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE book_id = ? AND page = ?`, bookID, page)
	if err != nil {
		return false, fmt.Errorf("toggle bookmark: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bookmarks(book_id, page, created_at) VALUES(?, ?, ?)`,
			bookID, page, s.clock().UnixMilli()); err != nil {
			return false, fmt.Errorf("toggle bookmark: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed == 0, nil
}

// Bookmarks lists the bookmarks of a book in page order.
func (s *Store) Bookmarks(ctx context.Context, bookID string) ([]Bookmark, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT book_id, page, created_at FROM bookmarks
		 WHERE book_id = ? ORDER BY page ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var ms int64
		if err := rows.Scan(&b.BookID, &b.Page, &ms); err != nil {
			return nil, err
		}
		b.CreatedAt = time.UnixMilli(ms)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Reset forgets all progress and bookmarks of a book.
func (s *Store) Reset(ctx context.Context, bookID string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM narrations WHERE book_id = ?`,
		`DELETE FROM bookmarks WHERE book_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, bookID); err != nil {
			return fmt.Errorf("reset progress: %w", err)
		}
	}
	return tx.Commit()
}
