package spacetraveling

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eringen/spacetraveling/content"
)

// storeTimeLayout is fixed width so stored timestamps sort as text.
const storeTimeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotGenerated is returned when no page has been generated for a uid yet.
var ErrNotGenerated = errors.New("spacetraveling: page not generated")

// GeneratedPage is a post page produced from the CMS. A NotFound result
// records that the CMS had no post for the uid; such results are never
// stored.
type GeneratedPage struct {
	UID         string
	Post        content.PostDetail
	NotFound    bool
	GeneratedAt time.Time
}

// Store wraps a SQLite database that keeps generated post pages.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets page reads continue while a generation writes; writers wait
	// on busy_timeout instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS pages (
    uid TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    generated_at TEXT NOT NULL
);
`)
	return err
}

// GetPage returns the stored page for uid, or ErrNotGenerated.
func (s *Store) GetPage(uid string) (GeneratedPage, error) {
	var body, generatedAt string
	err := s.db.QueryRow(`SELECT body, generated_at FROM pages WHERE uid = ?`, uid).
		Scan(&body, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GeneratedPage{}, ErrNotGenerated
	}
	if err != nil {
		return GeneratedPage{}, err
	}
	return decodePage(uid, body, generatedAt)
}

// ListPages returns every stored page, newest first.
func (s *Store) ListPages() ([]GeneratedPage, error) {
	rows, err := s.db.Query(`SELECT uid, body, generated_at FROM pages ORDER BY generated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []GeneratedPage
	for rows.Next() {
		var uid, body, generatedAt string
		if err := rows.Scan(&uid, &body, &generatedAt); err != nil {
			return nil, err
		}
		p, err := decodePage(uid, body, generatedAt)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// SavePage upserts a generated page.
func (s *Store) SavePage(p GeneratedPage) error {
	if p.NotFound {
		return fmt.Errorf("spacetraveling: save page %s: not-found results are not stored", p.UID)
	}
	body, err := json.Marshal(p.Post)
	if err != nil {
		return fmt.Errorf("spacetraveling: encode page %s: %w", p.UID, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO pages (uid, body, generated_at) VALUES (?, ?, ?)`,
		p.UID, string(body), p.GeneratedAt.UTC().Format(storeTimeLayout))
	return err
}

// CountPages returns the number of stored pages.
func (s *Store) CountPages() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pages`).Scan(&n)
	return n, err
}

// DeletePage removes a stored page by uid.
func (s *Store) DeletePage(uid string) error {
	_, err := s.db.Exec(`DELETE FROM pages WHERE uid = ?`, uid)
	return err
}

func decodePage(uid, body, generatedAt string) (GeneratedPage, error) {
	p := GeneratedPage{UID: uid}
	if err := json.Unmarshal([]byte(body), &p.Post); err != nil {
		return GeneratedPage{}, fmt.Errorf("spacetraveling: decode page %s: %w", uid, err)
	}
	t, err := time.Parse(storeTimeLayout, generatedAt)
	if err != nil {
		return GeneratedPage{}, fmt.Errorf("spacetraveling: decode page %s: %w", uid, err)
	}
	p.GeneratedAt = t
	return p, nil
}
