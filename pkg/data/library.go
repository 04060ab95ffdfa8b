package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Library is the offline-reading catalog: one row per downloaded chapter.
// It is relational (queried by manga, bulk-deleted by manga) and therefore
// lives in DuckDB rather than the key/value store.
type Library struct {
	db *sql.DB
}

// OpenLibrary opens (or creates) the library database at path.
func OpenLibrary(path string) (*Library, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS downloaded_chapters (
			chapter_id    VARCHAR PRIMARY KEY,
			manga_id      VARCHAR NOT NULL,
			source_id     VARCHAR NOT NULL,
			pages         VARCHAR NOT NULL,
			size          BIGINT NOT NULL,
			downloaded_at TIMESTAMP NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Library{db: db}, nil
}

// Close closes the underlying database.
func (l *Library) Close() error {
	return l.db.Close()
}

// SaveChapter inserts or replaces the record for one downloaded chapter.
func (l *Library) SaveChapter(ch DownloadedChapter) error {
	pages, err := json.Marshal(ch.Pages)
	if err != nil {
		return fmt.Errorf("failed to encode pages: %w", err)
	}

	_, err = l.db.Exec(`
		INSERT OR REPLACE INTO downloaded_chapters
			(chapter_id, manga_id, source_id, pages, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ch.ChapterID, ch.MangaID, ch.SourceID, string(pages), ch.Size, ch.DownloadedAt)
	if err != nil {
		return fmt.Errorf("failed to save chapter: %w", err)
	}
	return nil
}

// GetChapter returns the record for chapterID, or nil if not downloaded.
func (l *Library) GetChapter(chapterID string) (*DownloadedChapter, error) {
	row := l.db.QueryRow(`
		SELECT chapter_id, manga_id, source_id, pages, size, downloaded_at
		FROM downloaded_chapters WHERE chapter_id = ?`, chapterID)

	ch, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ListChapters returns every downloaded chapter of one manga.
func (l *Library) ListChapters(mangaID string) ([]DownloadedChapter, error) {
	return l.queryChapters(`
		SELECT chapter_id, manga_id, source_id, pages, size, downloaded_at
		FROM downloaded_chapters WHERE manga_id = ? ORDER BY downloaded_at`, mangaID)
}

// ListAll returns every downloaded chapter.
func (l *Library) ListAll() ([]DownloadedChapter, error) {
	return l.queryChapters(`
		SELECT chapter_id, manga_id, source_id, pages, size, downloaded_at
		FROM downloaded_chapters ORDER BY manga_id, downloaded_at`)
}

// DeleteChapter removes the record for chapterID. Deleting an absent record
// is a no-op.
func (l *Library) DeleteChapter(chapterID string) error {
	_, err := l.db.Exec(`DELETE FROM downloaded_chapters WHERE chapter_id = ?`, chapterID)
	return err
}

// DeleteManga removes the records of every chapter of mangaID. This is the
// bulk variant of DeleteChapter, not a separate code path on the callers:
// they fetch the records first to remove the files, then call this.
func (l *Library) DeleteManga(mangaID string) error {
	_, err := l.db.Exec(`DELETE FROM downloaded_chapters WHERE manga_id = ?`, mangaID)
	return err
}

func (l *Library) queryChapters(query string, args ...any) ([]DownloadedChapter, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DownloadedChapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChapter(r rowScanner) (*DownloadedChapter, error) {
	var (
		ch    DownloadedChapter
		pages string
		at    time.Time
	)
	if err := r.Scan(&ch.ChapterID, &ch.MangaID, &ch.SourceID, &pages, &ch.Size, &at); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pages), &ch.Pages); err != nil {
		return nil, fmt.Errorf("failed to decode pages: %w", err)
	}
	ch.DownloadedAt = at
	return &ch, nil
}
