package data

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestLibrary(t *testing.T) *Library {
	t.Helper()

	lib, err := OpenLibrary(filepath.Join(t.TempDir(), "library.duckdb"))
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func testChapter(chapterID, mangaID string) DownloadedChapter {
	return DownloadedChapter{
		ChapterID:    chapterID,
		MangaID:      mangaID,
		SourceID:     "mangadex",
		Pages:        []string{"/tmp/page-001.img", "/tmp/page-002.img"},
		Size:         2048,
		DownloadedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLibrarySaveAndGetChapter(t *testing.T) {
	lib := setupTestLibrary(t)

	if err := lib.SaveChapter(testChapter("ch-1", "manga-1")); err != nil {
		t.Fatalf("Failed to save chapter: %v", err)
	}

	ch, err := lib.GetChapter("ch-1")
	if err != nil {
		t.Fatalf("Failed to get chapter: %v", err)
	}
	if ch == nil {
		t.Fatal("Expected chapter, got nil")
	}
	if ch.MangaID != "manga-1" || len(ch.Pages) != 2 || ch.Size != 2048 {
		t.Errorf("Unexpected chapter: %+v", ch)
	}
}

func TestLibraryGetMissingChapter(t *testing.T) {
	lib := setupTestLibrary(t)

	ch, err := lib.GetChapter("nope")
	if err != nil {
		t.Fatalf("Missing chapter must not error: %v", err)
	}
	if ch != nil {
		t.Fatalf("Expected nil for missing chapter, got %+v", ch)
	}
}

func TestLibrarySaveChapterReplaces(t *testing.T) {
	lib := setupTestLibrary(t)

	if err := lib.SaveChapter(testChapter("ch-1", "manga-1")); err != nil {
		t.Fatalf("Failed to save chapter: %v", err)
	}

	updated := testChapter("ch-1", "manga-1")
	updated.Pages = append(updated.Pages, "/tmp/page-003.img")
	updated.Size = 4096
	if err := lib.SaveChapter(updated); err != nil {
		t.Fatalf("Failed to replace chapter: %v", err)
	}

	ch, err := lib.GetChapter("ch-1")
	if err != nil {
		t.Fatalf("Failed to get chapter: %v", err)
	}
	if len(ch.Pages) != 3 || ch.Size != 4096 {
		t.Errorf("Replace did not take effect: %+v", ch)
	}

	all, err := lib.ListAll()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 row after replace, got %d", len(all))
	}
}

func TestLibraryListChaptersByManga(t *testing.T) {
	lib := setupTestLibrary(t)

	for _, c := range []DownloadedChapter{
		testChapter("ch-1", "manga-1"),
		testChapter("ch-2", "manga-1"),
		testChapter("ch-3", "manga-2"),
	} {
		if err := lib.SaveChapter(c); err != nil {
			t.Fatalf("Failed to save %s: %v", c.ChapterID, err)
		}
	}

	chapters, err := lib.ListChapters("manga-1")
	if err != nil {
		t.Fatalf("Failed to list chapters: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("Expected 2 chapters for manga-1, got %d", len(chapters))
	}

	all, err := lib.ListAll()
	if err != nil {
		t.Fatalf("Failed to list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 chapters total, got %d", len(all))
	}
}

func TestLibraryDelete(t *testing.T) {
	lib := setupTestLibrary(t)

	for _, c := range []DownloadedChapter{
		testChapter("ch-1", "manga-1"),
		testChapter("ch-2", "manga-1"),
		testChapter("ch-3", "manga-2"),
	} {
		if err := lib.SaveChapter(c); err != nil {
			t.Fatalf("Failed to save %s: %v", c.ChapterID, err)
		}
	}

	if err := lib.DeleteChapter("ch-3"); err != nil {
		t.Fatalf("Failed to delete chapter: %v", err)
	}
	if ch, _ := lib.GetChapter("ch-3"); ch != nil {
		t.Error("Chapter still present after delete")
	}
	if err := lib.DeleteChapter("ch-3"); err != nil {
		t.Errorf("Deleting an absent chapter must be a no-op: %v", err)
	}

	if err := lib.DeleteManga("manga-1"); err != nil {
		t.Fatalf("Failed to delete manga: %v", err)
	}
	all, err := lib.ListAll()
	if err != nil {
		t.Fatalf("Failed to list all: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected empty library, got %d rows", len(all))
	}
}
