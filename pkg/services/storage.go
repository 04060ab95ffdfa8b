package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kerbaras/mangetsu/pkg/data"
)

// DeleteChapter removes a downloaded chapter's local files and its library
// record. Deleting an unknown chapter is a no-op.
func DeleteChapter(library *data.Library, downloadDir, chapterID string) error {
	ch, err := library.GetChapter(chapterID)
	if err != nil {
		return err
	}
	if ch == nil {
		return nil
	}

	dir := filepath.Join(downloadDir, ch.MangaID, ch.ChapterID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove chapter files: %w", err)
	}
	return library.DeleteChapter(chapterID)
}

// DeleteManga removes every downloaded chapter of a manga. This is the bulk
// variant of DeleteChapter: same per-chapter file removal, one record
// delete.
func DeleteManga(library *data.Library, downloadDir, mangaID string) error {
	chapters, err := library.ListChapters(mangaID)
	if err != nil {
		return err
	}
	for _, ch := range chapters {
		dir := filepath.Join(downloadDir, ch.MangaID, ch.ChapterID)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove chapter files: %w", err)
		}
	}
	// The manga directory is empty once its chapters are gone.
	_ = os.Remove(filepath.Join(downloadDir, mangaID))
	return library.DeleteManga(mangaID)
}
