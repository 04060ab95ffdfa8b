package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kerbaras/mangetsu/pkg/data"
)

// ExtensionLookup resolves an installed extension by id. Satisfied by
// registry.Installer.
type ExtensionLookup interface {
	Extension(id string) (data.InstalledExtension, bool, error)
}

// SearchResult is one page of search results. Metadata is the opaque page
// token for the next page, nil when there is none.
type SearchResult struct {
	Results  []data.SourceManga `json:"results"`
	Metadata *string            `json:"metadata"`
}

const (
	warmupRetries = 2
	warmupDelay   = 1 * time.Second
)

// Bridge is the sole data-access surface the rest of the app uses to talk
// to installed extensions. Every call is wrapped in a failure boundary: an
// exception inside extension code is logged with the offending id and
// degraded to an empty result, never propagated.
type Bridge struct {
	invoker    Invoker
	extensions ExtensionLookup
	log        *slog.Logger

	mu     sync.Mutex
	warmed map[string]bool
}

// NewBridge returns a Bridge invoking extensions through invoker.
func NewBridge(invoker Invoker, extensions ExtensionLookup, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		invoker:    invoker,
		extensions: extensions,
		log:        log,
		warmed:     make(map[string]bool),
	}
}

// Search queries the extension. pageToken is the metadata returned by a
// previous page, nil for the first page.
func (b *Bridge) Search(ctx context.Context, id, query string, pageToken *string) SearchResult {
	args := map[string]any{"query": query}
	if pageToken != nil {
		args["metadata"] = *pageToken
	}

	var out SearchResult
	if err := b.call(ctx, id, "search", args, &out); err != nil {
		return SearchResult{Results: []data.SourceManga{}}
	}
	if out.Results == nil {
		out.Results = []data.SourceManga{}
	}
	return out
}

// GetHomeSections returns the extension's landing shelves. The first call
// per extension is retried on emptiness with a fixed backoff: some
// extensions need warm-up time on cold start, and a false "no content" is
// worse than a one-second wait.
func (b *Bridge) GetHomeSections(ctx context.Context, id string) []data.HomeSection {
	var out []data.HomeSection
	b.withWarmup(ctx, id, "getHomeSections", func() bool {
		out = nil
		if err := b.call(ctx, id, "getHomeSections", nil, &out); err != nil {
			return false
		}
		return len(out) > 0
	})
	if out == nil {
		out = []data.HomeSection{}
	}
	return out
}

// GetTags returns the extension's browsable tags, with the same first-call
// warm-up retry as GetHomeSections.
func (b *Bridge) GetTags(ctx context.Context, id string) []data.Tag {
	var out []data.Tag
	b.withWarmup(ctx, id, "getTags", func() bool {
		out = nil
		if err := b.call(ctx, id, "getTags", nil, &out); err != nil {
			return false
		}
		return len(out) > 0
	})
	if out == nil {
		out = []data.Tag{}
	}
	return out
}

// GetMangaDetails returns the full metadata for one title, or nil when the
// extension fails.
func (b *Bridge) GetMangaDetails(ctx context.Context, id, mangaID string) *data.MangaDetails {
	var out data.MangaDetails
	if err := b.call(ctx, id, "getMangaDetails", map[string]any{"mangaId": mangaID}, &out); err != nil {
		return nil
	}
	if out.ID == "" {
		out.ID = mangaID
	}
	return &out
}

// GetChapters returns the chapter list for a title, always sorted
// newest-first regardless of what the extension produced. Chapter-adjacency
// logic everywhere else assumes descending order: lower index = newer.
func (b *Bridge) GetChapters(ctx context.Context, id, mangaID string) []data.Chapter {
	var out []data.Chapter
	if err := b.call(ctx, id, "getChapters", map[string]any{"mangaId": mangaID}, &out); err != nil {
		return []data.Chapter{}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChapNum != out[j].ChapNum {
			return out[i].ChapNum > out[j].ChapNum
		}
		return out[i].Volume > out[j].Volume
	})

	for i := range out {
		if out[i].MangaID == "" {
			out[i].MangaID = mangaID
		}
	}
	return out
}

// GetChapterPages returns the raw page list for one chapter, in page order.
func (b *Bridge) GetChapterPages(ctx context.Context, id, mangaID, chapterID string) []data.Page {
	var out []data.Page
	err := b.call(ctx, id, "getChapterPages", map[string]any{
		"mangaId":   mangaID,
		"chapterId": chapterID,
	}, &out)
	if err != nil {
		return []data.Page{}
	}

	for i := range out {
		if out[i].ChapterID == "" {
			out[i].ChapterID = chapterID
		}
		if out[i].PageNumber == 0 {
			out[i].PageNumber = i + 1
		}
	}
	return out
}

// DecryptImage asks the owning extension to decrypt a DRM-protected image
// URL. Unlike the query methods this surfaces the error: the DRM resolver
// degrades per page, not per call.
func (b *Bridge) DecryptImage(ctx context.Context, id, imageURL string) (string, error) {
	ext, ok, err := b.lookup(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotInstalledError{ExtensionID: id}
	}

	raw, err := b.invoker.Invoke(ctx, ext, "decryptImage", map[string]any{"url": imageURL})
	if err != nil {
		return "", err
	}
	var resolved string
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// NotInstalledError means a bridge call referenced an unknown extension id.
type NotInstalledError struct {
	ExtensionID string
}

func (e *NotInstalledError) Error() string {
	return "extension not installed: " + e.ExtensionID
}

func (b *Bridge) lookup(id string) (data.InstalledExtension, bool, error) {
	ext, ok, err := b.extensions.Extension(id)
	if err != nil {
		b.log.Error("extension lookup failed", "extension", id, "error", err)
	}
	return ext, ok, err
}

// call invokes a method and decodes the result into v. All failures are
// logged and returned for the caller to degrade.
func (b *Bridge) call(ctx context.Context, id, method string, args map[string]any, v any) error {
	ext, ok, err := b.lookup(id)
	if err != nil {
		return err
	}
	if !ok {
		err := &NotInstalledError{ExtensionID: id}
		b.log.Warn("bridge call to unknown extension", "extension", id, "method", method)
		return err
	}

	raw, err := b.invoker.Invoke(ctx, ext, method, args)
	if err != nil {
		b.log.Error("extension call failed", "extension", id, "method", method, "error", err)
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		b.log.Error("extension returned malformed result", "extension", id, "method", method, "error", err)
		return err
	}
	return nil
}

// withWarmup runs attempt, and on an empty first result for this extension
// and method retries up to warmupRetries times with a fixed delay. Once a
// method has produced a result (or exhausted its retries) the emptiness is
// accepted as genuine and never retried again.
func (b *Bridge) withWarmup(ctx context.Context, id, method string, attempt func() bool) {
	key := id + ":" + method

	b.mu.Lock()
	warmed := b.warmed[key]
	b.mu.Unlock()

	ok := attempt()
	if !ok && !warmed {
		for i := 0; i < warmupRetries; i++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(warmupDelay):
			}
			b.log.Debug("retrying cold extension", "extension", id, "method", method, "attempt", i+1)
			if attempt() {
				break
			}
		}
	}

	b.mu.Lock()
	b.warmed[key] = true
	b.mu.Unlock()
}
