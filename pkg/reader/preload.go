// Package reader turns a chapter's raw page list into renderable pages
// ahead of display: DRM resolution plus image prefetch in bounded batches.
package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kerbaras/mangetsu/pkg/data"
)

// BatchSize is the number of pages resolved and fetched concurrently.
// Three keeps the device's network stack and image-decode memory from
// saturating while still overlapping the per-page latency.
const BatchSize = 3

// URLResolver resolves a possibly DRM-protected URL into a fetchable one.
// ok=false marks the page unresolvable; it is still emitted, not dropped.
type URLResolver interface {
	Resolve(ctx context.Context, raw string) (string, bool)
}

// Options are the callbacks and hooks for one preload run. All of them are
// optional.
type Options struct {
	// OnProgress fires after every finished page with (loaded, total).
	OnProgress func(loaded, total int)
	// OnPage fires the moment a single page is ready (or has failed), so
	// the caller can render it without waiting for the whole chapter.
	OnPage func(index int, page data.PreloadedPage)
	// Sink receives the fetched image bytes per page. Used by the download
	// queue to mirror pages to local storage; a Sink error marks the page
	// as not preloaded.
	Sink func(index int, body []byte) error
}

// Session is one chapter's preload state. The page slice is index-stable:
// it always has the input length and order, with each page mutated in place
// as the pipeline progresses.
type Session struct {
	gen   int64
	pages []data.PreloadedPage
	mu    sync.Mutex
}

// Pages returns a snapshot of the session's pages.
func (s *Session) Pages() []data.PreloadedPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]data.PreloadedPage, len(s.pages))
	copy(out, s.pages)
	return out
}

// Preloader resolves and prefetches chapter pages in fixed-size batches.
type Preloader struct {
	client   *http.Client
	resolver URLResolver
	log      *slog.Logger

	// epoch guards against stale writes: switching chapters mid-preload
	// starts a new session, and batches belonging to an older session drop
	// their results instead of racing into the new session's page array.
	epoch atomic.Int64
}

// NewPreloader returns a Preloader using resolver for DRM URLs.
func NewPreloader(resolver URLResolver, log *slog.Logger) *Preloader {
	if log == nil {
		log = slog.Default()
	}
	return &Preloader{
		client:   &http.Client{Timeout: 30 * time.Second},
		resolver: resolver,
		log:      log,
	}
}

// NewSession starts a session for pages and invalidates any session started
// earlier.
func (p *Preloader) NewSession(pages []data.Page) *Session {
	s := &Session{
		gen:   p.epoch.Add(1),
		pages: make([]data.PreloadedPage, len(pages)),
	}
	for i, page := range pages {
		s.pages[i] = data.PreloadedPage{Page: page}
	}
	return s
}

// Preload runs the pipeline for session. The returned slice always has the
// input length and order; every page is either preloaded with a non-empty
// resolved URL or emitted with Preloaded false. Stale sessions return
// whatever was completed before they were superseded.
func (p *Preloader) Preload(ctx context.Context, session *Session, opts Options) []data.PreloadedPage {
	total := len(session.pages)
	loaded := 0

	for start := 0; start < total; start += BatchSize {
		if ctx.Err() != nil || p.stale(session) {
			break
		}

		end := start + BatchSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		results := make([]data.PreloadedPage, end-start)
		bodies := make([][]byte, end-start)

		for i := start; i < end; i++ {
			session.mu.Lock()
			session.pages[i].Loading = true
			session.mu.Unlock()

			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i-start], bodies[i-start] = p.loadPage(ctx, session.pages[i].Page, opts)
			}(i)
		}
		wg.Wait()

		if p.stale(session) {
			p.log.Debug("dropping stale preload batch", "from", start, "to", end)
			break
		}

		// Index-addressed write-back: final array order matches chapter
		// order no matter which page in the batch finished first.
		for i := start; i < end; i++ {
			page := results[i-start]

			if page.Preloaded && opts.Sink != nil {
				if err := opts.Sink(i, bodies[i-start]); err != nil {
					p.log.Warn("page sink failed", "index", i, "error", err)
					page.Preloaded = false
				}
			}

			session.mu.Lock()
			session.pages[i] = page
			session.mu.Unlock()

			loaded++
			if opts.OnPage != nil {
				opts.OnPage(i, page)
			}
			if opts.OnProgress != nil {
				opts.OnProgress(loaded, total)
			}
		}
	}

	return session.Pages()
}

func (p *Preloader) stale(session *Session) bool {
	return session.gen != p.epoch.Load()
}

// loadPage resolves one page's URL and prefetches its bytes. Failures
// degrade to Preloaded false; the page itself is never dropped.
func (p *Preloader) loadPage(ctx context.Context, page data.Page, opts Options) (data.PreloadedPage, []byte) {
	out := data.PreloadedPage{Page: page}

	resolved, ok := p.resolver.Resolve(ctx, page.ImageURL)
	out.ResolvedURL = resolved
	if !ok {
		p.log.Warn("page unresolvable", "chapter", page.ChapterID, "page", page.PageNumber)
		return out, nil
	}

	body, err := p.fetch(ctx, resolved, opts.Sink != nil)
	if err != nil {
		p.log.Warn("page prefetch failed", "chapter", page.ChapterID, "page", page.PageNumber, "error", err)
		return out, nil
	}

	out.Preloaded = true
	return out, body
}

// fetch GETs the image. When the caller has no sink the body is drained and
// discarded; the fetch still warms the HTTP cache and validates the URL.
func (p *Preloader) fetch(ctx context.Context, url string, keepBody bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	if !keepBody {
		_, err := io.Copy(io.Discard, resp.Body)
		return nil, err
	}
	return io.ReadAll(resp.Body)
}
