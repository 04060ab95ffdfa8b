package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/reader"
	"github.com/kerbaras/mangetsu/pkg/runtime"
)

// Mock implementations for testing

type fakeInvoker struct {
	invokeFunc func(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error) {
	if f.invokeFunc != nil {
		return f.invokeFunc(ctx, ext, method, args)
	}
	return nil, nil
}

type fakeLookup struct{}

func (fakeLookup) Extension(id string) (data.InstalledExtension, bool, error) {
	return data.InstalledExtension{ManifestEntry: data.ManifestEntry{ID: id}}, true, nil
}

type queueFixture struct {
	store   *data.Store
	library *data.Library
	queue   *Queue
	dir     string
	invoker *fakeInvoker
}

func setupQueue(t *testing.T) *queueFixture {
	t.Helper()

	base := t.TempDir()
	store, err := data.OpenStore(filepath.Join(base, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	library, err := data.OpenLibrary(filepath.Join(base, "library.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { library.Close() })

	invoker := &fakeInvoker{}
	bridge := runtime.NewBridge(invoker, fakeLookup{}, nil)
	preloader := reader.NewPreloader(runtime.NewDRMResolver(bridge, nil), nil)

	dir := filepath.Join(base, "downloads")
	return &queueFixture{
		store:   store,
		library: library,
		queue:   NewQueue(store, library, bridge, preloader, dir, nil),
		dir:     dir,
		invoker: invoker,
	}
}

// servePages points the fake extension's getChapterPages at an httptest
// image server with n pages per chapter.
func (f *queueFixture) servePages(t *testing.T, n int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/broken") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "bytes-%s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	f.invoker.invokeFunc = func(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error) {
		if method != "getChapterPages" {
			return nil, fmt.Errorf("unexpected method: %s", method)
		}
		pages := make([]data.Page, n)
		for i := range pages {
			pages[i] = data.Page{ImageURL: fmt.Sprintf("%s/%v/%d", srv.URL, args["chapterId"], i+1)}
		}
		return json.Marshal(pages)
	}
	return srv
}

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to data.JobStatus }{
		{data.JobQueued, data.JobDownloading},
		{data.JobQueued, data.JobPaused},
		{data.JobDownloading, data.JobPaused},
		{data.JobDownloading, data.JobFailed},
		{data.JobPaused, data.JobQueued},
	}
	for _, tr := range allowed {
		assert.True(t, canTransition(tr.from, tr.to), "%s -> %s should be allowed", tr.from, tr.to)
	}

	forbidden := []struct{ from, to data.JobStatus }{
		{data.JobQueued, data.JobFailed},
		{data.JobPaused, data.JobDownloading},
		{data.JobPaused, data.JobFailed},
		{data.JobFailed, data.JobQueued},
		{data.JobFailed, data.JobDownloading},
		{data.JobDownloading, data.JobQueued},
	}
	for _, tr := range forbidden {
		assert.False(t, canTransition(tr.from, tr.to), "%s -> %s should be forbidden", tr.from, tr.to)
	}
}

func TestEnqueue(t *testing.T) {
	f := setupQueue(t)

	job, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "Naruto", "")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, data.JobQueued, job.Status)

	// Same chapter again returns the existing job.
	again, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "Naruto", "")
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
	assert.Len(t, f.queue.Jobs(), 1)
}

func TestEnqueueAlreadyDownloaded(t *testing.T) {
	f := setupQueue(t)

	require.NoError(t, f.library.SaveChapter(data.DownloadedChapter{
		ChapterID: "ch-1", MangaID: "manga-1", SourceID: "mangadex",
		Pages: []string{"/x/page-001.img"},
	}))

	_, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "Naruto", "")
	assert.ErrorIs(t, err, ErrAlreadyDownloaded)
	assert.Empty(t, f.queue.Jobs())
}

func TestPauseResume(t *testing.T) {
	f := setupQueue(t)

	job, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "", "")
	require.NoError(t, err)

	require.NoError(t, f.queue.Pause(job.ID))
	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, data.JobPaused, jobs[0].Status)

	// Pausing a paused job is an illegal transition.
	err = f.queue.Pause(job.ID)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, data.JobPaused, illegal.From)

	require.NoError(t, f.queue.Resume(job.ID))
	assert.Equal(t, data.JobQueued, f.queue.Jobs()[0].Status)

	// Resuming a queued job is illegal too.
	assert.ErrorAs(t, f.queue.Resume(job.ID), &illegal)
}

func TestPauseUnknownJob(t *testing.T) {
	f := setupQueue(t)
	assert.ErrorIs(t, f.queue.Pause("nope"), ErrUnknownJob)
}

func TestPauseAllResumeAll(t *testing.T) {
	f := setupQueue(t)

	for i := 1; i <= 3; i++ {
		_, err := f.queue.Enqueue("mangadex", "manga-1", fmt.Sprintf("ch-%d", i), "", "")
		require.NoError(t, err)
	}

	require.NoError(t, f.queue.PauseAll())
	for _, j := range f.queue.Jobs() {
		assert.Equal(t, data.JobPaused, j.Status)
	}

	require.NoError(t, f.queue.ResumeAll())
	for _, j := range f.queue.Jobs() {
		assert.Equal(t, data.JobQueued, j.Status)
	}
}

func TestCancelRemovesJob(t *testing.T) {
	f := setupQueue(t)

	job, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "", "")
	require.NoError(t, err)

	// Partial files on disk are discarded with the job.
	chapterDir := filepath.Join(f.dir, "manga-1", "ch-1")
	require.NoError(t, os.MkdirAll(chapterDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chapterDir, "page-001.img"), []byte("partial"), 0o644))

	require.NoError(t, f.queue.Cancel(job.ID))
	assert.Empty(t, f.queue.Jobs())
	assert.NoDirExists(t, chapterDir)

	assert.ErrorIs(t, f.queue.Cancel(job.ID), ErrUnknownJob)
}

func TestRestoreRehydratesDownloading(t *testing.T) {
	f := setupQueue(t)

	// Simulate a crash mid-download: the persisted snapshot holds one
	// downloading job and one paused job.
	err := f.store.UpdateQueue(func([]data.DownloadJob) ([]data.DownloadJob, error) {
		return []data.DownloadJob{
			{ID: "j1", ChapterID: "ch-1", Status: data.JobDownloading, Progress: 7, Total: 20},
			{ID: "j2", ChapterID: "ch-2", Status: data.JobPaused},
		}, nil
	})
	require.NoError(t, err)

	require.NoError(t, f.queue.Restore())
	jobs := f.queue.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, data.JobQueued, jobs[0].Status, "interrupted download restarts as queued")
	assert.Equal(t, 0, jobs[0].Progress)
	assert.Equal(t, data.JobPaused, jobs[1].Status, "paused jobs keep their state")
}

func TestQueuePersistsAcrossInstances(t *testing.T) {
	f := setupQueue(t)

	_, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "Naruto", "")
	require.NoError(t, err)

	// A new queue over the same store sees the same jobs.
	second := NewQueue(f.store, f.library, nil, nil, f.dir, nil)
	require.NoError(t, second.Restore())
	jobs := second.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "ch-1", jobs[0].ChapterID)
	assert.Equal(t, "Naruto", jobs[0].MangaTitle)
}

func TestRunPendingDownloadsChapter(t *testing.T) {
	f := setupQueue(t)
	f.servePages(t, 5)

	_, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "Naruto", "")
	require.NoError(t, err)

	require.NoError(t, f.queue.RunPending(context.Background()))

	assert.Empty(t, f.queue.Jobs(), "completed job leaves the queue")

	ch, err := f.library.GetChapter("ch-1")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "manga-1", ch.MangaID)
	assert.Equal(t, "mangadex", ch.SourceID)
	require.Len(t, ch.Pages, 5)
	assert.Greater(t, ch.Size, int64(0))

	for i, path := range ch.Pages {
		assert.Equal(t, fmt.Sprintf("page-%03d.img", i+1), filepath.Base(path))
		assert.FileExists(t, path)
	}
}

func TestRunPendingFailedPage(t *testing.T) {
	f := setupQueue(t)
	srv := f.servePages(t, 0)

	// Page 2 of 3 404s; the whole chapter fails and partials are discarded.
	f.invoker.invokeFunc = func(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error) {
		return json.Marshal([]data.Page{
			{ImageURL: srv.URL + "/ok/1"},
			{ImageURL: srv.URL + "/broken"},
			{ImageURL: srv.URL + "/ok/3"},
		})
	}

	_, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "", "")
	require.NoError(t, err)
	require.NoError(t, f.queue.RunPending(context.Background()))

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1, "failed job stays in the queue")
	assert.Equal(t, data.JobFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "page 2")

	ch, err := f.library.GetChapter("ch-1")
	require.NoError(t, err)
	assert.Nil(t, ch, "failed chapter must not be recorded")
	assert.NoDirExists(t, filepath.Join(f.dir, "manga-1", "ch-1"))
}

func TestRunPendingNoPages(t *testing.T) {
	f := setupQueue(t)
	f.invoker.invokeFunc = func(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error) {
		return json.Marshal([]data.Page{})
	}

	_, err := f.queue.Enqueue("mangadex", "manga-1", "ch-1", "", "")
	require.NoError(t, err)
	require.NoError(t, f.queue.RunPending(context.Background()))

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, data.JobFailed, jobs[0].Status)
}

func TestRunPendingGroupsByManga(t *testing.T) {
	f := setupQueue(t)
	f.servePages(t, 1)

	var order []string
	// Interleave two manga; processing should group chapters per title.
	for _, pair := range [][2]string{
		{"manga-a", "ch-a1"}, {"manga-b", "ch-b1"}, {"manga-a", "ch-a2"}, {"manga-b", "ch-b2"},
	} {
		_, err := f.queue.Enqueue("mangadex", pair[0], pair[1], "", "")
		require.NoError(t, err)
	}

	inner := f.invoker.invokeFunc
	f.invoker.invokeFunc = func(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error) {
		order = append(order, args["chapterId"].(string))
		return inner(ctx, ext, method, args)
	}

	require.NoError(t, f.queue.RunPending(context.Background()))
	assert.Equal(t, []string{"ch-a1", "ch-a2", "ch-b1", "ch-b2"}, order)
}
