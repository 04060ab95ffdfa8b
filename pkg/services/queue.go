// Package services hosts the long-running orchestration on top of the
// core: the persistent download queue and offline-storage maintenance.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/reader"
	"github.com/kerbaras/mangetsu/pkg/runtime"
)

// IllegalTransitionError is returned when a job is asked to move between
// states the machine does not allow.
type IllegalTransitionError struct {
	From, To data.JobStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal job transition: %s -> %s", e.From, e.To)
}

// ErrUnknownJob is returned for operations on a job id not in the queue.
var ErrUnknownJob = fmt.Errorf("unknown download job")

// ErrAlreadyDownloaded is returned when enqueuing a chapter the library
// already holds.
var ErrAlreadyDownloaded = fmt.Errorf("chapter already downloaded")

// transitions is the closed transition table of the job state machine.
// Completion and cancellation remove the job instead of transitioning it,
// so they do not appear as target states here.
var transitions = map[data.JobStatus][]data.JobStatus{
	data.JobQueued:      {data.JobDownloading, data.JobPaused},
	data.JobDownloading: {data.JobPaused, data.JobFailed},
	data.JobPaused:      {data.JobQueued},
	data.JobFailed:      {},
}

func canTransition(from, to data.JobStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Queue is the persistent download job state machine. Jobs mirror chapters
// to local storage through the preload pipeline, independent of any live
// reading session. The runner processes jobs one at a time; page-level
// parallelism comes from the batch-bounded pipeline underneath.
type Queue struct {
	store     *data.Store
	library   *data.Library
	bridge    *runtime.Bridge
	preloader *reader.Preloader
	dir       string
	log       *slog.Logger

	mu        sync.Mutex
	jobs      []data.DownloadJob
	cancels   map[string]context.CancelFunc
	lastManga string

	wake chan struct{}
}

// NewQueue returns a Queue writing chapter files under dir.
func NewQueue(store *data.Store, library *data.Library, bridge *runtime.Bridge, preloader *reader.Preloader, dir string, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		store:     store,
		library:   library,
		bridge:    bridge,
		preloader: preloader,
		dir:       dir,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
		wake:      make(chan struct{}, 1),
	}
}

// Restore loads the persisted queue snapshot. Jobs caught mid-download by
// a process exit rehydrate as queued so the runner picks them up again;
// paused and failed jobs keep their state.
func (q *Queue) Restore() error {
	jobs, err := q.store.Queue()
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].Status == data.JobDownloading {
			jobs[i].Status = data.JobQueued
			jobs[i].Progress = 0
		}
	}

	q.mu.Lock()
	q.jobs = jobs
	q.mu.Unlock()
	return q.persist()
}

// Jobs returns a snapshot of the queue.
func (q *Queue) Jobs() []data.DownloadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]data.DownloadJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Enqueue adds a chapter download job. A chapter already queued or already
// downloaded is not queued twice.
func (q *Queue) Enqueue(sourceID, mangaID, chapterID, mangaTitle, mangaCover string) (data.DownloadJob, error) {
	if existing, err := q.library.GetChapter(chapterID); err != nil {
		return data.DownloadJob{}, err
	} else if existing != nil {
		return data.DownloadJob{}, fmt.Errorf("chapter %s: %w", chapterID, ErrAlreadyDownloaded)
	}

	job := data.DownloadJob{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		MangaID:    mangaID,
		ChapterID:  chapterID,
		MangaTitle: mangaTitle,
		MangaCover: mangaCover,
		Status:     data.JobQueued,
		QueuedAt:   time.Now(),
	}

	q.mu.Lock()
	for _, j := range q.jobs {
		if j.ChapterID == chapterID {
			q.mu.Unlock()
			return j, nil
		}
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return data.DownloadJob{}, err
	}
	q.poke()
	q.log.Info("chapter queued", "manga", mangaID, "chapter", chapterID)
	return job, nil
}

// Pause moves a queued or downloading job to paused. A downloading job
// stops after its in-flight batch; partial page progress is not preserved,
// resume restarts the chapter.
func (q *Queue) Pause(jobID string) error {
	return q.setStatus(jobID, data.JobPaused)
}

// Resume moves a paused job back to queued.
func (q *Queue) Resume(jobID string) error {
	if err := q.setStatus(jobID, data.JobQueued); err != nil {
		return err
	}
	q.poke()
	return nil
}

// PauseAll pauses every queued and downloading job.
func (q *Queue) PauseAll() error {
	q.mu.Lock()
	for i := range q.jobs {
		if canTransition(q.jobs[i].Status, data.JobPaused) {
			q.interrupt(q.jobs[i].ID)
			q.jobs[i].Status = data.JobPaused
		}
	}
	q.mu.Unlock()
	return q.persist()
}

// ResumeAll re-queues every paused job.
func (q *Queue) ResumeAll() error {
	q.mu.Lock()
	for i := range q.jobs {
		if q.jobs[i].Status == data.JobPaused {
			q.jobs[i].Status = data.JobQueued
		}
	}
	q.mu.Unlock()
	if err := q.persist(); err != nil {
		return err
	}
	q.poke()
	return nil
}

// Cancel removes a job from the queue without producing a downloaded
// chapter. Partial files for the chapter are discarded.
func (q *Queue) Cancel(jobID string) error {
	q.mu.Lock()
	var removed *data.DownloadJob
	out := q.jobs[:0]
	for _, j := range q.jobs {
		if j.ID == jobID {
			jc := j
			removed = &jc
			q.interrupt(jobID)
			continue
		}
		out = append(out, j)
	}
	q.jobs = out
	q.mu.Unlock()

	if removed == nil {
		return ErrUnknownJob
	}
	q.discardPartial(removed.MangaID, removed.ChapterID)
	return q.persist()
}

// Run processes the queue until ctx is done. Jobs run sequentially, never
// in parallel across the whole queue.
func (q *Queue) Run(ctx context.Context) error {
	for {
		job, ok := q.nextQueued()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			case <-time.After(1 * time.Second):
				continue
			}
		}

		q.process(ctx, job)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// RunPending processes jobs until the queue holds no more queued work.
// Used by the one-shot CLI download command.
func (q *Queue) RunPending(ctx context.Context) error {
	for {
		job, ok := q.nextQueued()
		if !ok {
			return nil
		}
		q.process(ctx, job)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (q *Queue) process(parent context.Context, job data.DownloadJob) {
	ctx, cancel := context.WithCancel(parent)

	q.mu.Lock()
	q.cancels[job.ID] = cancel
	q.mu.Unlock()
	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, job.ID)
		q.mu.Unlock()
	}()

	q.log.Info("downloading chapter", "manga", job.MangaID, "chapter", job.ChapterID)

	pages := q.bridge.GetChapterPages(ctx, job.SourceID, job.MangaID, job.ChapterID)
	if len(pages) == 0 {
		q.fail(job.ID, "extension returned no pages")
		return
	}

	chapterDir := filepath.Join(q.dir, job.MangaID, job.ChapterID)
	if err := os.MkdirAll(chapterDir, 0o755); err != nil {
		q.fail(job.ID, fmt.Sprintf("failed to create chapter directory: %v", err))
		return
	}

	q.updateJob(job.ID, func(j *data.DownloadJob) {
		j.Total = len(pages)
		j.Progress = 0
	})

	var (
		size   int64
		paths  = make([]string, len(pages))
		sinkMu sync.Mutex
	)

	session := q.preloader.NewSession(pages)
	result := q.preloader.Preload(ctx, session, reader.Options{
		OnProgress: func(loaded, total int) {
			q.updateJob(job.ID, func(j *data.DownloadJob) {
				j.Progress = loaded
			})
		},
		Sink: func(index int, body []byte) error {
			path := filepath.Join(chapterDir, fmt.Sprintf("page-%03d.img", index+1))
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return err
			}
			sinkMu.Lock()
			paths[index] = path
			size += int64(len(body))
			sinkMu.Unlock()
			return nil
		},
	})

	// Pause or shutdown mid-chapter: keep the job, drop the partials.
	if status, ok := q.status(job.ID); !ok || status == data.JobPaused || ctx.Err() != nil {
		q.discardPartial(job.MangaID, job.ChapterID)
		return
	}

	for _, page := range result {
		if !page.Preloaded {
			q.discardPartial(job.MangaID, job.ChapterID)
			q.fail(job.ID, fmt.Sprintf("page %d failed", page.PageNumber))
			return
		}
	}

	record := data.DownloadedChapter{
		ChapterID:    job.ChapterID,
		MangaID:      job.MangaID,
		SourceID:     job.SourceID,
		Pages:        paths,
		Size:         size,
		DownloadedAt: time.Now(),
	}
	if err := q.library.SaveChapter(record); err != nil {
		q.discardPartial(job.MangaID, job.ChapterID)
		q.fail(job.ID, fmt.Sprintf("failed to record chapter: %v", err))
		return
	}

	// Job done: remove from the queue, the library record is the output.
	q.mu.Lock()
	out := q.jobs[:0]
	for _, j := range q.jobs {
		if j.ID != job.ID {
			out = append(out, j)
		}
	}
	q.jobs = out
	q.mu.Unlock()
	if err := q.persist(); err != nil {
		q.log.Error("failed to persist queue", "error", err)
	}

	q.log.Info("chapter downloaded", "manga", job.MangaID, "chapter", job.ChapterID, "pages", len(paths), "bytes", size)
}

// nextQueued picks the next job to run, preferring chapters of the same
// manga as the previously processed job so downloads stay grouped per
// title.
func (q *Queue) nextQueued() (data.DownloadJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var head *data.DownloadJob
	for i := range q.jobs {
		if q.jobs[i].Status != data.JobQueued {
			continue
		}
		if head == nil {
			head = &q.jobs[i]
		}
		if q.lastManga != "" && q.jobs[i].MangaID == q.lastManga {
			head = &q.jobs[i]
			break
		}
	}
	if head == nil {
		return data.DownloadJob{}, false
	}
	q.lastManga = head.MangaID

	head.Status = data.JobDownloading
	job := *head
	go func() {
		if err := q.persist(); err != nil {
			q.log.Error("failed to persist queue", "error", err)
		}
	}()
	return job, true
}

func (q *Queue) setStatus(jobID string, to data.JobStatus) error {
	q.mu.Lock()
	var found bool
	for i := range q.jobs {
		if q.jobs[i].ID != jobID {
			continue
		}
		found = true
		from := q.jobs[i].Status
		if !canTransition(from, to) {
			q.mu.Unlock()
			return &IllegalTransitionError{From: from, To: to}
		}
		if to == data.JobPaused && from == data.JobDownloading {
			q.interrupt(jobID)
		}
		q.jobs[i].Status = to
		break
	}
	q.mu.Unlock()

	if !found {
		return ErrUnknownJob
	}
	return q.persist()
}

func (q *Queue) status(jobID string) (data.JobStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID == jobID {
			return j.Status, true
		}
	}
	return "", false
}

func (q *Queue) fail(jobID, reason string) {
	q.mu.Lock()
	for i := range q.jobs {
		if q.jobs[i].ID == jobID {
			q.jobs[i].Status = data.JobFailed
			q.jobs[i].Error = reason
			break
		}
	}
	q.mu.Unlock()
	if err := q.persist(); err != nil {
		q.log.Error("failed to persist queue", "error", err)
	}
	q.log.Warn("download failed", "job", jobID, "reason", reason)
}

func (q *Queue) updateJob(jobID string, fn func(*data.DownloadJob)) {
	q.mu.Lock()
	for i := range q.jobs {
		if q.jobs[i].ID == jobID {
			fn(&q.jobs[i])
			break
		}
	}
	q.mu.Unlock()
}

// interrupt cancels the in-flight pipeline of a job, if any. Callers hold
// q.mu.
func (q *Queue) interrupt(jobID string) {
	if cancel, ok := q.cancels[jobID]; ok {
		cancel()
	}
}

func (q *Queue) discardPartial(mangaID, chapterID string) {
	dir := filepath.Join(q.dir, mangaID, chapterID)
	if err := os.RemoveAll(dir); err != nil {
		q.log.Warn("failed to discard partial chapter", "dir", dir, "error", err)
	}
}

func (q *Queue) persist() error {
	q.mu.Lock()
	snapshot := make([]data.DownloadJob, len(q.jobs))
	copy(snapshot, q.jobs)
	q.mu.Unlock()

	return q.store.UpdateQueue(func([]data.DownloadJob) ([]data.DownloadJob, error) {
		return snapshot, nil
	})
}

func (q *Queue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
