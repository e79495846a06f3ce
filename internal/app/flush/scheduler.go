// Package flush coalesces content writes per file behind a quiet period.
package flush

import (
	"context"
	"sync"
	"time"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/rs/zerolog/log"
)

// Job is the latest content of a file waiting to be persisted.
type Job struct {
	FileID    domain.FileID
	Workspace domain.WorkspaceID
	Content   string
	Editor    domain.User
	EditorSID core.SessionID
}

type Func func(Job)

type slot struct {
	job   Job
	timer *time.Timer
	gen   uint64
	first time.Time
}

// writer serialises writes of one file. written is the generation of the
// newest job persisted; refs counts dispatched jobs not yet finished.
type writer struct {
	mu      sync.Mutex
	written uint64
	refs    int
}

// Scheduler owns at most one pending write per file id. A new job for the
// same file replaces the pending one and restarts the quiet period, bounded
// by maxDeferral when it is positive. Writes of one file never overlap, and
// a job older than one already written is discarded.
type Scheduler struct {
	quiet       time.Duration
	maxDeferral time.Duration
	fn          Func

	mu      sync.Mutex
	pending map[domain.FileID]*slot
	writers map[domain.FileID]*writer
	gen     uint64
	closed  bool
	wg      sync.WaitGroup
}

func NewScheduler(quiet, maxDeferral time.Duration, fn Func) *Scheduler {
	return &Scheduler{
		quiet:       quiet,
		maxDeferral: maxDeferral,
		fn:          fn,
		pending:     make(map[domain.FileID]*slot),
		writers:     make(map[domain.FileID]*writer),
	}
}

// Schedule cancels any pending write for job.FileID and reschedules.
func (s *Scheduler) Schedule(job Job) {
	s.mu.Lock()
	if s.closed {
		s.gen++
		w := s.acquire(job.FileID)
		gen := s.gen
		s.mu.Unlock()
		s.write(w, job, gen)
		return
	}
	defer s.mu.Unlock()

	now := time.Now()
	sl, ok := s.pending[job.FileID]
	if ok {
		sl.timer.Stop()
	} else {
		sl = &slot{first: now}
		s.pending[job.FileID] = sl
	}
	sl.job = job
	s.gen++
	sl.gen = s.gen

	delay := s.quiet
	if s.maxDeferral > 0 {
		if remaining := s.maxDeferral - now.Sub(sl.first); remaining < delay {
			delay = max(remaining, 0)
		}
	}
	fileID, gen := job.FileID, sl.gen
	sl.timer = time.AfterFunc(delay, func() { s.fire(fileID, gen) })
}

func (s *Scheduler) fire(fileID domain.FileID, gen uint64) {
	s.mu.Lock()
	sl, ok := s.pending[fileID]
	if !ok || sl.gen != gen {
		// superseded by a newer edit or already flushed
		s.mu.Unlock()
		return
	}
	delete(s.pending, fileID)
	w := s.acquire(fileID)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.write(w, sl.job, gen)
}

// acquire must be called with s.mu held, at the moment a job leaves pending.
func (s *Scheduler) acquire(fileID domain.FileID) *writer {
	w, ok := s.writers[fileID]
	if !ok {
		w = &writer{}
		s.writers[fileID] = w
	}
	w.refs++
	return w
}

// write runs fn for job unless a newer generation of the file was already
// written, then releases w.
func (s *Scheduler) write(w *writer, job Job, gen uint64) {
	w.mu.Lock()
	if gen > w.written {
		w.written = gen
		s.fn(job)
	} else {
		log.Debug().Str("module", "app.flush").Str("file", string(job.FileID)).Msg("stale write skipped")
	}
	w.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if w.refs--; w.refs == 0 {
		delete(s.writers, job.FileID)
	}
}

// Pending returns the content waiting to be written for fileID.
func (s *Scheduler) Pending(fileID domain.FileID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.pending[fileID]
	if !ok {
		return "", false
	}
	return sl.job.Content, true
}

// FlushEditor writes, without waiting for the quiet period, every pending
// file whose latest edit came from sid. Writes run in the background.
func (s *Scheduler) FlushEditor(sid core.SessionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sl := range s.pending {
		if sl.job.EditorSID != sid {
			continue
		}
		sl.timer.Stop()
		delete(s.pending, id)
		s.runAsync(s.acquire(id), sl.job, sl.gen)
		n++
	}
	if n > 0 {
		log.Info().Str("module", "app.flush").Str("sid", string(sid)).Int("files", n).Msg("flushing on editor departure")
	}
	return n
}

// runAsync must be called with s.mu held.
func (s *Scheduler) runAsync(w *writer, job Job, gen uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.write(w, job, gen)
	}()
}

// Close flushes everything still pending and waits for in-flight writes.
// Jobs scheduled after Close are written synchronously by the caller.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	type queued struct {
		w   *writer
		job Job
		gen uint64
	}
	jobs := make([]queued, 0, len(s.pending))
	for id, sl := range s.pending {
		sl.timer.Stop()
		jobs = append(jobs, queued{w: s.acquire(id), job: sl.job, gen: sl.gen})
		delete(s.pending, id)
	}
	s.mu.Unlock()

	log.Info().Str("module", "app.flush").Int("files", len(jobs)).Msg("flushing pending writes")
	for _, q := range jobs {
		s.write(q.w, q.job, q.gen)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of files with a pending write.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
