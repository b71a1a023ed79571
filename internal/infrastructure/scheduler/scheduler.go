// Package scheduler drives ingestion tasks through their retry state
// machine: pending -> attempt -> succeeded, pending-with-backoff or
// dead-lettered.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/core/ports"
	"github.com/facturo/ingesta/internal/observability/metrics"
)

// Tracker is the slice of the watcher the scheduler needs: freeing a path
// for the next scan pass or parking it until a tenant map reload.
type Tracker interface {
	Release(path string)
	Park(path string)
}

type Config struct {
	MaxAttempts int
	Workers     int
	DoneDir     string
	FailedDir   string
	QueueDepth  int
}

func (c Config) normalize() Config {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 4
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueDepth <= 0 {
		out.QueueDepth = 1024
	}
	return out
}

// Delay is the backoff before the next try after a given number of failed
// attempts: 2^attempts minutes (1 -> 2m, 2 -> 4m, 3 -> 8m, 4 -> 16m).
func Delay(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Minute
}

// Scheduler owns the worker pool and the per-task retry bookkeeping. A
// failed attempt re-enqueues the task via a timer instead of holding a
// worker through the backoff.
type Scheduler struct {
	cfg         Config
	ingestor    ports.FileIngestor
	deadLetters ports.DeadLetterRepository
	documents   ports.DocumentRepository
	tracker     Tracker
	metrics     *metrics.Pipeline

	tasks chan *domain.IngestionTask
	delay func(attempts int) time.Duration
}

func New(cfg Config, ingestor ports.FileIngestor, deadLetters ports.DeadLetterRepository, documents ports.DocumentRepository, tracker Tracker, m *metrics.Pipeline) *Scheduler {
	cfg = cfg.normalize()
	return &Scheduler{
		cfg:         cfg,
		ingestor:    ingestor,
		deadLetters: deadLetters,
		documents:   documents,
		tracker:     tracker,
		metrics:     m,
		tasks:       make(chan *domain.IngestionTask, cfg.QueueDepth),
		delay:       Delay,
	}
}

// Enqueue admits a newly observed file. It never blocks the watcher; when
// the queue is full the path is released so the next scan retries it.
func (s *Scheduler) Enqueue(path string) {
	task := &domain.IngestionTask{
		ID:         uuid.NewString(),
		Path:       path,
		Filename:   filepath.Base(path),
		Outcome:    domain.TaskPending,
		ObservedAt: time.Now().UTC(),
	}
	select {
	case s.tasks <- task:
	default:
		slog.Warn("task_queue_full", "path", path)
		s.tracker.Release(path)
	}
}

// Run blocks until ctx is done, processing tasks on cfg.Workers workers.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case task := <-s.tasks:
					s.process(ctx, task)
				}
			}
		})
	}
	return g.Wait()
}

func (s *Scheduler) process(ctx context.Context, task *domain.IngestionTask) {
	s.metrics.TaskStarted()
	start := time.Now()
	err := s.ingestor.Ingest(ctx, task)
	s.metrics.TaskFinished(time.Since(start))

	switch {
	case err == nil:
		task.Outcome = domain.TaskSucceeded
		s.finishFile(task, s.cfg.DoneDir)
		s.metrics.IngestOutcome("succeeded")

	case domain.IsKind(err, domain.ErrDuplicate):
		// The marker row is already written; the source file only needs
		// to leave the watch root.
		task.Outcome = domain.TaskSucceeded
		s.finishFile(task, s.cfg.DoneDir)
		s.metrics.IngestOutcome("duplicate")

	case domain.IsKind(err, domain.ErrUnroutable):
		slog.Error("file_unroutable", "path", task.Path, "error", err)
		s.tracker.Park(task.Path)
		s.metrics.IngestOutcome("unrouted")

	case domain.IsKind(err, domain.ErrNeverStabilized):
		slog.Warn("file_not_stable", "path", task.Path, "error", err)
		s.tracker.Release(task.Path)
		s.metrics.IngestOutcome("unstable")

	case ctx.Err() != nil:
		s.tracker.Release(task.Path)

	default:
		s.retry(ctx, task, err)
	}
}

func (s *Scheduler) retry(ctx context.Context, task *domain.IngestionTask, cause error) {
	task.Attempts++
	task.LastError = cause.Error()

	if task.Attempts > s.cfg.MaxAttempts {
		s.deadLetter(ctx, task)
		return
	}

	wait := s.delay(task.Attempts)
	task.Outcome = domain.TaskPending
	task.NextRetryAt = time.Now().UTC().Add(wait)
	s.metrics.RetryScheduled()

	slog.Warn("task_backoff",
		"task_id", task.ID,
		"path", task.Path,
		"attempt", task.Attempts,
		"next_retry_in", wait.String(),
		"error", cause,
	)

	time.AfterFunc(wait, func() {
		select {
		case s.tasks <- task:
		case <-ctx.Done():
			s.tracker.Release(task.Path)
		}
	})
}

func (s *Scheduler) deadLetter(ctx context.Context, task *domain.IngestionTask) {
	task.Outcome = domain.TaskDeadLettered
	dl := &domain.DeadLetter{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		Path:         task.Path,
		Filename:     task.Filename,
		TenantID:     task.TenantID,
		Fingerprint:  task.Fingerprint,
		Attempts:     task.Attempts,
		LastError:    task.LastError,
		DeadLetterAt: time.Now().UTC(),
	}
	if err := s.deadLetters.Create(ctx, dl); err != nil {
		slog.Error("dead_letter_persist_failed", "task_id", task.ID, "error", err)
	}
	// A document row created on an earlier attempt is flagged ERROR so it
	// surfaces for operator review instead of staying PENDIENTE forever.
	if task.DocumentID != "" && s.documents != nil {
		if err := s.documents.MarkError(ctx, task.DocumentID, task.LastError); err != nil {
			slog.Error("mark_error_failed", "document_id", task.DocumentID, "error", err)
		}
	}
	s.finishFile(task, s.cfg.FailedDir)
	s.metrics.IngestOutcome("dead_lettered")
	s.metrics.DeadLettered()

	slog.Error("task_dead_lettered",
		"task_id", task.ID,
		"path", task.Path,
		"attempts", task.Attempts,
		"last_error", task.LastError,
	)
}

// finishFile moves a terminally processed file out of the watch root with
// an atomic rename, then frees its slot.
func (s *Scheduler) finishFile(task *domain.IngestionTask, dir string) {
	if dir != "" {
		if err := moveInto(task.Path, dir); err != nil {
			slog.Error("file_move_failed", "path", task.Path, "dir", dir, "error", err)
		}
	}
	s.tracker.Release(task.Path)
}

func moveInto(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = target[:len(target)-len(ext)] + "-" + time.Now().UTC().Format("20060102T150405") + ext
	}
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
