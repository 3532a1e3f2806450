package queue

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"tubevault/internal/domain/download"
)

// Worker is the single background loop that executes pending jobs. It claims
// the next eligible job and runs the persona fallback protocol against it;
// one job's failure never reaches the loop itself.
type Worker struct {
	registry  *Registry
	extractor Extractor
	store     Storage
	logger    *log.Logger
	opts      Options
	personas  []download.Persona
	wake      <-chan struct{}
}

// NewWorker wires the queue worker. wake is nudged by the service on submit
// and resume so new work is picked up without waiting out the poll interval.
func NewWorker(registry *Registry, extractor Extractor, store Storage, logger *log.Logger, opts Options, wake <-chan struct{}) *Worker {
	return &Worker{
		registry:  registry,
		extractor: extractor,
		store:     store,
		logger:    logger,
		opts:      opts.withDefaults(),
		personas:  opts.personaOrder(),
		wake:      wake,
	}
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok := w.registry.PeekNextEligible()
		if !ok {
			return
		}
		if !w.registry.Claim(job.ID) {
			// Paused or mutated between peek and claim; look again.
			continue
		}
		w.process(ctx, job.ID)
	}
}

// process runs one claimed job to a terminal state (or back to paused).
func (w *Worker) process(ctx context.Context, id string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			w.logger.Printf("job %s panicked: %v", id, recovered)
			w.registry.Fail(id, download.KindUnknown, "internal error during download")
		}
	}()

	job, ok := w.registry.Snapshot(id)
	if !ok {
		return
	}

	dir, err := w.store.EnsureOwnerDir(job.Owner)
	if err != nil {
		w.logger.Printf("job %s storage setup failed: %v", id, err)
		w.registry.Fail(id, download.KindStorage, download.ErrStorage.Error())
		return
	}

	var lastErr *download.ClassifiedError
	for i, persona := range w.personas {
		if w.pausedOrGone(id) {
			return
		}

		classified := w.attempt(ctx, job, dir, persona)
		if classified == nil {
			return
		}
		if w.pausedOrGone(id) {
			// The attempt died because pause cancelled it; stay paused.
			return
		}

		lastErr = classified
		w.logger.Printf("job %s persona %s failed (%s): %s", id, persona.Name, classified.Kind, classified.Message)

		if classified.Permanent() || classified.Kind == download.KindSizeLimit || classified.Kind == download.KindStorage {
			w.registry.Fail(id, classified.Kind, classified.Message)
			return
		}
		if !w.backoff(ctx, classified, persona, i) {
			return
		}
	}

	kind := download.KindUnknown
	message := "all download attempts failed"
	if lastErr != nil {
		kind = lastErr.Kind
		message = lastErr.Message
	}
	w.registry.Fail(id, kind, message)
}

// attempt runs one persona attempt end to end. A nil return means the job
// reached completed; otherwise the classified error decides what happens to
// the remaining personas.
func (w *Worker) attempt(ctx context.Context, job download.Job, dir string, persona download.Persona) *download.ClassifiedError {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.registry.AttachCancel(job.ID, cancel)
	defer w.registry.DetachCancel(job.ID)

	meta, err := w.extractor.Metadata(attemptCtx, job.NormalizedURL, persona)
	if err != nil {
		return download.Classify(err)
	}
	w.registry.SetMetadata(job.ID, meta.Title, meta.SourceURL)

	if w.opts.MaxFileSize > 0 && meta.Size > w.opts.MaxFileSize {
		return &download.ClassifiedError{
			Kind:    download.KindSizeLimit,
			Message: fmt.Sprintf("estimated size %d bytes exceeds the %d byte limit", meta.Size, w.opts.MaxFileSize),
		}
	}

	path, err := w.extractor.Download(attemptCtx, Request{
		URL:          job.NormalizedURL,
		Quality:      job.Quality,
		FormatID:     job.FormatID,
		ThrottleRate: job.ThrottleRate,
		OutputDir:    dir,
		OutputStem:   job.ID,
		Persona:      persona,
	}, func(downloaded, total int64) {
		if total > 0 {
			w.registry.UpdateProgress(job.ID, int(downloaded*100/total))
		}
	})
	if err != nil {
		return download.Classify(err)
	}

	size := int64(0)
	if path == "" {
		path, size, err = w.store.LocateArtifact(dir, job.ID, meta.Title)
		if err != nil {
			return download.Classify(fmt.Errorf("downloaded file not found: %w", err))
		}
	} else {
		_, size, err = w.store.LocateArtifact(filepath.Dir(path), filepath.Base(path), "")
		if err != nil {
			return download.Classify(fmt.Errorf("downloaded file not found: %w", err))
		}
	}

	if w.opts.MaxFileSize > 0 && size > w.opts.MaxFileSize {
		if removeErr := w.store.Remove(path); removeErr != nil {
			w.logger.Printf("job %s oversized artifact not removed: %v", job.ID, removeErr)
		}
		return &download.ClassifiedError{
			Kind:    download.KindSizeLimit,
			Message: fmt.Sprintf("downloaded size %d bytes exceeds the %d byte limit", size, w.opts.MaxFileSize),
		}
	}

	w.registry.Complete(job.ID, filepath.Base(path), size)
	w.logger.Printf("job %s completed: %s (%d bytes, persona %s)", job.ID, filepath.Base(path), size, persona.Name)
	return nil
}

func (w *Worker) pausedOrGone(id string) bool {
	snapshot, ok := w.registry.Snapshot(id)
	if !ok {
		return true
	}
	return snapshot.Status == download.StatusPaused
}

// backoff waits before the next persona attempt. Bot-detection-shaped errors
// wait longer, scaling with the persona's position in the fallback order.
// Returns false when the worker context ended during the wait.
func (w *Worker) backoff(ctx context.Context, classified *download.ClassifiedError, persona download.Persona, index int) bool {
	delay := w.opts.UnknownBackoff
	if classified.Retryable() {
		delay = w.opts.RetryBackoff
		if classified.BotCheck {
			delay = persona.BotBackoff * time.Duration(index+1)
		}
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
