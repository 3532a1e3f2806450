package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tubevault/internal/domain/download"
)

// Direction selects which neighbor a pending job swaps with.
type Direction string

const (
	MoveUp   Direction = "up"
	MoveDown Direction = "down"
)

// HistoryEntry is one terminal transition kept for analytics.
type HistoryEntry struct {
	JobID      string          `json:"job_id"`
	URL        string          `json:"url"`
	Title      string          `json:"title"`
	Owner      string          `json:"-"`
	Status     download.Status `json:"status"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Registry is the in-memory job store: id-keyed map, ordered pending list,
// paused set, per-owner submission counters and a bounded history log. Every
// operation runs under one mutex; job count is small and operations are
// brief, so one coarse lock avoids ordering hazards between the pending list
// and the paused set.
type Registry struct {
	mu          sync.Mutex
	jobs        map[string]*download.Job
	pending     []string
	paused      map[string]struct{}
	submissions map[string][]time.Time
	cancels     map[string]context.CancelFunc
	history     []HistoryEntry
	historyCap  int
}

// NewRegistry creates an empty registry with the given history capacity.
func NewRegistry(historyCap int) *Registry {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &Registry{
		jobs:        make(map[string]*download.Job),
		paused:      make(map[string]struct{}),
		submissions: make(map[string][]time.Time),
		cancels:     make(map[string]context.CancelFunc),
		historyCap:  historyCap,
	}
}

// Add inserts a queued job at the pending tail and returns its 1-based position.
func (r *Registry) Add(job *download.Job) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	job.Status = download.StatusQueued
	r.jobs[job.ID] = job
	r.pending = append(r.pending, job.ID)
	return len(r.pending)
}

// Snapshot returns a copy of a job with its current queue position filled in.
func (r *Registry) Snapshot(id string) (download.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return download.Job{}, false
	}
	return r.copyWithPosition(job), true
}

// PeekNextEligible returns the head of the pending list without removing it.
func (r *Registry) PeekNextEligible() (download.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.pending {
		if _, isPaused := r.paused[id]; isPaused {
			continue
		}
		if job, ok := r.jobs[id]; ok {
			return *job, true
		}
	}
	return download.Job{}, false
}

// Claim atomically removes a job from the pending list and marks it
// downloading. It returns false when the job was paused or mutated since the
// caller peeked; callers must re-check before starting work.
func (r *Registry) Claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != download.StatusQueued {
		return false
	}
	if _, isPaused := r.paused[id]; isPaused {
		return false
	}
	if !r.removePending(id) {
		return false
	}
	job.Status = download.StatusDownloading
	return true
}

// AttachCancel registers the cancel func of the job's active attempt so a
// pause can stop the in-flight transfer.
func (r *Registry) AttachCancel(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

// DetachCancel drops a previously attached cancel func.
func (r *Registry) DetachCancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// UpdateProgress applies a monotonic progress update. It is ignored when the
// job no longer exists or is not downloading.
func (r *Registry) UpdateProgress(id string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != download.StatusDownloading {
		return
	}
	if percent > job.Progress {
		job.Progress = percent
	}
}

// SetMetadata records best-effort title and source URL once known.
func (r *Registry) SetMetadata(id, title, sourceURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	if title != "" {
		job.Title = title
	}
	if sourceURL != "" {
		job.SourceURL = sourceURL
	}
}

// Complete marks a job completed and appends a history entry.
func (r *Registry) Complete(id, filename string, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return
	}
	job.Status = download.StatusCompleted
	job.Progress = 100
	job.Filename = filename
	job.FileSize = size
	now := time.Now()
	job.FinishedAt = &now
	r.appendHistory(job)
}

// Fail marks a job failed with a classified error and appends a history entry.
func (r *Registry) Fail(id string, kind download.Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return
	}
	r.removePending(id)
	delete(r.paused, id)
	job.Status = download.StatusFailed
	job.Error = message
	job.ErrorType = string(kind)
	now := time.Now()
	job.FinishedAt = &now
	r.appendHistory(job)
}

// Pause moves a queued or downloading job into the paused set. Pausing an
// already paused job is a no-op; pausing a terminal job is an error. When the
// job has an attempt in flight, its context is cancelled.
func (r *Registry) Pause(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return download.ErrNotFound
	}
	switch job.Status {
	case download.StatusPaused:
		return nil
	case download.StatusQueued, download.StatusDownloading:
	default:
		return fmt.Errorf("%w: cannot pause %s job", download.ErrInvalidState, job.Status)
	}

	r.removePending(id)
	r.paused[id] = struct{}{}
	job.Status = download.StatusPaused
	if cancel, active := r.cancels[id]; active {
		cancel()
		delete(r.cancels, id)
	}
	return nil
}

// Resume returns a paused job to the pending tail.
func (r *Registry) Resume(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return download.ErrNotFound
	}
	if job.Status != download.StatusPaused {
		return fmt.Errorf("%w: cannot resume %s job", download.ErrInvalidState, job.Status)
	}

	delete(r.paused, id)
	r.pending = append(r.pending, id)
	job.Status = download.StatusQueued
	return nil
}

// Reorder swaps a pending job with its immediate neighbor. At either boundary
// it reports ErrAtEdge instead of failing silently.
func (r *Registry) Reorder(id string, dir Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return download.ErrNotFound
	}
	idx := -1
	for i, pendingID := range r.pending {
		if pendingID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: job is not pending", download.ErrInvalidState)
	}

	switch dir {
	case MoveUp:
		if idx == 0 {
			return download.ErrAtEdge
		}
		r.pending[idx-1], r.pending[idx] = r.pending[idx], r.pending[idx-1]
	case MoveDown:
		if idx == len(r.pending)-1 {
			return download.ErrAtEdge
		}
		r.pending[idx], r.pending[idx+1] = r.pending[idx+1], r.pending[idx]
	default:
		return fmt.Errorf("%w: unknown direction %q", download.ErrInvalidState, dir)
	}
	return nil
}

// ListForOwner returns a snapshot of all jobs visible to an owner, queue
// positions included, newest first.
func (r *Registry) ListForOwner(owner string) []download.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]download.Job, 0)
	for _, job := range r.jobs {
		if job.Owner != owner {
			continue
		}
		jobs = append(jobs, r.copyWithPosition(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// IDsForOwner returns the ids of an owner's non-terminal jobs.
func (r *Registry) IDsForOwner(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0)
	for id, job := range r.jobs {
		if job.Owner == owner && !job.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Owner returns the owner of a job.
func (r *Registry) Owner(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return "", false
	}
	return job.Owner, true
}

// RecordSubmission notes a submission time for the owner's rolling-hour cap.
func (r *Registry) RecordSubmission(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[owner] = append(r.submissions[owner], time.Now())
}

// SubmissionsWithin counts the owner's submissions inside the rolling window.
func (r *Registry) SubmissionsWithin(owner string, window time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-window)
	recent := r.submissions[owner][:0]
	for _, at := range r.submissions[owner] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	r.submissions[owner] = recent
	return len(recent)
}

// CountActive counts the owner's queued, downloading and paused jobs.
func (r *Registry) CountActive(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, job := range r.jobs {
		if job.Owner == owner && !job.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// HistoryForOwner returns the owner's slice of the bounded history log,
// newest first.
func (r *Registry) HistoryForOwner(owner string) []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]HistoryEntry, 0)
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Owner == owner {
			entries = append(entries, r.history[i])
		}
	}
	return entries
}

// Counts returns total and pending job counts for health reporting.
func (r *Registry) Counts() (total, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs), len(r.pending)
}

// removePending deletes an id from the pending list; callers hold the lock.
func (r *Registry) removePending(id string) bool {
	for i, pendingID := range r.pending {
		if pendingID == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) appendHistory(job *download.Job) {
	entry := HistoryEntry{
		JobID:  job.ID,
		URL:    job.NormalizedURL,
		Title:  job.Title,
		Owner:  job.Owner,
		Status: job.Status,
		Error:  job.Error,
	}
	if job.FinishedAt != nil {
		entry.FinishedAt = *job.FinishedAt
	}
	r.history = append(r.history, entry)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
}

func (r *Registry) copyWithPosition(job *download.Job) download.Job {
	snapshot := *job
	snapshot.QueuePosition = 0
	for i, id := range r.pending {
		if id == job.ID {
			snapshot.QueuePosition = i + 1
			break
		}
	}
	return snapshot
}
