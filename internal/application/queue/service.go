package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tubevault/internal/domain/download"
)

// Options tune submission policy and worker behavior.
type Options struct {
	HourlySubmissionCap int
	MaxActivePerOwner   int
	MaxFileSize         int64
	MetadataTimeout     time.Duration
	PollInterval        time.Duration
	// Backoff delays between persona attempts; overridable for tests.
	RetryBackoff   time.Duration
	UnknownBackoff time.Duration
	// Personas overrides the default fallback order; tests shrink it.
	Personas []download.Persona
}

func (o Options) personaOrder() []download.Persona {
	if len(o.Personas) > 0 {
		return o.Personas
	}
	return download.DefaultPersonas()
}

func (o Options) withDefaults() Options {
	if o.HourlySubmissionCap <= 0 {
		o.HourlySubmissionCap = 10
	}
	if o.MaxActivePerOwner <= 0 {
		o.MaxActivePerOwner = 5
	}
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = 15 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.UnknownBackoff <= 0 {
		o.UnknownBackoff = 250 * time.Millisecond
	}
	return o
}

// SubmitRequest is one submission as seen by the transport layer.
type SubmitRequest struct {
	URL            string
	Quality        string
	FormatID       string
	ThrottleRate   string
	Owner          string
	IsPlaylist     bool
	PlaylistVideos []string
}

// Service is the submission facade over the registry. Handlers call it;
// mutation of shared state happens inside Registry under its lock.
type Service struct {
	registry  *Registry
	extractor Extractor
	store     Storage
	logger    *log.Logger
	opts      Options
	personas  []download.Persona
	wake      chan struct{}
}

// NewService wires the queue service with injected ports.
func NewService(registry *Registry, extractor Extractor, store Storage, logger *log.Logger, opts Options) *Service {
	return &Service{
		registry:  registry,
		extractor: extractor,
		store:     store,
		logger:    logger,
		opts:      opts.withDefaults(),
		personas:  opts.personaOrder(),
		wake:      make(chan struct{}, 1),
	}
}

// Wake exposes the channel the worker selects on to pick up new work without
// waiting out a full poll interval.
func (s *Service) Wake() <-chan struct{} {
	return s.wake
}

func (s *Service) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Submit validates, rate-checks and enqueues one job, then spawns the
// best-effort title prefetch. Returns the job snapshot and queue position.
func (s *Service) Submit(req SubmitRequest) (download.Job, error) {
	canonical, err := download.Normalize(req.URL)
	if err != nil {
		return download.Job{}, err
	}
	if err := s.checkCaps(req.Owner); err != nil {
		return download.Job{}, err
	}

	job := &download.Job{
		ID:            uuid.New().String(),
		URL:           req.URL,
		NormalizedURL: canonical.URL,
		Quality:       defaultQuality(req.Quality),
		FormatID:      req.FormatID,
		ThrottleRate:  req.ThrottleRate,
		Owner:         req.Owner,
		Title:         download.TitlePlaceholder,
		CreatedAt:     time.Now(),
	}

	position := s.registry.Add(job)
	s.registry.RecordSubmission(req.Owner)
	s.logger.Printf("job queued: %s (%s) position=%d owner=%s", job.ID, canonical.URL, position, req.Owner)

	go s.prefetchMetadata(job.ID, canonical.URL)
	s.kick()

	snapshot, _ := s.registry.Snapshot(job.ID)
	return snapshot, nil
}

// SubmitPlaylist expands a playlist submission into individual jobs. An
// explicit video selection wins; otherwise the playlist is flattened through
// the extraction engine. Caps are enforced per created job, so a large
// playlist stops at the owner's limit with the earlier jobs kept.
func (s *Service) SubmitPlaylist(ctx context.Context, req SubmitRequest) ([]download.Job, error) {
	urls, err := s.playlistEntryURLs(ctx, req)
	if err != nil {
		return nil, err
	}

	jobs := make([]download.Job, 0, len(urls))
	for _, entryURL := range urls {
		entry := req
		entry.URL = entryURL
		job, err := s.Submit(entry)
		if err != nil {
			if len(jobs) > 0 {
				return jobs, nil
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) playlistEntryURLs(ctx context.Context, req SubmitRequest) ([]string, error) {
	if len(req.PlaylistVideos) > 0 {
		urls := make([]string, 0, len(req.PlaylistVideos))
		for _, id := range req.PlaylistVideos {
			if !download.IsValidVideoID(id) {
				return nil, fmt.Errorf("%w: malformed video id in playlist selection", download.ErrInvalidURL)
			}
			urls = append(urls, download.CanonicalWatchURL(id))
		}
		return urls, nil
	}

	canonical, err := download.Normalize(req.URL)
	if err != nil {
		return nil, err
	}
	if canonical.PlaylistID == "" {
		return nil, fmt.Errorf("%w: URL carries no playlist id", download.ErrInvalidURL)
	}

	listCtx, cancel := context.WithTimeout(ctx, s.opts.MetadataTimeout)
	defer cancel()
	items, err := s.extractor.PlaylistItems(listCtx, canonical.URL)
	if err != nil {
		return nil, fmt.Errorf("playlist listing failed: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: playlist has no entries", download.ErrInvalidURL)
	}

	urls := make([]string, 0, len(items))
	for _, item := range items {
		if !download.IsValidVideoID(item.VideoID) {
			continue
		}
		urls = append(urls, download.CanonicalWatchURL(item.VideoID))
	}
	return urls, nil
}

func (s *Service) checkCaps(owner string) error {
	if s.registry.SubmissionsWithin(owner, time.Hour) >= s.opts.HourlySubmissionCap {
		return fmt.Errorf("%w: hourly submission cap reached", download.ErrRateLimited)
	}
	if s.registry.CountActive(owner) >= s.opts.MaxActivePerOwner {
		return fmt.Errorf("%w: too many downloads in flight", download.ErrRateLimited)
	}
	return nil
}

// prefetchMetadata resolves title and source URL without blocking the
// submission response. Failures leave the placeholder in place.
func (s *Service) prefetchMetadata(jobID, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.MetadataTimeout)
	defer cancel()

	meta, err := s.extractor.Metadata(ctx, url, s.personas[0])
	if err != nil {
		s.logger.Printf("title prefetch failed: %s: %v", jobID, err)
		return
	}
	s.registry.SetMetadata(jobID, meta.Title, meta.SourceURL)
}

// Job returns an owner-scoped job snapshot.
func (s *Service) Job(owner, id string) (download.Job, error) {
	snapshot, ok := s.registry.Snapshot(id)
	if !ok || snapshot.Owner != owner {
		return download.Job{}, download.ErrNotFound
	}
	return snapshot, nil
}

// Jobs returns all jobs visible to the owner.
func (s *Service) Jobs(owner string) []download.Job {
	return s.registry.ListForOwner(owner)
}

// Pause pauses one of the owner's jobs.
func (s *Service) Pause(owner, id string) error {
	if err := s.ownerCheck(owner, id); err != nil {
		return err
	}
	return s.registry.Pause(id)
}

// Resume returns one of the owner's paused jobs to the pending tail.
func (s *Service) Resume(owner, id string) error {
	if err := s.ownerCheck(owner, id); err != nil {
		return err
	}
	if err := s.registry.Resume(id); err != nil {
		return err
	}
	s.kick()
	return nil
}

// PauseAll pauses every pausable job of the owner and returns how many moved.
func (s *Service) PauseAll(owner string) int {
	paused := 0
	for _, id := range s.registry.IDsForOwner(owner) {
		if err := s.registry.Pause(id); err == nil {
			paused++
		}
	}
	return paused
}

// ResumeAll resumes every paused job of the owner and returns how many moved.
func (s *Service) ResumeAll(owner string) int {
	resumed := 0
	for _, id := range s.registry.IDsForOwner(owner) {
		if err := s.registry.Resume(id); err == nil {
			resumed++
		}
	}
	if resumed > 0 {
		s.kick()
	}
	return resumed
}

// Reorder swaps one of the owner's pending jobs with its neighbor.
func (s *Service) Reorder(owner, id string, dir Direction) error {
	if err := s.ownerCheck(owner, id); err != nil {
		return err
	}
	return s.registry.Reorder(id, dir)
}

// History returns the owner's bounded terminal-transition log.
func (s *Service) History(owner string) []HistoryEntry {
	return s.registry.HistoryForOwner(owner)
}

// Counts reports registry totals for health checks.
func (s *Service) Counts() (total, pending int) {
	return s.registry.Counts()
}

func (s *Service) ownerCheck(owner, id string) error {
	jobOwner, ok := s.registry.Owner(id)
	if !ok || jobOwner != owner {
		return download.ErrNotFound
	}
	return nil
}

func defaultQuality(quality string) string {
	if quality == "" {
		return "best"
	}
	return quality
}
