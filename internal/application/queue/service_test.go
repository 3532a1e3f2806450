package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tubevault/internal/domain/download"
)

func newTestService(extractor *stubExtractor, opts Options) (*Service, *Registry) {
	reg := NewRegistry(10)
	return NewService(reg, extractor, &stubStorage{}, testLogger(), opts), reg
}

func TestService_SubmitQueuesJob(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{}, testOptions(1))

	job, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected a generated job id")
	}
	if job.Status != download.StatusQueued || job.QueuePosition != 1 {
		t.Fatalf("job = %s/%d, want queued/1", job.Status, job.QueuePosition)
	}
	if job.NormalizedURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("normalized URL = %q", job.NormalizedURL)
	}
	if job.Quality != "best" {
		t.Fatalf("quality = %q, want default best", job.Quality)
	}
}

func TestService_SubmitRejectsInvalidURL(t *testing.T) {
	svc, reg := newTestService(&stubExtractor{}, testOptions(1))

	_, err := svc.Submit(SubmitRequest{URL: "https://example.com/watch?v=AAAAAAAAAAA", Owner: "alice"})
	if !errors.Is(err, download.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if total, _ := reg.Counts(); total != 0 {
		t.Fatalf("rejected submission must not create a job, total=%d", total)
	}
}

func TestService_SubmitEnforcesHourlyCap(t *testing.T) {
	opts := testOptions(1)
	opts.MaxActivePerOwner = 100
	svc, _ := newTestService(&stubExtractor{}, opts)

	for i := 0; i < 10; i++ {
		if _, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"}); err != nil {
			t.Fatalf("submission %d failed: %v", i+1, err)
		}
	}
	_, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
	if !errors.Is(err, download.ErrRateLimited) {
		t.Fatalf("11th submission: got %v, want ErrRateLimited", err)
	}

	// A different owner is not affected by alice's counter.
	if _, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "bob"}); err != nil {
		t.Fatalf("other owner rejected: %v", err)
	}
}

func TestService_SubmitEnforcesActiveCap(t *testing.T) {
	opts := testOptions(1)
	opts.MaxActivePerOwner = 2
	opts.HourlySubmissionCap = 100
	svc, _ := newTestService(&stubExtractor{}, opts)

	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"}); err != nil {
			t.Fatalf("submission %d failed: %v", i+1, err)
		}
	}
	_, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
	if !errors.Is(err, download.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited once active cap is hit", err)
	}
}

func TestService_SubmitNudgesWorker(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{}, testOptions(1))

	if _, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	select {
	case <-svc.Wake():
	default:
		t.Fatalf("submit must nudge the wake channel")
	}
}

func TestService_SubmitPlaylistWithExplicitSelection(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{}, testOptions(1))

	jobs, err := svc.SubmitPlaylist(context.Background(), SubmitRequest{
		URL:            "https://www.youtube.com/playlist?list=PLAAAAAAAAAAAAAA",
		Owner:          "alice",
		PlaylistVideos: []string{"dQw4w9WgXcQ", "AAAAAAAAAAA"},
	})
	if err != nil {
		t.Fatalf("playlist submit failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[1].NormalizedURL != "https://www.youtube.com/watch?v=AAAAAAAAAAA" {
		t.Fatalf("second entry URL = %q", jobs[1].NormalizedURL)
	}

	_, err = svc.SubmitPlaylist(context.Background(), SubmitRequest{
		URL:            "https://www.youtube.com/playlist?list=PLAAAAAAAAAAAAAA",
		Owner:          "alice",
		PlaylistVideos: []string{"not a video id"},
	})
	if !errors.Is(err, download.ErrInvalidURL) {
		t.Fatalf("malformed selection: got %v, want ErrInvalidURL", err)
	}
}

func TestService_SubmitPlaylistFlattensViaExtractor(t *testing.T) {
	extractor := &stubExtractor{
		playlistFn: func(ctx context.Context, url string) ([]PlaylistItem, error) {
			return []PlaylistItem{
				{VideoID: "dQw4w9WgXcQ", Title: "one"},
				{VideoID: "not-valid", Title: "skipped"},
				{VideoID: "AAAAAAAAAAA", Title: "two"},
			}, nil
		},
	}
	svc, _ := newTestService(extractor, testOptions(1))

	jobs, err := svc.SubmitPlaylist(context.Background(), SubmitRequest{
		URL:   "https://www.youtube.com/playlist?list=PLAAAAAAAAAAAAAA",
		Owner: "alice",
	})
	if err != nil {
		t.Fatalf("playlist submit failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2 (malformed entry skipped)", len(jobs))
	}
}

func TestService_SubmitPlaylistRequiresPlaylistID(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{}, testOptions(1))

	_, err := svc.SubmitPlaylist(context.Background(), SubmitRequest{
		URL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Owner: "alice",
	})
	if !errors.Is(err, download.ErrInvalidURL) {
		t.Fatalf("got %v, want ErrInvalidURL for a playlist-less URL", err)
	}
}

func TestService_SubmitPlaylistKeepsPartialResultsOnCap(t *testing.T) {
	opts := testOptions(1)
	opts.MaxActivePerOwner = 2
	opts.HourlySubmissionCap = 100
	svc, _ := newTestService(&stubExtractor{}, opts)

	jobs, err := svc.SubmitPlaylist(context.Background(), SubmitRequest{
		URL:            "https://www.youtube.com/playlist?list=PLAAAAAAAAAAAAAA",
		Owner:          "alice",
		PlaylistVideos: []string{"dQw4w9WgXcQ", "AAAAAAAAAAA", "BBBBBBBBBBB"},
	})
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2 kept before the cap", len(jobs))
	}
}

func TestService_OwnerScopedLookups(t *testing.T) {
	svc, _ := newTestService(&stubExtractor{}, testOptions(1))

	job, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := svc.Job("alice", job.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := svc.Job("bob", job.ID); !errors.Is(err, download.ErrNotFound) {
		t.Fatalf("foreign lookup: got %v, want ErrNotFound", err)
	}
	if err := svc.Pause("bob", job.ID); !errors.Is(err, download.ErrNotFound) {
		t.Fatalf("foreign pause: got %v, want ErrNotFound", err)
	}
	if jobs := svc.Jobs("bob"); len(jobs) != 0 {
		t.Fatalf("bob sees %d jobs, want 0", len(jobs))
	}
}

func TestService_PauseAllResumeAll(t *testing.T) {
	opts := testOptions(1)
	opts.HourlySubmissionCap = 100
	opts.MaxActivePerOwner = 100
	svc, _ := newTestService(&stubExtractor{}, opts)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		job, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		ids = append(ids, job.ID)
	}

	if err := svc.Pause("alice", ids[0]); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if got := svc.PauseAll("alice"); got != 2 {
		t.Fatalf("PauseAll = %d, want 2 newly paused", got)
	}
	if got := svc.ResumeAll("alice"); got != 3 {
		t.Fatalf("ResumeAll = %d, want 3", got)
	}

	for _, id := range ids {
		snap, err := svc.Job("alice", id)
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if snap.Status != download.StatusQueued {
			t.Fatalf("job %s = %s, want queued after resume all", id, snap.Status)
		}
	}
}

func TestService_ReorderRoundTrip(t *testing.T) {
	opts := testOptions(1)
	opts.HourlySubmissionCap = 100
	opts.MaxActivePerOwner = 100
	svc, _ := newTestService(&stubExtractor{}, opts)

	var ids []string
	for i := 0; i < 2; i++ {
		job, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	if err := svc.Reorder("alice", ids[1], MoveUp); err != nil {
		t.Fatalf("reorder failed: %v", err)
	}
	snap, _ := svc.Job("alice", ids[1])
	if snap.QueuePosition != 1 {
		t.Fatalf("position = %d, want 1", snap.QueuePosition)
	}
	if err := svc.Reorder("alice", ids[1], MoveUp); !errors.Is(err, download.ErrAtEdge) {
		t.Fatalf("got %v, want ErrAtEdge at the head", err)
	}
}

func TestService_HistoryAfterTerminalTransitions(t *testing.T) {
	opts := testOptions(1)
	opts.HourlySubmissionCap = 100
	opts.MaxActivePerOwner = 100
	svc, reg := newTestService(&stubExtractor{}, opts)

	for i := 0; i < 2; i++ {
		job, err := svc.Submit(SubmitRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Owner: "alice"})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		if i == 0 {
			reg.Claim(job.ID)
			reg.Complete(job.ID, fmt.Sprintf("file-%d.mp4", i), 10)
		} else {
			reg.Fail(job.ID, download.KindPermanent, "private video")
		}
	}

	entries := svc.History("alice")
	if len(entries) != 2 {
		t.Fatalf("history = %d entries, want 2", len(entries))
	}
	if entries[0].Status != download.StatusFailed || entries[1].Status != download.StatusCompleted {
		t.Fatalf("history order = %s,%s, want failed,completed", entries[0].Status, entries[1].Status)
	}
	if got := svc.History("bob"); len(got) != 0 {
		t.Fatalf("foreign history = %d entries, want 0", len(got))
	}
}
