package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tubevault/internal/application/queue"
	"tubevault/internal/domain/download"
	"tubevault/internal/infrastructure/filesystem"
)

type stubQueue struct {
	submitFn   func(req queue.SubmitRequest) (download.Job, error)
	playlistFn func(ctx context.Context, req queue.SubmitRequest) ([]download.Job, error)
	jobFn      func(owner, id string) (download.Job, error)
	jobsFn     func(owner string) []download.Job
	pauseFn    func(owner, id string) error
	resumeFn   func(owner, id string) error
	reorderFn  func(owner, id string, dir queue.Direction) error
	historyFn  func(owner string) []queue.HistoryEntry
}

func (s *stubQueue) Submit(req queue.SubmitRequest) (download.Job, error) {
	if s.submitFn == nil {
		return download.Job{ID: "job-1", QueuePosition: 1}, nil
	}
	return s.submitFn(req)
}

func (s *stubQueue) SubmitPlaylist(ctx context.Context, req queue.SubmitRequest) ([]download.Job, error) {
	if s.playlistFn == nil {
		return nil, download.ErrInvalidURL
	}
	return s.playlistFn(ctx, req)
}

func (s *stubQueue) Job(owner, id string) (download.Job, error) {
	if s.jobFn == nil {
		return download.Job{}, download.ErrNotFound
	}
	return s.jobFn(owner, id)
}

func (s *stubQueue) Jobs(owner string) []download.Job {
	if s.jobsFn == nil {
		return nil
	}
	return s.jobsFn(owner)
}

func (s *stubQueue) Pause(owner, id string) error {
	if s.pauseFn == nil {
		return nil
	}
	return s.pauseFn(owner, id)
}

func (s *stubQueue) Resume(owner, id string) error {
	if s.resumeFn == nil {
		return nil
	}
	return s.resumeFn(owner, id)
}

func (s *stubQueue) PauseAll(owner string) int  { return 2 }
func (s *stubQueue) ResumeAll(owner string) int { return 2 }

func (s *stubQueue) Reorder(owner, id string, dir queue.Direction) error {
	if s.reorderFn == nil {
		return nil
	}
	return s.reorderFn(owner, id, dir)
}

func (s *stubQueue) History(owner string) []queue.HistoryEntry {
	if s.historyFn == nil {
		return nil
	}
	return s.historyFn(owner)
}

func (s *stubQueue) Counts() (int, int) { return 3, 1 }

type stubFiles struct {
	files   []filesystem.File
	removed []string
}

func (s *stubFiles) OwnerDir(owner string) string { return "/tmp/downloads/" + owner }

func (s *stubFiles) ResolveFile(owner, filename string) (string, error) {
	return "", fmt.Errorf("file not found")
}

func (s *stubFiles) ListFiles(owner string) ([]filesystem.File, error) {
	return s.files, nil
}

func (s *stubFiles) Remove(path string) error {
	s.removed = append(s.removed, path)
	return nil
}

type stubCleaner struct{}

func (stubCleaner) RunOnce() (int, int64) { return 4, 1024 }

func newTestHandler(q *stubQueue) http.Handler {
	return NewRouter(NewHandler(q, &stubFiles{}, stubCleaner{}, false))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.168.1.10:54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, payload
}

func TestSubmitDownload_Success(t *testing.T) {
	q := &stubQueue{
		submitFn: func(req queue.SubmitRequest) (download.Job, error) {
			if req.Owner != "192.168.1.10" {
				t.Fatalf("owner = %q, want remote host", req.Owner)
			}
			if req.ThrottleRate != "500K" {
				t.Fatalf("throttle = %q, want 500K", req.ThrottleRate)
			}
			return download.Job{ID: "job-1", QueuePosition: 2}, nil
		},
	}

	rec, payload := doJSON(t, newTestHandler(q), http.MethodPost, "/download", map[string]interface{}{
		"url":            "https://youtu.be/dQw4w9WgXcQ",
		"throttle_speed": "500K",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["job_id"] != "job-1" || payload["queue_position"] != float64(2) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSubmitDownload_InvalidURL(t *testing.T) {
	q := &stubQueue{
		submitFn: func(req queue.SubmitRequest) (download.Job, error) {
			return download.Job{}, download.ErrInvalidURL
		},
	}

	rec, payload := doJSON(t, newTestHandler(q), http.MethodPost, "/download", map[string]interface{}{
		"url": "https://example.com/nope",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if payload["success"] != false || payload["error_type"] != "invalid_url" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSubmitDownload_RateLimited(t *testing.T) {
	q := &stubQueue{
		submitFn: func(req queue.SubmitRequest) (download.Job, error) {
			return download.Job{}, fmt.Errorf("%w: hourly submission cap reached", download.ErrRateLimited)
		},
	}

	rec, payload := doJSON(t, newTestHandler(q), http.MethodPost, "/download", map[string]interface{}{
		"url": "https://youtu.be/dQw4w9WgXcQ",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if payload["error_type"] != "rate_limit_exceeded" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSubmitDownload_MalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader("{not json"))
	req.RemoteAddr = "192.168.1.10:54321"
	rec := httptest.NewRecorder()
	newTestHandler(&stubQueue{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitDownload_PlaylistBranch(t *testing.T) {
	q := &stubQueue{
		playlistFn: func(ctx context.Context, req queue.SubmitRequest) ([]download.Job, error) {
			return []download.Job{{ID: "a"}, {ID: "b"}}, nil
		},
	}

	rec, payload := doJSON(t, newTestHandler(q), http.MethodPost, "/download", map[string]interface{}{
		"url":         "https://www.youtube.com/playlist?list=PLAAAAAAAAAAAAAA",
		"is_playlist": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	ids, ok := payload["job_ids"].([]interface{})
	if !ok || len(ids) != 2 {
		t.Fatalf("payload = %v", payload)
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	rec, payload := doJSON(t, newTestHandler(&stubQueue{}), http.MethodGet, "/status/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if payload["error_type"] != "not_found" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPause_InvalidState(t *testing.T) {
	q := &stubQueue{
		pauseFn: func(owner, id string) error {
			return fmt.Errorf("%w: cannot pause completed job", download.ErrInvalidState)
		},
	}

	rec, payload := doJSON(t, newTestHandler(q), http.MethodPost, "/pause/job-1", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if payload["error_type"] != "invalid_state_transition" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPrioritize_AtEdgeIsNotAnError(t *testing.T) {
	q := &stubQueue{
		reorderFn: func(owner, id string, dir queue.Direction) error {
			return download.ErrAtEdge
		},
	}

	rec, payload := doJSON(t, newTestHandler(q), http.MethodPost, "/prioritize/job-1/up", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["moved"] != false || payload["reason"] != "at_edge" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPrioritize_RejectsUnknownDirection(t *testing.T) {
	rec, _ := doJSON(t, newTestHandler(&stubQueue{}), http.MethodPost, "/prioritize/job-1/sideways", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOwnerFromRequest_ForwardedForWins(t *testing.T) {
	q := &stubQueue{
		jobsFn: func(owner string) []download.Job {
			if owner != "203.0.113.7" {
				t.Fatalf("owner = %q, want first forwarded address", owner)
			}
			return []download.Job{}
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	req.RemoteAddr = "192.168.1.10:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	newTestHandler(q).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec, payload := doJSON(t, newTestHandler(&stubQueue{}), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["status"] != "ok" || payload["jobs"] != float64(3) || payload["pending"] != float64(1) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	rec, payload := doJSON(t, newTestHandler(&stubQueue{}), http.MethodPost, "/cleanup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["removed"] != float64(4) || payload["freed_bytes"] != float64(1024) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestDownloadFile_NotFound(t *testing.T) {
	rec, payload := doJSON(t, newTestHandler(&stubQueue{}), http.MethodGet, "/download_file/missing.mp4", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if payload["error_type"] != "not_found" {
		t.Fatalf("payload = %v", payload)
	}
}
