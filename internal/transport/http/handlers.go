package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gorilla/mux"

	"tubevault/internal/application/queue"
	"tubevault/internal/domain/download"
	"tubevault/internal/infrastructure/filesystem"
)

type queueUseCases interface {
	Submit(req queue.SubmitRequest) (download.Job, error)
	SubmitPlaylist(ctx context.Context, req queue.SubmitRequest) ([]download.Job, error)
	Job(owner, id string) (download.Job, error)
	Jobs(owner string) []download.Job
	Pause(owner, id string) error
	Resume(owner, id string) error
	PauseAll(owner string) int
	ResumeAll(owner string) int
	Reorder(owner, id string, dir queue.Direction) error
	History(owner string) []queue.HistoryEntry
	Counts() (total, pending int)
}

type fileStore interface {
	OwnerDir(owner string) string
	ResolveFile(owner, filename string) (string, error)
	ListFiles(owner string) ([]filesystem.File, error)
	Remove(path string) error
}

type cleaner interface {
	RunOnce() (removed int, freed int64)
}

// Handler wires HTTP handlers with the queue, storage and cleanup use cases.
type Handler struct {
	queue            queueUseCases
	store            fileStore
	cleaner          cleaner
	deleteAfterServe bool
}

// NewHandler creates the HTTP handler set.
func NewHandler(queueService queueUseCases, store fileStore, cleanupService cleaner, deleteAfterServe bool) *Handler {
	return &Handler{queue: queueService, store: store, cleaner: cleanupService, deleteAfterServe: deleteAfterServe}
}

type submitBody struct {
	URL            string   `json:"url"`
	Quality        string   `json:"quality"`
	FormatID       string   `json:"format_id"`
	ThrottleSpeed  string   `json:"throttle_speed"`
	IsPlaylist     bool     `json:"is_playlist"`
	PlaylistVideos []string `json:"playlist_videos"`
}

// SubmitDownload handles POST /download.
func (h *Handler) SubmitDownload(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req := queue.SubmitRequest{
		URL:            body.URL,
		Quality:        body.Quality,
		FormatID:       body.FormatID,
		ThrottleRate:   body.ThrottleSpeed,
		Owner:          ownerFromRequest(r),
		IsPlaylist:     body.IsPlaylist,
		PlaylistVideos: body.PlaylistVideos,
	}

	if req.IsPlaylist || len(req.PlaylistVideos) > 0 {
		jobs, err := h.queue.SubmitPlaylist(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		ids := make([]string, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"job_ids": ids,
		})
		return
	}

	job, err := h.queue.Submit(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"job_id":         job.ID,
		"queue_position": job.QueuePosition,
	})
}

// JobStatus handles GET /status/{id}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Job(ownerFromRequest(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Queue handles GET /queue.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.queue.Jobs(ownerFromRequest(r)),
	})
}

// Pause handles POST /pause/{id}.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Pause(ownerFromRequest(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Resume handles POST /resume/{id}.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Resume(ownerFromRequest(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// PauseAll handles POST /pause_all.
func (h *Handler) PauseAll(w http.ResponseWriter, r *http.Request) {
	count := h.queue.PauseAll(ownerFromRequest(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "paused": count})
}

// ResumeAll handles POST /resume_all.
func (h *Handler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	count := h.queue.ResumeAll(ownerFromRequest(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "resumed": count})
}

// Prioritize handles POST /prioritize/{id}/{direction}.
func (h *Handler) Prioritize(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dir := queue.Direction(vars["direction"])
	if dir != queue.MoveUp && dir != queue.MoveDown {
		writeFailure(w, http.StatusBadRequest, "invalid_request", "direction must be up or down")
		return
	}

	err := h.queue.Reorder(ownerFromRequest(r), vars["id"], dir)
	if errors.Is(err, download.ErrAtEdge) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "moved": false, "reason": "at_edge"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "moved": true})
}

// ListDownloads handles GET /list_downloads.
func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListFiles(ownerFromRequest(r))
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "storage", "could not list downloads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

// DownloadFile handles GET /download_file/{filename}.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	full, err := h.store.ResolveFile(ownerFromRequest(r), mux.Vars(r)["filename"])
	if err != nil {
		writeFailure(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(full)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(full)+"\"")
	streamFile(w, r, full, contentType)

	// Ephemeral-serving mode drops the artifact once a full (non-ranged)
	// transfer has been written out.
	if h.deleteAfterServe && r.Header.Get("Range") == "" {
		_ = h.store.Remove(full)
	}
}

// OpenFolder handles GET /open_folder: best-effort folder reveal for
// deployments running next to the browser.
func (h *Handler) OpenFolder(w http.ResponseWriter, r *http.Request) {
	dir := h.store.OwnerDir(ownerFromRequest(r))

	opener := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		opener = "open"
	case "windows":
		opener = "explorer"
	}
	_ = exec.Command(opener, dir).Start()

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": dir})
}

// History handles GET /history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": h.queue.History(ownerFromRequest(r)),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	total, pending := h.queue.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"jobs":    total,
		"pending": pending,
	})
}

// Cleanup handles POST /cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, freed := h.cleaner.RunOnce()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"removed":     removed,
		"freed_bytes": freed,
	})
}

// ownerFromRequest derives the client identity used to scope queue visibility
// and storage folders. It is a network address, not authentication: clients
// behind one NAT share a view.
func ownerFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success":    false,
		"error":      message,
		"error_type": errorType,
	})
}

// writeError maps taxonomy sentinels onto HTTP statuses and structured codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, download.ErrInvalidURL):
		writeFailure(w, http.StatusBadRequest, string(download.KindInvalidURL), err.Error())
	case errors.Is(err, download.ErrRateLimited):
		writeFailure(w, http.StatusTooManyRequests, string(download.KindRateLimited), err.Error())
	case errors.Is(err, download.ErrNotFound):
		writeFailure(w, http.StatusNotFound, string(download.KindNotFound), err.Error())
	case errors.Is(err, download.ErrInvalidState):
		writeFailure(w, http.StatusConflict, string(download.KindInvalidState), err.Error())
	default:
		writeFailure(w, http.StatusInternalServerError, string(download.KindUnknown), err.Error())
	}
}
