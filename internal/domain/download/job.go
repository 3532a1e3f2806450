package download

import "time"

// Status describes where a job is in its lifecycle.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// IsTerminal reports whether no further transition happens without an explicit resume.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the job still counts against the owner's in-flight cap.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusDownloading
}

// TitlePlaceholder is shown until the metadata prefetch resolves a real title.
const TitlePlaceholder = "(fetching title)"

// Job is one queued, executing or finished download request.
type Job struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	NormalizedURL string     `json:"normalized_url"`
	Quality       string     `json:"quality"`
	FormatID      string     `json:"format_id,omitempty"`
	ThrottleRate  string     `json:"throttle_rate,omitempty"`
	Owner         string     `json:"-"`
	Status        Status     `json:"status"`
	Progress      int        `json:"progress"`
	Title         string     `json:"title"`
	SourceURL     string     `json:"source_url,omitempty"`
	Filename      string     `json:"filename,omitempty"`
	FileSize      int64      `json:"file_size,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorType     string     `json:"error_type,omitempty"`
	QueuePosition int        `json:"queue_position,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}
