package download

import (
	"errors"
	"strings"
)

// Kind is the user-facing failure category attached to rejected requests and failed jobs.
type Kind string

const (
	KindInvalidURL   Kind = "invalid_url"
	KindRateLimited  Kind = "rate_limit_exceeded"
	KindPermanent    Kind = "permanent"
	KindRetryable    Kind = "retryable"
	KindSizeLimit    Kind = "size_limit_exceeded"
	KindStorage      Kind = "storage_setup"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state_transition"
	KindUnknown      Kind = "unknown"
)

var (
	ErrInvalidURL   = errors.New("invalid or unsupported video URL")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrNotFound     = errors.New("job not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrAtEdge       = errors.New("job already at queue edge")
	ErrSizeLimit    = errors.New("file exceeds the configured size limit")
	ErrStorage      = errors.New("could not prepare storage directory")
)

// maxErrorLen bounds how much raw extractor output ever reaches a client.
const maxErrorLen = 200

// ClassifiedError carries a failure category plus a bounded user-facing message.
type ClassifiedError struct {
	Kind     Kind
	Message  string
	BotCheck bool
	cause    error
}

func (e *ClassifiedError) Error() string { return e.Message }

func (e *ClassifiedError) Unwrap() error { return e.cause }

// Permanent reports whether remaining persona attempts would be pointless.
func (e *ClassifiedError) Permanent() bool { return e.Kind == KindPermanent }

// Retryable reports whether the next persona in the fallback order should be tried.
func (e *ClassifiedError) Retryable() bool { return e.Kind == KindRetryable }

var permanentMarkers = []string{
	"private video",
	"video unavailable",
	"this video is not available",
	"removed by the uploader",
	"sign in to confirm your age",
	"age-restricted",
	"account associated with this video has been terminated",
	"copyright",
}

var botCheckMarkers = []string{
	"sign in to confirm you're not a bot",
	"sign in to confirm you’re not a bot",
	"429",
	"too many requests",
}

var retryableMarkers = []string{
	"unable to extract",
	"player response",
	"http error 403",
	"403 forbidden",
	"fragment",
	"timed out",
	"timeout",
	"connection reset",
	"temporarily",
	"unable to download webpage",
}

// Classify maps raw extraction-engine output onto the failure taxonomy.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := KindUnknown
	botCheck := false
	switch {
	case containsAny(lower, permanentMarkers):
		kind = KindPermanent
	case containsAny(lower, botCheckMarkers):
		kind = KindRetryable
		botCheck = true
	case containsAny(lower, retryableMarkers):
		kind = KindRetryable
	}

	return &ClassifiedError{
		Kind:     kind,
		Message:  truncate(msg, maxErrorLen),
		BotCheck: botCheck,
		cause:    err,
	}
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
