package queue

import (
	"context"

	"tubevault/internal/domain/download"
)

// Metadata is what the extraction engine reports about a video before download.
type Metadata struct {
	Title     string
	Duration  float64
	Size      int64
	SourceURL string
}

// Request carries everything the extraction engine needs for one download attempt.
type Request struct {
	URL          string
	Quality      string
	FormatID     string
	ThrottleRate string
	OutputDir    string
	// OutputStem is the deterministic artifact base name (the job id), so a
	// finished transfer maps back to its job without filename guessing.
	OutputStem string
	Persona    download.Persona
}

// PlaylistItem is one entry of a flattened playlist listing.
type PlaylistItem struct {
	VideoID string
	Title   string
}

// Extractor is the application port for the external extraction engine.
// Metadata and Download are long-running; both honor context cancellation so
// pause can stop an in-flight transfer.
type Extractor interface {
	Metadata(ctx context.Context, url string, persona download.Persona) (Metadata, error)
	Download(ctx context.Context, req Request, onProgress func(downloaded, total int64)) (string, error)
	PlaylistItems(ctx context.Context, url string) ([]PlaylistItem, error)
}

// Storage is the application port for per-owner artifact storage.
type Storage interface {
	EnsureOwnerDir(owner string) (string, error)
	LocateArtifact(dir, stem, title string) (string, int64, error)
	Remove(path string) error
}
