package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"tubevault/internal/application/queue"
	"tubevault/internal/domain/download"
)

// progressInterval is how often the engine reports transfer progress.
const progressInterval = 500 * time.Millisecond

// Client adapts the go-ytdlp extraction engine to the queue's Extractor
// port. It is the only package that knows engine flags and output formats.
type Client struct {
	socketTimeout time.Duration
	logger        *log.Logger
}

// NewClient creates the extraction adapter. socketTimeout applies to
// metadata lookups only; full downloads lean on fragment retries instead.
func NewClient(socketTimeout time.Duration, logger *log.Logger) *Client {
	if socketTimeout <= 0 {
		socketTimeout = 15 * time.Second
	}
	return &Client{socketTimeout: socketTimeout, logger: logger}
}

// infoDump is the subset of the engine's JSON info dump the adapter reads.
type infoDump struct {
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	URL            string  `json:"url"`
	Formats        []struct {
		Filesize       int64 `json:"filesize"`
		FilesizeApprox int64 `json:"filesize_approx"`
	} `json:"formats"`
	Entries []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"entries"`
}

// Metadata fetches title, size estimate and direct source URL for one video.
func (c *Client) Metadata(ctx context.Context, url string, persona download.Persona) (queue.Metadata, error) {
	dl := ytdlp.New().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist().
		SocketTimeout(c.socketTimeout.Seconds()).
		ExtractorArgs("youtube:player_client="+persona.PlayerClient).
		UserAgent(persona.UserAgent)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return queue.Metadata{}, fmt.Errorf("metadata fetch failed: %w", err)
	}

	var info infoDump
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return queue.Metadata{}, fmt.Errorf("unreadable metadata dump: %w", err)
	}

	return queue.Metadata{
		Title:     info.Title,
		Duration:  info.Duration,
		Size:      estimateSize(info),
		SourceURL: info.URL,
	}, nil
}

// Download transfers one video into the owner's folder. The output template
// is bound to the job id so the artifact maps back deterministically. The
// context is honored mid-transfer, which is what makes pause responsive.
func (c *Client) Download(ctx context.Context, req queue.Request, onProgress func(downloaded, total int64)) (string, error) {
	outputTemplate := filepath.Join(req.OutputDir, req.OutputStem+" - %(title).50s.%(ext)s")

	dl := ytdlp.New().
		Format(formatSelector(req.Quality, req.FormatID)).
		Output(outputTemplate).
		RestrictFilenames().
		ForceOverwrites().
		NoPlaylist().
		Retries("3").
		FragmentRetries("3").
		ExtractorArgs("youtube:player_client="+req.Persona.PlayerClient).
		UserAgent(req.Persona.UserAgent)

	if req.ThrottleRate != "" {
		dl = dl.LimitRate(req.ThrottleRate)
	}

	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		onProgress(int64(update.DownloadedBytes), int64(update.TotalBytes))
	})

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		return "", err
	}

	if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 && info[0].Filename != nil {
		return *info[0].Filename, nil
	}
	// No filename in the engine output; the caller falls back to the
	// stem-based lookup in storage.
	return "", nil
}

// PlaylistItems flattens a playlist into its entries without downloading.
func (c *Client) PlaylistItems(ctx context.Context, url string) ([]queue.PlaylistItem, error) {
	dl := ytdlp.New().
		SkipDownload().
		FlatPlaylist().
		DumpSingleJSON().
		SocketTimeout(c.socketTimeout.Seconds())

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("playlist listing failed: %w", err)
	}

	var info infoDump
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("unreadable playlist dump: %w", err)
	}

	items := make([]queue.PlaylistItem, 0, len(info.Entries))
	for _, entry := range info.Entries {
		items = append(items, queue.PlaylistItem{VideoID: entry.ID, Title: entry.Title})
	}
	return items, nil
}

// estimateSize picks the best size guess the info dump offers.
func estimateSize(info infoDump) int64 {
	if info.Filesize > 0 {
		return info.Filesize
	}
	if info.FilesizeApprox > 0 {
		return info.FilesizeApprox
	}
	var best int64
	for _, f := range info.Formats {
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		if size > best {
			best = size
		}
	}
	return best
}

// formatSelector maps the requested quality tier onto an engine format
// expression. An explicit format id always wins.
func formatSelector(quality, formatID string) string {
	if formatID != "" {
		return formatID
	}
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "", "best":
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	case "worst":
		return "worst"
	case "audio":
		return "bestaudio/best"
	default:
		// Numeric tiers like "720" cap the video height.
		return fmt.Sprintf("bestvideo[height<=%s][ext=mp4]+bestaudio[ext=m4a]/best[height<=%s]/best", quality, quality)
	}
}
