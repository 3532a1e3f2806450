package download

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const canonicalHost = "www.youtube.com"

var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

var (
	videoIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	playlistIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{13,42}$`)
)

// CanonicalURL is the validated, normalized form of a submitted video URL.
type CanonicalURL struct {
	URL        string
	VideoID    string
	PlaylistID string
}

// IsPlaylistOnly reports whether the URL referenced a playlist without a specific video.
func (c CanonicalURL) IsPlaylistOnly() bool {
	return c.VideoID == "" && c.PlaylistID != ""
}

// Normalize validates a raw URL against the known hosting-site forms and
// canonicalizes it. Identifier extraction is a strict allow-list: a fragment
// that looks like an id but fails charset or length validation rejects the
// whole URL rather than being passed through.
func Normalize(raw string) (CanonicalURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CanonicalURL{}, fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return CanonicalURL{}, fmt.Errorf("%w: %s", ErrInvalidURL, "unparseable URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return CanonicalURL{}, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	host := strings.ToLower(parsed.Hostname())
	if !allowedHosts[host] {
		return CanonicalURL{}, fmt.Errorf("%w: unsupported host %q", ErrInvalidURL, host)
	}

	videoID, err := extractVideoID(host, parsed)
	if err != nil {
		return CanonicalURL{}, err
	}

	playlistID := ""
	if list := parsed.Query().Get("list"); list != "" {
		if !playlistIDPattern.MatchString(list) {
			return CanonicalURL{}, fmt.Errorf("%w: malformed playlist id", ErrInvalidURL)
		}
		playlistID = list
	}

	if videoID == "" && playlistID == "" {
		return CanonicalURL{}, fmt.Errorf("%w: no video or playlist id found", ErrInvalidURL)
	}

	return CanonicalURL{
		URL:        buildCanonical(videoID, playlistID),
		VideoID:    videoID,
		PlaylistID: playlistID,
	}, nil
}

// CanonicalWatchURL builds the canonical URL for a bare video id.
func CanonicalWatchURL(videoID string) string {
	return buildCanonical(videoID, "")
}

// IsValidVideoID reports whether a candidate matches the 11-char id charset exactly.
func IsValidVideoID(candidate string) bool {
	return videoIDPattern.MatchString(candidate)
}

func extractVideoID(host string, parsed *url.URL) (string, error) {
	candidate := ""

	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = firstPathSegment(parsed.Path)
	default:
		if v := parsed.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		segments := pathSegments(parsed.Path)
		if len(segments) >= 2 {
			switch segments[0] {
			case "embed", "shorts", "live", "v":
				candidate = segments[1]
			}
		}
	}

	if candidate == "" {
		return "", nil
	}
	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: malformed video id", ErrInvalidURL)
	}
	return candidate, nil
}

func buildCanonical(videoID, playlistID string) string {
	if videoID == "" {
		return "https://" + canonicalHost + "/playlist?list=" + playlistID
	}
	canonical := "https://" + canonicalHost + "/watch?v=" + videoID
	if playlistID != "" {
		canonical += "&list=" + playlistID
	}
	return canonical
}

func pathSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func firstPathSegment(p string) string {
	segments := pathSegments(p)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}
