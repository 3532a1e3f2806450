package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"tubevault/internal/domain/download"
)

// partial transfer suffixes hidden from listings and artifact lookup.
var partialSuffixes = []string{".part", ".ytdl", ".download", ".temp"}

var ownerUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// File is one downloadable artifact entry.
type File struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store partitions downloaded artifacts into per-owner folders under one
// root. Owner identity is a network address used for capability scoping, not
// authentication; two clients behind the same address share a folder.
type Store struct {
	Root string
}

// NewStore creates the storage adapter for the given root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// EnsureRoot creates the storage root.
func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.Root, 0o755)
}

// OwnerDir maps an owner identity onto its folder path.
func (s *Store) OwnerDir(owner string) string {
	return filepath.Join(s.Root, sanitizeOwner(owner))
}

// EnsureOwnerDir creates the owner's folder, reporting storage-setup failures.
func (s *Store) EnsureOwnerDir(owner string) (string, error) {
	dir := s.OwnerDir(owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", download.ErrStorage, err)
	}
	return dir, nil
}

// ResolveFile validates a requested filename inside the owner's folder and
// returns its absolute path. Traversal outside the folder is rejected.
func (s *Store) ResolveFile(owner, filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == ".." {
		return "", errors.New("invalid file name")
	}
	full := filepath.Join(s.OwnerDir(owner), name)
	if !isWithinDir(s.OwnerDir(owner), full) {
		return "", errors.New("invalid file path")
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", errors.New("file not found")
	}
	return full, nil
}

// ListFiles returns the owner's completed artifacts, newest first.
func (s *Store) ListFiles(owner string) ([]File, error) {
	entries, err := os.ReadDir(s.OwnerDir(owner))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []File{}, nil
		}
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, File{Name: entry.Name(), Size: info.Size(), ModifiedAt: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	return files, nil
}

// LocateArtifact maps a finished transfer back to a file on disk. The stem
// (job id) prefix is authoritative; title prefix and most-recently-modified
// matching are the documented fallbacks for engines that rename output. This
// is an approximation, not a correctness guarantee.
func (s *Store) LocateArtifact(dir, stem, title string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}

	type hit struct {
		name string
		size int64
		mod  time.Time
	}
	var byStem, byTitle, newest *hit

	titlePrefix := sanitizeTitlePrefix(title)
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		h := &hit{name: entry.Name(), size: info.Size(), mod: info.ModTime()}

		if stem != "" && strings.HasPrefix(entry.Name(), stem) && byStem == nil {
			byStem = h
		}
		if titlePrefix != "" && strings.HasPrefix(sanitizeTitlePrefix(entry.Name()), titlePrefix) && byTitle == nil {
			byTitle = h
		}
		if newest == nil || h.mod.After(newest.mod) {
			newest = h
		}
	}

	chosen := byStem
	if chosen == nil {
		chosen = byTitle
	}
	if chosen == nil {
		chosen = newest
	}
	if chosen == nil {
		return "", 0, errors.New("no artifact found")
	}
	return filepath.Join(dir, chosen.name), chosen.size, nil
}

// Remove deletes one artifact.
func (s *Store) Remove(path string) error {
	return os.Remove(path)
}

func sanitizeOwner(owner string) string {
	cleaned := ownerUnsafe.ReplaceAllString(strings.TrimSpace(owner), "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "unknown"
	}
	return cleaned
}

// sanitizeTitlePrefix mirrors how extraction engines restrict filenames, so
// title matching survives their renaming. Only the first 50 characters count.
func sanitizeTitlePrefix(title string) string {
	cleaned := ownerUnsafe.ReplaceAllString(strings.TrimSpace(title), "_")
	if len(cleaned) > 50 {
		cleaned = cleaned[:50]
	}
	return strings.ToLower(cleaned)
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}
