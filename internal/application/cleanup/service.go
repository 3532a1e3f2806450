package cleanup

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// partialExts are in-progress transfer leftovers the cleaner never touches.
var partialExts = map[string]bool{
	".part":     true,
	".ytdl":     true,
	".download": true,
	".temp":     true,
}

// Service deletes aged artifacts and enforces the storage budget. Deletions
// are best-effort: a file that cannot be removed is logged and skipped.
type Service struct {
	root     string
	maxAge   time.Duration
	budget   int64
	interval time.Duration
	logger   *log.Logger
}

// NewService creates the retention worker. maxAge <= 0 disables age-based
// deletion; budget <= 0 disables the storage cap.
func NewService(root string, maxAge time.Duration, budget int64, interval time.Duration, logger *log.Logger) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{root: root, maxAge: maxAge, budget: budget, interval: interval, logger: logger}
}

// Run performs a sweep on startup and then on the configured interval.
func (s *Service) Run(ctx context.Context) {
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

type candidate struct {
	path string
	size int64
	mod  time.Time
}

// RunOnce sweeps the storage root once and returns how many files were
// removed and how many bytes were freed.
func (s *Service) RunOnce() (removed int, freed int64) {
	files := s.scan()

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		kept := files[:0]
		for _, f := range files {
			if f.mod.Before(cutoff) {
				if s.remove(f) {
					removed++
					freed += f.size
					continue
				}
			}
			kept = append(kept, f)
		}
		files = kept
	}

	if s.budget > 0 {
		var used int64
		for _, f := range files {
			used += f.size
		}
		// Evict oldest-first until back under budget.
		sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
		for _, f := range files {
			if used <= s.budget {
				break
			}
			if s.remove(f) {
				removed++
				freed += f.size
				used -= f.size
			}
		}
	}

	if removed > 0 {
		s.logger.Printf("cleanup removed %d files (%d bytes)", removed, freed)
	}
	return removed, freed
}

func (s *Service) scan() []candidate {
	files := make([]candidate, 0)
	_ = filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if partialExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files = append(files, candidate{path: path, size: info.Size(), mod: info.ModTime()})
		return nil
	})
	return files
}

func (s *Service) remove(f candidate) bool {
	if err := os.Remove(f.path); err != nil {
		s.logger.Printf("cleanup could not remove %s: %v", f.path, err)
		return false
	}
	return true
}
