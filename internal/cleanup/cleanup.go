// Package cleanup reclaims storage left behind by earlier runs: stale
// queued-send documents in the preferences directory and old downloaded
// media. It runs once at daemon startup.
package cleanup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/perkshq/perks/internal/cache/prefcache"
	"go.uber.org/zap"
)

const (
	// DefaultPrefAge is how long a queued-send remnant may sit in the
	// preferences directory before it is reclaimed.
	DefaultPrefAge = 7 * 24 * time.Hour
	// DefaultMediaAge is how long downloaded media is kept.
	DefaultMediaAge = 30 * 24 * time.Hour
)

// Summary reports what a run reclaimed. Errors counts entries that could
// not be inspected or removed; they are logged and left in place for the
// next run.
type Summary struct {
	PrefsDeleted int
	MediaDeleted int
	Errors       int
}

// Service sweeps the preferences and media directories. The two sweeps
// run concurrently and are isolated: a failure in one never stops the
// other, and no failure is ever surfaced to the caller.
type Service struct {
	prefsDir string
	mediaDir string
	prefAge  time.Duration
	mediaAge time.Duration
	logger   *zap.Logger
}

// New creates a cleanup service for the given account directories.
func New(prefsDir, mediaDir string, logger *zap.Logger) *Service {
	return &Service{
		prefsDir: prefsDir,
		mediaDir: mediaDir,
		prefAge:  DefaultPrefAge,
		mediaAge: DefaultMediaAge,
		logger:   logger,
	}
}

// Run executes both sweeps and returns the combined summary.
func (s *Service) Run() Summary {
	var (
		wg    sync.WaitGroup
		prefs Summary
		media Summary
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		prefs = s.sweepPrefs()
	}()
	go func() {
		defer wg.Done()
		media = s.sweepMedia()
	}()
	wg.Wait()

	out := Summary{
		PrefsDeleted: prefs.PrefsDeleted,
		MediaDeleted: media.MediaDeleted,
		Errors:       prefs.Errors + media.Errors,
	}
	s.logger.Info("cleanup finished",
		zap.Int("prefs_deleted", out.PrefsDeleted),
		zap.Int("media_deleted", out.MediaDeleted),
		zap.Int("errors", out.Errors))
	return out
}

// queueDoc is the slice of a queued-send document the sweep needs.
type queueDoc struct {
	CreatedAt int64 `json:"created_at"`
}

// sweepPrefs removes queued-send documents older than prefAge. Documents
// that cannot be parsed are kept; age is unknowable so deleting them
// would risk live data.
func (s *Service) sweepPrefs() Summary {
	var out Summary
	entries, err := os.ReadDir(s.prefsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read prefs directory", zap.Error(err))
			out.Errors++
		}
		return out
	}

	cutoff := time.Now().Add(-s.prefAge).UnixMilli()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefcache.QueuePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.prefsDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read pref remnant", zap.Error(err), zap.String("file", name))
			out.Errors++
			continue
		}
		var doc queueDoc
		if err := json.Unmarshal(raw, &doc); err != nil || doc.CreatedAt == 0 {
			continue
		}
		if doc.CreatedAt >= cutoff {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove pref remnant", zap.Error(err), zap.String("file", name))
			out.Errors++
			continue
		}
		out.PrefsDeleted++
	}
	return out
}

// sweepMedia removes regular files older than mediaAge by modification
// time, walking subdirectories but leaving the directories themselves.
func (s *Service) sweepMedia() Summary {
	var out Summary
	cutoff := time.Now().Add(-s.mediaAge)

	err := filepath.WalkDir(s.mediaDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			s.logger.Warn("failed to walk media directory", zap.Error(err), zap.String("path", path))
			out.Errors++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			out.Errors++
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove media file", zap.Error(err), zap.String("path", path))
			out.Errors++
			return nil
		}
		out.MediaDeleted++
		return nil
	})
	if err != nil {
		out.Errors++
	}
	return out
}
