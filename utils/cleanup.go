package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StartExportSweeper periodically removes export staging directories under dir whose name starts
// with prefix and which are older than maxAge. Cleanup normally happens inline; this covers
// directories left behind by a crashed process. maxAge is never shorter than minExportAge.
func StartExportSweeper(ctx context.Context, dir, prefix string, interval, maxAge time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if logger == nil {
		logger = Logger
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := SweepExportDirs(dir, prefix, maxAge, time.Now(), logger); n > 0 {
					logger.Info("removed stale export staging directories", zap.Int("count", n))
				}
			}
		}
	}()
}

// minExportAge keeps the sweeper away from exports that are still being written.
const minExportAge = 10 * time.Minute

func sweepAge(maxAge time.Duration) time.Duration {
	return max(maxAge, minExportAge)
}

// SweepExportDirs removes matching stale directories once and returns how many were removed.
func SweepExportDirs(dir, prefix string, maxAge time.Duration, now time.Time, logger *zap.Logger) int {
	maxAge = sweepAge(maxAge)
	entries, err := os.ReadDir(dir)
	if err != nil {
		ReportFailure(logger, FailureStorage, "export sweeper cannot list directory", zap.String("dir", dir), zap.Error(err))
		return 0
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			ReportFailure(logger, FailurePartialItem, "export sweeper cannot remove directory", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
