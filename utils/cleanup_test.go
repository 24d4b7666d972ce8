package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSweepExportDirs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "posts-export-old")
	fresh := filepath.Join(dir, "posts-export-fresh")
	other := filepath.Join(dir, "unrelated")
	for _, d := range []string{old, fresh, other} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	n := SweepExportDirs(dir, "posts-export-", time.Hour, time.Now(), zap.NewNop())
	if n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("stale directory still present")
	}
	for _, d := range []string{fresh, other} {
		if _, err := os.Stat(d); err != nil {
			t.Fatalf("%s should be kept: %v", d, err)
		}
	}
}

func TestSweepExportDirsKeepsInFlightExports(t *testing.T) {
	dir := t.TempDir()
	running := filepath.Join(dir, "posts-export-running")
	if err := os.Mkdir(running, 0o755); err != nil {
		t.Fatal(err)
	}
	recent := time.Now().Add(-time.Minute)
	if err := os.Chtimes(running, recent, recent); err != nil {
		t.Fatal(err)
	}
	for _, age := range []time.Duration{0, -time.Hour} {
		if n := SweepExportDirs(dir, "posts-export-", age, time.Now(), zap.NewNop()); n != 0 {
			t.Fatalf("maxAge %v removed %d directories", age, n)
		}
	}
	if _, err := os.Stat(running); err != nil {
		t.Fatalf("in-flight export removed: %v", err)
	}
}
