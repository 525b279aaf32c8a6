package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadClampsParallelJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("parallel_jobs: 0\ndest: /srv/mirror\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ParallelJobs != 1 {
		t.Errorf("expected parallel_jobs clamped to 1, got %d", cfg.ParallelJobs)
	}
	if cfg.RsyncBinary != "rsync" {
		t.Errorf("expected default rsync binary, got %q", cfg.RsyncBinary)
	}
}

func TestLoadPreservesExplicitParallelJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("parallel_jobs: 8\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ParallelJobs != 8 {
		t.Errorf("expected parallel_jobs 8, got %d", cfg.ParallelJobs)
	}
}

func TestLoadDefaultsModeToDebian(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dest: /srv/mirror\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeDebian {
		t.Errorf("expected default mode %q, got %q", ModeDebian, cfg.Mode)
	}
}

func TestLoadPreservesExplicitAOSCMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: aosc\nmirror_topics: true\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeAOSC || !cfg.MirrorTopics {
		t.Errorf("expected aosc mode with topics enabled, got %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
