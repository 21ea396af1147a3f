package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"veridian-hq/attune/pkg/policy"
)

const validDoc = `
policies:
  - id: elevate-on-errors
    service: checkout
    environment: prod
    priority: 10
    conditions:
      - metric: error_rate
        operator: ">"
        aggregate: avg
        window_seconds: 60
        threshold: 0.05
    action:
      log_level: ERROR
      trace_sample_rate: 1.0
      metric_interval_seconds: 15
  - id: baseline
    priority: 0
    conditions:
      - metric: request_count
        operator: ">="
        aggregate: count
        window_seconds: 300
        threshold: 0
    action:
      log_level: INFO
      trace_sample_rate: 0.1
      metric_interval_seconds: 60
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestFileSource_LoadSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	writeFile(t, path, validDoc)

	src, err := NewFileSource(FileSourceConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}

	policies, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Load returned %d policies, want 2", len(policies))
	}
	if policies[0].ID != "elevate-on-errors" {
		t.Errorf("first policy id = %q, want elevate-on-errors", policies[0].ID)
	}
	if policies[0].Action.LogLevel != policy.LevelError {
		t.Errorf("first policy log level = %q, want ERROR", policies[0].Action.LogLevel)
	}
	if policies[0].Conditions[0].Operator != policy.OpGreater {
		t.Errorf("first policy operator = %q, want >", policies[0].Conditions[0].Operator)
	}
}

func TestFileSource_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), validDoc)
	writeFile(t, filepath.Join(dir, "b.yml"), `
policies:
  - id: staging-debug
    environment: staging
    priority: 5
    conditions:
      - metric: latency_ms
        operator: ">"
        aggregate: p95
        window_seconds: 120
        threshold: 500
    action:
      log_level: DEBUG
      trace_sample_rate: 0.5
      metric_interval_seconds: 30
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a policy file")

	src, err := NewFileSource(FileSourceConfig{Path: dir}, nil)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}

	policies, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(policies) != 3 {
		t.Fatalf("Load returned %d policies, want 3", len(policies))
	}
}

func TestFileSource_LoadRejectsInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	writeFile(t, path, `
policies:
  - id: broken
    priority: 1
    conditions:
      - metric: error_rate
        operator: "!="
        aggregate: avg
        window_seconds: 60
        threshold: 0.05
    action:
      log_level: ERROR
      trace_sample_rate: 1.0
      metric_interval_seconds: 15
`)

	src, err := NewFileSource(FileSourceConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("Load accepted a policy with an unknown operator")
	}
}

func TestFileSource_LoadRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), validDoc)
	writeFile(t, filepath.Join(dir, "b.yaml"), validDoc)

	src, err := NewFileSource(FileSourceConfig{Path: dir}, nil)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("Load accepted duplicate policy ids across files")
	}
}

func TestFileSource_WatchReloadsIntoRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	writeFile(t, path, validDoc)

	src, err := NewFileSource(FileSourceConfig{
		Path:             path,
		DebounceInterval: 20 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}

	registry := policy.NewRegistry()
	reload := func() error {
		policies, err := src.Load(context.Background())
		if err != nil {
			return err
		}
		return registry.Replace(policies)
	}
	if err := reload(); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	if registry.Count() != 2 {
		t.Fatalf("initial registry count = %d, want 2", registry.Count())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() { watchErr <- src.Watch(ctx, reload) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, `
policies:
  - id: only-one
    priority: 1
    conditions:
      - metric: error_rate
        operator: ">"
        aggregate: avg
        window_seconds: 60
        threshold: 0.5
    action:
      log_level: WARN
      trace_sample_rate: 0.2
      metric_interval_seconds: 30
`)

	deadline := time.Now().Add(5 * time.Second)
	for registry.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if registry.Count() != 1 {
		t.Fatalf("registry count after reload = %d, want 1", registry.Count())
	}
	if _, ok := registry.Get("only-one"); !ok {
		t.Error("reloaded policy only-one not found in registry")
	}

	src.Stop()
	if err := <-watchErr; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
}

func TestFileSource_EmptyPath(t *testing.T) {
	if _, err := NewFileSource(FileSourceConfig{}, nil); err == nil {
		t.Error("NewFileSource with empty path did not return an error")
	}
}
