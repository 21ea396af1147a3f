// Package source loads policies from YAML files and watches them for
// changes.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"veridian-hq/attune/pkg/policy"
)

// document is the on-disk shape of a policy file.
type document struct {
	Policies []*policy.Policy `yaml:"policies"`
}

// FileSource loads policy documents from a YAML file or a directory of
// YAML files, and can watch the path for changes.
type FileSource struct {
	path             string
	debounceInterval time.Duration
	logger           *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// FileSourceConfig configures a FileSource.
type FileSourceConfig struct {
	// Path is the policy file or directory to load.
	Path string

	// DebounceInterval is how long to wait after a file event before
	// reloading, so editors that write in bursts trigger one reload.
	// Default: 250ms.
	DebounceInterval time.Duration
}

// NewFileSource creates a file source.
func NewFileSource(cfg FileSourceConfig, logger *slog.Logger) (*FileSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("policy path cannot be empty")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileSource{
		path:             cfg.Path,
		debounceInterval: cfg.DebounceInterval,
		logger:           logger.With("component", "policy.source"),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// Load reads and validates all policies under the configured path.
// Duplicate ids across files are rejected.
func (f *FileSource) Load(ctx context.Context) ([]*policy.Policy, error) {
	files, err := f.listFiles()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var out []*policy.Policy

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %q: %w", file, err)
		}

		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %q: %w", file, err)
		}

		for _, p := range doc.Policies {
			if p == nil {
				continue
			}
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("policy file %q: %w", file, err)
			}
			if prev, dup := seen[p.ID]; dup {
				return nil, fmt.Errorf("policy id %q defined in both %q and %q", p.ID, prev, file)
			}
			seen[p.ID] = file
			out = append(out, p)
		}
	}

	f.logger.Info("policies loaded from file source",
		"path", f.path,
		"file_count", len(files),
		"policy_count", len(out),
	)
	return out, nil
}

// Watch blocks watching the path and calls onReload after each debounced
// change until the context is cancelled or Stop is called. Reload errors
// are logged and watching continues; the previous policy set stays live.
func (f *FileSource) Watch(ctx context.Context, onReload func() error) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	f.watcher = watcher
	f.running = true
	f.mu.Unlock()

	defer func() {
		watcher.Close()
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
		close(f.doneCh)
	}()

	// Watch the directory containing the file so replace-by-rename (the
	// common editor save strategy) is observed.
	watchPath := f.path
	if info, err := os.Stat(f.path); err == nil && !info.IsDir() {
		watchPath = filepath.Dir(f.path)
	}
	if err := watcher.Add(watchPath); err != nil {
		return fmt.Errorf("failed to watch %q: %w", watchPath, err)
	}

	f.logger.Info("policy file watcher started", "path", f.path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("policy file watcher stopped (context cancelled)")
			return nil

		case <-f.stopCh:
			f.logger.Info("policy file watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !f.relevant(event) {
				continue
			}
			f.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())

			// Debounce: (re)arm the timer on every relevant event.
			if timer == nil {
				timer = time.NewTimer(f.debounceInterval)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(f.debounceInterval)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			if err := onReload(); err != nil {
				f.logger.Error("policy reload failed, previous set stays active", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			f.logger.Error("policy file watcher error", "error", err)
		}
	}
}

// Stop stops a running watcher and waits for it to exit.
func (f *FileSource) Stop() {
	f.mu.Lock()
	running := f.running
	f.mu.Unlock()
	if !running {
		return
	}

	close(f.stopCh)
	<-f.doneCh
}

// relevant filters events down to YAML writes on the configured path.
func (f *FileSource) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}

	// When watching a single file's directory, ignore sibling files.
	if info, err := os.Stat(f.path); err == nil && !info.IsDir() {
		return filepath.Clean(event.Name) == filepath.Clean(f.path)
	}
	return true
}

// listFiles resolves the configured path to the YAML files to load,
// sorted for deterministic duplicate reporting.
func (f *FileSource) listFiles() ([]string, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy path %q: %w", f.path, err)
	}

	if !info.IsDir() {
		return []string{f.path}, nil
	}

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory %q: %w", f.path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(f.path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
