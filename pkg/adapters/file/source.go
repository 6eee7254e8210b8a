package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 150 * time.Millisecond

// Source implements ports.ConfigSource and ports.Watchable over YAML and
// JSON documents on disk. Path is either a single document or a directory
// walked recursively; files are read in lexical order.
type Source struct {
	Path string

	debounce time.Duration
	logger   *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithDebounce sets the quiet period before a change is signaled.
func WithDebounce(d time.Duration) SourceOption {
	return func(s *Source) {
		s.debounce = d
	}
}

// WithSourceLogger sets the logger used by Watch.
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(s *Source) {
		s.logger = l
	}
}

// NewSource creates a source reading path.
func NewSource(path string, opts ...SourceOption) *Source {
	s := &Source{
		Path:     path,
		debounce: DefaultDebounce,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Files lists the documents the source reads.
func (s *Source) Files() ([]string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat flows path: %w", err)
	}
	if !info.IsDir() {
		return []string{s.Path}, nil
	}

	var files []string
	err = filepath.WalkDir(s.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Path && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if schema.IsDocumentFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk flows directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Load parses every document.
func (s *Source) Load(ctx context.Context) ([]map[string]any, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no flow documents (*.yaml, *.yml, *.json) found in %s", s.Path)
	}

	docs := make([]map[string]any, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := schema.Parse(path, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Watch signals after documents under Path are written, created, removed or
// renamed, until ctx is done.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := s.addWatches(watcher); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go s.watchLoop(ctx, watcher, out)
	return out, nil
}

// addWatches registers every directory under Path. fsnotify is not
// recursive, and watching the parent of a single file survives the
// rename-over-write editors use.
func (s *Source) addWatches(watcher *fsnotify.Watcher) error {
	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("failed to stat flows path: %w", err)
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(s.Path))
	}
	return filepath.WalkDir(s.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (s *Source) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- struct{}) {
	defer close(out)
	defer watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !s.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}
			s.logger.Debug("Flow document changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			select {
			case out <- struct{}{}:
			default:
				// A reload is already pending.
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				s.logger.Warn("Flow watcher error", "err", err)
			}
		}
	}
}

func (s *Source) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	info, err := os.Stat(s.Path)
	if err == nil && !info.IsDir() {
		return filepath.Clean(ev.Name) == filepath.Clean(s.Path)
	}
	// Removed files and new directories have no extension to check.
	return schema.IsDocumentFile(ev.Name) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create)
}
