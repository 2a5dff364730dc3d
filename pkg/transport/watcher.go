package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// LoadEndpointsFile reads an endpoint set from a JSON file of the shape
// {"endpoints":[...]}.
func LoadEndpointsFile(path string) ([]Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoints file: %w", err)
	}

	var file struct {
		Endpoints []Endpoint `json:"endpoints"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse endpoints file %s: %w", path, err)
	}
	return file.Endpoints, nil
}

// Watcher reloads the router's endpoint set when the endpoints file changes
// on disk. Events are debounced because editors typically emit several
// write events per save.
type Watcher struct {
	router   *Router
	path     string
	logger   zerolog.Logger
	debounce time.Duration

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher for the given endpoints file. The file's
// parent directory is watched so atomic rename-into-place saves are seen.
func NewWatcher(router *Router, path string, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		router:   router,
		path:     path,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
	w.logger.Info().Str("path", w.path).Msg("Watching endpoints file for changes")
}

// Stop terminates the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.fsw.Close()
		<-w.doneCh
	})
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Endpoints file watcher error")

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// reload re-parses the file and swaps the endpoint set. A bad file keeps
// the previous configuration.
func (w *Watcher) reload() {
	endpoints, err := LoadEndpointsFile(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload endpoints file, keeping current set")
		return
	}
	if err := w.router.SetEndpoints(endpoints); err != nil {
		w.logger.Error().Err(err).Msg("Rejected reloaded endpoints, keeping current set")
		return
	}
	w.logger.Info().Int("endpoints", len(endpoints)).Msg("Endpoints reloaded")
}
