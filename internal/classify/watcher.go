package classify

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"agentflow/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// SignalsWatcher watches a signals YAML file and reloads the classifier's
// tables when it changes. Rapid saves are debounced.
type SignalsWatcher struct {
	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	classifier *Classifier
	path       string
	pending    time.Time
	debounce   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
}

// NewSignalsWatcher creates a watcher for the given signals file.
func NewSignalsWatcher(path string, classifier *Classifier) (*SignalsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &SignalsWatcher{
		watcher:    watcher,
		classifier: classifier,
		path:       path,
		debounce:   500 * time.Millisecond,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs until Stop or
// context cancellation. Editors replace files on save, so the parent
// directory is watched rather than the file itself.
func (sw *SignalsWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.mu.Unlock()

	if err := sw.watcher.Add(filepath.Dir(sw.path)); err != nil {
		sw.mu.Lock()
		sw.running = false
		sw.mu.Unlock()
		return err
	}

	logging.Classify("watching signals file: %s", sw.path)
	go sw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (sw *SignalsWatcher) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.stopCh)
	<-sw.doneCh

	if err := sw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryClassify).Error("watcher close: %v", err)
	}
}

func (sw *SignalsWatcher) run(ctx context.Context) {
	defer close(sw.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopCh:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryClassify).Error("watcher: %v", err)
		case <-tick.C:
			sw.flushPending()
		}
	}
}

func (sw *SignalsWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(sw.path) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	sw.mu.Lock()
	sw.pending = time.Now()
	sw.mu.Unlock()
}

// flushPending reloads once the debounce window has passed.
func (sw *SignalsWatcher) flushPending() {
	sw.mu.Lock()
	if sw.pending.IsZero() || time.Since(sw.pending) < sw.debounce {
		sw.mu.Unlock()
		return
	}
	sw.pending = time.Time{}
	sw.mu.Unlock()

	sig, err := LoadSignals(sw.path)
	if err != nil {
		logging.Get(logging.CategoryClassify).Warn("signals reload failed: %v", err)
		return
	}
	sw.classifier.SetSignals(sig)
}
