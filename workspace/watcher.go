package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/glspkit/glsp-server-go/glsp"
)

// Dispatcher is the delivery surface the watcher routes change notifications
// through. sessions.ProxyRegistry satisfies it directly.
type Dispatcher interface {
	Process(ctx context.Context, msg *glsp.ActionMessage) error
}

const defaultDebounce = 250 * time.Millisecond

// Watcher observes diagram source-model files on disk and notifies the
// owning session's clients with sourceModelChanged actions when they change.
// One watch may be active per session at a time.
type Watcher struct {
	dispatch Dispatcher
	log      *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		w.log = log
	}
}

// WithDebounce sets the quiet period collapsing bursts of filesystem events
// into one notification per changed path.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a Watcher dispatching through d.
func NewWatcher(d Dispatcher, opts ...Option) *Watcher {
	w := &Watcher{
		dispatch: d,
		debounce: defaultDebounce,
		watches:  make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

// Watch starts observing root (a file or directory tree) on behalf of
// sessionID. It returns once the watch is established; observation continues
// until ctx is cancelled, Unwatch is called, or the Watcher is closed.
func (w *Watcher) Watch(ctx context.Context, sessionID string, root string) error {
	if sessionID == "" {
		return fmt.Errorf("session id must not be empty")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("stat %q: %w", root, err)
	}
	if info.IsDir() {
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			return fw.Add(p)
		})
	} else {
		err = fw.Add(root)
	}
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("add %q: %w", root, err)
	}

	w.mu.Lock()
	if _, exists := w.watches[sessionID]; exists {
		w.mu.Unlock()
		_ = fw.Close()
		return fmt.Errorf("session %q is already being watched", sessionID)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	wt := &watch{cancel: cancel, done: make(chan struct{})}
	w.watches[sessionID] = wt
	w.mu.Unlock()

	go func() {
		defer close(wt.done)
		defer func() { _ = fw.Close() }()
		w.run(watchCtx, sessionID, fw)

		w.mu.Lock()
		if w.watches[sessionID] == wt {
			delete(w.watches, sessionID)
		}
		w.mu.Unlock()
	}()

	return nil
}

// Unwatch stops the session's watch, reporting whether one was active.
func (w *Watcher) Unwatch(sessionID string) bool {
	w.mu.Lock()
	wt, ok := w.watches[sessionID]
	if ok {
		delete(w.watches, sessionID)
	}
	w.mu.Unlock()

	if !ok {
		return false
	}
	wt.cancel()
	<-wt.done
	return true
}

// Close stops all active watches.
func (w *Watcher) Close() {
	w.mu.Lock()
	watches := make([]*watch, 0, len(w.watches))
	for id, wt := range w.watches {
		watches = append(watches, wt)
		delete(w.watches, id)
	}
	w.mu.Unlock()

	for _, wt := range watches {
		wt.cancel()
		<-wt.done
	}
}

func (w *Watcher) run(ctx context.Context, sessionID string, fw *fsnotify.Watcher) {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			// Maintain watches on newly created directories.
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = fw.Add(ev.Name)
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			// A fired-but-undrained timer would deliver a stale tick and
			// flush before the quiet period elapses.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			w.flush(ctx, sessionID, pending)
			pending = make(map[string]struct{})
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Debug("watch error",
				slog.String("session_id", sessionID),
				slog.String("err", err.Error()))
		}
	}
}

func (w *Watcher) flush(ctx context.Context, sessionID string, pending map[string]struct{}) {
	for name := range pending {
		action, err := glsp.NewAction(glsp.KindSourceModelChanged, map[string]string{
			"modelSourceName": filepath.Base(name),
		})
		if err != nil {
			w.log.Warn("failed to build change action", slog.String("err", err.Error()))
			continue
		}
		msg, err := glsp.NewActionMessage(sessionID, action)
		if err != nil {
			w.log.Warn("failed to build change message", slog.String("err", err.Error()))
			continue
		}
		if err := w.dispatch.Process(ctx, msg); err != nil {
			// Clients may detach while a change is in flight; the watch
			// itself stays up.
			w.log.WarnContext(ctx, "change notification not delivered",
				slog.String("session_id", sessionID),
				slog.String("err", err.Error()))
		}
	}
}
