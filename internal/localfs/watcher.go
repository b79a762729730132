package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MKhiriev/go-vault-sync/internal/logger"
)

// debounceWindow coalesces the burst of events an editor or copy produces
// into a single change notification.
const debounceWindow = 500 * time.Millisecond

// Watcher turns raw fsnotify events for one container folder into debounced
// change notifications. The engine treats it as a hint to run an incremental
// pass; correctness never depends on the watch mechanism, a missed event is
// caught by the next periodic pass.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	changes chan struct{}
	log     *logger.Logger
}

// NewWatcher starts watching root and all its subdirectories.
func NewWatcher(root string, log *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		watcher: fsw,
		changes: make(chan struct{}, 1),
		log:     log,
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Changes delivers at most one pending notification; coalescing happens
// inside Run.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run pumps fsnotify events until ctx is done, debouncing them into Changes.
// Newly created directories are added to the watch set on the fly.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(ev.Name), tempPrefix) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(ev.Name)
				}
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
			} else {
				debounce.Reset(debounceWindow)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Str("root", w.root).Msg("file watcher error")
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}
