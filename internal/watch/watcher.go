package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openpapers/papersync/internal/fingerprint"
)

const (
	// watcherDirPerm is the permission mode for the watch directory when
	// ensuring it exists before starting the file watcher.
	watcherDirPerm = fs.FileMode(0o755)

	// settleCheckInterval is how often pending events are checked against
	// the settle delay so rapid writes collapse into one event per file.
	settleCheckInterval = 100 * time.Millisecond

	// eventChanSize is the buffer size for the outbound event channel.
	eventChanSize = 256
)

// Watcher monitors the library directory tree and emits typed Events on
// a channel consumed by the sync engine. Deletes are emitted immediately;
// creates and writes are held back by the settle delay so a file still
// being written is observed once, with its final content.
type Watcher struct {
	dir         string
	settleDelay time.Duration
	fp          fingerprint.Strategy
	logger      *slog.Logger
	watcher     *fsnotify.Watcher
	events      chan Event

	// dirs is the set of directories currently under watch, keyed by
	// absolute path. Remove events carry no type information for the
	// vanished entry, so this set is what marks a delete as a folder
	// delete. Touched only by the Watch goroutine.
	dirs map[string]struct{}
}

// NewWatcher creates a watcher rooted at dir. Events are fingerprinted
// with the given strategy before emission.
func NewWatcher(dir string, settleDelay time.Duration, fp fingerprint.Strategy, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:         dir,
		settleDelay: settleDelay,
		fp:          fp,
		logger:      logger,
		events:      make(chan Event, eventChanSize),
		dirs:        make(map[string]struct{}),
	}
}

// Events returns the channel carrying observed filesystem changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Rel converts an absolute path under the watch directory to a
// library-relative normalized path.
func (w *Watcher) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(w.dir, absPath)
	if err != nil {
		return "", fmt.Errorf("computing relative path: %w", err)
	}

	return NormalizePath(rel), nil
}

// Watch starts watching the library directory. It blocks until the
// context is cancelled. Directories are watched recursively.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()
	defer close(w.events)

	if err := os.MkdirAll(w.dir, watcherDirPerm); err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}

	if err := w.addRecursive(w.dir); err != nil {
		return fmt.Errorf("watching library dir: %w", err)
	}

	w.logger.Info("file watcher started", slog.String("dir", w.dir))

	// Settle buffer: hold creates/writes until writes stop arriving.
	type pending struct {
		lastWrite time.Time
		created   bool
	}

	settling := make(map[string]pending)

	ticker := time.NewTicker(settleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				p := settling[event.Name]
				p.lastWrite = time.Now()
				p.created = p.created || event.Has(fsnotify.Create)
				settling[event.Name] = p

				// A new directory is watched immediately and emitted as a
				// folder create. Lstat avoids following symlinks that
				// could point outside the library.
				if event.Has(fsnotify.Create) {
					info, err := os.Lstat(event.Name)
					if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
						delete(settling, event.Name)
						_ = w.addRecursive(event.Name)
						w.emitFolder(ctx, event.Name)
					}
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// A rename fires Remove on the old path; the new path
				// fires Create separately. The move-detection correlator
				// pairs them back up downstream.
				delete(settling, event.Name)

				_, isDir := w.dirs[event.Name]
				if isDir {
					w.forgetDir(event.Name)
				}

				// Remove watch for deleted directories. On Linux inotify
				// handles this automatically, but other platforms may leak.
				_ = watcher.Remove(event.Name)
				w.emitDelete(ctx, event.Name, isDir)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()
			for path, p := range settling {
				if now.Sub(p.lastWrite) < w.settleDelay {
					continue
				}

				delete(settling, path)
				w.emitFile(ctx, path, p.created)
			}
		}
	}
}

func (w *Watcher) emitFile(ctx context.Context, absPath string, created bool) {
	rel, err := w.Rel(absPath)
	if err != nil {
		w.logger.Warn("dropping event outside library", slog.String("path", absPath))
		return
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		// Deleted between the event and the settle check; the Remove
		// event carries the delete.
		return
	}

	if info.IsDir() {
		return
	}

	kind := Modified
	if created {
		kind = Created
	}

	ev := Event{
		Path:    rel,
		AbsPath: absPath,
		Kind:    kind,
		Time:    time.Now(),
		Size:    info.Size(),
	}

	if fp, err := w.fp.File(absPath); err == nil {
		ev.Fingerprint = fp
	} else {
		w.logger.Debug("fingerprint failed", slog.String("path", rel), slog.String("error", err.Error()))
	}

	w.send(ctx, ev)
}

func (w *Watcher) emitFolder(ctx context.Context, absPath string) {
	rel, err := w.Rel(absPath)
	if err != nil {
		return
	}

	w.send(ctx, Event{
		Path:    rel,
		AbsPath: absPath,
		Kind:    Created,
		Time:    time.Now(),
		Folder:  true,
	})
}

func (w *Watcher) emitDelete(ctx context.Context, absPath string, folder bool) {
	rel, err := w.Rel(absPath)
	if err != nil {
		return
	}

	w.send(ctx, Event{
		Path:    rel,
		AbsPath: absPath,
		Kind:    Deleted,
		Time:    time.Now(),
		Folder:  folder,
	})
}

// forgetDir drops a removed directory and its whole subtree from the
// watched-directory set.
func (w *Watcher) forgetDir(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}

func (w *Watcher) send(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if len(base) > 1 && base[0] == '.' {
			return filepath.SkipDir
		}

		// Skip symlinked directories to prevent watching outside the
		// library. WalkDir does not follow symlinks for entries it
		// discovers, but the root argument is resolved, so we check
		// each directory entry explicitly.
		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return err
		}

		w.dirs[path] = struct{}{}

		return nil
	})
}
