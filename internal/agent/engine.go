package agent

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openpapers/papersync/internal/fingerprint"
	"github.com/openpapers/papersync/internal/remote"
	"github.com/openpapers/papersync/internal/state"
	"github.com/openpapers/papersync/internal/store"
	"github.com/openpapers/papersync/internal/watch"
)

// expiryCheckInterval is how often the engine checks the store for
// entries whose deadline has passed. The windows themselves are hard
// deadlines recorded per entry; this only bounds detection latency.
const expiryCheckInterval = 100 * time.Millisecond

// EngineConfig holds the engine's timing windows and tree location.
type EngineConfig struct {
	WatchDir          string
	MoveWindow        time.Duration
	FolderBatchWindow time.Duration

	// AutoUpload gates the local-to-remote direction, including the
	// startup reconciliation scan.
	AutoUpload bool
}

// dispatcher is the coordinator surface the engine drives. Extracted for
// testability.
type dispatcher interface {
	Dispatch(ctx context.Context, task Task)
	Results() <-chan Result
}

// Engine is the single-writer dispatch loop at the center of the agent.
// It consumes watcher events, channel notifications, store expiries, and
// task completions, and it alone touches the Local State Store. The
// move/batch state machines are therefore plain functions over
// (state, event) with no locking.
type Engine struct {
	cfg      EngineConfig
	filter   *Filter
	store    *store.Store
	index    *state.State
	fp       fingerprint.Strategy
	coord    dispatcher
	notifier Notifier
	logger   *slog.Logger

	// inflight maps every path a running task touches (source and
	// destination) to that task's ID. queued holds tasks waiting for a
	// busy path, FIFO per path.
	inflight map[string]string
	queued   map[string][]Task

	// online mirrors the notification channel status. While offline,
	// tasks accumulate in offlineQueue and replay on reconnect.
	online       bool
	offlineQueue []Task

	statusCh chan remote.Status
}

// NewEngine wires the engine. The store must not be used by any other
// goroutine once handed over.
func NewEngine(cfg EngineConfig, filter *Filter, st *store.Store, index *state.State, fp fingerprint.Strategy, coord dispatcher, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		filter:   filter,
		store:    st,
		index:    index,
		fp:       fp,
		coord:    coord,
		notifier: notifier,
		logger:   logger,
		inflight: make(map[string]string),
		queued:   make(map[string][]Task),
		online:   true,
		statusCh: make(chan remote.Status, 4),
	}
}

// OnStatus is the channel client's status hook. Safe to call from any
// goroutine; the state change is applied on the engine loop.
func (e *Engine) OnStatus(s remote.Status) {
	select {
	case e.statusCh <- s:
	default:
		// A full buffer means older transitions are still queued; the
		// latest state will be applied when they drain.
	}
}

// suppressionTTL bounds how long a remote-change mark may suppress local
// events. No store entry outlives the larger correlation window.
func (e *Engine) suppressionTTL() time.Duration {
	if e.cfg.MoveWindow > e.cfg.FolderBatchWindow {
		return e.cfg.MoveWindow
	}

	return e.cfg.FolderBatchWindow
}

// Run drives the engine until the context is cancelled. events and
// notifications are the watcher and channel sources; either may close.
func (e *Engine) Run(ctx context.Context, events <-chan watch.Event, notifications <-chan remote.Notification) error {
	if e.cfg.AutoUpload {
		e.initialScan(ctx)
	}

	ticker := time.NewTicker(expiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}

			e.handleEvent(ctx, ev)

		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}

			e.handleNotification(n)

		case res := <-e.coord.Results():
			e.handleResult(ctx, res)

		case s := <-e.statusCh:
			e.handleStatus(ctx, s)

		case now := <-ticker.C:
			e.handleExpiries(ctx, now)
		}
	}
}

// initialScan reconciles the tree against the remote index at startup:
// files the remote store does not hold (or holds with a different
// fingerprint) are synthesized as Created events, flowing through the
// same classification and batching as live changes.
func (e *Engine) initialScan(ctx context.Context) {
	count := 0

	err := filepath.WalkDir(e.cfg.WatchDir, func(absPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		base := filepath.Base(absPath)
		if d.IsDir() {
			if len(base) > 1 && base[0] == '.' {
				return filepath.SkipDir
			}

			return nil
		}

		rel, err := filepath.Rel(e.cfg.WatchDir, absPath)
		if err != nil {
			return nil
		}

		relPath := watch.NormalizePath(rel)

		info, err := d.Info()
		if err != nil {
			return nil
		}

		ev := watch.Event{
			Path:    relPath,
			AbsPath: absPath,
			Kind:    watch.Created,
			Time:    time.Now(),
			Size:    info.Size(),
		}

		if !e.filter.Allow(ev) {
			return nil
		}

		if fp, err := e.fp.File(absPath); err == nil {
			ev.Fingerprint = fp
		}

		rf, _ := e.index.RemoteFile(relPath)
		if rf != nil && rf.Fingerprint != "" && rf.Fingerprint == ev.Fingerprint {
			return nil
		}

		count++
		e.handleEvent(ctx, ev)

		return nil
	})
	if err != nil && ctx.Err() == nil {
		e.logger.Warn("initial scan incomplete", slog.String("error", err.Error()))
	}

	e.logger.Info("initial scan finished", slog.Int("new_files", count))
}

func (e *Engine) handleEvent(ctx context.Context, ev watch.Event) {
	if !e.filter.Allow(ev) {
		return
	}

	switch ev.Kind {
	case watch.Deleted:
		e.handleDeleted(ctx, ev)
	case watch.Created:
		e.handleCreated(ctx, ev)
	case watch.Modified:
		e.handleModified(ctx, ev)
	}
}

func (e *Engine) handleDeleted(ctx context.Context, ev watch.Event) {
	// A remote-initiated delete echoes back through the watcher once the
	// UI (or another mirror) removes the local file. Drop it.
	if fp, ok := e.store.Suppressed(ev.Path); ok && fp == "" {
		e.store.ClearSuppression(ev.Path)
		return
	}

	// A file deleted while still pending in its folder's open batch was
	// never uploaded. Prune the entry so the flush does not create a
	// remote file for content that no longer exists; if this was a
	// rename, the follow-up create rejoins a batch at the new path.
	e.store.RemoveBatchFile(batchFolder(ev.Path), ev.Path)

	rf, err := e.index.RemoteFile(ev.Path)
	if err != nil {
		e.logger.Warn("remote index read failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		return
	}

	// Local-only files that were never synced have no remote entry and
	// nothing to delete or correlate.
	if rf == nil {
		return
	}

	if rf.Folder {
		// Folder deletes hold for the move window too: a folder dragged
		// to a new parent observes delete-then-create just like a file.
		e.store.AddMoveCandidate(store.MoveCandidate{
			DeletedPath: ev.Path,
			Folder:      true,
			Deadline:    ev.Time.Add(e.cfg.MoveWindow),
		})

		return
	}

	// PendingDelete: hold the delete open for the move window. A create
	// carrying the same fingerprint within the window resolves this
	// into a move instead of a delete plus re-upload.
	e.store.AddMoveCandidate(store.MoveCandidate{
		DeletedPath: ev.Path,
		Fingerprint: rf.Fingerprint,
		Size:        rf.Size,
		Deadline:    ev.Time.Add(e.cfg.MoveWindow),
	})
}

func (e *Engine) handleCreated(ctx context.Context, ev watch.Event) {
	if fp, ok := e.store.Suppressed(ev.Path); ok && e.fingerprintEqual(fp, ev) {
		e.store.ClearSuppression(ev.Path)
		return
	}

	if ev.Folder {
		// A pending folder delete correlates with this create into a
		// move. Folders carry no fingerprint; matching is by name (moved
		// to a new parent) or by parent (renamed in place).
		for _, mc := range e.store.PendingMovesLIFO() {
			if !mc.Folder || !folderCandidateMatches(mc, ev) {
				continue
			}

			e.store.ResolveMove(mc.DeletedPath)
			e.enqueue(ctx, Task{Op: OpMoveFolder, Path: mc.DeletedPath, Dest: ev.Path})

			return
		}

		e.enqueue(ctx, Task{Op: OpCreateFolder, Path: ev.Path})

		return
	}

	// Skip content the remote store already holds for this path.
	if rf, _ := e.index.RemoteFile(ev.Path); rf != nil && rf.Fingerprint != "" && rf.Fingerprint == ev.Fingerprint {
		return
	}

	// Move correlation before batching: the most recently deleted
	// matching candidate wins (drag-and-drop renames observe
	// delete-then-create in tight succession).
	for _, mc := range e.store.PendingMovesLIFO() {
		if !e.candidateMatches(mc, ev) {
			continue
		}

		e.store.ResolveMove(mc.DeletedPath)

		op := OpMove
		if path.Dir(mc.DeletedPath) == path.Dir(ev.Path) {
			op = OpRename
		}

		e.enqueue(ctx, Task{
			Op:          op,
			Path:        mc.DeletedPath,
			Dest:        ev.Path,
			AbsPath:     ev.AbsPath,
			Fingerprint: ev.Fingerprint,
			Size:        ev.Size,
		})

		return
	}

	// No move matched: aggregate into the folder's open batch so one
	// user action ("copy a folder of PDFs in") flushes as one
	// transaction instead of N unordered races.
	folder := batchFolder(ev.Path)

	b := e.store.OpenBatch(folder)
	if b == nil {
		b = e.store.AddBatch(store.FolderBatch{
			ID:       uuid.NewString(),
			Folder:   folder,
			OpenedAt: ev.Time,
			Deadline: ev.Time.Add(e.cfg.FolderBatchWindow),
		})
	}

	b.Files = append(b.Files, store.BatchFile{
		Path:        ev.Path,
		AbsPath:     ev.AbsPath,
		Fingerprint: ev.Fingerprint,
		Size:        ev.Size,
	})
}

func (e *Engine) handleModified(ctx context.Context, ev watch.Event) {
	if fp, ok := e.store.Suppressed(ev.Path); ok && e.fingerprintEqual(fp, ev) {
		e.store.ClearSuppression(ev.Path)
		return
	}

	if rf, _ := e.index.RemoteFile(ev.Path); rf != nil && rf.Fingerprint != "" && rf.Fingerprint == ev.Fingerprint {
		return
	}

	// Content changes re-upload through the create endpoint, which the
	// store treats as an upsert for a known path.
	e.enqueue(ctx, Task{
		Op:          OpCreate,
		Path:        ev.Path,
		AbsPath:     ev.AbsPath,
		Fingerprint: ev.Fingerprint,
		Size:        ev.Size,
	})
}

func (e *Engine) fingerprintEqual(suppressed string, ev watch.Event) bool {
	if suppressed == "" || ev.Fingerprint == "" {
		// Without fingerprints to compare, trust the suppression mark:
		// it is fresher than the event by construction.
		return true
	}

	return e.fp.Matches(suppressed, ev.Fingerprint)
}

func (e *Engine) candidateMatches(mc *store.MoveCandidate, ev watch.Event) bool {
	if mc.Folder {
		return false
	}

	if mc.Fingerprint != "" && ev.Fingerprint != "" {
		return e.fp.Matches(mc.Fingerprint, ev.Fingerprint)
	}

	return mc.Size > 0 && mc.Size == ev.Size
}

func folderCandidateMatches(mc *store.MoveCandidate, ev watch.Event) bool {
	return path.Base(mc.DeletedPath) == path.Base(ev.Path) ||
		path.Dir(mc.DeletedPath) == path.Dir(ev.Path)
}

// batchFolder is the batch key for a file path: its directory, with the
// library root mapping to the empty key.
func batchFolder(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}

	return dir
}

func (e *Engine) handleNotification(n remote.Notification) {
	p := watch.NormalizePath(n.Path)
	ttl := e.suppressionTTL()

	switch n.Type {
	case "fileDeleted":
		// Empty fingerprint marks "remote removed this"; a following
		// local delete event is an echo, not a user action.
		e.store.Suppress(p, "", ttl)

		if err := e.index.DeleteRemoteFile(p); err != nil {
			e.logger.Warn("remote index update failed", slog.String("path", p), slog.String("error", err.Error()))
		}

	case "fileChanged":
		e.store.Suppress(p, n.Fingerprint, ttl)

		err := e.index.SetRemoteFile(state.RemoteFile{
			Path:        p,
			Fingerprint: n.Fingerprint,
			Size:        n.Size,
		})
		if err != nil {
			e.logger.Warn("remote index update failed", slog.String("path", p), slog.String("error", err.Error()))
		}

	case "folderChanged":
		e.store.Suppress(p, "", ttl)

		err := e.index.SetRemoteFile(state.RemoteFile{Path: p, Folder: true})
		if err != nil {
			e.logger.Warn("remote index update failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	e.notifier.RemoteChange(n)
}

func (e *Engine) handleStatus(ctx context.Context, s remote.Status) {
	e.notifier.Status(s)

	switch s {
	case remote.StatusConnected:
		if !e.online {
			e.online = true
			e.replayOffline(ctx)
		}

	case remote.StatusOffline:
		e.online = false
	}
}

func (e *Engine) replayOffline(ctx context.Context) {
	if len(e.offlineQueue) == 0 {
		return
	}

	e.logger.Info("replaying queued tasks", slog.Int("count", len(e.offlineQueue)))

	pending := e.offlineQueue
	e.offlineQueue = nil

	for _, t := range pending {
		e.dispatchOrQueue(ctx, t)
	}
}

func (e *Engine) handleExpiries(ctx context.Context, now time.Time) {
	for _, ex := range e.store.ExpireDue(now) {
		switch ex.Kind {
		case store.KindMove:
			// No matching create arrived in the window: the delete was
			// a real delete.
			if ex.Move != nil && ex.Move.Folder {
				e.enqueue(ctx, Task{Op: OpDeleteFolder, Path: ex.Path})
			} else {
				e.enqueue(ctx, Task{Op: OpDelete, Path: ex.Path})
			}

		case store.KindBatch:
			e.flushBatch(ctx, ex.Batch)

		case store.KindSuppression:
			// Mark lapsed without an echoing local event.
		}
	}
}

func (e *Engine) flushBatch(ctx context.Context, b *store.FolderBatch) {
	if b == nil || len(b.Files) == 0 {
		return
	}

	e.logger.Info("flushing folder batch",
		slog.String("folder", b.Folder),
		slog.String("batch_id", b.ID),
		slog.Int("files", len(b.Files)),
	)

	// Create the destination folder once per batch, before its files.
	if b.Folder != "" {
		if rf, _ := e.index.RemoteFile(b.Folder); rf == nil {
			e.enqueue(ctx, Task{Op: OpCreateFolder, Path: b.Folder, BatchID: b.ID})
		}
	}

	for _, f := range b.Files {
		e.enqueue(ctx, Task{
			Op:          OpCreate,
			Path:        f.Path,
			AbsPath:     f.AbsPath,
			BatchID:     b.ID,
			Fingerprint: f.Fingerprint,
			Size:        f.Size,
		})
	}
}

// FlushAll force-flushes every open batch. Called on shutdown so a
// half-full batch is not lost with the process.
func (e *Engine) FlushAll(ctx context.Context) {
	for _, b := range e.store.AllBatches() {
		e.store.CloseBatch(b.Folder)
		e.flushBatch(ctx, b)
	}
}

func (e *Engine) enqueue(ctx context.Context, t Task) {
	t.ID = uuid.NewString()
	t.Enqueued = time.Now()

	if !e.online {
		e.offlineQueue = append(e.offlineQueue, t)
		e.logger.Debug("queued while offline", slog.String("op", t.Op.String()), slog.String("path", t.Path))

		return
	}

	e.dispatchOrQueue(ctx, t)
}

// dispatchOrQueue enforces per-path exclusivity: a task whose source or
// destination path already has an in-flight task waits behind it, FIFO.
func (e *Engine) dispatchOrQueue(ctx context.Context, t Task) {
	for _, key := range taskKeys(t) {
		if _, busy := e.inflight[key]; busy {
			e.queued[key] = append(e.queued[key], t)
			e.logger.Debug("path busy, queueing",
				slog.String("op", t.Op.String()),
				slog.String("path", t.Path),
				slog.String("busy_key", key),
			)

			return
		}
	}

	for _, key := range taskKeys(t) {
		e.inflight[key] = t.ID
	}

	e.coord.Dispatch(ctx, t)
}

func (e *Engine) handleResult(ctx context.Context, res Result) {
	keys := taskKeys(res.Task)
	for _, key := range keys {
		if e.inflight[key] == res.Task.ID {
			delete(e.inflight, key)
		}
	}

	if res.Err != nil {
		e.logger.Error("task failed terminally",
			slog.String("op", res.Task.Op.String()),
			slog.String("path", res.Task.Path),
			slog.Int("attempts", res.Attempts),
			slog.String("error", res.Err.Error()),
		)
		e.notifier.TaskFailed(res.Task, res.Attempts, res.Err)
	} else {
		e.updateIndex(res.Task)
		e.notifier.TaskSucceeded(res.Task)
	}

	// Release queued work for the freed paths, preserving FIFO order
	// per path.
	for _, key := range keys {
		q := e.queued[key]
		if len(q) == 0 {
			continue
		}

		next := q[0]
		if len(q) == 1 {
			delete(e.queued, key)
		} else {
			e.queued[key] = q[1:]
		}

		e.dispatchOrQueue(ctx, next)
	}
}

// updateIndex records a successful remote mutation so later events can
// correlate against the store's view of the world.
func (e *Engine) updateIndex(t Task) {
	var err error

	switch t.Op {
	case OpCreate:
		err = e.index.SetRemoteFile(state.RemoteFile{
			Path:        t.Path,
			Fingerprint: t.Fingerprint,
			Size:        t.Size,
		})

	case OpMove, OpRename:
		err = e.index.RenameRemoteFile(t.Path, t.Dest)

	case OpDelete:
		err = e.index.DeleteRemoteFile(t.Path)

	case OpCreateFolder:
		err = e.index.SetRemoteFile(state.RemoteFile{Path: t.Path, Folder: true})

	case OpDeleteFolder:
		err = e.deleteIndexPrefix(t.Path)

	case OpMoveFolder:
		err = e.renameIndexPrefix(t.Path, t.Dest)
	}

	if err != nil {
		e.logger.Warn("remote index update failed",
			slog.String("op", t.Op.String()),
			slog.String("path", t.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) deleteIndexPrefix(folder string) error {
	all, err := e.index.AllRemoteFiles()
	if err != nil {
		return err
	}

	for p := range all {
		if p == folder || strings.HasPrefix(p, folder+"/") {
			if err := e.index.DeleteRemoteFile(p); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Engine) renameIndexPrefix(from, to string) error {
	all, err := e.index.AllRemoteFiles()
	if err != nil {
		return err
	}

	for p := range all {
		switch {
		case p == from:
			if err := e.index.RenameRemoteFile(p, to); err != nil {
				return err
			}
		case strings.HasPrefix(p, from+"/"):
			if err := e.index.RenameRemoteFile(p, to+strings.TrimPrefix(p, from)); err != nil {
				return err
			}
		}
	}

	return nil
}

func taskKeys(t Task) []string {
	if t.Dest != "" && t.Dest != t.Path {
		return []string{t.Path, t.Dest}
	}

	return []string{t.Path}
}
