// Package store holds the agent's in-flight correlation state: pending
// move candidates, open folder-upload batches, and suppression marks for
// remote-initiated changes. Every entry carries a deadline and is evicted
// by the owning event loop, so the store never grows without bound.
//
// The store is deliberately not safe for concurrent use. It is owned by
// the sync engine goroutine (single-writer discipline); other components
// hand work to that goroutine instead of touching the store directly.
package store

import (
	"container/heap"
	"time"
)

// Kind identifies the type of a stored entry.
type Kind int

const (
	KindMove Kind = iota
	KindBatch
	KindSuppression
)

// MoveCandidate is an unresolved delete waiting for a correlating create.
type MoveCandidate struct {
	// DeletedPath is the library-relative path the delete was observed on.
	DeletedPath string
	// Fingerprint is the last known fingerprint for the deleted file,
	// taken from the remote index at delete time.
	Fingerprint string
	// Size is the last known byte size, used when no fingerprint is
	// available.
	Size int64
	// Folder marks a pending directory delete; folder candidates only
	// correlate with folder creates.
	Folder   bool
	Deadline time.Time
}

// BatchFile is one pending file inside a folder batch, carrying what
// the flush needs to build an upload task.
type BatchFile struct {
	Path        string
	AbsPath     string
	Fingerprint string
	Size        int64
}

// FolderBatch accumulates sibling file creations under one directory.
type FolderBatch struct {
	// ID is shared by every upload task flushed from this batch.
	ID string
	// Folder is the library-relative directory path.
	Folder string
	// Files are the pending files in arrival order.
	Files    []BatchFile
	OpenedAt time.Time
	Deadline time.Time
}

// Expired describes an entry evicted by deadline.
type Expired struct {
	Kind  Kind
	Move  *MoveCandidate
	Batch *FolderBatch
	// Path is the store key: deleted path, folder path, or suppressed path.
	Path string
}

// deadlineEntry is a heap element. seq invalidates stale entries: when a
// key is resolved or re-added, its live sequence number changes and old
// heap entries are skipped on pop.
type deadlineEntry struct {
	deadline time.Time
	kind     Kind
	key      string
	seq      uint64
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadlineEntry)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]

	return e
}

type seqKey struct {
	kind Kind
	key  string
}

// Store is the Local State Store, keyed by normalized path.
type Store struct {
	moves map[string]*MoveCandidate
	// moveOrder tracks pending deletes newest-last so correlation can
	// resolve ties LIFO (most recently deleted candidate wins).
	moveOrder []string

	batches map[string]*FolderBatch

	// suppress maps path to the fingerprint the remote side reported.
	// The watcher's next event for that path is dropped if it carries
	// the same fingerprint.
	suppress map[string]string

	deadlines deadlineHeap
	live      map[seqKey]uint64
	nextSeq   uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		moves:    make(map[string]*MoveCandidate),
		batches:  make(map[string]*FolderBatch),
		suppress: make(map[string]string),
		live:     make(map[seqKey]uint64),
	}
}

func (s *Store) schedule(kind Kind, key string, deadline time.Time) {
	s.nextSeq++
	s.live[seqKey{kind, key}] = s.nextSeq
	heap.Push(&s.deadlines, deadlineEntry{deadline: deadline, kind: kind, key: key, seq: s.nextSeq})
}

func (s *Store) unschedule(kind Kind, key string) {
	delete(s.live, seqKey{kind, key})
}

// AddMoveCandidate records a pending delete. A second delete for the same
// path before resolution replaces the earlier candidate.
func (s *Store) AddMoveCandidate(mc MoveCandidate) {
	if _, ok := s.moves[mc.DeletedPath]; ok {
		s.removeMoveOrder(mc.DeletedPath)
	}

	s.moves[mc.DeletedPath] = &mc
	s.moveOrder = append(s.moveOrder, mc.DeletedPath)
	s.schedule(KindMove, mc.DeletedPath, mc.Deadline)
}

// PendingMovesLIFO returns pending move candidates, most recently
// deleted first.
func (s *Store) PendingMovesLIFO() []*MoveCandidate {
	out := make([]*MoveCandidate, 0, len(s.moveOrder))
	for i := len(s.moveOrder) - 1; i >= 0; i-- {
		if mc, ok := s.moves[s.moveOrder[i]]; ok {
			out = append(out, mc)
		}
	}

	return out
}

// ResolveMove removes a candidate the instant its correlating create
// arrives, cancelling the pending deadline.
func (s *Store) ResolveMove(deletedPath string) *MoveCandidate {
	mc, ok := s.moves[deletedPath]
	if !ok {
		return nil
	}

	delete(s.moves, deletedPath)
	s.removeMoveOrder(deletedPath)
	s.unschedule(KindMove, deletedPath)

	return mc
}

func (s *Store) removeMoveOrder(path string) {
	for i, p := range s.moveOrder {
		if p == path {
			s.moveOrder = append(s.moveOrder[:i], s.moveOrder[i+1:]...)
			return
		}
	}
}

// OpenBatch returns the open batch for a folder, or nil.
func (s *Store) OpenBatch(folder string) *FolderBatch {
	return s.batches[folder]
}

// AddBatch opens a new folder batch.
func (s *Store) AddBatch(fb FolderBatch) *FolderBatch {
	b := &fb
	s.batches[fb.Folder] = b
	s.schedule(KindBatch, fb.Folder, fb.Deadline)

	return b
}

// RemoveBatchFile drops a pending file from the folder's open batch,
// reporting whether an entry was removed. A file deleted before its
// batch flushes must not be uploaded.
func (s *Store) RemoveBatchFile(folder, path string) bool {
	b, ok := s.batches[folder]
	if !ok {
		return false
	}

	for i, f := range b.Files {
		if f.Path == path {
			b.Files = append(b.Files[:i], b.Files[i+1:]...)
			return true
		}
	}

	return false
}

// CloseBatch removes an open batch, cancelling its deadline. Returns the
// batch, or nil when no batch is open for the folder.
func (s *Store) CloseBatch(folder string) *FolderBatch {
	b, ok := s.batches[folder]
	if !ok {
		return nil
	}

	delete(s.batches, folder)
	s.unschedule(KindBatch, folder)

	return b
}

// AllBatches returns every open batch. Used to flush on shutdown.
func (s *Store) AllBatches() []*FolderBatch {
	out := make([]*FolderBatch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}

	return out
}

// Suppress records that the remote side already holds the given
// fingerprint for path, so a local event echoing that change must not
// trigger a re-upload. The mark evicts after ttl.
func (s *Store) Suppress(path, fp string, ttl time.Duration) {
	s.suppress[path] = fp
	s.schedule(KindSuppression, path, time.Now().Add(ttl))
}

// Suppressed returns the remotely-reported fingerprint for path. The
// second return is false when no suppression mark is active; an active
// mark may carry an empty fingerprint (remote deletes).
func (s *Store) Suppressed(path string) (string, bool) {
	fp, ok := s.suppress[path]
	return fp, ok
}

// ClearSuppression removes a suppression mark before its TTL.
func (s *Store) ClearSuppression(path string) {
	delete(s.suppress, path)
	s.unschedule(KindSuppression, path)
}

// ExpireDue pops every entry whose deadline has passed, removing it from
// the store. The caller turns expired moves into independent deletes and
// expired batches into flushes.
func (s *Store) ExpireDue(now time.Time) []Expired {
	var out []Expired

	for len(s.deadlines) > 0 {
		head := s.deadlines[0]
		if head.deadline.After(now) {
			break
		}

		heap.Pop(&s.deadlines)

		// Stale entry: the key was resolved or re-added since scheduling.
		if s.live[seqKey{head.kind, head.key}] != head.seq {
			continue
		}

		s.unschedule(head.kind, head.key)

		switch head.kind {
		case KindMove:
			mc := s.moves[head.key]
			delete(s.moves, head.key)
			s.removeMoveOrder(head.key)
			out = append(out, Expired{Kind: KindMove, Move: mc, Path: head.key})

		case KindBatch:
			b := s.batches[head.key]
			delete(s.batches, head.key)
			out = append(out, Expired{Kind: KindBatch, Batch: b, Path: head.key})

		case KindSuppression:
			delete(s.suppress, head.key)
			out = append(out, Expired{Kind: KindSuppression, Path: head.key})
		}
	}

	return out
}

// NextDeadline returns the earliest live deadline, or false when the
// store holds no scheduled entries.
func (s *Store) NextDeadline() (time.Time, bool) {
	for len(s.deadlines) > 0 {
		head := s.deadlines[0]
		if s.live[seqKey{head.kind, head.key}] == head.seq {
			return head.deadline, true
		}

		heap.Pop(&s.deadlines)
	}

	return time.Time{}, false
}

// Len returns the number of live entries across all kinds.
func (s *Store) Len() int {
	return len(s.moves) + len(s.batches) + len(s.suppress)
}
