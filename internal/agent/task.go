// Package agent contains the core synchronization logic: event
// classification, move-detection correlation, folder batching, and the
// upload/retry coordinator, all driven by a single-writer engine loop.
package agent

import "time"

// Op is the remote operation an upload task performs. One payload shape
// per operation kind: Dest is set only for moves and renames, BatchID
// only for batched creates.
type Op int

const (
	OpCreate Op = iota
	OpMove
	OpRename
	OpDelete
	OpCreateFolder
	OpMoveFolder
	OpDeleteFolder
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpMove:
		return "move"
	case OpRename:
		return "rename"
	case OpDelete:
		return "delete"
	case OpCreateFolder:
		return "create-folder"
	case OpMoveFolder:
		return "move-folder"
	case OpDeleteFolder:
		return "delete-folder"
	default:
		return "unknown"
	}
}

// Task is one remote mutation owned by the coordinator until it
// terminally succeeds or exhausts its retries. At most one task per
// logical document path is in flight at any time.
type Task struct {
	ID string
	Op Op

	// Path is the library-relative source path.
	Path string
	// Dest is the destination path for moves and renames.
	Dest string
	// AbsPath is the local OS path, used to read content for creates.
	AbsPath string
	// BatchID ties together tasks flushed from one folder batch.
	BatchID string

	Fingerprint string
	Size        int64
	Enqueued    time.Time
}

// Result reports a finished task back to the engine loop.
type Result struct {
	Task Task
	// Attempts is the total number of network attempts made.
	Attempts int
	// Err is nil on success. A non-nil Err is terminal: the coordinator
	// performs no further attempts without explicit user action.
	Err error
}
