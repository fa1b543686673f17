package watch

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind classifies a filesystem event.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a single observed filesystem change. Events are immutable and
// short-lived: the sync engine consumes them and discards them.
type Event struct {
	// Path is the library-relative, normalized path.
	Path string
	// AbsPath is the OS path the event was observed on.
	AbsPath string
	Kind    Kind
	Time    time.Time
	// Size is the byte size at observation time. Zero for deletes and
	// folders.
	Size int64
	// Folder is true when the event concerns a directory.
	Folder bool
	// Fingerprint is the content fingerprint at observation time. Empty
	// for deletes, folders, and when fingerprinting failed.
	Fingerprint string
}

// NormalizePath normalizes a library-relative path. It converts OS-native
// path separators to forward slashes, replaces non-breaking spaces with
// regular spaces, collapses repeated slashes, trims leading/trailing
// slashes, and applies Unicode NFC normalization. Call this on every
// path entering the system: watcher events, channel notifications, and
// startup scan output.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, "\u00A0", " ")
	path = strings.ReplaceAll(path, "\u202F", " ")

	var b strings.Builder

	prevSlash := false

	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	path = strings.Trim(b.String(), "/")

	return norm.NFC.String(path)
}
