// Package fingerprint derives the value used to correlate a deleted path
// with a newly created path as the same logical file. The default
// strategy hashes file content with BLAKE3; the size strategy falls back
// to size plus modification time for trees too large to hash cheaply.
package fingerprint

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Strategy computes a fingerprint for a file on disk.
type Strategy interface {
	// File fingerprints the file at path. The returned string is opaque;
	// two files with equal fingerprints are treated as the same logical
	// document by the move-detection correlator.
	File(path string) (string, error)

	// Matches reports whether a candidate fingerprint recorded at delete
	// time correlates with one observed at create time. Kept on the
	// interface so strategies can relax equality (the size strategy
	// ignores the mtime component, which changes across a move).
	Matches(recorded, observed string) bool
}

// New returns the strategy for the given name: "content" or "size".
func New(name string) (Strategy, error) {
	switch name {
	case "content":
		return contentStrategy{}, nil
	case "size":
		return sizeStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint strategy %q", name)
	}
}

// contentStrategy hashes the full file content with BLAKE3.
type contentStrategy struct{}

func (contentStrategy) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for fingerprint: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file content: %w", err)
	}

	return fmt.Sprintf("b3:%x", h.Sum(nil)), nil
}

func (contentStrategy) Matches(recorded, observed string) bool {
	return recorded != "" && recorded == observed
}

// Bytes fingerprints in-memory content with BLAKE3. Used after uploads
// to record the fingerprint the remote store now holds.
func Bytes(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("b3:%x", sum)
}

// sizeStrategy records size and mtime. Only the size component takes
// part in correlation: a moved file keeps its byte size but the new
// directory entry may carry a fresh modification time.
type sizeStrategy struct{}

func (sizeStrategy) File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat for fingerprint: %w", err)
	}

	return fmt.Sprintf("sz:%d:%d", info.Size(), info.ModTime().UnixMilli()), nil
}

func (sizeStrategy) Matches(recorded, observed string) bool {
	return recorded != "" && sizePart(recorded) == sizePart(observed)
}

func sizePart(fp string) string {
	// Format is sz:<size>:<mtime>. Everything up to the second colon.
	for i := 3; i < len(fp); i++ {
		if fp[i] == ':' {
			return fp[:i]
		}
	}

	return fp
}
