package agent

import (
	"path"
	"regexp"
	"strings"

	"github.com/openpapers/papersync/internal/watch"
)

// versionedCopyPattern matches names the platform's desktop clients give
// to versioned copies: a numeric version suffix before the extension,
// like "report (2).pdf" or "report_v3.pdf".
var versionedCopyPattern = regexp.MustCompile(`(?i)(?:\s\(\d+\)|[_-]v(?:er)?\d+)\.[^.]+$`)

// tempSuffixes are in-progress artifacts editors and browsers leave in
// the tree while writing.
var tempSuffixes = []string{"~", ".swp", ".tmp", ".part", ".crdownload", ".download"}

// Filter decides whether a raw filesystem event is relevant. It is a
// pure predicate: no side effects, no state beyond its configuration.
type Filter struct {
	allowedExts map[string]struct{}
	ignore      []*regexp.Regexp
}

// NewFilter builds a filter from the extension allow-list (lowercase,
// dot included) and compiled user ignore patterns.
func NewFilter(fileTypes []string, ignore []*regexp.Regexp) *Filter {
	exts := make(map[string]struct{}, len(fileTypes))
	for _, e := range fileTypes {
		exts[strings.ToLower(e)] = struct{}{}
	}

	return &Filter{allowedExts: exts, ignore: ignore}
}

// Allow reports whether the event should enter the sync pipeline.
// Folder events pass the hidden and ignore-pattern checks only; the
// extension allow-list applies to files.
func (f *Filter) Allow(ev watch.Event) bool {
	base := path.Base(ev.Path)

	if strings.HasPrefix(base, ".") {
		return false
	}

	for _, re := range f.ignore {
		if re.MatchString(ev.Path) {
			return false
		}
	}

	if ev.Folder {
		return true
	}

	lower := strings.ToLower(base)
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}

	if versionedCopyPattern.MatchString(base) {
		return false
	}

	// Deletes carry no reliable type information for the vanished file,
	// so the extension check still applies by name.
	if _, ok := f.allowedExts[strings.ToLower(path.Ext(base))]; !ok {
		return false
	}

	return true
}
