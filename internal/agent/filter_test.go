package agent

import (
	"regexp"
	"testing"

	"github.com/openpapers/papersync/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pdfFilter(t *testing.T, ignore ...string) *Filter {
	t.Helper()

	compiled := make([]*regexp.Regexp, 0, len(ignore))
	for _, p := range ignore {
		re, err := regexp.Compile(p)
		require.NoError(t, err)
		compiled = append(compiled, re)
	}

	return NewFilter([]string{".pdf"}, compiled)
}

func fileEvent(path string) watch.Event {
	return watch.Event{Path: path, Kind: watch.Created}
}

func folderEvent(path string) watch.Event {
	return watch.Event{Path: path, Kind: watch.Created, Folder: true}
}

func TestAllow_Files(t *testing.T) {
	f := pdfFilter(t)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"pdf allowed", "contracts/lease.pdf", true},
		{"uppercase extension allowed", "contracts/LEASE.PDF", true},
		{"extension not in allow-list", "notes/todo.txt", false},
		{"no extension", "contracts/lease", false},
		{"hidden file", "contracts/.lease.pdf", false},
		{"editor backup", "contracts/lease.pdf~", false},
		{"vim swap", "contracts/.lease.pdf.swp", false},
		{"temp write", "contracts/lease.pdf.tmp", false},
		{"partial download", "inbox/report.pdf.part", false},
		{"chrome download", "inbox/report.pdf.crdownload", false},
		{"safari download", "inbox/report.pdf.download", false},
		{"versioned copy parens", "contracts/lease (2).pdf", false},
		{"versioned copy underscore", "contracts/lease_v3.pdf", false},
		{"versioned copy ver", "contracts/lease-ver12.pdf", false},
		{"v in name is fine", "archive/vacation.pdf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Allow(fileEvent(tt.path)))
		})
	}
}

func TestAllow_Folders(t *testing.T) {
	f := pdfFilter(t)

	assert.True(t, f.Allow(folderEvent("contracts/2026")))
	assert.False(t, f.Allow(folderEvent("contracts/.git")), "hidden folders rejected")
}

func TestAllow_IgnorePatterns(t *testing.T) {
	f := pdfFilter(t, `^drafts/`, `archive`)

	assert.False(t, f.Allow(fileEvent("drafts/wip.pdf")))
	assert.False(t, f.Allow(fileEvent("old/archive/report.pdf")))
	assert.False(t, f.Allow(folderEvent("drafts/ideas")), "ignore patterns apply to folders too")
	assert.True(t, f.Allow(fileEvent("contracts/lease.pdf")))
}

func TestAllow_MultipleExtensions(t *testing.T) {
	f := NewFilter([]string{".pdf", ".docx"}, nil)

	assert.True(t, f.Allow(fileEvent("a.pdf")))
	assert.True(t, f.Allow(fileEvent("b.docx")))
	assert.False(t, f.Allow(fileEvent("c.xlsx")))
}

func TestAllow_DeleteEventsFilteredByName(t *testing.T) {
	f := pdfFilter(t)

	assert.True(t, f.Allow(watch.Event{Path: "gone.pdf", Kind: watch.Deleted}))
	assert.False(t, f.Allow(watch.Event{Path: "gone.txt", Kind: watch.Deleted}))
}
