// Package metadata turns document bytes into searchable text, ranked
// keywords, tag suggestions, and a first-page thumbnail. Extraction is
// best-effort below the text layer: OCR or thumbnail failures degrade to
// partial metadata instead of failing the upload that requested them.
package metadata

// Document is the metadata attached to an upload before transmission and
// discarded after the upload succeeds.
type Document struct {
	// Text is the extracted text layer, or OCR output for scanned
	// documents.
	Text string
	// WordCount counts meaningful tokens (longer than two characters).
	WordCount int
	// Keywords are the top-ranked keywords, at most the configured
	// maximum.
	Keywords []string
	// Tags are accepted tag suggestions with confidence scores.
	Tags []Suggestion
	// Thumbnail is a JPEG of the first page, bounded by the configured
	// size. Nil when thumbnailing is disabled or failed.
	Thumbnail []byte
	// OCR reports whether the text came from an OCR pass rather than
	// the embedded text layer.
	OCR bool
}
