package metadata

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/semaphore"
)

const (
	// minMeaningfulWords is the word-count floor below which the text
	// layer is treated as absent and the document as a scanned image.
	minMeaningfulWords = 10

	// maxOCRPages bounds the OCR pass; recognition cost grows linearly
	// with page count and the extracted text is for search, not display.
	maxOCRPages = 25
)

// Options configures the extraction pipeline.
type Options struct {
	ExtractText      bool
	GenerateKeywords bool
	GenerateTags     bool
	MaxKeywords      int
	MaxTags          int
	// OCRLanguages is a Tesseract language spec like "eng+ron".
	OCRLanguages string
	// TagThreshold is the configured confidence threshold in [0,1].
	TagThreshold float64

	ThumbnailsEnabled bool
	ThumbnailMaxSize  int
	ThumbnailQuality  int

	// Workers bounds concurrent extractions. Zero means GOMAXPROCS.
	Workers int
}

// Extractor runs the metadata pipeline on document bytes. Rendering and
// OCR are CPU-bound, so extractions run under a weighted semaphore and
// never touch shared sync state; callers receive a Document and decide
// what to do with it.
type Extractor struct {
	opts   Options
	vocab  *Vocabulary
	ocr    ocrEngine
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewExtractor creates an extraction pipeline. vocab may be nil, which
// disables tag suggestions.
func NewExtractor(opts Options, vocab *Vocabulary, logger *slog.Logger) *Extractor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Extractor{
		opts:   opts,
		vocab:  vocab,
		ocr:    newTesseractEngine(opts.OCRLanguages),
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}
}

// Extract produces metadata for a document. Failures below the text
// layer are degraded, not fatal: the returned Document may carry empty
// keywords, no tags, or no thumbnail, but an error is returned only
// when the bytes cannot be opened as a document at all.
func (e *Extractor) Extract(ctx context.Context, path string, data []byte) (*Document, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening document %s: %w", path, err)
	}
	defer doc.Close()

	out := &Document{}

	if e.opts.ExtractText {
		out.Text = e.textLayer(doc)
		out.WordCount = MeaningfulWordCount(out.Text)

		// A near-empty text layer means a scanned document: render the
		// pages and recognize instead.
		if out.WordCount < minMeaningfulWords {
			if ocrText, ok := e.recognize(ctx, doc, path); ok {
				out.Text = ocrText
				out.WordCount = MeaningfulWordCount(ocrText)
				out.OCR = true
			}
		}
	}

	if e.opts.GenerateKeywords {
		out.Keywords = ExtractKeywords(out.Text, e.opts.MaxKeywords)
	}

	if e.opts.GenerateTags && e.vocab != nil {
		out.Tags = e.vocab.Suggest(out.Text, e.opts.TagThreshold, e.opts.MaxTags)
	}

	if e.opts.ThumbnailsEnabled {
		out.Thumbnail = e.thumbnail(doc, path)
	}

	return out, nil
}

func (e *Extractor) textLayer(doc *fitz.Document) string {
	var b strings.Builder

	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}

		b.WriteString(text)
		b.WriteByte('\n')
	}

	return b.String()
}

// recognize renders each page to a temporary image and runs OCR on it.
// Render artifacts are removed on every exit path. Returns false when
// no page could be recognized.
func (e *Extractor) recognize(ctx context.Context, doc *fitz.Document, path string) (string, bool) {
	pages := doc.NumPage()
	if pages > maxOCRPages {
		pages = maxOCRPages
	}

	var b strings.Builder

	recognized := false

	for i := 0; i < pages; i++ {
		if ctx.Err() != nil {
			break
		}

		text, err := e.recognizePage(ctx, doc, i)
		if err != nil {
			e.logger.Debug("OCR page failed",
				slog.String("path", path),
				slog.Int("page", i),
				slog.String("error", err.Error()),
			)

			continue
		}

		b.WriteString(text)
		b.WriteByte('\n')

		recognized = true
	}

	return b.String(), recognized
}

func (e *Extractor) recognizePage(ctx context.Context, doc *fitz.Document, page int) (string, error) {
	img, err := doc.Image(page)
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}

	tmpPath, cleanup, err := renderToTemp(img)
	if err != nil {
		return "", err
	}
	defer cleanup()

	return e.ocr.Recognize(ctx, tmpPath)
}

func (e *Extractor) thumbnail(doc *fitz.Document, path string) []byte {
	if doc.NumPage() == 0 {
		return nil
	}

	img, err := doc.Image(0)
	if err != nil {
		e.logger.Debug("thumbnail render failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return e.thumbnailFromImage(img, path)
}

func (e *Extractor) thumbnailFromImage(img image.Image, path string) []byte {
	thumb, err := renderThumbnail(img, e.opts.ThumbnailMaxSize, e.opts.ThumbnailQuality)
	if err != nil {
		e.logger.Debug("thumbnail encode failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return thumb
}
