package metadata

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// ocrEngine recognizes text in a rendered page image. Extracted as an
// interface so pipeline tests can stub the Tesseract dependency.
type ocrEngine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// tesseractEngine runs OCR through gosseract. A fresh client is created
// per page: Tesseract clients are cheap relative to recognition itself
// and a crash in native code then only loses one page.
type tesseractEngine struct {
	languages []string
}

// newTesseractEngine parses a language spec like "eng+ron".
func newTesseractEngine(languages string) *tesseractEngine {
	var langs []string

	for _, l := range strings.Split(languages, "+") {
		l = strings.TrimSpace(l)
		if l != "" {
			langs = append(langs, l)
		}
	}

	return &tesseractEngine{languages: langs}
}

func (t *tesseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return "", fmt.Errorf("setting OCR languages: %w", err)
		}
	}

	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("loading page image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running OCR: %w", err)
	}

	return text, nil
}

// renderToTemp writes a page image to a temporary PNG and returns its
// path with a cleanup function. The caller must always invoke cleanup;
// the render artifact must not outlive the OCR pass, whether it
// succeeds or not.
func renderToTemp(img image.Image) (string, func(), error) {
	f, err := os.CreateTemp("", "papersync-ocr-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("creating OCR temp file: %w", err)
	}

	cleanup := func() {
		os.Remove(f.Name())
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		cleanup()

		return "", nil, fmt.Errorf("encoding page image: %w", err)
	}

	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing OCR temp file: %w", err)
	}

	return f.Name(), cleanup, nil
}
