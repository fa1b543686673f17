package metadata

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// renderThumbnail fits a first-page image into a maxSize bounding box
// and encodes it as JPEG at the given quality.
func renderThumbnail(img image.Image, maxSize, quality int) ([]byte, error) {
	fitted := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}
