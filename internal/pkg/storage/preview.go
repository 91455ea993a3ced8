package storage

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// PreviewMaxSize bounds the long edge of dashboard preview thumbnails.
const PreviewMaxSize = 512

// BuildPreview downscales an uploaded jewelry photo for gallery/dashboard
// listings and returns it as JPEG bytes. Images already within bounds are
// re-encoded without resizing.
func BuildPreview(original []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = shrinkToFit(img, PreviewMaxSize)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(82)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func shrinkToFit(img image.Image, max int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= max && h <= max {
		return img
	}
	if w >= h {
		return imaging.Resize(img, max, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, max, imaging.Lanczos)
}
