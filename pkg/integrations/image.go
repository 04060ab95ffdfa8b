package integrations

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// maxPageWidth and maxPageHeight bound exported page dimensions. Typical
// e-reader panels top out well below this; anything larger just bloats the
// EPUB.
const (
	maxPageWidth  = 1600
	maxPageHeight = 2560

	jpegQuality = 85
)

// normalizePage re-encodes a page image for export, downscaling anything
// that exceeds the panel bounds. Images already in bounds are returned
// unchanged to avoid a lossy re-encode.
func normalizePage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxPageWidth && height <= maxPageHeight {
		return data, nil
	}

	scale := float64(maxPageWidth) / float64(width)
	if s := float64(maxPageHeight) / float64(height); s < scale {
		scale = s
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale)))

	// CatmullRom for high-quality downscaling.
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}
	return buf.Bytes(), nil
}
