package executor

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// cropJPEG cuts an element screenshot from top down, keeping at most
// maxHeight rows, and re-encodes it as JPEG.
func cropJPEG(raw []byte, top, maxHeight, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	b := img.Bounds()
	if top < 0 || top >= b.Dy() {
		top = 0
	}
	height := b.Dy() - top
	if maxHeight > 0 && height > maxHeight {
		height = maxHeight
	}
	cropped := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+top+height))

	if quality <= 0 {
		quality = 90
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, cropped, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return out.Bytes(), nil
}
