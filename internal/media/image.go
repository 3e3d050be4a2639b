package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Registers decoders; attachments arrive as either format.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxDimension bounds the longer edge of a downscaled attachment.
	MaxDimension = 1280
	// JPEGQuality is the fixed re-encode quality for "fast" uploads.
	JPEGQuality = 80
)

// Downscale re-encodes an image as JPEG, shrinking it so neither edge
// exceeds maxDim. Images already within bounds are re-encoded at the fixed
// quality without resampling. Quality-mode sends skip this entirely and
// upload the original bytes.
func Downscale(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = MaxDimension
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > maxDim || height > maxDim {
		scale := float64(maxDim) / float64(width)
		if height > width {
			scale = float64(maxDim) / float64(height)
		}
		dstW := int(float64(width) * scale)
		dstH := int(float64(height) * scale)
		if dstW < 1 {
			dstW = 1
		}
		if dstH < 1 {
			dstH = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
