package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeBounds(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestDownscaleShrinksWideImage(t *testing.T) {
	out, err := Downscale(encodePNG(t, 2000, 500), MaxDimension)
	require.NoError(t, err)

	width, height := decodeBounds(t, out)
	assert.Equal(t, 1280, width)
	assert.Equal(t, 320, height)
}

func TestDownscaleShrinksTallImage(t *testing.T) {
	out, err := Downscale(encodePNG(t, 500, 2000), MaxDimension)
	require.NoError(t, err)

	width, height := decodeBounds(t, out)
	assert.Equal(t, 320, width)
	assert.Equal(t, 1280, height)
}

func TestDownscaleKeepsSmallImageDimensions(t *testing.T) {
	out, err := Downscale(encodePNG(t, 300, 200), MaxDimension)
	require.NoError(t, err)

	width, height := decodeBounds(t, out)
	assert.Equal(t, 300, width)
	assert.Equal(t, 200, height)
}

func TestDownscaleRejectsNonImageData(t *testing.T) {
	_, err := Downscale([]byte("definitely not an image"), MaxDimension)
	assert.Error(t, err)
}
