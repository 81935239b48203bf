package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestPath(t *testing.T) {
	assert.Equal(t, "images/2025/01/cat_thumbnail.jpg", Path("images/2025/01/cat.jpg"))
	assert.Equal(t, "photo_thumbnail.png", Path("photo.png"))
	assert.Equal(t, "noext_thumbnail", Path("noext"))
}

func TestRenderScalesDownPreservingAspect(t *testing.T) {
	out, err := Render(pngBytes(t, 2000, 1000), ".png")
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 150, w)
	assert.Equal(t, 75, h)
}

func TestRenderPortrait(t *testing.T) {
	out, err := Render(pngBytes(t, 300, 600), ".png")
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 75, w)
	assert.Equal(t, 150, h)
}

func TestRenderKeepsSmallImages(t *testing.T) {
	out, err := Render(pngBytes(t, 100, 80), ".png")
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 100, w)
	assert.Equal(t, 80, h)
}

func TestRenderRejectsGarbage(t *testing.T) {
	_, err := Render([]byte("definitely not an image"), ".png")
	assert.Error(t, err)
}

func TestRenderRejectsUnknownExtension(t *testing.T) {
	_, err := Render(pngBytes(t, 10, 10), ".webp")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType(".jpg"))
	assert.Equal(t, "image/jpeg", ContentType(".JPEG"))
	assert.Equal(t, "image/png", ContentType(".png"))
	assert.Equal(t, "application/octet-stream", ContentType(".xyz"))
}
