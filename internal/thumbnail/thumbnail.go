package thumbnail

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// Bounding box for generated thumbnails. Aspect ratio is preserved, so
// one side may come out smaller.
const (
	MaxWidth  = 150
	MaxHeight = 150
)

// Path derives the deterministic thumbnail key from the original's key:
// images/2025/01/cat.jpg -> images/2025/01/cat_thumbnail.jpg
func Path(original string) string {
	ext := path.Ext(original)
	name := strings.TrimSuffix(original, ext)
	return name + "_thumbnail" + ext
}

// Render decodes image bytes, scales them down into the bounding box
// and re-encodes in the format implied by ext. Images already inside
// the box are passed through unscaled.
func Render(data []byte, ext string) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("unsupported image extension %q: %w", ext, err)
	}

	thumb := imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type for an image extension
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
