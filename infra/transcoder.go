package infra

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
)

type ImageTranscoder struct {
	jpegQuality int
}

func NewImageTranscoder(jpegQuality int) *ImageTranscoder {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &ImageTranscoder{jpegQuality: jpegQuality}
}

// Transcode decodes raw, shrinks it to fit inside bound keeping the aspect ratio,
// and re-encodes it in the format implied by filename. raw is only read.
func (t *ImageTranscoder) Transcode(raw []byte, filename string, bound config.Bound) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", entity.ErrUnsupportedImageFormat)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrUnsupportedImageFormat, err)
	}

	size := img.Bounds().Size()
	if size.X > bound.Width || size.Y > bound.Height {
		img = imaging.Fit(img, bound.Width, bound.Height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch OutputFormat(filename) {
	case imaging.JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.jpegQuality))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", filename, err)
	}

	return buf.Bytes(), nil
}

// OutputFormat is JPEG for .jpg/.jpeg and PNG for everything else.
func OutputFormat(filename string) imaging.Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return imaging.JPEG
	default:
		return imaging.PNG
	}
}

func ContentTypeFor(filename string) string {
	if OutputFormat(filename) == imaging.JPEG {
		return "image/jpeg"
	}
	return "image/png"
}
