package infra

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
)

func encodeTestImage(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (image.Point, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return image.Point{X: cfg.Width, Y: cfg.Height}, format
}

func TestTranscodeWithinBoundKeepsDimensions(t *testing.T) {
	tr := NewImageTranscoder(85)
	raw := encodeTestImage(t, 500, 500, imaging.PNG)

	out, err := tr.Transcode(raw, "a1b2c3d4e5f6.png", config.Bound{Width: 800, Height: 800})
	require.NoError(t, err)

	size, format := decodeSize(t, out)
	assert.Equal(t, image.Point{X: 500, Y: 500}, size)
	assert.Equal(t, "png", format)
}

func TestTranscodeDownscalesPreservingAspect(t *testing.T) {
	tr := NewImageTranscoder(85)
	raw := encodeTestImage(t, 4000, 3000, imaging.JPEG)

	out, err := tr.Transcode(raw, "photo.jpg", config.Bound{Width: 800, Height: 800})
	require.NoError(t, err)

	size, format := decodeSize(t, out)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, size.X, 800)
	assert.LessOrEqual(t, size.Y, 800)
	assert.InDelta(t, 600, size.Y, 1)
	assert.InDelta(t, float64(4000)/3000, float64(size.X)/float64(size.Y), 0.01)
}

func TestTranscodeRespectsEveryRoleBound(t *testing.T) {
	tr := NewImageTranscoder(85)
	cfg := config.LoadEnvConfig()

	inputs := []struct {
		w, h int
		name string
	}{
		{1200, 300, "wide.png"},
		{300, 1200, "tall.jpg"},
		{640, 480, "small.jpeg"},
		{2000, 2000, "square.png"},
	}

	for _, role := range []string{"listing", "profile", "cover"} {
		settings, ok := cfg.Role(role)
		require.True(t, ok)
		for _, in := range inputs {
			format := OutputFormat(in.name)
			out, err := tr.Transcode(encodeTestImage(t, in.w, in.h, format), in.name, settings.Bound)
			require.NoError(t, err, "%s %s", role, in.name)

			size, _ := decodeSize(t, out)
			assert.LessOrEqual(t, size.X, settings.Bound.Width, "%s %s", role, in.name)
			assert.LessOrEqual(t, size.Y, settings.Bound.Height, "%s %s", role, in.name)
		}
	}
}

func TestTranscodeDoesNotMutateInput(t *testing.T) {
	tr := NewImageTranscoder(85)
	raw := encodeTestImage(t, 1000, 1000, imaging.PNG)
	original := append([]byte(nil), raw...)

	_, err := tr.Transcode(raw, "x.png", config.Bound{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, original, raw)
}

func TestTranscodeRejectsNonImage(t *testing.T) {
	tr := NewImageTranscoder(85)

	_, err := tr.Transcode([]byte("MZ\x90\x00 not an image"), "evil.jpg", config.Bound{Width: 800, Height: 800})
	assert.ErrorIs(t, err, entity.ErrUnsupportedImageFormat)

	_, err = tr.Transcode(nil, "empty.png", config.Bound{Width: 800, Height: 800})
	assert.ErrorIs(t, err, entity.ErrUnsupportedImageFormat)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeFor("a.JPG"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("a.jpeg"))
	assert.Equal(t, "image/png", ContentTypeFor("a.png"))
}
