package caption

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

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeDownscalesLargeImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 50))
	out, err := Normalize(encodePNG(t, src), NormalizeConfig{MaxDimension: 64, Quality: 85})
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 16, cfg.Height)
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 30, 20))
	out, err := Normalize(encodePNG(t, src), DefaultNormalizeConfig())
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestNormalizeFlattensTransparencyOntoWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 16)) // fully transparent
	out, err := Normalize(encodePNG(t, src), DefaultNormalizeConfig())
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	r, g, b, _ := img.At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestNormalizeGrayAndPaletted(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 10, 10))
	pal := image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.Black, color.White})

	for _, img := range []image.Image{gray, pal} {
		out, err := Normalize(encodePNG(t, img), DefaultNormalizeConfig())
		require.NoError(t, err)
		_, err = jpeg.DecodeConfig(bytes.NewReader(out))
		assert.NoError(t, err)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte("GIF89a but truncated"), DefaultNormalizeConfig())
	assert.Error(t, err)

	_, err = Normalize(nil, DefaultNormalizeConfig())
	assert.Error(t, err)
}

func TestDefaultNormalizeConfig(t *testing.T) {
	cfg := DefaultNormalizeConfig()
	assert.Equal(t, 4096, cfg.MaxDimension)
	assert.Equal(t, 85, cfg.Quality)
}
