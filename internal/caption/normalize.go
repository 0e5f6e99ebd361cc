package caption

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const normalizedMIME = "image/jpeg"

// NormalizeConfig bounds the image submitted to the backend.
type NormalizeConfig struct {
	MaxDimension int
	Quality      int
}

// DefaultNormalizeConfig returns a 4096px bound at JPEG quality 85.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{MaxDimension: 4096, Quality: 85}
}

var errEmptyImage = errors.New("image has no pixels")

// Normalize decodes data, flattens transparency onto white, downscales so
// neither side exceeds MaxDimension and re-encodes as JPEG.
func Normalize(data []byte, cfg NormalizeConfig) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errEmptyImage
	}

	if cfg.MaxDimension > 0 && (b.Dx() > cfg.MaxDimension || b.Dy() > cfg.MaxDimension) {
		img = imaging.Fit(img, cfg.MaxDimension, cfg.MaxDimension, imaging.Lanczos)
		b = img.Bounds()
	}

	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1.0)

	quality := cfg.Quality
	if quality <= 0 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}
