// Package imageutil prepares uploaded images for the model and renders
// gallery previews.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
)

// DefaultMaxInputDimension bounds the longest side of images sent to the model.
const DefaultMaxInputDimension = 2048

// MaxPixels is the largest width x height that will be decoded. The header is
// checked first so a small file declaring huge dimensions is never expanded.
const MaxPixels = 64_000_000

// ErrTooLarge is returned for images whose declared dimensions exceed MaxPixels.
var ErrTooLarge = errors.New("image dimensions too large")

// checkDimensions reads only the image header. ok is false when no
// registered decoder recognizes the format.
func checkDimensions(data []byte) (ok bool, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false, nil
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return true, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	return true, nil
}

// MaxInputDimensionFromEnv parses MOCKUP_MAX_INPUT_DIM, falling back to
// DefaultMaxInputDimension for empty or invalid values. Zero disables resizing.
func MaxInputDimensionFromEnv(value string) int {
	if value == "" {
		return DefaultMaxInputDimension
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		log.Warn().Str("value", value).Msg("Invalid MOCKUP_MAX_INPUT_DIM, using default")
		return DefaultMaxInputDimension
	}
	return n
}

// Normalize decodes img, downscales it so neither side exceeds maxDim and
// re-encodes it as PNG. Metadata such as EXIF is not carried over. A maxDim
// of zero or less keeps the original size.
//
// Formats the standard decoders cannot read are returned unchanged so the
// model can still attempt them.
func Normalize(img *dataurl.Image, maxDim int) (*dataurl.Image, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("normalize: empty image")
	}

	known, err := checkDimensions(img.Data)
	if err != nil {
		return nil, err
	}
	var decoded image.Image
	var format string
	if known {
		decoded, format, err = image.Decode(bytes.NewReader(img.Data))
	}
	if !known || err != nil {
		log.Warn().
			Err(err).
			Str("mime_type", img.MIMEType).
			Int("size", len(img.Data)).
			Msg("Image format not decodable, sending original bytes")
		return img, nil
	}

	bounds := decoded.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	newWidth, newHeight := width, height
	if maxDim > 0 {
		newWidth, newHeight = scaledDimensions(width, height, maxDim)
	}

	var out image.Image = decoded
	if newWidth != width || newHeight != height {
		out = resize(decoded, newWidth, newHeight)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("original_width", width).
		Int("original_height", height).
		Int("width", newWidth).
		Int("height", newHeight).
		Int("original_size", len(img.Data)).
		Int("size", buf.Len()).
		Msg("Image normalized")

	return dataurl.New("image/png", buf.Bytes()), nil
}

// Thumbnail renders a JPEG preview of img with the longest side at most maxDim.
func Thumbnail(img *dataurl.Image, maxDim int) ([]byte, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("thumbnail: empty image")
	}
	if _, err := checkDimensions(img.Data); err != nil {
		return nil, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := decoded.Bounds()
	newWidth, newHeight := scaledDimensions(bounds.Dx(), bounds.Dy(), maxDim)
	thumb := resize(decoded, newWidth, newHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail as JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func resize(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// scaledDimensions fits width x height inside a maxDim square, keeping the
// aspect ratio. Images already inside are returned as-is.
func scaledDimensions(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}

	if width > height {
		newHeight := int(float64(height) * float64(maxDim) / float64(width))
		return maxDim, max(newHeight, 1)
	}

	newWidth := int(float64(width) * float64(maxDim) / float64(height))
	return max(newWidth, 1), maxDim
}
