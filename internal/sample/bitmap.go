// internal/sample/bitmap.go
package sample

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	// Registered decoders for uploaded sketches
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrInvalidInput is returned for bitmaps that cannot be encoded
var ErrInvalidInput = errors.New("invalid input")

// MaxImageSide bounds the width and height of decoded uploads
const MaxImageSide = 2048

// Bitmap is an 8-bit grayscale raster as captured from the drawing surface.
// 0 is black ink, 255 is the white background.
type Bitmap struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pixels"`
}

// NewBitmap creates a bitmap over a copy of pix
func NewBitmap(width, height int, pix []byte) (*Bitmap, error) {
	b := &Bitmap{
		Width:  width,
		Height: height,
		Pix:    append([]byte(nil), pix...),
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks dimensions against the pixel buffer
func (b *Bitmap) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: bitmap is nil", ErrInvalidInput)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: bitmap dimensions %dx%d", ErrInvalidInput, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height {
		return fmt.Errorf("%w: expected %d pixels for %dx%d, got %d",
			ErrInvalidInput, b.Width*b.Height, b.Width, b.Height, len(b.Pix))
	}
	return nil
}

// Gray returns an image view over the bitmap pixels
func (b *Bitmap) Gray() *image.Gray {
	return &image.Gray{
		Pix:    b.Pix,
		Stride: b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// FromImage converts any image to a bitmap. Transparent areas are composited
// onto white so exported canvases keep a light background.
func FromImage(img image.Image) *Bitmap {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Over)

	return &Bitmap{
		Width:  gray.Rect.Dx(),
		Height: gray.Rect.Dy(),
		Pix:    gray.Pix,
	}
}

// Decode reads a PNG, JPEG, GIF, BMP or WebP image into a bitmap
func Decode(r io.Reader) (*Bitmap, string, error) {
	// The header bytes read by DecodeConfig are replayed into the full decode
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode image: %v", ErrInvalidInput, err)
	}
	if cfg.Width > MaxImageSide || cfg.Height > MaxImageSide {
		return nil, "", fmt.Errorf("%w: image %dx%d exceeds %dx%d",
			ErrInvalidInput, cfg.Width, cfg.Height, MaxImageSide, MaxImageSide)
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode image: %v", ErrInvalidInput, err)
	}

	bitmap := FromImage(img)
	if err := bitmap.Validate(); err != nil {
		return nil, format, err
	}
	return bitmap, format, nil
}
