// internal/sample/encoder.go
package sample

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

const (
	// Side is the width and height the device model was trained on
	Side = 28
	// Size is the number of bytes in one sample
	Size = Side * Side
)

// Sample is the exact payload sent to the device: 28x28 inverted luminance, row-major
type Sample [Size]byte

// Encode resizes, inverts and flattens a bitmap into a sample
func Encode(b *Bitmap) (Sample, error) {
	var s Sample
	if err := b.Validate(); err != nil {
		return s, err
	}

	// Lanczos3 keeps the downsampled strokes anti-aliased
	resized := resize.Resize(Side, Side, b.Gray(), resize.Lanczos3)

	bounds := resized.Bounds()
	if bounds.Dx() != Side || bounds.Dy() != Side {
		return s, fmt.Errorf("%w: resize produced %dx%d", ErrInvalidInput, bounds.Dx(), bounds.Dy())
	}

	for y := 0; y < Side; y++ {
		for x := 0; x < Side; x++ {
			s[y*Side+x] = 255 - grayAt(resized, bounds.Min.X+x, bounds.Min.Y+y)
		}
	}

	return s, nil
}

// Bytes returns the sample as a byte slice
func (s *Sample) Bytes() []byte {
	return s[:]
}

// Image renders the sample as it is seen by the device
func (s *Sample) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, Side, Side))
	copy(img.Pix, s[:])
	return img
}

func grayAt(img image.Image, x, y int) uint8 {
	if g, ok := img.(*image.Gray); ok {
		return g.GrayAt(x, y).Y
	}
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}
