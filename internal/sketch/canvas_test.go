package sketch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digit-service/internal/sample"
)

func pixel(b *sample.Bitmap, x, y int) byte {
	return b.Pix[y*b.Width+x]
}

func TestNewCanvasIsWhite(t *testing.T) {
	c, err := NewCanvas(DefaultSize, DefaultStrokeWidth)
	require.NoError(t, err)

	b := c.Bitmap()
	require.NoError(t, b.Validate())
	for i, v := range b.Pix {
		require.Equal(t, byte(255), v, "index %d", i)
	}
}

func TestStrokeDrawsInk(t *testing.T) {
	c, err := NewCanvas(DefaultSize, DefaultStrokeWidth)
	require.NoError(t, err)

	c.Stroke([]Point{{X: 60, Y: 160}, {X: 260, Y: 160}})
	b := c.Bitmap()

	assert.Equal(t, byte(0), pixel(b, 160, 160))
	assert.Equal(t, byte(0), pixel(b, 160, 152))
	// Round cap extends past the end point
	assert.Equal(t, byte(0), pixel(b, 265, 160))
	assert.Equal(t, byte(255), pixel(b, 160, 100))
	assert.Equal(t, byte(255), pixel(b, 10, 10))
}

func TestStrokeSinglePointDrawsDot(t *testing.T) {
	c, err := NewCanvas(100, 20)
	require.NoError(t, err)

	c.Stroke([]Point{{X: 50, Y: 50}})
	b := c.Bitmap()

	assert.Equal(t, byte(0), pixel(b, 50, 50))
	assert.Equal(t, byte(255), pixel(b, 50, 80))
}

func TestStrokeOutsideCanvasIsClipped(t *testing.T) {
	c, err := NewCanvas(100, 20)
	require.NoError(t, err)

	c.Stroke([]Point{{X: -50, Y: 50}, {X: 150, Y: 50}})
	b := c.Bitmap()

	assert.Equal(t, byte(0), pixel(b, 0, 50))
	assert.Equal(t, byte(0), pixel(b, 99, 50))
}

func TestBitmapIsSnapshot(t *testing.T) {
	c, err := NewCanvas(50, 10)
	require.NoError(t, err)

	before := c.Bitmap()
	c.Stroke([]Point{{X: 0, Y: 25}, {X: 50, Y: 25}})
	assert.Equal(t, byte(255), pixel(before, 25, 25))

	c.Clear()
	assert.Equal(t, byte(255), pixel(c.Bitmap(), 25, 25))
}

func TestStrokeEncodesToBrightSample(t *testing.T) {
	c, err := NewCanvas(DefaultSize, DefaultStrokeWidth)
	require.NoError(t, err)
	c.Stroke([]Point{{X: 160, Y: 40}, {X: 160, Y: 280}})

	s, err := sample.Encode(c.Bitmap())
	require.NoError(t, err)
	assert.Greater(t, s[14*sample.Side+14], byte(128))
	assert.Equal(t, byte(0), s[0])
}

func TestNewCanvasRejectsBadSize(t *testing.T) {
	_, err := NewCanvas(0, 10)
	assert.True(t, errors.Is(err, sample.ErrInvalidInput))

	_, err = NewCanvas(MaxSize+1, 10)
	assert.True(t, errors.Is(err, sample.ErrInvalidInput))

	_, err = NewCanvas(10, 0)
	assert.True(t, errors.Is(err, sample.ErrInvalidInput))
}
