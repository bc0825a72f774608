// internal/sketch/canvas.go
package sketch

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/vector"

	"digit-service/internal/sample"
)

const (
	// DefaultSize matches the drawing area of the desktop client
	DefaultSize = 320
	// DefaultStrokeWidth is the pen width used on the captured raster
	DefaultStrokeWidth = 24
	// MaxSize bounds canvases created from request input
	MaxSize = sample.MaxImageSide
)

// kappa places cubic control points for a quarter circle
const kappa = 0.5522847498

// Point is a pen position in canvas pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Canvas is a white square raster that freehand strokes are drawn onto
type Canvas struct {
	size        int
	strokeWidth float64
	img         *image.Gray
	raster      *vector.Rasterizer
	mutex       sync.Mutex
}

// NewCanvas creates a blank canvas
func NewCanvas(size int, strokeWidth float64) (*Canvas, error) {
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("%w: canvas size %d out of range", sample.ErrInvalidInput, size)
	}
	if strokeWidth <= 0 {
		return nil, fmt.Errorf("%w: stroke width must be positive", sample.ErrInvalidInput)
	}

	c := &Canvas{
		size:        size,
		strokeWidth: strokeWidth,
		img:         image.NewGray(image.Rect(0, 0, size, size)),
		raster:      vector.NewRasterizer(size, size),
	}
	c.clear()
	return c, nil
}

// Size returns the canvas side length
func (c *Canvas) Size() int {
	return c.size
}

// Clear resets the canvas to white
func (c *Canvas) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.clear()
}

func (c *Canvas) clear() {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
}

// Stroke draws a round-capped polyline through points. A single point draws a dot.
func (c *Canvas) Stroke(points []Point) {
	if len(points) == 0 {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	r := c.strokeWidth / 2
	if len(points) == 1 {
		c.fill(func() { c.circle(points[0], r) })
		return
	}

	for i := 1; i < len(points); i++ {
		p0, p1 := points[i-1], points[i]
		if p0 == p1 {
			c.fill(func() { c.circle(p0, r) })
			continue
		}
		c.fill(func() { c.capsule(p0, p1, r) })
	}
}

// Bitmap captures the current raster. Later strokes do not affect the result.
func (c *Canvas) Bitmap() *sample.Bitmap {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return &sample.Bitmap{
		Width:  c.size,
		Height: c.size,
		Pix:    append([]byte(nil), c.img.Pix...),
	}
}

// fill rasterizes one closed contour in black ink
func (c *Canvas) fill(path func()) {
	c.raster.Reset(c.size, c.size)
	path()
	c.raster.Draw(c.img, c.img.Bounds(), image.Black, image.Point{})
}

// capsule traces a segment with semicircular ends as a single convex contour
func (c *Canvas) capsule(p0, p1 Point, r float64) {
	theta := math.Atan2(p1.Y-p0.Y, p1.X-p0.X)

	start := polar(p1, r, theta-math.Pi/2)
	c.raster.MoveTo(float32(start.X), float32(start.Y))
	c.arc(p1, r, theta-math.Pi/2)
	c.arc(p1, r, theta)

	side := polar(p0, r, theta+math.Pi/2)
	c.raster.LineTo(float32(side.X), float32(side.Y))
	c.arc(p0, r, theta+math.Pi/2)
	c.arc(p0, r, theta+math.Pi)
	c.raster.ClosePath()
}

func (c *Canvas) circle(p Point, r float64) {
	start := polar(p, r, 0)
	c.raster.MoveTo(float32(start.X), float32(start.Y))
	for i := 0; i < 4; i++ {
		c.arc(p, r, float64(i)*math.Pi/2)
	}
	c.raster.ClosePath()
}

// arc appends a quarter circle from angle a to a+pi/2 around center
func (c *Canvas) arc(center Point, r, a float64) {
	b := a + math.Pi/2
	from, to := polar(center, r, a), polar(center, r, b)
	k := kappa * r

	c.raster.CubeTo(
		float32(from.X-k*math.Sin(a)), float32(from.Y+k*math.Cos(a)),
		float32(to.X+k*math.Sin(b)), float32(to.Y-k*math.Cos(b)),
		float32(to.X), float32(to.Y),
	)
}

func polar(center Point, r, angle float64) Point {
	return Point{
		X: center.X + r*math.Cos(angle),
		Y: center.Y + r*math.Sin(angle),
	}
}
