package commands

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// DefaultMaxPixels bounds the decoded size of any image the commands accept
const DefaultMaxPixels = 40_000_000

// ErrImageTooLarge is returned when an image declares more pixels than allowed
var ErrImageTooLarge = errors.New("image dimensions exceed limit")

// checkDimensions reads only the image header and rejects images above maxPixels
func checkDimensions(data []byte, maxPixels int) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to read image header: %w", err)
	}
	return checkSize(format, cfg.Width, cfg.Height, maxPixels)
}

func checkSize(format string, w, h, maxPixels int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%s image has invalid dimensions %dx%d", format, w, h)
	}
	if int64(w)*int64(h) > int64(maxPixels) {
		return fmt.Errorf("%w: %s image is %dx%d, limit is %d pixels", ErrImageTooLarge, format, w, h, maxPixels)
	}
	return nil
}

func decodePNG(data []byte) (image.Image, error) {
	if err := checkDimensions(data, DefaultMaxPixels); err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	// rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func createTargetCanvas(w, h int, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	return dst
}

// toRGBA copies img into a zero-origin RGBA image
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// regionRect converts fractional bounds to a pixel rectangle inside a w x h image.
// The result is at least one pixel in each dimension.
func regionRect(w, h int, x0, y0, x1, y1 float64) image.Rectangle {
	px0 := clampInt(int(x0*float64(w)), 0, w-1)
	py0 := clampInt(int(y0*float64(h)), 0, h-1)
	px1 := clampInt(int(x1*float64(w)+0.5), px0+1, w)
	py1 := clampInt(int(y1*float64(h)+0.5), py0+1, h)
	return image.Rect(px0, py0, px1, py1)
}
