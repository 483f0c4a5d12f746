package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

var (
	svgTagPattern  = regexp.MustCompile(`(?is)<svg\b[^>]*>`)
	svgSizePattern = regexp.MustCompile(`(?i)\b(width|height)\s*=\s*["']\s*([0-9]+(?:\.[0-9]+)?)`)
)

// PngConverterCommand normalises uploaded microscopy images to PNG.
// Raster formats are decoded and re-encoded; SVG is rasterised.
type PngConverterCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
	maxPixels         int
}

func NewPngConverterCommand(params map[string]any) (commandstructure.Command, error) {
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 0)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("svg fallback size must not be negative, got %dx%d", w, h)
	}
	maxPixels := commandstructure.GetIntParam(params, "maxPixels", DefaultMaxPixels)
	if maxPixels <= 0 || maxPixels > DefaultMaxPixels {
		return nil, fmt.Errorf("maxPixels must be in (0, %d], got %d", DefaultMaxPixels, maxPixels)
	}
	return &PngConverterCommand{
		name:              "PngConverterCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
		maxPixels:         maxPixels,
	}, nil
}

func (c *PngConverterCommand) Name() string {
	return c.name
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	slog.Debug("PngConverterCommand: start", "input_size_bytes", len(imageData))

	if isSVGData(imageData) {
		return c.convertSVG(imageData)
	}
	if err := checkDimensions(imageData, c.maxPixels); err != nil {
		slog.Warn("PngConverterCommand: rejected image", "error", err)
		return nil, err
	}
	if bytes.HasPrefix(imageData, pngSignature) {
		slog.Debug("PngConverterCommand: PNG detected; returning original bytes")
		return imageData, nil
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		slog.Error("PngConverterCommand: failed to decode image", "error", err)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("PngConverterCommand: decoded raster image",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	out, err := encodePNG(img)
	if err != nil {
		slog.Error("PngConverterCommand: failed to encode image to PNG", "error", err)
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return out, nil
}

func (c *PngConverterCommand) convertSVG(data []byte) ([]byte, error) {
	w, h, ok := svgExplicitSize(data)
	if !ok {
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("SVG has no explicit size and no fallback size is configured")
	}
	if err := checkSize("svg", w, h, c.maxPixels); err != nil {
		return nil, err
	}
	slog.Debug("PngConverterCommand: rasterising SVG", "width", w, "height", h, "explicit", ok)

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := createTargetCanvas(w, h, color.RGBA{255, 255, 255, 255})
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	out, err := encodePNG(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	return out, nil
}

// isSVGData looks for an <svg> start tag in the first 4KB
func isSVGData(data []byte) bool {
	head := data[:min(len(data), 4096)]
	return svgTagPattern.Match(head)
}

// svgExplicitSize reads pixel width and height from the root element.
// A viewBox alone is not treated as a pixel size.
func svgExplicitSize(data []byte) (int, int, bool) {
	tag := svgTagPattern.Find(data[:min(len(data), 8192)])
	if tag == nil {
		return 0, 0, false
	}
	var w, h int
	for _, m := range svgSizePattern.FindAllSubmatch(tag, -1) {
		v, err := strconv.ParseFloat(string(m[2]), 64)
		if err != nil || v < 1 {
			continue
		}
		if bytes.EqualFold(m[1], []byte("width")) {
			w = int(v)
		} else {
			h = int(v)
		}
	}
	return w, h, w > 0 && h > 0
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("PngConverterCommand", NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConverterCommand: %v", err))
	}
}
