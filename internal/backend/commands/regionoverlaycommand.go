package commands

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	DefaultOverlayStroke      = "#ffd400"
	DefaultOverlayStrokeWidth = 3.0
)

// RegionOverlayCommand outlines the ROI rectangle on an image. The outline is written
// as a small SVG document and rasterised on top of the decoded image.
type RegionOverlayCommand struct {
	name        string
	region      *RegionParams
	stroke      string
	strokeWidth float64
}

func NewRegionOverlayCommand(params map[string]any) (commandstructure.Command, error) {
	region, err := NewRegionParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	command, err := NewRegionOverlayCommandWithParams(*region,
		commandstructure.GetStringParam(params, "stroke", DefaultOverlayStroke),
		commandstructure.GetFloatParam(params, "strokeWidth", DefaultOverlayStrokeWidth))
	if err != nil {
		return nil, err
	}
	return command, nil
}

// NewRegionOverlayCommandWithParams builds the command from a typed region and stroke
func NewRegionOverlayCommandWithParams(region RegionParams, stroke string, strokeWidth float64) (*RegionOverlayCommand, error) {
	if err := region.validate(); err != nil {
		return nil, err
	}
	if strokeWidth <= 0 {
		return nil, fmt.Errorf("strokeWidth must be positive, got %v", strokeWidth)
	}
	return &RegionOverlayCommand{
		name:        "RegionOverlayCommand",
		region:      &region,
		stroke:      stroke,
		strokeWidth: strokeWidth,
	}, nil
}

func (c *RegionOverlayCommand) Name() string {
	return c.name
}

func (c *RegionOverlayCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("RegionOverlayCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	dst := toRGBA(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	rect := regionRect(w, h, c.region.X0, c.region.Y0, c.region.X1, c.region.Y1)

	// keep the stroke inside the rectangle so it is not clipped at the image edge
	inset := c.strokeWidth / 2
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="%s" stroke-width="%.1f"/></svg>`,
		w, h, w, h,
		float64(rect.Min.X)+inset, float64(rect.Min.Y)+inset,
		max(float64(rect.Dx())-c.strokeWidth, 1), max(float64(rect.Dy())-c.strokeWidth, 1),
		c.stroke, c.strokeWidth)

	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(svg)))
	if err != nil {
		return nil, fmt.Errorf("failed to build ROI outline: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	slog.Debug("RegionOverlayCommand: outlined region", "rect", rect.String(), "stroke", c.stroke)

	out, err := encodePNG(dst)
	if err != nil {
		slog.Error("RegionOverlayCommand: failed to encode image", "error", err)
		return nil, fmt.Errorf("failed to encode PNG image: %w", err)
	}
	return out, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("RegionOverlayCommand", NewRegionOverlayCommand); err != nil {
		panic(fmt.Sprintf("failed to register RegionOverlayCommand: %v", err))
	}
}
