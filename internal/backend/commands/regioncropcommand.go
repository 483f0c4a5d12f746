package commands

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"
)

// RegionParams is a rectangle in fractional image coordinates
type RegionParams struct {
	X0, Y0, X1, Y1 float64
}

// NewRegionParamsFromMap reads x0, y0, x1, y1 from params; every bound must lie in [0,1]
func NewRegionParamsFromMap(params map[string]any) (*RegionParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"x0", "y0", "x1", "y1"}); err != nil {
		return nil, err
	}
	r := &RegionParams{
		X0: commandstructure.GetFloatParam(params, "x0", -1),
		Y0: commandstructure.GetFloatParam(params, "y0", -1),
		X1: commandstructure.GetFloatParam(params, "x1", -1),
		Y1: commandstructure.GetFloatParam(params, "y1", -1),
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r RegionParams) validate() error {
	for _, v := range []float64{r.X0, r.Y0, r.X1, r.Y1} {
		if v < 0 || v > 1 {
			return fmt.Errorf("region bounds must be numbers in [0,1], got %+v", r)
		}
	}
	if r.X0 >= r.X1 || r.Y0 >= r.Y1 {
		return fmt.Errorf("region must have positive area, got %+v", r)
	}
	return nil
}

// RegionCropCommand cuts the ROI rectangle out of an image for a detail view
type RegionCropCommand struct {
	name   string
	params *RegionParams
}

func NewRegionCropCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewRegionParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &RegionCropCommand{
		name:   "RegionCropCommand",
		params: typedParams,
	}, nil
}

// NewRegionCropCommandWithParams builds the command from typed bounds
func NewRegionCropCommandWithParams(region RegionParams) (*RegionCropCommand, error) {
	if err := region.validate(); err != nil {
		return nil, err
	}
	return &RegionCropCommand{name: "RegionCropCommand", params: &region}, nil
}

func (c *RegionCropCommand) Name() string {
	return c.name
}

func (c *RegionCropCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("RegionCropCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	rect := regionRect(bounds.Dx(), bounds.Dy(), c.params.X0, c.params.Y0, c.params.X1, c.params.Y1)
	slog.Debug("RegionCropCommand: cropping",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"crop", rect.String())

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, bounds.Min.Add(rect.Min), draw.Src)

	out, err := encodePNG(cropped)
	if err != nil {
		slog.Error("RegionCropCommand: failed to encode cropped image", "error", err)
		return nil, fmt.Errorf("failed to encode cropped PNG image: %w", err)
	}
	return out, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("RegionCropCommand", NewRegionCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register RegionCropCommand: %v", err))
	}
}
