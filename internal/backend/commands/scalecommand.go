package commands

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"
	xdraw "golang.org/x/image/draw"
)

// ScaleParams is the target panel size
type ScaleParams struct {
	Width  int
	Height int
}

func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"width", "height"}); err != nil {
		return nil, err
	}
	width := commandstructure.GetIntParam(params, "width", 0)
	height := commandstructure.GetIntParam(params, "height", 0)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("width and height must be positive, got %dx%d", width, height)
	}
	return &ScaleParams{Width: width, Height: height}, nil
}

// ScaleCommand fits an image into the panel size. The aspect ratio is kept and the
// remaining area is filled black, like the empty field of a microscope view.
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

func NewScaleCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{name: "ScaleCommand", params: typedParams}, nil
}

func (c *ScaleCommand) Name() string {
	return c.name
}

func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("ScaleCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	src := img.Bounds()
	tw, th := c.params.Width, c.params.Height
	if src.Dx() == tw && src.Dy() == th {
		slog.Debug("ScaleCommand: image already has target size", "width", tw, "height", th)
		return imageData, nil
	}

	fit := fitRect(src.Dx(), src.Dy(), tw, th)
	dst := createTargetCanvas(tw, th, color.Black)
	xdraw.ApproxBiLinear.Scale(dst, fit, img, src, xdraw.Over, nil)

	slog.Debug("ScaleCommand: scaled",
		"original_width", src.Dx(),
		"original_height", src.Dy(),
		"target_width", tw,
		"target_height", th,
		"fit", fit.String())

	out, err := encodePNG(dst)
	if err != nil {
		slog.Error("ScaleCommand: failed to encode scaled image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}
	return out, nil
}

// fitRect centers the largest w:h rectangle that fits inside tw x th
func fitRect(w, h, tw, th int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rect(0, 0, tw, th)
	}
	fw, fh := tw, tw*h/w
	if fh > th {
		fw, fh = th*w/h, th
	}
	fw, fh = max(fw, 1), max(fh, 1)
	x0, y0 := (tw-fw)/2, (th-fh)/2
	return image.Rect(x0, y0, x0+fw, y0+fh)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ScaleCommand", NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register ScaleCommand: %v", err))
	}
}
