package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"
	xdraw "golang.org/x/image/draw"
)

// PixelScaleCommand shrinks an image to a fixed width for thumbnails.
// Height follows the aspect ratio unless given explicitly.
type PixelScaleCommand struct {
	name   string
	width  int
	height int
}

func NewPixelScaleCommand(params map[string]any) (commandstructure.Command, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"width"}); err != nil {
		return nil, err
	}
	width := commandstructure.GetIntParam(params, "width", 0)
	height := commandstructure.GetIntParam(params, "height", 0)
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	if height < 0 {
		return nil, fmt.Errorf("height must not be negative, got %d", height)
	}
	return &PixelScaleCommand{name: "PixelScaleCommand", width: width, height: height}, nil
}

func (c *PixelScaleCommand) Name() string {
	return c.name
}

func (c *PixelScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("PixelScaleCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	src := img.Bounds()
	w, h := c.width, c.height
	if h == 0 {
		h = max(1, src.Dy()*w/max(1, src.Dx()))
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)

	slog.Debug("PixelScaleCommand: scaled",
		"original_width", src.Dx(),
		"original_height", src.Dy(),
		"width", w,
		"height", h)

	out, err := encodePNG(dst)
	if err != nil {
		slog.Error("PixelScaleCommand: failed to encode image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}
	return out, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("PixelScaleCommand", NewPixelScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register PixelScaleCommand: %v", err))
	}
}
