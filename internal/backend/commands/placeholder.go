package commands

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"log/slog"
	"math/rand/v2"
)

// palette produces the base colour of one placeholder pixel from a noise source
type palette func(rng *rand.Rand) color.RGBA

var modalityPalettes = map[string]palette{
	// fluorescence lifetime look: green/teal
	"MPM-FLIM": func(rng *rand.Rand) color.RGBA {
		return color.RGBA{
			R: uint8(rng.Float64() * 40),
			G: uint8(150 + rng.Float64()*80),
			B: uint8(120 + rng.Float64()*60),
			A: 255,
		}
	},
	// reflectance look: greyscale
	"confocal": func(rng *rand.Rand) color.RGBA {
		g := uint8(80 + rng.Float64()*120)
		return color.RGBA{R: g, G: g, B: g, A: 255}
	},
	// warm grey
	"RCM": func(rng *rand.Rand) color.RGBA {
		g := int(100 + rng.Float64()*100)
		return color.RGBA{
			R: uint8(clampInt(g+20, 0, 255)),
			G: uint8(g),
			B: uint8(clampInt(g-10, 0, 255)),
			A: 255,
		}
	},
}

// SupportsModality reports whether a placeholder palette exists for the modality
func SupportsModality(modality string) bool {
	_, ok := modalityPalettes[modality]
	return ok
}

// RenderPlaceholder draws a synthetic noise image in the colour scheme of the modality,
// darkened towards the top to look vaguely tissue-like. The output depends only on the
// arguments, so the same seed always yields the same PNG.
func RenderPlaceholder(modality, seed string, width, height int) ([]byte, error) {
	pal, ok := modalityPalettes[modality]
	if !ok {
		return nil, fmt.Errorf("no placeholder palette for modality %q", modality)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid placeholder dimensions: %dx%d", width, height)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed + "/" + modality))
	base := h.Sum64()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	parallelFor(height, func(y int) {
		// one generator per row keeps the output independent of scheduling
		rng := rand.New(rand.NewPCG(base, uint64(y)))
		factor := 0.7
		if height > 1 {
			factor += 0.3 * float64(y) / float64(height-1)
		}
		for x := 0; x < width; x++ {
			c := pal(rng)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(float64(c.R) * factor),
				G: uint8(float64(c.G) * factor),
				B: uint8(float64(c.B) * factor),
				A: 255,
			})
		}
	})

	out, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	slog.Debug("RenderPlaceholder: rendered",
		"modality", modality,
		"width", width,
		"height", height,
		"output_size_bytes", len(out))
	return out, nil
}
