package commands

import (
	"image"
	"image/color"
	"testing"
)

// createTestPNG returns a w x h PNG filled with c
func createTestPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	data, err := encodePNG(createTargetCanvas(w, h, c))
	if err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return data
}

func mustDecode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := decodePNG(data)
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	return img
}

func TestRegionRect(t *testing.T) {
	tests := []struct {
		name           string
		w, h           int
		x0, y0, x1, y1 float64
		want           image.Rectangle
	}{
		{"full image", 100, 50, 0, 0, 1, 1, image.Rect(0, 0, 100, 50)},
		{"center", 100, 100, 0.3, 0.3, 0.7, 0.7, image.Rect(30, 30, 70, 70)},
		{"tiny region keeps one pixel", 10, 10, 0.5, 0.5, 0.51, 0.51, image.Rect(5, 5, 6, 6)},
		{"right edge", 10, 10, 0.99, 0, 1, 1, image.Rect(9, 0, 10, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := regionRect(tt.w, tt.h, tt.x0, tt.y0, tt.x1, tt.y1)
			if got != tt.want {
				t.Errorf("regionRect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParallelForVisitsEveryRow(t *testing.T) {
	const n = 257
	seen := make([]int, n)
	parallelFor(n, func(y int) { seen[y]++ })
	for y, count := range seen {
		if count != 1 {
			t.Fatalf("row %d visited %d times", y, count)
		}
	}
	parallelFor(0, func(int) { t.Fatal("must not be called for n=0") })
}
