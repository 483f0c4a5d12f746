package core

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jo-hoe/opticderm/internal/backend/commands"
	"github.com/jo-hoe/opticderm/internal/catalog"
	"github.com/jo-hoe/opticderm/internal/descriptor"
)

func newTestService(t *testing.T) *CoreService {
	t.Helper()
	config := DefaultConfig()
	config.Placeholder = Placeholder{Width: 64, Height: 48}
	config.ThumbnailWidth = 16
	config.Commands[1].Params = map[string]any{"width": 64, "height": 48}

	service, err := NewCoreService(config)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	return service
}

func decodeSize(t *testing.T, data []byte) image.Point {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img.Bounds().Size()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// oversizedPNGHeader declares a 50000x50000 RGB image in a few bytes
func oversizedPNGHeader() []byte {
	ihdr := append([]byte("IHDR"), 0, 0, 0xC3, 0x50, 0, 0, 0xC3, 0x50, 8, 2, 0, 0, 0)
	out := append([]byte{}, pngSignature...)
	out = binary.BigEndian.AppendUint32(out, 13)
	out = append(out, ihdr...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(ihdr))
}

func TestNewCoreService_InvalidCatalogPath(t *testing.T) {
	config := DefaultConfig()
	config.CatalogPath = "/does/not/exist.yaml"
	if _, err := NewCoreService(config); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}

func TestNewCoreService_InvalidPipeline(t *testing.T) {
	config := DefaultConfig()
	config.Commands[1].Params = map[string]any{"width": 0, "height": 10}
	if _, err := NewCoreService(config); err == nil {
		t.Fatal("expected error for invalid ScaleCommand params")
	}
}

func TestNewCoreService_ModalityWithoutPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `patients:
  - id: P1
modalities:
  - id: RCM
  - id: OCT
roiOptions:
  - id: dermis
    region: {x0: 0, y0: 0, x1: 1, y1: 1}
biopsies:
  - id: B1
    patientId: P1
    tissue: scar
    rois: [dermis]
descriptors:
  - name: keratin dominance
    mock: {min: 0.1, max: 0.5}
referenceRanges:
  - {tissue: scar, descriptor: keratin dominance, low: 0.1, high: 0.5}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	config.CatalogPath = path
	_, err := NewCoreService(config)
	if err == nil {
		t.Fatal("expected error for modality OCT without placeholder")
	}
	if !strings.Contains(err.Error(), `"OCT"`) {
		t.Errorf("error should name the modality, got %v", err)
	}

	content = strings.Replace(content, "  - id: OCT\n", "", 1)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	service, err := NewCoreService(config)
	if err != nil {
		t.Fatalf("catalog without OCT should load: %v", err)
	}
	_ = service.Close()
}

func TestCoreService_Ready(t *testing.T) {
	config := DefaultConfig()
	service, err := NewCoreService(config)
	if err != nil {
		t.Fatal(err)
	}
	if err := service.Ready(); err != nil {
		t.Fatalf("expected ready service, got %v", err)
	}

	_ = service.Close()
	if err := service.Ready(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady after close, got %v", err)
	}
}

func TestCoreService_Describe(t *testing.T) {
	service := newTestService(t)

	result, err := service.Describe("B1", "lesion-center")
	if err != nil {
		t.Fatalf("Describe error: %v", err)
	}
	if got := result.Classifications()["metabolic state"]; got != descriptor.Elevated {
		t.Errorf("expected elevated metabolic state, got %s", got)
	}

	if _, err := service.Describe("B3", "epidermis"); !errors.Is(err, descriptor.ErrInvalidROI) {
		t.Errorf("expected ErrInvalidROI, got %v", err)
	}
}

func TestCoreService_PlaceholderImages(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	first, err := service.Image(ctx, "B1", "RCM", "")
	if err != nil {
		t.Fatalf("Image error: %v", err)
	}
	if size := decodeSize(t, first); size != image.Pt(64, 48) {
		t.Errorf("expected 64x48 placeholder, got %v", size)
	}
	second, _ := service.Image(ctx, "B1", "RCM", "")
	if !bytes.Equal(first, second) {
		t.Error("expected identical placeholder on repeated requests")
	}

	overlay, err := service.Image(ctx, "B1", "RCM", "dermis")
	if err != nil {
		t.Fatalf("Image with ROI error: %v", err)
	}
	if bytes.Equal(first, overlay) {
		t.Error("expected overlay to differ from the plain image")
	}

	thumb, err := service.Thumbnail(ctx, "B1", "RCM")
	if err != nil {
		t.Fatalf("Thumbnail error: %v", err)
	}
	if size := decodeSize(t, thumb); size != image.Pt(16, 12) {
		t.Errorf("expected 16x12 thumbnail, got %v", size)
	}

	crop, err := service.RegionImage(ctx, "B1", "RCM", "lesion-center")
	if err != nil {
		t.Fatalf("RegionImage error: %v", err)
	}
	// lesion-center spans 0.30..0.70 in both directions
	if size := decodeSize(t, crop); size.X != 26 || size.Y != 20 {
		t.Errorf("unexpected crop size %v", size)
	}
}

func TestCoreService_ImageSelectionErrors(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"unknown biopsy", func() error { _, err := service.Image(ctx, "B99", "RCM", ""); return err }, catalog.ErrUnknownSelection},
		{"modality not acquired", func() error { _, err := service.Image(ctx, "B5", "confocal", ""); return err }, catalog.ErrUnknownSelection},
		{"roi not allowed", func() error { _, err := service.Image(ctx, "B3", "RCM", "epidermis"); return err }, descriptor.ErrInvalidROI},
		{"crop roi not allowed", func() error { _, err := service.RegionImage(ctx, "B2", "RCM", "lesion-center"); return err }, descriptor.ErrInvalidROI},
		{"thumbnail unknown modality", func() error { _, err := service.Thumbnail(ctx, "B1", "OCT"); return err }, catalog.ErrUnknownSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCoreService_UploadReplacesPlaceholder(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	placeholder, _ := service.Image(ctx, "B2", "confocal", "")
	placeholderThumb, _ := service.Thumbnail(ctx, "B2", "confocal")

	upload, err := service.UploadImage(ctx, "B2", "confocal", jpegBytes(t, 128, 96))
	if err != nil {
		t.Fatalf("UploadImage error: %v", err)
	}
	if upload.ID == "" {
		t.Fatal("expected upload ID")
	}

	img, err := service.Image(ctx, "B2", "confocal", "")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(img, placeholder) {
		t.Fatal("expected uploaded image to replace the placeholder")
	}
	if size := decodeSize(t, img); size != image.Pt(64, 48) {
		t.Errorf("expected upload scaled to panel size, got %v", size)
	}
	thumb, _ := service.Thumbnail(ctx, "B2", "confocal")
	if bytes.Equal(thumb, placeholderThumb) {
		t.Error("expected thumbnail cache to follow the upload")
	}

	uploads, err := service.ListUploads(ctx, "B2")
	if err != nil || len(uploads) != 1 || uploads[0].Modality != "confocal" {
		t.Fatalf("unexpected uploads %v err=%v", uploads, err)
	}

	n, err := service.ClearUploads(ctx, "B2")
	if err != nil || n != 1 {
		t.Fatalf("ClearUploads: n=%d err=%v", n, err)
	}
	restored, _ := service.Image(ctx, "B2", "confocal", "")
	if !bytes.Equal(restored, placeholder) {
		t.Error("expected placeholder after clearing uploads")
	}
}

func TestCoreService_UploadErrors(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.UploadImage(ctx, "B1", "MPM-FLIM", []byte("definitely not an image"))
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if uploadErr.Modality != "MPM-FLIM" {
		t.Errorf("unexpected modality %s", uploadErr.Modality)
	}
	if got := err.Error(); !strings.HasPrefix(got, "Could not load MPM-FLIM: ") {
		t.Errorf("unexpected message %q", got)
	}

	_, err = service.UploadImage(ctx, "B1", "RCM", oversizedPNGHeader())
	if !errors.As(err, &uploadErr) || !errors.Is(err, commands.ErrImageTooLarge) {
		t.Errorf("expected UploadError wrapping ErrImageTooLarge, got %v", err)
	}

	service.config.UploadMaxBytes = 10
	_, err = service.UploadImage(ctx, "B1", "MPM-FLIM", jpegBytes(t, 8, 8))
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Errorf("expected ErrUploadTooLarge, got %v", err)
	}

	if _, err := service.UploadImage(ctx, "B5", "confocal", jpegBytes(t, 8, 8)); !errors.Is(err, catalog.ErrUnknownSelection) {
		t.Errorf("expected ErrUnknownSelection, got %v", err)
	}
	if _, err := service.ClearUploads(ctx, "B99"); !errors.Is(err, catalog.ErrUnknownSelection) {
		t.Errorf("expected ErrUnknownSelection, got %v", err)
	}
}

func TestIsSupportedUpload(t *testing.T) {
	for _, name := range []string{"scan.png", "scan.JPG", "scan.jpeg", "scan.tif", "scan.TIFF"} {
		if !IsSupportedUpload(name) {
			t.Errorf("expected %s to be supported", name)
		}
	}
	for _, name := range []string{"scan.pdf", "scan", "notes.txt"} {
		if IsSupportedUpload(name) {
			t.Errorf("expected %s to be rejected", name)
		}
	}
}
