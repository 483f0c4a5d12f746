package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jo-hoe/opticderm/internal/backend/cache"
	"github.com/jo-hoe/opticderm/internal/backend/commands"
	"github.com/jo-hoe/opticderm/internal/backend/commandstructure"
	"github.com/jo-hoe/opticderm/internal/backend/database"
	"github.com/jo-hoe/opticderm/internal/catalog"
	"github.com/jo-hoe/opticderm/internal/descriptor"
)

// SupportedUploadExtensions lists the file types offered by the upload form
var SupportedUploadExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".gif", ".bmp", ".webp", ".svg"}

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// ErrUploadTooLarge is returned for uploads above the configured size limit
var ErrUploadTooLarge = errors.New("upload too large")

// UploadError reports an upload that could not be turned into a displayable image
type UploadError struct {
	Modality string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("Could not load %s: %v", e.Modality, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsSupportedUpload reports whether the file name has an accepted image extension
func IsSupportedUpload(filename string) bool {
	return slices.Contains(SupportedUploadExtensions, strings.ToLower(filepath.Ext(filename)))
}

type CoreService struct {
	config          *ServiceConfig
	catalog         *catalog.Catalog
	engine          *descriptor.Engine
	databaseService database.DatabaseService
	imageCache      cache.ImageCache
	uploadPipeline  *commandstructure.CommandInvoker
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	cat, err := loadCatalog(config.CatalogPath)
	if err != nil {
		return nil, err
	}

	uploadPipeline, err := commandstructure.NewCommandInvokerFromConfig(commandstructure.DefaultRegistry, config.Commands)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload pipeline: %w", err)
	}

	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Core: database initialized", "type", config.Database.Type)

	imageCache, err := cache.NewImageCache(config.Cache.Type, config.Cache.Address, config.Cache.TTL)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize image cache: %w", err)
	}
	slog.Info("Core: image cache initialized", "type", config.Cache.Type, "ttl", config.Cache.TTL)

	return &CoreService{
		config:          config,
		catalog:         cat,
		engine:          descriptor.NewEngine(cat),
		databaseService: databaseService,
		imageCache:      imageCache,
		uploadPipeline:  uploadPipeline,
	}, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if path == "" {
		cat, err = catalog.Default()
	} else {
		cat, err = catalog.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog is incomplete: %w", err)
	}
	for _, m := range cat.Modalities() {
		if !commands.SupportsModality(m.ID) {
			return nil, fmt.Errorf("catalog modality %q has no placeholder renderer", m.ID)
		}
	}

	source := path
	if source == "" {
		source = "embedded"
	}
	slog.Info("Core: catalog loaded",
		"source", source,
		"patients", len(cat.ListPatients()),
		"descriptors", len(cat.Descriptors()))
	return cat, nil
}

// Catalog exposes the read-only catalog
func (service *CoreService) Catalog() *catalog.Catalog {
	return service.catalog
}

// Config returns the configuration the service was built with
func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Describe runs the descriptor engine for the biopsy and ROI
func (service *CoreService) Describe(biopsyID, roiID string) (*descriptor.Result, error) {
	result, err := service.engine.Describe(biopsyID, roiID)
	if err != nil {
		return nil, err
	}
	slog.Debug("Core: descriptors computed",
		"biopsy", biopsyID,
		"roi", roiID,
		"classifications", result.Classifications())
	return result, nil
}

// Image returns the panel image of one modality. With a non-empty roiID the ROI is outlined.
func (service *CoreService) Image(ctx context.Context, biopsyID, modality, roiID string) ([]byte, error) {
	biopsy, err := service.resolveModality(biopsyID, modality)
	if err != nil {
		return nil, err
	}
	base, source, err := service.baseImage(ctx, biopsy, modality)
	if err != nil {
		return nil, err
	}
	if roiID == "" {
		return base, nil
	}

	roi, err := service.resolveROI(biopsy, roiID)
	if err != nil {
		return nil, err
	}
	key := cache.Key(biopsy.ID, modality, roi.ID, "overlay@"+source, service.config.Placeholder.Width)
	return service.cached(ctx, key, func() ([]byte, error) {
		command, err := commands.NewRegionOverlayCommandWithParams(regionParams(roi.Region),
			commands.DefaultOverlayStroke, commands.DefaultOverlayStrokeWidth)
		if err != nil {
			return nil, err
		}
		return command.Execute(base)
	})
}

// RegionImage returns the ROI cut out of the modality image
func (service *CoreService) RegionImage(ctx context.Context, biopsyID, modality, roiID string) ([]byte, error) {
	biopsy, err := service.resolveModality(biopsyID, modality)
	if err != nil {
		return nil, err
	}
	roi, err := service.resolveROI(biopsy, roiID)
	if err != nil {
		return nil, err
	}
	base, source, err := service.baseImage(ctx, biopsy, modality)
	if err != nil {
		return nil, err
	}

	key := cache.Key(biopsy.ID, modality, roi.ID, "crop@"+source, service.config.Placeholder.Width)
	return service.cached(ctx, key, func() ([]byte, error) {
		command, err := commands.NewRegionCropCommandWithParams(regionParams(roi.Region))
		if err != nil {
			return nil, err
		}
		return command.Execute(base)
	})
}

// Thumbnail returns a small version of the modality image for the overview
func (service *CoreService) Thumbnail(ctx context.Context, biopsyID, modality string) ([]byte, error) {
	biopsy, err := service.resolveModality(biopsyID, modality)
	if err != nil {
		return nil, err
	}
	base, source, err := service.baseImage(ctx, biopsy, modality)
	if err != nil {
		return nil, err
	}

	width := service.config.ThumbnailWidth
	key := cache.Key(biopsy.ID, modality, "", "thumb@"+source, width)
	return service.cached(ctx, key, func() ([]byte, error) {
		command, err := commands.NewPixelScaleCommand(map[string]any{"width": width})
		if err != nil {
			return nil, err
		}
		return command.Execute(base)
	})
}

// UploadImage runs the upload pipeline and stores the result in place of the placeholder
func (service *CoreService) UploadImage(ctx context.Context, biopsyID, modality string, data []byte) (*database.Upload, error) {
	biopsy, err := service.resolveModality(biopsyID, modality)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > service.config.UploadMaxBytes {
		return nil, &UploadError{Modality: modality, Err: fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrUploadTooLarge, len(data), service.config.UploadMaxBytes)}
	}
	if len(data) == 0 {
		return nil, &UploadError{Modality: modality, Err: errors.New("file is empty")}
	}

	processed, err := service.uploadPipeline.Execute(data)
	if err != nil {
		return nil, &UploadError{Modality: modality, Err: err}
	}
	if !bytes.HasPrefix(processed, pngSignature) {
		return nil, &UploadError{Modality: modality, Err: errors.New("upload pipeline did not produce a PNG image")}
	}

	upload, err := service.databaseService.SaveUpload(ctx, biopsy.ID, modality, data, processed)
	if err != nil {
		return nil, err
	}
	slog.Info("Core: image uploaded",
		"biopsy", biopsy.ID,
		"modality", modality,
		"id", upload.ID,
		"original_size_bytes", len(data),
		"processed_size_bytes", len(processed))
	return upload, nil
}

// ListUploads returns the uploads stored for the biopsy
func (service *CoreService) ListUploads(ctx context.Context, biopsyID string) ([]*database.Upload, error) {
	if _, err := service.catalog.Biopsy(biopsyID); err != nil {
		return nil, err
	}
	return service.databaseService.ListUploads(ctx, biopsyID)
}

// ClearUploads deletes every upload of the biopsy so its placeholders are shown again
func (service *CoreService) ClearUploads(ctx context.Context, biopsyID string) (int64, error) {
	if _, err := service.catalog.Biopsy(biopsyID); err != nil {
		return 0, err
	}
	n, err := service.databaseService.DeleteUploadsForBiopsy(ctx, biopsyID)
	if err != nil {
		return 0, err
	}
	slog.Info("Core: uploads cleared", "biopsy", biopsyID, "count", n)
	return n, nil
}

// ErrNotReady is returned by Ready when the upload store cannot be reached
var ErrNotReady = errors.New("service not ready")

// Ready reports whether the upload store answers
func (service *CoreService) Ready() error {
	if !service.databaseService.DoesDatabaseExist() {
		return fmt.Errorf("%w: upload store unreachable", ErrNotReady)
	}
	return nil
}

func (service *CoreService) Close() error {
	return errors.Join(service.imageCache.Close(), service.databaseService.Close())
}

func (service *CoreService) resolveModality(biopsyID, modality string) (catalog.Biopsy, error) {
	biopsy, err := service.catalog.Biopsy(biopsyID)
	if err != nil {
		return catalog.Biopsy{}, err
	}
	if !slices.Contains(biopsy.Modalities, modality) {
		return catalog.Biopsy{}, fmt.Errorf("%w: modality %q is not available for biopsy %s", catalog.ErrUnknownSelection, modality, biopsy.ID)
	}
	return biopsy, nil
}

func (service *CoreService) resolveROI(biopsy catalog.Biopsy, roiID string) (catalog.ROIOption, error) {
	if !biopsy.AllowsROI(roiID) {
		return catalog.ROIOption{}, fmt.Errorf("%w: roi %q is not one of %v for biopsy %s", descriptor.ErrInvalidROI, roiID, biopsy.ROIs, biopsy.ID)
	}
	return service.catalog.ROIOption(roiID)
}

// baseImage returns the processed upload if one exists, otherwise the placeholder.
// source identifies which one was used so derived images are cached per source.
func (service *CoreService) baseImage(ctx context.Context, biopsy catalog.Biopsy, modality string) ([]byte, string, error) {
	upload, err := service.databaseService.GetUpload(ctx, biopsy.ID, modality)
	if err != nil {
		return nil, "", err
	}
	if upload != nil {
		return upload.ProcessedImage, "upload-" + upload.ID, nil
	}

	size := service.config.Placeholder
	key := cache.Key(biopsy.ID, modality, "", fmt.Sprintf("placeholder@%d", size.Height), size.Width)
	data, err := service.cached(ctx, key, func() ([]byte, error) {
		return commands.RenderPlaceholder(modality, biopsy.ID, size.Width, size.Height)
	})
	return data, "placeholder", err
}

// cached returns the cached image for key or renders and stores it. Cache failures are
// logged and otherwise ignored.
func (service *CoreService) cached(ctx context.Context, key string, render func() ([]byte, error)) ([]byte, error) {
	data, ok, err := service.imageCache.Get(ctx, key)
	if err != nil {
		slog.Warn("Core: image cache read failed", "key", key, "error", err)
	} else if ok {
		return data, nil
	}

	data, err = render()
	if err != nil {
		return nil, err
	}
	if err := service.imageCache.Set(ctx, key, data); err != nil {
		slog.Warn("Core: image cache write failed", "key", key, "error", err)
	}
	return data, nil
}

func regionParams(r catalog.Region) commands.RegionParams {
	return commands.RegionParams{X0: r.X0, Y0: r.Y0, X1: r.X1, Y1: r.Y1}
}
