package backend

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/opticderm/internal/common"
	"github.com/jo-hoe/opticderm/internal/core"

	"github.com/labstack/echo/v4"
)

type APIService struct {
	coreService   *core.CoreService
	uploadLimiter echo.MiddlewareFunc
}

type biopsyRequest struct {
	ID string `param:"id" validate:"required"`
}

type patientRequest struct {
	ID string `param:"id" validate:"required"`
}

type descriptorRequest struct {
	BiopsyID string `param:"id" validate:"required"`
	ROI      string `query:"roi" validate:"required"`
}

type referenceRangeRequest struct {
	Tissue     string `query:"tissue" validate:"required"`
	Descriptor string `query:"descriptor" validate:"required"`
}

type imageRequest struct {
	BiopsyID string `param:"biopsy" validate:"required"`
	Modality string `param:"modality" validate:"required"`
	ROI      string `query:"roi"`
}

type regionImageRequest struct {
	BiopsyID string `param:"biopsy" validate:"required"`
	Modality string `param:"modality" validate:"required"`
	ROI      string `param:"roi" validate:"required"`
}

// UploadResponse describes a stored upload without its image data
type UploadResponse struct {
	ID        string `json:"id"`
	BiopsyID  string `json:"biopsyId"`
	Modality  string `json:"modality"`
	CreatedAt string `json:"createdAt"`
	ImageURL  string `json:"imageUrl"`
}

// NewAPIService builds the JSON API. uploadLimiter guards the upload route and should be
// the same instance the UI upload route uses, so a client has one budget.
func NewAPIService(coreService *core.CoreService, uploadLimiter echo.MiddlewareFunc) *APIService {
	return &APIService{
		coreService:   coreService,
		uploadLimiter: uploadLimiter,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.handleProbe)

	api := e.Group("/api")
	api.GET("/patients", s.handleListPatients)
	api.GET("/patients/:id/biopsies", s.handleListBiopsies)
	api.GET("/biopsies/:id/rois", s.handleListROIOptions)
	api.GET("/biopsies/:id/descriptors", s.handleDescriptors)
	api.GET("/biopsies/:id/uploads", s.handleListUploads)
	api.DELETE("/biopsies/:id/uploads", s.handleClearUploads)
	api.GET("/reference-ranges", s.handleReferenceRange)
	api.GET("/modalities", s.handleListModalities)
	api.GET("/descriptors", s.handleListDescriptors)

	api.GET("/images/:biopsy/:modality", s.handleImage)
	api.GET("/images/:biopsy/:modality/thumb", s.handleThumbnail)
	api.GET("/images/:biopsy/:modality/roi/:roi", s.handleRegionImage)
	api.POST("/images/:biopsy/:modality", s.handleUpload, s.uploadLimiter)
}

func (s *APIService) handleProbe(ctx echo.Context) error {
	if err := s.coreService.Ready(); err != nil {
		slog.Warn("API: probe failed", "error", err)
		return ctx.String(http.StatusServiceUnavailable, "unavailable")
	}
	return ctx.String(http.StatusOK, "ok")
}

func (s *APIService) handleListPatients(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, s.coreService.Catalog().ListPatients())
}

func (s *APIService) handleListBiopsies(ctx echo.Context) error {
	req := new(patientRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	biopsies, err := s.coreService.Catalog().ListBiopsies(req.ID)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return ctx.JSON(http.StatusOK, biopsies)
}

func (s *APIService) handleListROIOptions(ctx echo.Context) error {
	req := new(biopsyRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	rois, err := s.coreService.Catalog().ListROIOptions(req.ID)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return ctx.JSON(http.StatusOK, rois)
}

func (s *APIService) handleDescriptors(ctx echo.Context) error {
	req := new(descriptorRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	result, err := s.coreService.Describe(req.BiopsyID, req.ROI)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) handleReferenceRange(ctx echo.Context) error {
	req := new(referenceRangeRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	r, err := s.coreService.Catalog().ReferenceRange(req.Tissue, req.Descriptor)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return ctx.JSON(http.StatusOK, r)
}

func (s *APIService) handleListModalities(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, s.coreService.Catalog().Modalities())
}

func (s *APIService) handleListDescriptors(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, s.coreService.Catalog().Descriptors())
}

func (s *APIService) handleImage(ctx echo.Context) error {
	req := new(imageRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	data, err := s.coreService.Image(ctx.Request().Context(), req.BiopsyID, req.Modality, req.ROI)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return blobPNG(ctx, data)
}

func (s *APIService) handleThumbnail(ctx echo.Context) error {
	req := new(imageRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	data, err := s.coreService.Thumbnail(ctx.Request().Context(), req.BiopsyID, req.Modality)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return blobPNG(ctx, data)
}

func (s *APIService) handleRegionImage(ctx echo.Context) error {
	req := new(regionImageRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	data, err := s.coreService.RegionImage(ctx.Request().Context(), req.BiopsyID, req.Modality, req.ROI)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return blobPNG(ctx, data)
}

func (s *APIService) handleUpload(ctx echo.Context) error {
	req := new(imageRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	data, err := ReadUploadedFile(ctx, "image", s.coreService.Config().UploadMaxBytes)
	if err != nil {
		return err
	}
	upload, err := s.coreService.UploadImage(ctx.Request().Context(), req.BiopsyID, req.Modality, data)
	if err != nil {
		return common.ToHTTPError(err)
	}
	return ctx.JSON(http.StatusCreated, UploadResponse{
		ID:        upload.ID,
		BiopsyID:  upload.BiopsyID,
		Modality:  upload.Modality,
		CreatedAt: upload.CreatedAt.Format(time.RFC3339),
		ImageURL:  "/api/images/" + upload.BiopsyID + "/" + upload.Modality,
	})
}

func (s *APIService) handleListUploads(ctx echo.Context) error {
	req := new(biopsyRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	uploads, err := s.coreService.ListUploads(ctx.Request().Context(), req.ID)
	if err != nil {
		return common.ToHTTPError(err)
	}
	response := make([]UploadResponse, 0, len(uploads))
	for _, u := range uploads {
		response = append(response, UploadResponse{
			ID:        u.ID,
			BiopsyID:  u.BiopsyID,
			Modality:  u.Modality,
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
			ImageURL:  "/api/images/" + u.BiopsyID + "/" + u.Modality,
		})
	}
	return ctx.JSON(http.StatusOK, response)
}

func (s *APIService) handleClearUploads(ctx echo.Context) error {
	req := new(biopsyRequest)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return err
	}
	if _, err := s.coreService.ClearUploads(ctx.Request().Context(), req.ID); err != nil {
		return common.ToHTTPError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ReadUploadedFile reads the multipart file in field, enforcing the extension list and size limit
func ReadUploadedFile(ctx echo.Context, field string, maxBytes int64) ([]byte, error) {
	fileHeader, err := ctx.FormFile(field)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "no image file provided")
	}
	if !core.IsSupportedUpload(fileHeader.Filename) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unsupported file type: "+fileHeader.Filename)
	}
	if fileHeader.Size > maxBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
	}
	return data, nil
}

func blobPNG(ctx echo.Context, data []byte) error {
	ctx.Response().Header().Set("Cache-Control", "no-cache")
	return ctx.Blob(http.StatusOK, "image/png", data)
}
