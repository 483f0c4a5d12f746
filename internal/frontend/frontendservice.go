package frontend

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/opticderm/internal/backend"
	"github.com/jo-hoe/opticderm/internal/catalog"
	"github.com/jo-hoe/opticderm/internal/common"
	"github.com/jo-hoe/opticderm/internal/core"
	"github.com/jo-hoe/opticderm/internal/descriptor"
	"github.com/labstack/echo/v4"
)

const MainPageName = "index.html"

type FrontendService struct {
	coreService   *core.CoreService
	config        *core.ServiceConfig
	uploadLimiter echo.MiddlewareFunc
}

type patientQuery struct {
	Patient string `query:"patient"`
}

type biopsyQuery struct {
	Biopsy string `query:"biopsy" validate:"required"`
}

type selectionQuery struct {
	Biopsy string `query:"biopsy" validate:"required"`
	ROI    string `query:"roi"`
}

type clearForm struct {
	Biopsy string `form:"biopsy" validate:"required"`
	ROI    string `form:"roi"`
}

type uploadForm struct {
	Biopsy   string `form:"biopsy" validate:"required"`
	Modality string `form:"modality" validate:"required"`
	ROI      string `form:"roi"`
}

type indexView struct {
	Patients   []catalog.Patient
	Extensions string
}

type biopsyOptionsView struct {
	PatientID string
	Biopsies  []catalog.Biopsy
}

type roiOptionsView struct {
	BiopsyID string
	ROIs     []catalog.ROIOption
	Images   *imagePanelView
}

type modalityView struct {
	catalog.Modality
	Uploaded  bool
	ImageURL  string
	ThumbURL  string
	RegionURL string
}

type imagePanelView struct {
	BiopsyID   string
	ROI        string
	Modalities []modalityView
	Message    string
	IsError    bool
	Accept     string
}

type measurementRow struct {
	Name           string
	Label          string
	Value          string
	Unit           string
	Classification descriptor.Classification
	Range          string
	Position       float64
	Explanation    string
}

type resultView struct {
	Biopsy   catalog.Biopsy
	ROI      catalog.ROIOption
	Rows     []measurementRow
	ChartURL string
	Images   *imagePanelView
}

type messageView struct {
	Message string
	IsError bool
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService, uploadLimiter echo.MiddlewareFunc) *FrontendService {
	return &FrontendService{
		coreService:   coreService,
		config:        config,
		uploadLimiter: uploadLimiter,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = NewTemplate()

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)

	e.GET("/htmx/biopsies", service.htmxBiopsyOptionsHandler)
	e.GET("/htmx/rois", service.htmxROIOptionsHandler)
	e.GET("/htmx/result", service.htmxResultHandler)
	e.GET("/htmx/chart", service.htmxChartHandler)
	e.GET("/htmx/images", service.htmxImagesHandler)
	e.POST("/htmx/upload", service.htmxUploadHandler, service.uploadLimiter)
	e.POST("/htmx/clear", service.htmxClearUploadsHandler)

	e.GET("/icon.svg", service.iconHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, indexView{
		Patients:   service.coreService.Catalog().ListPatients(),
		Extensions: strings.Join(core.SupportedUploadExtensions, ", "),
	})
}

func (service *FrontendService) htmxBiopsyOptionsHandler(ctx echo.Context) error {
	req := new(patientQuery)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}
	view := biopsyOptionsView{PatientID: req.Patient}
	if req.Patient != "" {
		biopsies, err := service.coreService.Catalog().ListBiopsies(req.Patient)
		if err != nil {
			return service.renderError(ctx, err)
		}
		view.Biopsies = biopsies
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "biopsy_options.html", view)
}

func (service *FrontendService) htmxROIOptionsHandler(ctx echo.Context) error {
	req := new(biopsyQuery)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}
	rois, err := service.coreService.Catalog().ListROIOptions(req.Biopsy)
	if err != nil {
		return service.renderError(ctx, err)
	}
	images, err := service.buildImagePanel(ctx, req.Biopsy, "")
	if err != nil {
		return service.renderError(ctx, err)
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "roi_options.html", roiOptionsView{
		BiopsyID: req.Biopsy,
		ROIs:     rois,
		Images:   images,
	})
}

func (service *FrontendService) htmxResultHandler(ctx echo.Context) error {
	req := new(selectionQuery)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}
	if req.ROI == "" {
		return ctx.Render(http.StatusOK, "message.html", messageView{Message: "Select a region of interest to compute descriptors."})
	}

	result, err := service.coreService.Describe(req.Biopsy, req.ROI)
	if err != nil {
		slog.Warn("htmxResultHandler: describe failed", "biopsy", req.Biopsy, "roi", req.ROI, "error", err)
		return service.renderError(ctx, err)
	}
	images, err := service.buildImagePanel(ctx, req.Biopsy, req.ROI)
	if err != nil {
		return service.renderError(ctx, err)
	}

	rows := make([]measurementRow, 0, len(result.Measurements))
	for _, m := range result.Measurements {
		label := m.Descriptor.Label
		if label == "" {
			label = m.Descriptor.Name
		}
		rows = append(rows, measurementRow{
			Name:           m.Descriptor.Name,
			Label:          label,
			Value:          m.Value.String(),
			Unit:           m.Descriptor.Unit,
			Classification: m.Classification,
			Range:          descriptor.FormatRange(m.Descriptor, m.Range),
			Position:       m.Position,
			Explanation:    m.Explanation,
		})
	}

	query := url.Values{"biopsy": {req.Biopsy}, "roi": {req.ROI}}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "result.html", resultView{
		Biopsy:   result.Biopsy,
		ROI:      result.ROI,
		Rows:     rows,
		ChartURL: "/htmx/chart?" + query.Encode(),
		Images:   images,
	})
}

func (service *FrontendService) htmxChartHandler(ctx echo.Context) error {
	req := new(selectionQuery)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}
	result, err := service.coreService.Describe(req.Biopsy, req.ROI)
	if err != nil {
		return service.renderError(ctx, err)
	}
	html, err := renderRangeChart(result)
	if err != nil {
		slog.Error("htmxChartHandler: failed to render chart", "error", err)
		return service.renderError(ctx, err)
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, html)
}

func (service *FrontendService) htmxImagesHandler(ctx echo.Context) error {
	req := new(selectionQuery)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}
	panel, err := service.buildImagePanel(ctx, req.Biopsy, req.ROI)
	if err != nil {
		return service.renderError(ctx, err)
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "images.html", panel)
}

func (service *FrontendService) htmxUploadHandler(ctx echo.Context) error {
	req := new(uploadForm)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}

	message, isError := "", false
	data, err := backend.ReadUploadedFile(ctx, "image", service.config.UploadMaxBytes)
	if err == nil {
		_, err = service.coreService.UploadImage(ctx.Request().Context(), req.Biopsy, req.Modality, data)
	}
	switch {
	case err == nil:
		message = fmt.Sprintf("Uploaded %s image.", req.Modality)
	case common.StatusCode(err) < http.StatusInternalServerError:
		slog.Warn("htmxUploadHandler: upload rejected", "biopsy", req.Biopsy, "modality", req.Modality, "error", err)
		message, isError = uploadMessage(req.Modality, err), true
	default:
		slog.Error("htmxUploadHandler: upload failed", "biopsy", req.Biopsy, "modality", req.Modality, "error", err)
		return service.renderError(ctx, err)
	}

	panel, err := service.buildImagePanel(ctx, req.Biopsy, req.ROI)
	if err != nil {
		return service.renderError(ctx, err)
	}
	panel.Message, panel.IsError = message, isError
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "images.html", panel)
}

func (service *FrontendService) htmxClearUploadsHandler(ctx echo.Context) error {
	req := new(clearForm)
	if err := common.BindAndValidate(ctx, req); err != nil {
		return service.renderError(ctx, err)
	}
	n, err := service.coreService.ClearUploads(ctx.Request().Context(), req.Biopsy)
	if err != nil {
		return service.renderError(ctx, err)
	}
	panel, err := service.buildImagePanel(ctx, req.Biopsy, req.ROI)
	if err != nil {
		return service.renderError(ctx, err)
	}
	panel.Message = fmt.Sprintf("Removed %d uploaded image(s); placeholders restored.", n)
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "images.html", panel)
}

func (service *FrontendService) buildImagePanel(ctx echo.Context, biopsyID, roiID string) (*imagePanelView, error) {
	biopsy, err := service.coreService.Catalog().Biopsy(biopsyID)
	if err != nil {
		return nil, err
	}
	uploads, err := service.coreService.ListUploads(ctx.Request().Context(), biopsyID)
	if err != nil {
		return nil, err
	}
	uploaded := make(map[string]string, len(uploads))
	for _, u := range uploads {
		uploaded[u.Modality] = u.ID
	}

	panel := &imagePanelView{
		BiopsyID: biopsy.ID,
		ROI:      roiID,
		Accept:   strings.Join(core.SupportedUploadExtensions, ","),
	}
	for _, id := range biopsy.Modalities {
		modality, err := service.coreService.Catalog().Modality(id)
		if err != nil {
			return nil, err
		}
		// the upload ID busts browser caches once an image is replaced
		version := uploaded[id]
		if version == "" {
			version = "placeholder"
		}
		base := "/api/images/" + url.PathEscape(biopsy.ID) + "/" + url.PathEscape(id)
		query := url.Values{"v": {version}}
		if roiID != "" {
			query.Set("roi", roiID)
		}
		view := modalityView{
			Modality: modality,
			Uploaded: uploaded[id] != "",
			ImageURL: base + "?" + query.Encode(),
			ThumbURL: base + "/thumb?v=" + url.QueryEscape(version),
		}
		if roiID != "" {
			view.RegionURL = base + "/roi/" + url.PathEscape(roiID) + "?v=" + url.QueryEscape(version)
		}
		panel.Modalities = append(panel.Modalities, view)
	}
	return panel, nil
}

// uploadMessage shows upload failures in the "Could not load <modality>" form
func uploadMessage(modality string, err error) string {
	msg := fmt.Sprint(common.ToHTTPError(err).Message)
	if strings.HasPrefix(msg, "Could not load") {
		return msg
	}
	return fmt.Sprintf("Could not load %s: %s", modality, msg)
}

func (service *FrontendService) renderError(ctx echo.Context, err error) error {
	httpErr := common.ToHTTPError(err)
	return ctx.Render(httpErr.Code, "message.html", messageView{
		Message: fmt.Sprint(httpErr.Message),
		IsError: true,
	})
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}
