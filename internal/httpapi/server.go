// Package httpapi exposes worker onboarding, document extraction and the
// re-upload endpoint over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"docverify/internal/domain"
	"docverify/internal/integrations/llm"
	"docverify/internal/pipeline"
	"docverify/internal/reupload"
	"docverify/internal/storage/sqlite"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, workerID string, category domain.DocumentCategory, rawText, documentPath string) (pipeline.Outcome, error)
}

type Reuploader interface {
	Apply(ctx context.Context, workerID, action string) (reupload.Outcome, error)
}

type WorkerStore interface {
	CreateWorker(ctx context.Context, workerID, mobileNumber string) error
	GetWorker(ctx context.Context, workerID string) (domain.WorkerDocumentState, error)
	CountDependents(ctx context.Context, workerID string) (domain.Dependents, error)
}

type Config struct {
	Addr       string
	LLMEnabled bool
	// Gatherer backs GET /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

type Server struct {
	echo       *echo.Echo
	processor  DocumentProcessor
	reuploader Reuploader
	store      WorkerStore
	logger     *zap.Logger
	config     Config
}

func NewServer(processor DocumentProcessor, reuploader Reuploader, store WorkerStore, logger *zap.Logger, cfg Config) (*Server, error) {
	if processor == nil || reuploader == nil || store == nil {
		return nil, errors.New("httpapi: processor, reuploader and store are required")
	}
	if logger == nil {
		return nil, errors.New("httpapi: logger is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = detailErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:       e,
		processor:  processor,
		reuploader: reuploader,
		store:      store,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
	}

	s.echo.POST("/workers", s.handleCreateWorker)
	s.echo.GET("/:worker_id/verification", s.handleVerification)
	s.echo.POST("/:worker_id/documents/:category", s.handleDocument)
	s.echo.POST("/:worker_id/document-reupload", s.handleReupload)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// detailErrorHandler renders echo errors as {"detail": ...}.
func detailErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			logger.Error("unhandled handler error", zap.Error(err))
			he = echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		detail, ok := he.Message.(string)
		if !ok {
			detail = http.StatusText(he.Code)
		}
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(he.Code)
		} else {
			writeErr = c.JSON(he.Code, ErrorResponse{Detail: detail})
		}
		if writeErr != nil {
			logger.Error("write error response", zap.Error(writeErr))
		}
	}
}

type HealthResponse struct {
	Status     string `json:"status"`
	LLMEnabled bool   `json:"llm_enabled"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", LLMEnabled: s.config.LLMEnabled})
}

type CreateWorkerRequest struct {
	MobileNumber string `json:"mobile_number"`
}

type CreateWorkerResponse struct {
	WorkerID string `json:"worker_id"`
}

func (s *Server) handleCreateWorker(c echo.Context) error {
	var req CreateWorkerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	mobile := strings.TrimSpace(req.MobileNumber)
	if mobile == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mobile_number is required")
	}

	workerID := uuid.NewString()
	if err := s.store.CreateWorker(c.Request().Context(), workerID, mobile); err != nil {
		s.logger.Error("create worker failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create worker")
	}
	return c.JSON(http.StatusCreated, CreateWorkerResponse{WorkerID: workerID})
}

type DocumentView struct {
	Present bool           `json:"present"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type VerificationResponse struct {
	WorkerID           string            `json:"worker_id"`
	State              string            `json:"state"`
	VerificationStatus string            `json:"verification_status"`
	VerificationErrors string            `json:"verification_errors,omitempty"`
	VerifiedAt         *time.Time        `json:"verified_at,omitempty"`
	Personal           DocumentView      `json:"personal"`
	Educational        DocumentView      `json:"educational"`
	Dependents         domain.Dependents `json:"dependents"`
}

func (s *Server) handleVerification(c echo.Context) error {
	ctx := c.Request().Context()
	workerID := c.Param("worker_id")

	state, err := s.store.GetWorker(ctx, workerID)
	if errors.Is(err, sqlite.ErrWorkerNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Worker not found")
	}
	if err != nil {
		s.logger.Error("load worker failed", zap.String("worker_id", workerID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load worker")
	}
	deps, err := s.store.CountDependents(ctx, workerID)
	if err != nil {
		s.logger.Error("count dependents failed", zap.String("worker_id", workerID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load worker")
	}

	return c.JSON(http.StatusOK, VerificationResponse{
		WorkerID:           state.WorkerID,
		State:              string(state.State()),
		VerificationStatus: string(state.VerificationStatus),
		VerificationErrors: state.VerificationErrors,
		VerifiedAt:         state.VerifiedAt,
		Personal:           documentView(state.Personal),
		Educational:        documentView(state.Educational),
		Dependents:         deps,
	})
}

func documentView(doc domain.DocumentState) DocumentView {
	if !doc.Present {
		return DocumentView{}
	}
	return DocumentView{Present: true, Fields: doc.Fields.Plain()}
}

type DocumentRequest struct {
	RawText      string `json:"raw_text"`
	DocumentPath string `json:"document_path"`
}

type VerificationView struct {
	Status           string   `json:"status"`
	MismatchedFields []string `json:"mismatched_fields"`
	Errors           []string `json:"errors"`
	NameVerified     bool     `json:"name_verified"`
	DOBVerified      bool     `json:"dob_verified"`
}

type DocumentResponse struct {
	WorkerID     string            `json:"worker_id"`
	Category     string            `json:"category"`
	Fields       map[string]any    `json:"fields"`
	Warnings     []string          `json:"warnings,omitempty"`
	Verification *VerificationView `json:"verification,omitempty"`
	State        string            `json:"state"`
}

func (s *Server) handleDocument(c echo.Context) error {
	workerID := c.Param("worker_id")
	category, err := domain.ParseDocumentCategory(c.Param("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid category. Must be 'personal' or 'educational'. Got: "+c.Param("category"))
	}
	var req DocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.RawText) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "raw_text is required")
	}

	out, err := s.processor.ProcessDocument(c.Request().Context(), workerID, category, req.RawText, req.DocumentPath)
	if err != nil {
		return s.documentError(workerID, category, err)
	}

	resp := DocumentResponse{
		WorkerID: out.WorkerID,
		Category: string(out.Category),
		Fields:   out.Fields.Plain(),
		Warnings: out.Warnings,
		State:    string(out.State),
	}
	if v := out.Verification; v != nil {
		view := &VerificationView{
			Status:           string(v.Status),
			MismatchedFields: make([]string, 0, len(v.MismatchedFields)),
			Errors:           v.Errors,
			NameVerified:     v.NameVerified,
			DOBVerified:      v.DOBVerified,
		}
		for _, f := range v.MismatchedFields {
			view.MismatchedFields = append(view.MismatchedFields, string(f))
		}
		if view.Errors == nil {
			view.Errors = []string{}
		}
		resp.Verification = view
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) documentError(workerID string, category domain.DocumentCategory, err error) error {
	log := s.logger.With(zap.String("worker_id", workerID), zap.String("category", string(category)))
	if errors.Is(err, sqlite.ErrWorkerNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Worker not found")
	}
	if errors.Is(err, sqlite.ErrStaleState) {
		log.Warn("document changed during verification", zap.Error(err))
		return echo.NewHTTPError(http.StatusConflict, "Worker documents changed, please retry")
	}
	if failure, ok := llm.AsExtractionFailure(err); ok {
		log.Error("extraction failed", zap.String("kind", string(failure.Kind)), zap.Int("attempts", failure.Attempts))
		if failure.Kind == llm.MissingCredential {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Extraction is not configured")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "Extraction failed")
	}
	log.Error("document processing failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process document")
}

type ReuploadRequest struct {
	Action string `json:"action"`
}

type ReuploadResponse struct {
	Status      string          `json:"status"`
	Action      string          `json:"action"`
	Message     string          `json:"message"`
	WorkerID    string          `json:"worker_id"`
	ClearedData map[string]bool `json:"cleared_data"`
}

func (s *Server) handleReupload(c echo.Context) error {
	workerID := c.Param("worker_id")
	var req ReuploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	out, err := s.reuploader.Apply(c.Request().Context(), workerID, req.Action)
	var invalid *reupload.InvalidActionError
	switch {
	case err == nil:
	case errors.As(err, &invalid):
		got := strings.ToLower(strings.TrimSpace(invalid.Value))
		return echo.NewHTTPError(http.StatusBadRequest,
			"Invalid action. Must be 'educational_only' or 'personal_and_educational'. Got: "+got)
	case errors.Is(err, reupload.ErrUnknownWorker):
		return echo.NewHTTPError(http.StatusNotFound, "Worker not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, clearFailureDetail(req.Action))
	}

	return c.JSON(http.StatusOK, ReuploadResponse{
		Status:      "success",
		Action:      string(out.Action),
		Message:     out.Message,
		WorkerID:    out.WorkerID,
		ClearedData: out.Cleared,
	})
}

func clearFailureDetail(action string) string {
	parsed, _ := domain.ParseReuploadAction(action)
	switch parsed {
	case domain.ActionEducationalOnly:
		return "Failed to clear educational document data"
	case domain.ActionPersonalAndEducational:
		return "Failed to clear all document data"
	}
	return "Failed to clear document data"
}

func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
