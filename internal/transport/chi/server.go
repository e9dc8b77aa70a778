// Package chi exposes the HTTP API: media submission, task status, and
// search.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/domain/search/query"
	healthuc "github.com/scale-search/scalesearch/internal/usecase/health"
	ingestuc "github.com/scale-search/scalesearch/internal/usecase/ingest"
	searchuc "github.com/scale-search/scalesearch/internal/usecase/search"
)

// maxUploadBytes bounds the in-memory part of multipart parsing; larger
// files spill to disk.
const maxUploadBytes = 32 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	ingest        *ingestuc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	uploadTmpDir  string
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. uploadTmpDir receives multipart
// uploads before the pipeline moves them to the object store.
func NewServer(
	ingest *ingestuc.Service,
	search *searchuc.Service,
	health *healthuc.Service,
	uploadTmpDir string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:       ingest,
		search:       search,
		health:       health,
		logger:       logger,
		uploadTmpDir: uploadTmpDir,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrTaskNotFound, http.StatusNotFound, CodeTaskNotFound),
		sentinelHandler(domain.ErrUnknownMediaType, http.StatusBadRequest, CodeUnknownMediaType),
		sentinelHandler(domain.ErrUnknownModality, http.StatusBadRequest, CodeUnknownModality),
		sentinelHandler(domain.ErrInvalidTopK, http.StatusBadRequest, CodeInvalidTopK),
		sentinelHandler(domain.ErrQueryFetch, http.StatusBadRequest, CodeQueryFetchFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadGateway, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrVectorNotFinite, http.StatusBadGateway, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
	}
	return s
}

// Routes mounts the API onto a chi router.
func (s *Server) Routes(r chirouter.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chirouter.Router) {
		r.Post("/media", s.SubmitMedia)
		r.Get("/tasks/{taskID}", s.GetTask)
		r.Post("/search", s.Search)
	})
}

// SubmitMedia handles POST /api/v1/media. The body is multipart form
// data with either a "file" part or a "source_url" field.
func (s *Server) SubmitMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}

	mediaType, err := domain.ParseMediaType(r.FormValue("media_type"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	var metadata map[string]string
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "metadata must be a JSON string map")
			return
		}
	}

	source, filename, err := s.resolveSource(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	task, err := s.ingest.Submit(r.Context(), &ingestuc.SubmitRequest{
		MediaID:        r.FormValue("media_id"),
		MediaType:      mediaType,
		SourceLocation: source,
		Filename:       filename,
		Metadata:       metadata,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/tasks/"+task.TaskID)
	writeJSON(w, http.StatusAccepted, taskToDTO(task))
}

// resolveSource extracts the media source from the form: an uploaded
// file spooled to the tmp dir, or an external source_url.
func (s *Server) resolveSource(r *http.Request) (source, filename string, err error) {
	file, header, ferr := r.FormFile("file")
	if ferr != nil {
		if !errors.Is(ferr, http.ErrMissingFile) {
			return "", "", fmt.Errorf("read file part: %w", ferr)
		}
		url := r.FormValue("source_url")
		if url == "" {
			return "", "", errors.New("either file or source_url is required")
		}
		return url, filepath.Base(url), nil
	}
	defer func() { _ = file.Close() }()

	local, err := s.spoolUpload(file, header.Filename)
	if err != nil {
		return "", "", err
	}
	return local, header.Filename, nil
}

// spoolUpload writes an uploaded part to the tmp dir so queue workers
// can read it by path.
func (s *Server) spoolUpload(file multipart.File, filename string) (string, error) {
	if err := os.MkdirAll(s.uploadTmpDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.uploadTmpDir, "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return tmp.Name(), nil
}

// GetTask handles GET /api/v1/tasks/{taskID}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chirouter.URLParam(r, "taskID")

	task, err := s.ingest.GetStatus(r.Context(), taskID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskToDTO(task))
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	modality := domain.MediaType(req.Modality)
	if req.Modality == "" {
		modality = domain.MediaText
	}

	topK := 0 // unset, query.New applies the default
	if req.TopK != nil {
		topK = *req.TopK
		if topK < query.MinTopK || topK > query.MaxTopK {
			s.handleDomainError(w, fmt.Errorf("%w: %d", domain.ErrInvalidTopK, topK))
			return
		}
	}

	q, err := query.New(req.Query, modality, topK, req.Filters)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownModality) || errors.Is(err, domain.ErrInvalidTopK) {
			s.handleDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	resp, err := s.search.Search(r.Context(), &q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrTaskNotFound,
		domain.ErrUnknownMediaType,
		domain.ErrUnknownModality,
		domain.ErrInvalidTopK,
		domain.ErrQueryFetch,
		domain.ErrVectorDimMismatch,
		domain.ErrVectorNotFinite,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
