package chi

import (
	"github.com/scale-search/scalesearch/internal/domain"
)

// ErrorCode is a machine-readable error identifier in API responses.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeTaskNotFound           ErrorCode = "task_not_found"
	CodeUnknownMediaType       ErrorCode = "unknown_media_type"
	CodeUnknownModality        ErrorCode = "unknown_modality"
	CodeInvalidTopK            ErrorCode = "invalid_top_k"
	CodeQueryFetchFailed       ErrorCode = "query_fetch_failed"
	CodeVectorDimMismatch      ErrorCode = "vector_dim_mismatch"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the error envelope for all API errors.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// TaskResponse is the task record returned by submit and status calls.
type TaskResponse struct {
	TaskID    string            `json:"task_id"`
	MediaID   string            `json:"media_id"`
	MediaType domain.MediaType  `json:"media_type"`
	Stage     domain.Stage      `json:"stage"`
	Attempt   int               `json:"attempt"`
	LastError string            `json:"last_error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Result    *TaskResultDTO    `json:"result,omitempty"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
}

// TaskResultDTO carries the pipeline outputs of a finished run.
type TaskResultDTO struct {
	StorageKey   string `json:"storage_key,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
	Indexed      bool   `json:"indexed"`
}

// SearchRequest is the JSON body of POST /api/v1/search. TopK is a
// pointer so an explicit 0 is rejected instead of silently defaulting.
type SearchRequest struct {
	Query    string            `json:"query"`
	Modality string            `json:"modality"`
	TopK     *int              `json:"top_k,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

func taskToDTO(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		TaskID:    t.TaskID,
		MediaID:   t.MediaID,
		MediaType: t.MediaType,
		Stage:     t.Stage,
		Attempt:   t.Attempt,
		LastError: t.LastError,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	// Result is visible only once the task reaches a terminal stage;
	// intermediate stage outputs stay internal.
	if t.Stage.IsTerminal() && t.Result != (domain.TaskResult{}) {
		resp.Result = &TaskResultDTO{
			StorageKey:   t.Result.StorageKey,
			ThumbnailURL: t.Result.ThumbnailURL,
			PreviewURL:   t.Result.PreviewURL,
			Indexed:      t.Result.Indexed,
		}
	}
	return resp
}
