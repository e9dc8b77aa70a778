// Package ingest orchestrates the media ingestion pipeline: upload,
// derive, embed, index. Stages execute on queue workers; the service
// owns task state transitions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/metrics"
	"github.com/scale-search/scalesearch/internal/queue"
)

// Config holds pipeline behavior settings.
type Config struct {
	Dimensions   int
	PresignTTL   time.Duration
	IndexForward bool // upsert into the vector index after embedding
}

// Service coordinates ingestion tasks and executes pipeline stages.
type Service struct {
	tasks      TaskRepository
	embeddings EmbeddingStore
	points     PointWriter
	objects    ObjectStore
	fetcher    Fetcher
	deriver    Deriver
	embedder   domain.Embedder
	queue      Enqueuer
	cfg        Config
	logger     *zap.Logger

	now func() int64 // unix millis, overridable in tests
}

// New creates the ingestion service.
func New(
	tasks TaskRepository,
	embeddings EmbeddingStore,
	points PointWriter,
	objects ObjectStore,
	fetcher Fetcher,
	deriver Deriver,
	embedder domain.Embedder,
	q Enqueuer,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		tasks:      tasks,
		embeddings: embeddings,
		points:     points,
		objects:    objects,
		fetcher:    fetcher,
		deriver:    deriver,
		embedder:   embedder,
		queue:      q,
		cfg:        cfg,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// SubmitRequest describes one media item to ingest.
type SubmitRequest struct {
	MediaID        string // optional, generated when empty
	MediaType      domain.MediaType
	SourceLocation string // local path or http(s) URL
	Filename       string // original filename, for the storage key extension
	Metadata       map[string]string
}

// Submit registers a media item and enqueues the first pipeline stage.
// Resubmitting a mediaId with a live task returns that task unchanged;
// resubmitting after a terminal state reruns the pipeline under the same
// task record, overwriting the previous objects, vector, and point.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*domain.Task, error) {
	if !req.MediaType.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMediaType, req.MediaType)
	}
	if req.SourceLocation == "" {
		return nil, fmt.Errorf("source location is required")
	}

	mediaID := req.MediaID
	if mediaID == "" {
		mediaID = uuid.NewString()
	}

	existing, err := s.tasks.GetByMedia(ctx, mediaID)
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		return nil, fmt.Errorf("check existing task: %w", err)
	}
	if existing != nil && !existing.Stage.IsTerminal() {
		s.logger.Info("Resubmission joined live task",
			zap.String("media_id", mediaID),
			zap.String("task_id", existing.TaskID),
			zap.String("stage", string(existing.Stage)))
		return existing, nil
	}

	now := s.now()
	task := &domain.Task{
		TaskID:    uuid.NewString(),
		MediaID:   mediaID,
		MediaType: req.MediaType,
		Stage:     domain.StageUploading,
		Attempt:   1,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		// Terminal record: rerun under the same taskId so the old hash
		// is overwritten instead of orphaned.
		task.TaskID = existing.TaskID
		task.CreatedAt = existing.CreatedAt
	}
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	msg := &domain.StageMessage{
		TaskID:         task.TaskID,
		MediaID:        mediaID,
		MediaType:      req.MediaType,
		Stage:          domain.StageUploading,
		SourceLocation: req.SourceLocation,
		StorageHint:    domain.OriginalKey(req.MediaType, mediaID, req.Filename),
		Attempt:        1,
	}
	if err := s.queue.Enqueue(ctx, queue.QueueFor(msg.Stage), msg); err != nil {
		return nil, fmt.Errorf("enqueue upload stage: %w", err)
	}

	metrics.TasksSubmittedTotal.Inc()
	s.logger.Info("Task submitted",
		zap.String("task_id", task.TaskID),
		zap.String("media_id", mediaID),
		zap.String("media_type", string(req.MediaType)))
	return task, nil
}

// GetStatus returns the current task record.
func (s *Service) GetStatus(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.tasks.Get(ctx, taskID)
}

// advance moves the task to the stage after msg.Stage, persists it, and
// enqueues the next unit of work. Reaching a terminal stage stops the
// chain.
func (s *Service) advance(ctx context.Context, task *domain.Task, msg *domain.StageMessage) error {
	next, ok := msg.Stage.Next()
	if !ok {
		return domain.PermanentError(fmt.Errorf("stage %s has no successor", msg.Stage))
	}

	task.Stage = next
	task.Attempt = 1
	task.LastError = ""
	task.UpdatedAt = s.now()
	if err := s.tasks.Save(ctx, task); err != nil {
		return domain.TransientError(fmt.Errorf("save task: %w", err))
	}

	if next.IsTerminal() {
		s.logger.Info("Task finished",
			zap.String("task_id", task.TaskID),
			zap.String("media_id", task.MediaID),
			zap.String("stage", string(next)))
		return nil
	}

	nextMsg := &domain.StageMessage{
		TaskID:         msg.TaskID,
		MediaID:        msg.MediaID,
		MediaType:      msg.MediaType,
		Stage:          next,
		SourceLocation: msg.SourceLocation,
		StorageHint:    msg.StorageHint,
		Attempt:        1,
	}
	if err := s.queue.Enqueue(ctx, queue.QueueFor(next), nextMsg); err != nil {
		return domain.TransientError(fmt.Errorf("enqueue %s stage: %w", next, err))
	}
	return nil
}

// OnExhausted implements queue.Handler: the retry budget is spent or
// the error is permanent, so the task fails terminally.
func (s *Service) OnExhausted(ctx context.Context, msg *domain.StageMessage, cause error) {
	task, err := s.tasks.Get(ctx, msg.TaskID)
	if err != nil {
		s.logger.Error("Failed to load task for terminal failure",
			zap.String("task_id", msg.TaskID), zap.Error(err))
		return
	}

	task.Stage = domain.StageFailed
	task.Attempt = msg.Attempt
	task.LastError = cause.Error()
	task.UpdatedAt = s.now()
	if err := s.tasks.Save(ctx, task); err != nil {
		s.logger.Error("Failed to persist terminal failure",
			zap.String("task_id", msg.TaskID), zap.Error(err))
	}
}
