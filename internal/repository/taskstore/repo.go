// Package taskstore persists ingestion tasks as Redis hashes.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
)

// store is the consumer interface for task persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo implements task lookup by taskId and by mediaId. The mediaId
// alias key keeps resubmission idempotent: one live task per media item.
type Repo struct {
	store store
}

// New creates a task repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save writes the full task record and refreshes the mediaId alias.
func (r *Repo) Save(ctx context.Context, task *domain.Task) error {
	fields, err := taskToFields(task)
	if err != nil {
		return err
	}

	if err := r.store.HSet(ctx, taskKey(task.TaskID), fields); err != nil {
		return fmt.Errorf("save task %s: %w", task.TaskID, err)
	}

	if err := r.store.Set(ctx, mediaAliasKey(task.MediaID), []byte(task.TaskID)); err != nil {
		return fmt.Errorf("save task alias %s: %w", task.MediaID, err)
	}
	return nil
}

// Get returns a task by its taskId.
func (r *Repo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	fields, err := r.store.HGetAll(ctx, taskKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrTaskNotFound
	}
	return fieldsToTask(taskID, fields)
}

// GetByMedia returns the live task for a media item, if any.
func (r *Repo) GetByMedia(ctx context.Context, mediaID string) (*domain.Task, error) {
	taskID, err := r.store.Get(ctx, mediaAliasKey(mediaID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task alias %s: %w", mediaID, err)
	}
	return r.Get(ctx, string(taskID))
}

func taskKey(taskID string) string {
	return domain.KeyPrefix + "task:" + taskID
}

func mediaAliasKey(mediaID string) string {
	return domain.KeyPrefix + "media_task:" + mediaID
}

func taskToFields(task *domain.Task) (map[string]string, error) {
	meta, err := json.Marshal(task.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal task metadata: %w", err)
	}

	return map[string]string{
		"media_id":      task.MediaID,
		"media_type":    string(task.MediaType),
		"stage":         string(task.Stage),
		"attempt":       strconv.Itoa(task.Attempt),
		"last_error":    task.LastError,
		"metadata":      string(meta),
		"storage_key":   task.Result.StorageKey,
		"thumbnail_url": task.Result.ThumbnailURL,
		"preview_url":   task.Result.PreviewURL,
		"indexed":       strconv.FormatBool(task.Result.Indexed),
		"created_at":    strconv.FormatInt(task.CreatedAt, 10),
		"updated_at":    strconv.FormatInt(task.UpdatedAt, 10),
	}, nil
}

func fieldsToTask(taskID string, fields map[string]string) (*domain.Task, error) {
	task := &domain.Task{
		TaskID:    taskID,
		MediaID:   fields["media_id"],
		MediaType: domain.MediaType(fields["media_type"]),
		Stage:     domain.Stage(fields["stage"]),
		LastError: fields["last_error"],
		Result: domain.TaskResult{
			StorageKey:   fields["storage_key"],
			ThumbnailURL: fields["thumbnail_url"],
			PreviewURL:   fields["preview_url"],
			Indexed:      fields["indexed"] == "true",
		},
	}

	if !task.Stage.IsValid() {
		return nil, fmt.Errorf("task %s has corrupt stage %q", taskID, fields["stage"])
	}

	task.Attempt, _ = strconv.Atoi(fields["attempt"])
	task.CreatedAt, _ = strconv.ParseInt(fields["created_at"], 10, 64)
	task.UpdatedAt, _ = strconv.ParseInt(fields["updated_at"], 10, 64)

	if raw := fields["metadata"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &task.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal task %s metadata: %w", taskID, err)
		}
	}
	return task, nil
}
