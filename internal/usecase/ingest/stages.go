package ingest

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/scale-search/scalesearch/internal/domain"
)

// Handle implements queue.Handler: it executes the stage named by the
// message against the current task record. Returned errors carry a
// transient/permanent classification for the pool's retry decision.
func (s *Service) Handle(ctx context.Context, msg *domain.StageMessage) error {
	task, err := s.tasks.Get(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return domain.PermanentError(fmt.Errorf("stage %s: %w", msg.Stage, err))
		}
		return domain.TransientError(fmt.Errorf("load task: %w", err))
	}
	if task.Stage.IsTerminal() {
		// stale retry for a task that already finished
		return nil
	}

	if msg.Attempt != task.Attempt {
		task.Attempt = msg.Attempt
		task.UpdatedAt = s.now()
		_ = s.tasks.Save(ctx, task) // status freshness only, not load-bearing
	}

	switch msg.Stage {
	case domain.StageUploading:
		err = s.stageUpload(ctx, task, msg)
	case domain.StageDeriving:
		err = s.stageDerive(ctx, task, msg)
	case domain.StageEmbedding:
		err = s.stageEmbed(ctx, msg)
	case domain.StageIndexing:
		err = s.stageIndex(ctx, task)
	default:
		return domain.PermanentError(fmt.Errorf("unknown stage %q", msg.Stage))
	}
	if err != nil {
		return err
	}

	return s.advance(ctx, task, msg)
}

// stageUpload moves the original bytes into the object store under the
// deterministic per-media key.
func (s *Service) stageUpload(ctx context.Context, task *domain.Task, msg *domain.StageMessage) error {
	local, cleanup, err := s.fetcher.Fetch(ctx, msg.SourceLocation)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	defer cleanup()

	key := msg.StorageHint
	if key == "" {
		key = domain.OriginalKey(msg.MediaType, msg.MediaID, local)
	}

	if err := s.objects.PutFile(ctx, key, local, contentTypeFor(local, msg.MediaType)); err != nil {
		return fmt.Errorf("upload original: %w", err)
	}

	task.Result.StorageKey = key
	return nil
}

// stageDerive generates and uploads thumbnails and previews. Media
// types without derivatives pass straight through.
func (s *Service) stageDerive(ctx context.Context, task *domain.Task, msg *domain.StageMessage) error {
	if !msg.MediaType.HasDerivatives() {
		return nil
	}

	local, cleanup, err := s.fetcher.Fetch(ctx, msg.SourceLocation)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	defer cleanup()

	var derived struct {
		ThumbnailPath string
		PreviewPath   string
	}
	switch msg.MediaType {
	case domain.MediaImage:
		d, derr := s.deriver.Image(ctx, local)
		if derr != nil {
			return derr
		}
		derived.ThumbnailPath = d.ThumbnailPath
	case domain.MediaVideo:
		d, derr := s.deriver.Video(ctx, local)
		if derr != nil {
			return derr
		}
		derived.ThumbnailPath = d.ThumbnailPath
		derived.PreviewPath = d.PreviewPath
	}
	defer removeDerived(derived.ThumbnailPath, derived.PreviewPath)

	thumbKey := domain.ThumbnailKey(msg.MediaID)
	if err := s.objects.PutFile(ctx, thumbKey, derived.ThumbnailPath, "image/jpeg"); err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}
	thumbURL, err := s.objects.PresignedGet(ctx, thumbKey, s.cfg.PresignTTL)
	if err != nil {
		return fmt.Errorf("presign thumbnail: %w", err)
	}
	task.Result.ThumbnailURL = thumbURL

	if derived.PreviewPath != "" {
		previewKey := domain.PreviewKey(msg.MediaID)
		if err := s.objects.PutFile(ctx, previewKey, derived.PreviewPath, "video/mp4"); err != nil {
			return fmt.Errorf("upload preview: %w", err)
		}
		previewURL, err := s.objects.PresignedGet(ctx, previewKey, s.cfg.PresignTTL)
		if err != nil {
			return fmt.Errorf("presign preview: %w", err)
		}
		task.Result.PreviewURL = previewURL
	}
	return nil
}

// stageEmbed vectorizes the media, validates and normalizes the vector,
// and persists it for the index stage.
func (s *Service) stageEmbed(ctx context.Context, msg *domain.StageMessage) error {
	local, cleanup, err := s.fetcher.Fetch(ctx, msg.SourceLocation)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	defer cleanup()

	var input domain.MediaInput
	if msg.MediaType == domain.MediaText {
		data, rerr := os.ReadFile(filepath.Clean(local))
		if rerr != nil {
			return fmt.Errorf("read text source: %w", rerr)
		}
		input = domain.TextInput(string(data))
	} else {
		input = domain.FileInput(msg.MediaType, local)
	}

	result, err := s.embedder.Embed(ctx, input)
	if err != nil {
		return fmt.Errorf("embed media: %w", err)
	}

	if err := domain.ValidateVector(result.Embedding, s.cfg.Dimensions); err != nil {
		return domain.PermanentError(err)
	}
	domain.NormalizeL2(result.Embedding)

	emb := &domain.Embedding{
		MediaID:    msg.MediaID,
		Vector:     result.Embedding,
		Normalized: true,
	}
	if err := s.embeddings.Save(ctx, emb); err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	return nil
}

// stageIndex upserts the vector point so the media item becomes
// searchable. The forward toggle leaves embeddings stored but unindexed.
func (s *Service) stageIndex(ctx context.Context, task *domain.Task) error {
	if !s.cfg.IndexForward {
		task.Result.Indexed = false
		return nil
	}

	emb, err := s.embeddings.Get(ctx, task.MediaID)
	if err != nil {
		return fmt.Errorf("load embedding: %w", err)
	}

	point := &domain.Point{
		ID:     task.MediaID,
		Vector: emb.Vector,
		Payload: domain.PointPayload{
			MediaType:    task.MediaType,
			ThumbnailURL: task.Result.ThumbnailURL,
			PreviewURL:   task.Result.PreviewURL,
			StorageKey:   task.Result.StorageKey,
			Metadata:     task.Metadata,
		},
	}
	if err := s.points.Upsert(ctx, point); err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}

	task.Result.Indexed = true
	return nil
}

func contentTypeFor(path string, mediaType domain.MediaType) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	switch mediaType {
	case domain.MediaImage:
		return "image/jpeg"
	case domain.MediaAudio:
		return "audio/wav"
	case domain.MediaVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func removeDerived(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
