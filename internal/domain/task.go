package domain

// Stage is the pipeline position of an ingestion task.
type Stage string

// Pipeline stages in execution order, plus terminal states.
const (
	StageUploading Stage = "uploading"
	StageDeriving  Stage = "deriving"
	StageEmbedding Stage = "embedding"
	StageIndexing  Stage = "indexing"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// IsValid checks if the stage is one of the known values.
func (s Stage) IsValid() bool {
	switch s {
	case StageUploading, StageDeriving, StageEmbedding, StageIndexing, StageDone, StageFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the stage is a terminal state.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s in pipeline order.
// Terminal stages have no successor.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageUploading:
		return StageDeriving, true
	case StageDeriving:
		return StageEmbedding, true
	case StageEmbedding:
		return StageIndexing, true
	case StageIndexing:
		return StageDone, true
	default:
		return "", false
	}
}

// Task is one pipeline run for a media item. There is at most one live
// task per mediaId; resubmitting the same mediaId reuses the record.
type Task struct {
	TaskID    string
	MediaID   string
	MediaType MediaType
	Stage     Stage
	Attempt   int
	LastError string
	Metadata  map[string]string
	Result    TaskResult
	CreatedAt int64 // unix millis
	UpdatedAt int64 // unix millis
}

// TaskResult is populated as stages complete and returned to callers
// once the task reaches a terminal state.
type TaskResult struct {
	StorageKey   string
	ThumbnailURL string
	PreviewURL   string
	Indexed      bool
}

// StageMessage is the queue payload for one unit of stage work.
type StageMessage struct {
	TaskID         string    `json:"task_id"`
	MediaID        string    `json:"media_id"`
	MediaType      MediaType `json:"media_type"`
	Stage          Stage     `json:"stage"`
	SourceLocation string    `json:"source_location"`
	StorageHint    string    `json:"storage_hint,omitempty"`
	Attempt        int       `json:"attempt"`
}
