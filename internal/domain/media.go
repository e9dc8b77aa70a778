package domain

import (
	"fmt"
	"path"
)

// KeyPrefix namespaces every Redis key written by this service.
const KeyPrefix = "scalesearch:"

// MediaType is the kind of media an asset or query represents.
type MediaType string

// Supported media types.
const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
	MediaText  MediaType = "text"
)

// ParseMediaType validates and converts a raw string into a MediaType.
func ParseMediaType(s string) (MediaType, error) {
	mt := MediaType(s)
	if !mt.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaType, s)
	}
	return mt, nil
}

// IsValid checks if the media type is one of the supported values.
func (m MediaType) IsValid() bool {
	return m == MediaImage || m == MediaAudio || m == MediaVideo || m == MediaText
}

// HasDerivatives reports whether the pipeline produces thumbnails/previews
// for this media type. Audio and text produce none.
func (m MediaType) HasDerivatives() bool {
	return m == MediaImage || m == MediaVideo
}

// DerivativeKind is the kind of generated auxiliary asset.
type DerivativeKind string

// Derivative kinds.
const (
	DerivativeThumbnail DerivativeKind = "thumbnail"
	DerivativePreview   DerivativeKind = "preview"
)

// Derivative is a generated auxiliary asset produced from an original upload.
type Derivative struct {
	MediaID    string
	Kind       DerivativeKind
	StorageKey string
}

// MediaItem is an ingested asset owned by the orchestrator.
type MediaItem struct {
	ID          string
	MediaType   MediaType
	OriginalKey string
	Status      Stage
	CreatedAt   int64 // unix millis
	UpdatedAt   int64 // unix millis
}

// OriginalKey returns the deterministic storage key for an original asset.
// The layout is derivable from mediaId+type alone so a retried upload
// overwrites the same object.
func OriginalKey(mediaType MediaType, mediaID, filename string) string {
	ext := path.Ext(filename)
	switch mediaType {
	case MediaImage:
		return "images/" + mediaID + ext
	case MediaAudio:
		return "audio/" + mediaID + ext
	case MediaVideo:
		return "videos/" + mediaID + ext
	default:
		return "media/" + mediaID + ext
	}
}

// ThumbnailKey returns the deterministic storage key for a thumbnail.
// Thumbnails are always re-encoded to JPEG.
func ThumbnailKey(mediaID string) string {
	return "thumbnails/" + mediaID + ".jpg"
}

// PreviewKey returns the deterministic storage key for a video preview clip.
func PreviewKey(mediaID string) string {
	return "previews/" + mediaID + ".mp4"
}
