package domain

// PointPayload is the metadata stored alongside a vector in the index
// and echoed back in search results.
type PointPayload struct {
	MediaType    MediaType
	ThumbnailURL string
	PreviewURL   string
	StorageKey   string
	Metadata     map[string]string
}

// Point is an indexed vector record. id equals the mediaId, so a retry
// upserts the same point and at most one live point exists per mediaId.
type Point struct {
	ID      string
	Vector  []float32
	Payload PointPayload
}

// SearchHit is one scored KNN match returned by the index.
type SearchHit struct {
	ID      string
	Score   float64
	Payload PointPayload
}
