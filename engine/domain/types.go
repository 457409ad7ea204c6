// Package domain defines the core records exchanged between the ingestion
// worker, the search service, and the vector store, plus their validation.
package domain

// ImageArrival is one message from the gallery notification stream,
// announcing that a new image is available for face indexing.
type ImageArrival struct {
	// SourcePath locates the image bytes. Either a path relative to the
	// storage service base URL, an absolute http(s) URL, or an s3:// URL.
	SourcePath string `json:"image_path"`
	// ImageID is the caller-assigned identity of the source image.
	// Multiple face points may share one ImageID.
	ImageID string `json:"image_id"`
	// GalleryID optionally scopes the image to a named gallery partition.
	GalleryID string `json:"gallery_id,omitempty"`
}

// SearchHit is one ranked, deduplicated result surfaced to a search caller.
// Within one response ImageID values are unique; the highest-scoring face
// for a given image wins.
type SearchHit struct {
	Score     float32 `json:"score"`
	ImageID   string  `json:"image_id"`
	SourceURL string  `json:"file_url"`
	FaceIndex int     `json:"face_index"`
}
