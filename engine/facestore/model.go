package facestore

// FacePayload is the metadata stored alongside each face vector.
type FacePayload struct {
	ImageID   string `json:"image_id"`
	GalleryID string `json:"gallery_id,omitempty"`
	SourceURL string `json:"file_url"`
	// FaceIndex is the 0-based position of the face within the source
	// image's detected-face ordering. Stable only within one indexing call.
	FaceIndex int `json:"face_index"`
}

// FaceRecord is a single face vector to store.
type FaceRecord struct {
	ID      string
	Vector  []float32
	Payload FacePayload
}

// Hit is one raw (pre-dedup) search result from the index, ranked by
// descending score.
type Hit struct {
	ID      string
	Score   float32
	Payload FacePayload
}
