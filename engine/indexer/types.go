package indexer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/piclens/faceindex/engine/domain"
)

// spooledImage is an arrival whose bytes have been fetched and written to a
// per-record temporary file. The worker removes the file on every exit path.
type spooledImage struct {
	Arrival domain.ImageArrival
	Path    string
}

// encodedImage is a spooled image with one vector per detected face, in
// detection order. Zero faces is a normal outcome.
type encodedImage struct {
	spooledImage
	Faces [][]float32
}

// PointID derives the index point id for one face of one image. The id is a
// pure function of (imageID, faceIndex), so re-processing an arrival
// overwrites the same points instead of duplicating them.
func PointID(imageID string, faceIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", imageID, faceIndex))).String()
}
