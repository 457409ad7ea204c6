package domain

import "strings"

// ValidateArrival checks that an arrival record carries the fields required
// before any side effect (fetch, upsert) is allowed to happen.
func ValidateArrival(a ImageArrival) error {
	if strings.TrimSpace(a.SourcePath) == "" {
		return NewValidationError("image_path", a.SourcePath, ErrMissingSourcePath)
	}
	if strings.TrimSpace(a.ImageID) == "" {
		return NewValidationError("image_id", a.ImageID, ErrMissingImageID)
	}
	return nil
}
