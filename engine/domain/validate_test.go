package domain

import (
	"errors"
	"testing"
)

func TestValidateArrival_Valid(t *testing.T) {
	a := ImageArrival{SourcePath: "g1/photo.jpg", ImageID: "img-1", GalleryID: "g1"}
	if err := ValidateArrival(a); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidateArrival_NoGallery(t *testing.T) {
	// gallery id is optional
	a := ImageArrival{SourcePath: "photo.jpg", ImageID: "img-1"}
	if err := ValidateArrival(a); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidateArrival_MissingSourcePath(t *testing.T) {
	a := ImageArrival{ImageID: "img-1"}
	err := ValidateArrival(a)
	if !errors.Is(err, ErrMissingSourcePath) {
		t.Fatalf("expected ErrMissingSourcePath, got %v", err)
	}
}

func TestValidateArrival_BlankSourcePath(t *testing.T) {
	a := ImageArrival{SourcePath: "   ", ImageID: "img-1"}
	if !errors.Is(ValidateArrival(a), ErrMissingSourcePath) {
		t.Fatal("expected ErrMissingSourcePath for whitespace path")
	}
}

func TestValidateArrival_MissingImageID(t *testing.T) {
	a := ImageArrival{SourcePath: "photo.jpg"}
	err := ValidateArrival(a)
	if !errors.Is(err, ErrMissingImageID) {
		t.Fatalf("expected ErrMissingImageID, got %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("image_id", "", ErrMissingImageID)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("expected *ValidationError")
	}
	if ve.Field != "image_id" {
		t.Errorf("field = %q", ve.Field)
	}
	if !errors.Is(err, ErrMissingImageID) {
		t.Error("expected unwrap to sentinel")
	}
}
