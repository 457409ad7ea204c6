package indexer

import (
	"errors"
	"testing"

	"github.com/piclens/faceindex/engine/domain"
)

func TestShouldAck(t *testing.T) {
	transient := errors.New("fetch: status 503")
	skip := domain.NewValidationError("image_path", "", domain.ErrMissingSourcePath)

	cases := []struct {
		name   string
		policy AckPolicy
		err    error
		want   bool
	}{
		{"at-most-once acks success", AckAlways, nil, true},
		{"at-most-once acks transient failure", AckAlways, transient, true},
		{"at-most-once acks skip", AckAlways, skip, true},
		{"at-least-once acks success", AckOnSuccess, nil, true},
		{"at-least-once holds transient failure", AckOnSuccess, transient, false},
		{"at-least-once acks permanent skip", AckOnSuccess, skip, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldAck(tc.policy, tc.err); got != tc.want {
				t.Fatalf("shouldAck(%v, %v) = %v, want %v", tc.policy, tc.err, got, tc.want)
			}
		})
	}
}
