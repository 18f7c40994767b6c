package classification

import (
	"context"
	"errors"
)

var (
	// ErrPreprocessing means the image could not be normalized. Callers
	// continue with the original bytes.
	ErrPreprocessing = errors.New("preprocessing failed")
	// ErrRemoteUnavailable covers transport errors, timeouts, non-200
	// statuses and replies without candidates.
	ErrRemoteUnavailable = errors.New("remote classifier unavailable")
	// ErrMalformedResponse means the model reply could not be turned into a
	// valid Result.
	ErrMalformedResponse = errors.New("malformed classifier response")
	// ErrOfflineAnalysis is an internal failure of the offline heuristic.
	ErrOfflineAnalysis = errors.New("offline analysis failed")
)

// RemoteClient sends an encoded image to the vision model and returns the
// raw text of its reply.
type RemoteClient interface {
	Classify(ctx context.Context, encodedImage string) (string, error)
}
