package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/imageprocessor"
	"github.com/example/ecovision/internal/logging"
)

// Normalizer prepares raw image bytes for the remote call.
type Normalizer interface {
	Normalize(data []byte) (*imageprocessor.NormalizedImage, error)
}

// Fallback classifies locally and never fails.
type Fallback interface {
	Classify(data []byte) classification.Result
}

// Source names the path that produced a result.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceOffline Source = "offline"
)

// Outcome is the result of one dispatch together with what happened on the
// way there.
type Outcome struct {
	Result        classification.Result
	Source        Source
	PreprocessErr error
	RemoteErr     error
}

// Dispatcher runs normalize -> encode -> remote -> interpret and falls back
// to offline classification when any remote stage fails. Each path runs at
// most once per call.
type Dispatcher struct {
	normalizer Normalizer
	remote     classification.RemoteClient
	fallback   Fallback
	logger     *zap.Logger
}

// NewDispatcher wires the pipeline stages. A nil remote client sends every
// request straight to the fallback.
func NewDispatcher(normalizer Normalizer, remote classification.RemoteClient, fallback Fallback, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		normalizer: normalizer,
		remote:     remote,
		fallback:   fallback,
		logger:     logger.Named("dispatcher"),
	}
}

// Classify always returns a well-formed outcome.
func (d *Dispatcher) Classify(ctx context.Context, image []byte) Outcome {
	opLogger := logging.WithOperation(d.logger, "usecase.dispatch", logging.RequestIDFromContext(ctx))
	var outcome Outcome

	payload := image
	if normalized, err := d.normalizer.Normalize(image); err != nil {
		outcome.PreprocessErr = err
		opLogger.Warn("preprocessing failed, using original image", zap.Error(err))
	} else {
		payload = normalized.Data
		opLogger.Debug("image normalized", zap.Int("width", normalized.Width), zap.Int("height", normalized.Height))
	}

	result, err := d.attemptRemote(ctx, payload)
	if err == nil {
		outcome.Result = *result
		outcome.Source = SourceRemote
		return outcome
	}

	outcome.RemoteErr = err
	opLogger.Warn("remote classification failed, falling back to offline mode", zap.Error(err))
	outcome.Result = d.fallback.Classify(image)
	outcome.Source = SourceOffline
	return outcome
}

func (d *Dispatcher) attemptRemote(ctx context.Context, payload []byte) (result *classification.Result, err error) {
	if d.remote == nil {
		return nil, fmt.Errorf("%w: remote classifier disabled", classification.ErrRemoteUnavailable)
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", classification.ErrRemoteUnavailable, r)
		}
	}()

	reply, err := d.remote.Classify(ctx, imageprocessor.Encode(payload))
	if err != nil {
		return nil, err
	}
	result, err = classification.Interpret(reply)
	if err != nil {
		return nil, err
	}
	result.OfflineMode = false
	return result, nil
}
