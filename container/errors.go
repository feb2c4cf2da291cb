package container

import (
	"errors"

	"github.com/babydragon/buildtest/relay"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
)

var (
	// ErrTransport covers an unreachable engine or a stream that broke off.
	ErrTransport = errors.New("engine transport error")

	// ErrEngineRejection covers well-formed engine errors: unknown image,
	// bad configuration, failed build step and the like.
	ErrEngineRejection = errors.New("engine rejected request")

	// ErrEngineUnavailable is returned by a Manager that could not reach an
	// engine when it was created.
	ErrEngineUnavailable = errors.New("docker not available")

	// ErrInvalidReference is returned for an image name that cannot be
	// parsed. No engine call is made.
	ErrInvalidReference = errors.New("invalid image reference")
)

// EngineError records which engine operation failed and how.
type EngineError struct {
	Op   string // e.g. "pull docker.io/library/alpine:3.15"
	Kind error  // ErrTransport or ErrEngineRejection
	Err  error
}

func (e *EngineError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the underlying error to errors.Is/As.
func (e *EngineError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify wraps err as an EngineError for op. Sink failures and errors that
// are already classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, relay.ErrSinkClosed) {
		return err
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}

	return &EngineError{Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	var jerr *jsonmessage.JSONError
	switch {
	case errors.As(err, &jerr),
		errdefs.IsNotFound(err),
		errdefs.IsInvalidParameter(err),
		errdefs.IsConflict(err),
		errdefs.IsUnauthorized(err),
		errdefs.IsForbidden(err),
		errdefs.IsSystem(err),
		errdefs.IsNotImplemented(err):
		return ErrEngineRejection
	default:
		return ErrTransport
	}
}
