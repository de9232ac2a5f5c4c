package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/medaudit/internal/types"
)

// Code maps a core error to its gRPC status code.
// Source outages are retryable, so they map to UNAVAILABLE ahead of the
// broader configuration class (FAILED_PRECONDITION).
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case types.IsInvalidInput(err):
		return codes.InvalidArgument
	case types.IsNotFound(err):
		return codes.NotFound
	case types.IsRetryable(err):
		return codes.Unavailable
	case types.IsConfigurationError(err):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// ToStatus converts err to a gRPC status error. Status errors pass through.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), err.Error())
}
