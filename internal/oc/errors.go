package oc

import (
	"context"
	"errors"

	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// statusCodes is checked in order; the first match wins.
var statusCodes = []struct {
	match func(error) bool
	code  int32
}{
	{is(context.Canceled), trace.StatusCodeCancelled},
	{is(context.DeadlineExceeded), trace.StatusCodeDeadlineExceeded},
	{errdefs.IsFatal, trace.StatusCodeAborted},
	{errdefs.IsInvalidArgument, trace.StatusCodeInvalidArgument},
	{errdefs.IsNotFound, trace.StatusCodeNotFound},
	{errdefs.IsTryAgain, trace.StatusCodeUnavailable},
	{errdefs.IsUnsupported, trace.StatusCodeUnimplemented},
	{is(errdefs.ErrTransport), trace.StatusCodeDataLoss},
	{is(errdefs.ErrBackend), trace.StatusCodeInternal},
}

func toStatusCode(err error) int32 {
	for _, s := range statusCodes {
		if s.match(err) {
			return s.code
		}
	}
	return trace.StatusCodeUnknown
}
