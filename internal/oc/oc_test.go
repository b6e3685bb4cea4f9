package oc

import (
	"context"
	"fmt"
	"testing"

	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
)

func TestToStatusCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int32
	}{
		{err: context.Canceled, want: trace.StatusCodeCancelled},
		{err: errdefs.InvalidArgumentf("x"), want: trace.StatusCodeInvalidArgument},
		{err: errdefs.NotFoundf("x"), want: trace.StatusCodeNotFound},
		{err: errdefs.Unsupportedf("x"), want: trace.StatusCodeUnimplemented},
		{err: errdefs.Transportf("x"), want: trace.StatusCodeDataLoss},
		{err: errdefs.Backendf("x"), want: trace.StatusCodeInternal},
		{err: errdefs.Fatalf("x"), want: trace.StatusCodeAborted},
		{err: fmt.Errorf("other"), want: trace.StatusCodeUnknown},
	} {
		if got := toStatusCode(tc.err); got != tc.want {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestNextTrackIDUnique(t *testing.T) {
	a, b := NextTrackID(), NextTrackID()
	if a == b {
		t.Fatalf("expected unique track ids, got %d twice", a)
	}
}
