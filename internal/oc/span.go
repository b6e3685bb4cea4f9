package oc

import (
	"context"
	"sync/atomic"

	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/log"
)

var DefaultSampler = trace.AlwaysSample()

// SetSpanStatus sets `span.SetStatus` to the proper status depending on `err`. If
// `err` is `nil` assumes `trace.StatusCodeOk`.
func SetSpanStatus(span *trace.Span, err error) {
	status := trace.Status{}
	if err != nil {
		status.Code = toStatusCode(err)
		status.Message = err.Error()
	}
	span.SetStatus(status)
}

// StartSpan wraps go.opencensus.io/trace.StartSpan, but, if the span is sampling,
// updates the context of the log entry in the context to the newly created value.
func StartSpan(ctx context.Context, name string, o ...trace.StartOption) (context.Context, *trace.Span) {
	ctx, s := trace.StartSpan(ctx, name, o...)
	if s.IsRecordingEvents() {
		ctx = log.UpdateContext(ctx)
	}

	return ctx, s
}

// WithServerSpanKind marks a span as handling a call made into the renderer by the VMM.
var WithServerSpanKind = trace.WithSpanKind(trace.SpanKindServer)

func spanKindToString(sk int) string {
	switch sk {
	case trace.SpanKindUnspecified:
		return "unknown"
	case trace.SpanKindClient:
		return "client"
	case trace.SpanKindServer:
		return "server"
	default:
		return ""
	}
}

var trackID atomic.Uint64

// NextTrackID returns a process-wide unique id for a trace track, such as the
// timeline of one fence ring.
func NextTrackID() uint64 {
	return trackID.Add(1)
}
