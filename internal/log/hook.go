package log

import (
	"fmt"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/logfields"
)

const nullString = "null"

// Hook rewrites entry fields into values every formatter (and the VMM debug
// callback) can print on one line.
//
//   - [time.Time] becomes a [TimeFormat] string.
//   - [time.Duration] becomes seconds.
//   - []byte is treated as a command payload, see [Payload].
//   - Named types with a String method (capset ids, ring kinds, parameter keys) use it.
//   - Structs, maps, slices and arrays are encoded as JSON.
//
// Errors are left for the formatter.
type Hook struct {
	// PayloadLimit caps how many payload bytes are printed. Zero prints all of them.
	PayloadLimit int

	// SpanContext adds [logfields.TraceID] and [logfields.SpanID] when the entry
	// carries a context with an active span.
	SpanContext bool
}

var _ logrus.Hook = &Hook{}

func NewHook() *Hook {
	return &Hook{
		PayloadLimit: DefaultPayloadLimit,
		SpanContext:  true,
	}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(e *logrus.Entry) error {
	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			continue
		}
		if nv, ok := h.convert(v); ok {
			e.Data[k] = nv
		} else if nv != nil {
			// Keep the original value and record why it could not be converted.
			e.Data[k+"-"+logrus.ErrorKey] = nv
		}
	}
	if h.SpanContext {
		addSpanContext(e)
	}
	return nil
}

// convert returns the replacement for v and true, or a conversion failure message
// (possibly nil) and false when v should be logged as is.
func (h *Hook) convert(v interface{}) (interface{}, bool) {
	switch vv := v.(type) {
	case nil, error, bool, string:
		return nil, false
	case time.Time:
		return FormatTime(vv), true
	case time.Duration:
		return vv.Seconds(), true
	case []byte:
		return Payload(vv, h.PayloadLimit), true
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nullString, true
		}
		return vv.String(), true
	}

	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nullString, true
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		s, err := marshal(v)
		if err != nil {
			return fmt.Sprintf("could not encode %T: %v", v, err), false
		}
		return s, true
	}
	return nil, false
}

func addSpanContext(e *logrus.Entry) {
	if e.Context == nil {
		return
	}
	span := trace.FromContext(e.Context)
	if span == nil {
		return
	}
	sc := span.SpanContext()
	e.Data[logfields.TraceID] = sc.TraceID.String()
	e.Data[logfields.SpanID] = sc.SpanID.String()
}
