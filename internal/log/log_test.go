package log

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/logfields"
)

func newTestLogger(hooks ...logrus.Hook) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.TraceLevel)
	for _, h := range hooks {
		l.AddHook(h)
	}
	return l
}

func TestGWithoutEntry(t *testing.T) {
	ctx := context.Background()
	e := G(ctx)
	if e.Logger != L.Logger {
		t.Fatal("expected default logger")
	}
	if e.Context != ctx {
		t.Fatal("expected entry context to be set")
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	l := newTestLogger()
	ctx, _ := WithContext(context.Background(), logrus.NewEntry(l).WithField(logfields.ContextID, 7))

	e := G(ctx)
	if e.Logger != l {
		t.Fatal("expected stored logger")
	}
	if v := e.Data[logfields.ContextID]; v != 7 {
		t.Fatalf("expected field %q to be 7, got %v", logfields.ContextID, v)
	}

	// Copy carries the entry without the source context's values.
	dst := Copy(context.Background(), ctx)
	if G(dst).Data[logfields.ContextID] != 7 {
		t.Fatal("expected copied entry to keep its fields")
	}
}

func TestHookEncodesStructs(t *testing.T) {
	l := newTestLogger(NewHook())
	var got logrus.Fields
	l.AddHook(&captureHook{f: func(e *logrus.Entry) { got = e.Data }})

	type box struct {
		X, Y uint32
	}
	l.WithFields(logrus.Fields{
		"box":      box{X: 1, Y: 2},
		"duration": 1500 * time.Millisecond,
		"nilptr":   (*box)(nil),
		"id":       uint32(3),
	}).Info("test")

	if got["box"] != `{"X":1,"Y":2}` {
		t.Fatalf("unexpected struct encoding %v", got["box"])
	}
	if got["duration"] != 1.5 {
		t.Fatalf("unexpected duration encoding %v", got["duration"])
	}
	if got["nilptr"] != nullString {
		t.Fatalf("unexpected nil encoding %v", got["nilptr"])
	}
	if got["id"] != uint32(3) {
		t.Fatalf("expected numeric field to be untouched, got %v", got["id"])
	}
}

type ringKind uint8

func (k ringKind) String() string { return [...]string{"global", "context"}[k] }

func TestHookPayloadsAndStringers(t *testing.T) {
	h := NewHook()
	h.PayloadLimit = 4
	l := newTestLogger(h)
	var got logrus.Fields
	l.AddHook(&captureHook{f: func(e *logrus.Entry) { got = e.Data }})

	l.WithFields(logrus.Fields{
		"short": []byte{0xde, 0xad},
		"long":  []byte{1, 2, 3, 4, 5, 6},
		"ring":  ringKind(1),
		"at":    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}).Info("test")

	for k, want := range map[string]string{
		"short": "dead",
		"long":  "01020304...(+2 bytes)",
		"ring":  "context",
		"at":    "2024-01-02T03:04:05Z",
	} {
		if got[k] != want {
			t.Fatalf("field %q: expected %q, got %v", k, want, got[k])
		}
	}
}

func TestPayloadUnlimited(t *testing.T) {
	if s := Payload([]byte{0xab, 0xcd, 0xef}, 0); s != "abcdef" {
		t.Fatalf("unexpected payload %q", s)
	}
}

func TestHookAddsSpanContext(t *testing.T) {
	l := newTestLogger(NewHook())
	var got logrus.Fields
	l.AddHook(&captureHook{f: func(e *logrus.Entry) { got = e.Data }})

	ctx, span := trace.StartSpan(context.Background(), "test", trace.WithSampler(trace.AlwaysSample()))
	defer span.End()
	l.WithContext(ctx).Info("test")

	if got[logfields.TraceID] != span.SpanContext().TraceID.String() {
		t.Fatalf("expected trace id %s, got %v", span.SpanContext().TraceID, got[logfields.TraceID])
	}
	if got[logfields.SpanID] != span.SpanContext().SpanID.String() {
		t.Fatalf("expected span id %s, got %v", span.SpanContext().SpanID, got[logfields.SpanID])
	}
}

func TestDebugHook(t *testing.T) {
	var (
		types []DebugType
		msgs  bytes.Buffer
	)
	l := newTestLogger(NewDebugHook(func(dt DebugType, msg string) {
		types = append(types, dt)
		msgs.WriteString(msg + "\n")
	}))

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Debug("d")
	l.Trace("t")

	want := []DebugType{DebugTypeError, DebugTypeWarn, DebugTypeInfo, DebugTypeDebug, DebugTypeDebug}
	if len(types) != len(want) {
		t.Fatalf("expected %d callbacks, got %d", len(want), len(types))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("callback %d: expected type %d, got %d", i, want[i], types[i])
		}
	}
	if !strings.Contains(msgs.String(), "msg=w") {
		t.Fatalf("expected formatted message, got %q", msgs.String())
	}
}

type captureHook struct {
	f func(*logrus.Entry)
}

func (h *captureHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *captureHook) Fire(e *logrus.Entry) error {
	h.f(e)
	return nil
}
