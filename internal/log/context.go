package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

type entryContextKeyType int

const _entryContextKey entryContextKeyType = iota

// L is the default log entry. It is used by G when no entry is stored in the context.
var L = logrus.NewEntry(logrus.StandardLogger())

// G returns a [logrus.Entry] with the context set to ctx.
//
// If ctx carries an entry (see [WithContext]), that entry is used as the base,
// otherwise [L] is.
func G(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return L
	}
	e := fromContext(ctx)
	if e == nil {
		e = L
	}
	return e.WithContext(ctx)
}

// S is shorthand for G(ctx).WithFields(fields).
func S(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	return G(ctx).WithFields(fields)
}

// WithContext returns a context that contains the provided log entry.
// The entry can be retrieved with [G].
//
// The entry's context is set to the returned context, so that hooks (eg, the span hook)
// see the most recent context.
func WithContext(ctx context.Context, entry *logrus.Entry) (context.Context, *logrus.Entry) {
	entry = entry.Dup()
	ctx = context.WithValue(ctx, _entryContextKey, entry)
	entry.Context = ctx
	return ctx, entry
}

// UpdateContext refreshes the context of the entry stored in ctx.
// It should be called after ctx gains new values (eg, a new trace span) that the
// log hooks should observe.
func UpdateContext(ctx context.Context) context.Context {
	if e := fromContext(ctx); e != nil {
		ctx, _ = WithContext(ctx, e)
	}
	return ctx
}

// Copy extracts the logging entry from src and stores it in dst.
// Useful when handing work to a goroutine that should not inherit src's cancellation.
func Copy(dst context.Context, src context.Context) context.Context {
	if e := fromContext(src); e != nil {
		dst, _ = WithContext(dst, e)
	}
	return dst
}

func fromContext(ctx context.Context) *logrus.Entry {
	e, _ := ctx.Value(_entryContextKey).(*logrus.Entry)
	return e
}
