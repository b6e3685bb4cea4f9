package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// DebugType is the severity passed to the VMM debug callback.
type DebugType uint32

const (
	DebugTypeError DebugType = 1
	DebugTypeWarn  DebugType = 2
	DebugTypeInfo  DebugType = 3
	DebugTypeDebug DebugType = 4
)

// DebugCallback receives every formatted log entry.
type DebugCallback func(t DebugType, msg string)

// DebugHook forwards entries to the debug callback registered by the VMM.
//
// The logger output should be discarded when this hook is installed, otherwise
// entries are written twice.
type DebugHook struct {
	cb        DebugCallback
	formatter logrus.Formatter
}

var _ logrus.Hook = &DebugHook{}

func NewDebugHook(cb DebugCallback) *DebugHook {
	return &DebugHook{
		cb: cb,
		formatter: &logrus.TextFormatter{
			DisableTimestamp: true,
			DisableColors:    true,
			DisableQuote:     true,
		},
	}
}

func (h *DebugHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *DebugHook) Fire(e *logrus.Entry) error {
	if h.cb == nil {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.cb(ToDebugType(e.Level), strings.TrimSuffix(string(b), "\n"))
	return nil
}

// ToDebugType maps a logrus level onto the four severities the VMM understands.
func ToDebugType(l logrus.Level) DebugType {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return DebugTypeError
	case logrus.WarnLevel:
		return DebugTypeWarn
	case logrus.InfoLevel:
		return DebugTypeInfo
	default:
		return DebugTypeDebug
	}
}
