// Package abort reports contract violations that the renderer cannot recover from.
package abort

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Microsoft/virtiogpu/internal/log"
)

var (
	mu  sync.RWMutex
	die = defaultDie
)

func defaultDie(msg string) {
	panic("unrecoverable error in virtio-gpu frontend: " + msg)
}

// SetDieFunction replaces the function invoked by [Abort]. A nil f restores the default,
// which panics. It returns the previously installed function.
func SetDieFunction(f func(msg string)) func(msg string) {
	mu.Lock()
	defer mu.Unlock()
	prev := die
	if f == nil {
		f = defaultDie
	}
	die = f
	return prev
}

// Abort logs err along with the stacks of all goroutines, then calls the die function.
//
// The VMM-provided die function is expected not to return. If it does, Abort returns
// and the caller must fail the operation.
func Abort(ctx context.Context, err error) {
	buf := make([]byte, 300*(1<<10))
	stackSize := runtime.Stack(buf, true)
	stackTrace := string(buf[:stackSize])

	log.G(ctx).WithError(err).Logf(
		logrus.FatalLevel,
		"unrecoverable error in virtio-gpu frontend: %v\n%s",
		err, stackTrace,
	)

	mu.RLock()
	f := die
	mu.RUnlock()
	f(fmt.Sprint(err))
}
