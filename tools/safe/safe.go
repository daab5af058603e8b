package safe

import (
	"ChatSync/logger"
	"ChatSync/tools/errs"

	"go.uber.org/zap"
)

// SafeGo starts f on a new goroutine and logs instead of crashing on panic.
// name shows up in the log line so background loops can be told apart.
func SafeGo(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover must be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("[SafeGo] panic recovered", zap.String("loop", name), zap.Error(errs.ErrPanic(r)))
	}
}
