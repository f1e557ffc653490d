package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Recover runs fn and converts a panic into a logged error so one bad
// callback cannot take down the event loop.
func Recover(logger *logrus.Logger, operation string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operation, r)
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"operation": operation,
					"panic":     r,
					"stack":     string(debug.Stack()),
				}).Error("Recovered from panic")
			}
		}
	}()

	fn()
	return nil
}
