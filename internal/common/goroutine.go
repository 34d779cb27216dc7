package common

import (
	"fmt"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks goroutines spawned via SafeGo for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs fn in a goroutine with panic recovery. Panics are logged but don't crash the bot.
//
// Example:
//
//	common.SafeGo(logger, "deliverOutcome", func() {
//	    renderer.Deliver(ctx, chatID, outcome)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer RecoverPanic(logger, name, nil)
		fn()
	}()
}

// RecoverPanic must be deferred directly. It logs a recovered panic with its stack and
// then calls onPanic (if set) with the panic value.
func RecoverPanic(logger arbor.ILogger, name string, onPanic func(r interface{})) {
	r := recover()
	if r == nil {
		return
	}

	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", GetStackTrace()).
			Msg("Recovered from panic")
	}

	if onPanic != nil {
		onPanic(r)
	}
}
