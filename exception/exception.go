package exception

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/monitoring"
)

// SafeGo runs fn on a new goroutine and logs instead of crashing on panic.
func SafeGo(name string, fn func()) {
	SafeGoWithRecover(name, fn, nil)
}

// SafeGoWithRecover is SafeGo that additionally hands the recovered panic, as an error,
// to onPanic so the caller can settle whatever fn was supposed to report.
func SafeGoWithRecover(name string, fn func(), onPanic func(err error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", "Panic in: ", name, " ", r, " ", string(debug.Stack()))
				if onPanic != nil {
					onPanic(fmt.Errorf("panic in %s: %v", name, r))
				}
			}
		}()
		fn()
	}()
}

// SafeGoWithPanic exits the process after logging; for goroutines the node cannot run without.
func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", "Panic in: ", name, " ", r, " ", string(debug.Stack()))
				os.Exit(1)
			}
		}()
		fn()
	}()
}
