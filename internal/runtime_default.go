//go:build !wasm

package internal

import (
	"github.com/petermattis/goid"
)

// getGID identifies the calling goroutine. Scope stacks and queue workers are
// keyed by it.
func getGID() int64 {
	return goid.Get()
}
