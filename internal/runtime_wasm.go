//go:build wasm

package internal

// goid has no wasm support and wasm runs goroutines on a single thread, so
// every goroutine shares one scope stack.
func getGID() int64 {
	return 1
}
