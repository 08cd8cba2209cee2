//go:build js && wasm

package jsdom

import (
	"strings"
	"syscall/js"
)

// Console is an io.Writer that prints each write as one console line. Pass
// it to logger.InitWith.
type Console struct{}

func (Console) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	method := "log"
	switch {
	case strings.Contains(line, "level=ERROR"):
		method = "error"
	case strings.Contains(line, "level=WARN"):
		method = "warn"
	case strings.Contains(line, "level=DEBUG"):
		method = "debug"
	}
	js.Global().Get("console").Call(method, line)
	return len(p), nil
}
