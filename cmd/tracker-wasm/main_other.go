//go:build !(js && wasm)

package main

import "os"

func main() {
	_, _ = os.Stderr.WriteString("tracker-wasm must be built with GOOS=js GOARCH=wasm\n")
	os.Exit(1)
}
