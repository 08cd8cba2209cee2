//go:build js && wasm

// Package jsdom implements the page abstractions over the live browser DOM
// through syscall/js. It only builds for GOOS=js GOARCH=wasm.
package jsdom

import (
	"strings"
	"syscall/js"

	"github.com/okian/convtrack/internal/domain/browser"
)

// Element wraps a DOM element.
type Element struct {
	v js.Value
}

var _ browser.Element = (*Element)(nil)

// wrap returns nil for null, undefined and non-element nodes.
func wrap(v js.Value) browser.Element {
	if !isElement(v) {
		return nil
	}
	return &Element{v: v}
}

func isElement(v js.Value) bool {
	return v.Type() == js.TypeObject && number(v.Get("nodeType")) == 1
}

func (e *Element) TagName() string {
	return strings.ToLower(e.v.Get("tagName").String())
}

func (e *Element) Attr(name string) (string, bool) {
	if !e.v.Call("hasAttribute", name).Bool() {
		return "", false
	}
	return e.v.Call("getAttribute", name).String(), true
}

// Closest returns nil for an invalid selector instead of throwing.
func (e *Element) Closest(selector string) (out browser.Element) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return wrap(e.v.Call("closest", selector))
}

func (e *Element) Parent() browser.Element {
	return wrap(e.v.Get("parentElement"))
}
