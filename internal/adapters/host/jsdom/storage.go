//go:build js && wasm

package jsdom

import (
	"fmt"
	"syscall/js"

	"github.com/okian/convtrack/internal/adapters/storage"
	"github.com/okian/convtrack/internal/domain/browser"
)

// WebStorage is a browser.Storage over window.localStorage or
// window.sessionStorage. Browsers throw when storage is disabled or full;
// those exceptions surface as ErrStorageUnavailable.
type WebStorage struct {
	v js.Value
}

var _ browser.Storage = (*WebStorage)(nil)

// openStorage returns the named window storage, or storage.Blocked when
// merely reading the property throws.
func openStorage(name string) (s browser.Storage) {
	defer func() {
		if recover() != nil {
			s = storage.Blocked{}
		}
	}()
	v := js.Global().Get(name)
	if v.Type() != js.TypeObject {
		return storage.Blocked{}
	}
	return &WebStorage{v: v}
}

func (w *WebStorage) Get(key string) (val string, ok bool, err error) {
	err = guard(func() {
		item := w.v.Call("getItem", key)
		if item.Type() == js.TypeString {
			val, ok = item.String(), true
		}
	})
	return val, ok, err
}

func (w *WebStorage) Set(key, value string) error {
	return guard(func() { w.v.Call("setItem", key, value) })
}

func (w *WebStorage) Remove(key string) error {
	return guard(func() { w.v.Call("removeItem", key) })
}

func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, r)
		}
	}()
	fn()
	return nil
}
