//go:build js && wasm

package jsdom

import (
	"syscall/js"

	"github.com/okian/convtrack/internal/adapters/mq/bus"
	"github.com/okian/convtrack/internal/domain/schema"
)

// BridgeBus republishes window CustomEvents named after a bus channel onto b.
// The detail crosses as JSON so the tracker validates it like any other
// untrusted payload.
func (h *Host) BridgeBus(b *bus.Bus) {
	channels := append([]schema.Channel{schema.ChannelNavigation}, schema.PayloadChannels()...)
	for _, ch := range channels {
		h.window.Call("addEventListener", string(ch), h.keep(js.FuncOf(func(_ js.Value, args []js.Value) any {
			var detail any
			if len(args) > 0 {
				detail = JSONBytes(args[0].Get("detail"))
			}
			b.Publish(ch, detail)
			return nil
		})))
	}
}

// JSONBytes serializes v with JSON.stringify. It returns nil for undefined
// values and for values that cannot be serialized.
func JSONBytes(v js.Value) (out []byte) {
	if v.IsUndefined() {
		return nil
	}
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	s := js.Global().Get("JSON").Call("stringify", v)
	if s.Type() != js.TypeString {
		return nil
	}
	return []byte(s.String())
}
