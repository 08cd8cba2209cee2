//go:build js && wasm

package jsdom

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/okian/convtrack/internal/adapters/transport"
)

// BeaconTransport sends beacons with navigator.sendBeacon, so a batch flushed
// during unload is delivered after the page is gone. Posts use window.fetch
// with keepalive set, behind the HTTP transport's circuit breaker.
type BeaconTransport struct {
	http *transport.HTTP
}

var _ transport.Transport = (*BeaconTransport)(nil)

var errFetchUnavailable = errors.New("window.fetch unavailable")

// NewBeaconTransport returns a transport for the current window.
func NewBeaconTransport(opts ...transport.Option) *BeaconTransport {
	opts = append(opts, transport.WithSendFunc(fetchKeepalive))
	return &BeaconTransport{http: transport.NewHTTP(opts...)}
}

// Post issues a keepalive fetch and waits for its status. Once issued the
// request is not aborted; ctx only stops the wait.
func (b *BeaconTransport) Post(ctx context.Context, url string, body []byte) error {
	return b.http.Post(ctx, url, body)
}

// Beacon reports false when the browser refuses the payload. Without
// navigator.sendBeacon it falls back to a background POST.
func (b *BeaconTransport) Beacon(url string, body []byte) (queued bool) {
	nav := js.Global().Get("navigator")
	if nav.Get("sendBeacon").Type() != js.TypeFunction {
		return b.http.Beacon(url, body)
	}
	defer func() {
		if recover() != nil {
			queued = false
		}
	}()
	blob := js.Global().Get("Blob").New([]any{bytesToJS(body)}, map[string]any{"type": "text/plain;charset=UTF-8"})
	return nav.Call("sendBeacon", url, blob).Bool()
}

type fetchResult struct {
	status int
	err    error
}

// fetchKeepalive posts body with fetch({keepalive: true}). The promise
// callbacks only hand the result to a channel, so the JS event loop is never
// blocked.
func fetchKeepalive(ctx context.Context, url string, body []byte, mode string) (err error) {
	fetch := js.Global().Get("fetch")
	if fetch.Type() != js.TypeFunction {
		return errFetchUnavailable
	}

	done := make(chan fetchResult, 1)
	onOK := js.FuncOf(func(_ js.Value, args []js.Value) any {
		done <- fetchResult{status: args[0].Get("status").Int()}
		return nil
	})
	onErr := js.FuncOf(func(_ js.Value, args []js.Value) any {
		msg := "fetch failed"
		if len(args) > 0 && args[0].Truthy() {
			msg = args[0].Call("toString").String()
		}
		done <- fetchResult{err: errors.New(msg)}
		return nil
	})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch %s: %v", url, r)
			onOK.Release()
			onErr.Release()
		}
	}()
	init := map[string]any{
		"method":    "POST",
		"body":      bytesToJS(body),
		"keepalive": true,
		"headers": map[string]any{
			"Content-Type":       "application/json",
			transport.HeaderMode: mode,
		},
	}
	fetch.Invoke(url, init).Call("then", onOK, onErr)

	select {
	case res := <-done:
		onOK.Release()
		onErr.Release()
		if res.err != nil {
			return res.err
		}
		return transport.CheckStatus(res.status)
	case <-ctx.Done():
		// The request keeps running; its callbacks stay alive until it settles.
		go func() {
			<-done
			onOK.Release()
			onErr.Release()
		}()
		return ctx.Err()
	}
}

func bytesToJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}
