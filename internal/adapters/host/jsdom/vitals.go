//go:build js && wasm

package jsdom

import (
	"syscall/js"

	"github.com/okian/convtrack/internal/domain/browser"
)

// inpThreshold is the shortest interaction the event timing observer reports.
const inpThreshold = 40

// observeVitals registers buffered PerformanceObservers that keep h.vitals
// current. Entry types the browser does not support are skipped.
func (h *Host) observeVitals() {
	if h.window.Get("PerformanceObserver").Type() != js.TypeFunction {
		return
	}

	h.observe("largest-contentful-paint", func(e js.Value) {
		h.setVital(func(v *browser.Vitals) { v.LCP = metric(number(e.Get("startTime"))) })
	}, nil)
	h.observe("layout-shift", func(e js.Value) {
		if truthy(e.Get("hadRecentInput")) {
			return
		}
		h.setVital(func(v *browser.Vitals) { v.CLS = metric(v.CLS.Value + number(e.Get("value"))) })
	}, nil)
	h.observe("paint", func(e js.Value) {
		if str(e.Get("name")) != "first-contentful-paint" {
			return
		}
		h.setVital(func(v *browser.Vitals) { v.FCP = metric(number(e.Get("startTime"))) })
	}, nil)
	h.observe("navigation", func(e js.Value) {
		h.setVital(func(v *browser.Vitals) { v.TTFB = metric(number(e.Get("responseStart"))) })
	}, nil)
	h.observe("event", func(e js.Value) {
		if number(e.Get("interactionId")) == 0 {
			return
		}
		d := number(e.Get("duration"))
		h.setVital(func(v *browser.Vitals) {
			if !v.INP.OK || d > v.INP.Value {
				v.INP = metric(d)
			}
		})
	}, map[string]any{"durationThreshold": inpThreshold})
}

func (h *Host) observe(entryType string, fn func(js.Value), extra map[string]any) {
	defer func() {
		// Unsupported entry types throw on observe.
		_ = recover()
	}()
	cb := h.keep(js.FuncOf(func(_ js.Value, args []js.Value) any {
		entries := args[0].Call("getEntries")
		for i := 0; i < entries.Length(); i++ {
			fn(entries.Index(i))
		}
		return nil
	}))
	opts := map[string]any{"type": entryType, "buffered": true}
	for k, v := range extra {
		opts[k] = v
	}
	h.window.Get("PerformanceObserver").New(cb).Call("observe", opts)
}

func (h *Host) setVital(fn func(*browser.Vitals)) {
	h.mu.Lock()
	fn(&h.vitals)
	h.mu.Unlock()
}

func metric(v float64) browser.Metric { return browser.Metric{Value: v, OK: true} }
