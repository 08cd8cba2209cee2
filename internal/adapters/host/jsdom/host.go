//go:build js && wasm

package jsdom

import (
	"sync"
	"syscall/js"
	"time"

	"github.com/okian/convtrack/internal/domain/browser"
)

// windowEvents are the kinds dispatched on window. Every other kind is
// captured on document.
var windowEvents = map[browser.EventKind]bool{
	browser.Scroll:            true,
	browser.Resize:            true,
	browser.PageHide:          true,
	browser.BeforeUnload:      true,
	browser.Error:             true,
	browser.Rejection:         true,
	browser.Online:            true,
	browser.Offline:           true,
	browser.BeforePrint:       true,
	browser.OrientationChange: true,
	browser.LanguageChange:    true,
}

// Host is a browser.Host over the current window. JavaScript delivers
// callbacks one at a time, which gives listeners run-to-completion order.
type Host struct {
	window   js.Value
	document js.Value
	session  browser.Storage
	local    browser.Storage

	mu      sync.Mutex
	vitals  browser.Vitals
	history []func()
	funcs   []js.Func
}

var _ browser.Host = (*Host)(nil)

// NewHost binds to the global window and starts the Web Vitals observers.
func NewHost() *Host {
	w := js.Global()
	h := &Host{
		window:   w,
		document: w.Get("document"),
		session:  openStorage("sessionStorage"),
		local:    openStorage("localStorage"),
	}
	h.observeVitals()
	h.hookHistory()
	return h
}

// Release frees every callback registered with the JavaScript runtime.
// Listeners stop firing afterwards.
func (h *Host) Release() {
	h.mu.Lock()
	funcs := h.funcs
	h.funcs = nil
	h.mu.Unlock()
	for _, f := range funcs {
		f.Release()
	}
}

func (h *Host) keep(f js.Func) js.Func {
	h.mu.Lock()
	h.funcs = append(h.funcs, f)
	h.mu.Unlock()
	return f
}

func (h *Host) Now() time.Time { return time.Now() }

func (h *Host) Location() browser.Location {
	loc := h.window.Get("location")
	return browser.Location{
		Href:     loc.Get("href").String(),
		Host:     loc.Get("host").String(),
		Pathname: loc.Get("pathname").String(),
		Search:   loc.Get("search").String(),
	}
}

func (h *Host) Referrer() string { return h.document.Get("referrer").String() }

func (h *Host) Viewport() browser.Viewport {
	root := h.document.Get("documentElement")
	return browser.Viewport{
		Width:          number(h.window.Get("innerWidth")),
		Height:         number(h.window.Get("innerHeight")),
		ScrollY:        number(h.window.Get("scrollY")),
		DocumentHeight: number(root.Get("scrollHeight")),
	}
}

func (h *Host) Navigator() browser.Navigator {
	nav := h.window.Get("navigator")
	n := browser.Navigator{
		UserAgent:           str(nav.Get("userAgent")),
		Language:            str(nav.Get("language")),
		HardwareConcurrency: int(number(nav.Get("hardwareConcurrency"))),
		DeviceMemory:        number(nav.Get("deviceMemory")),
		MaxTouchPoints:      int(number(nav.Get("maxTouchPoints"))),
		Online:              truthy(nav.Get("onLine")),
	}
	if conn := nav.Get("connection"); conn.Type() == js.TypeObject {
		n.Connection = browser.Connection{
			Present:       true,
			EffectiveType: str(conn.Get("effectiveType")),
			SaveData:      truthy(conn.Get("saveData")),
		}
	}
	return n
}

func (h *Host) Hidden() bool { return truthy(h.document.Get("hidden")) }

func (h *Host) NavigationType() string {
	perf := h.window.Get("performance")
	if perf.Get("getEntriesByType").Type() != js.TypeFunction {
		return "navigate"
	}
	entries := perf.Call("getEntriesByType", "navigation")
	if entries.Length() == 0 {
		return "navigate"
	}
	return str(entries.Index(0).Get("type"))
}

func (h *Host) Vitals() browser.Vitals {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vitals
}

func (h *Host) MatchMedia(query string) bool {
	if h.window.Get("matchMedia").Type() != js.TypeFunction {
		return false
	}
	return truthy(h.window.Call("matchMedia", query).Get("matches"))
}

func (h *Host) SessionStorage() browser.Storage { return h.session }
func (h *Host) LocalStorage() browser.Storage   { return h.local }

func (h *Host) AddEventListener(kind browser.EventKind, fn func(browser.Event)) {
	f := h.keep(js.FuncOf(func(_ js.Value, args []js.Value) any {
		var ev js.Value
		if len(args) > 0 {
			ev = args[0]
		}
		fn(h.translate(kind, ev))
		return nil
	}))

	switch {
	case kind == browser.ConnectionChange:
		conn := h.window.Get("navigator").Get("connection")
		if conn.Type() == js.TypeObject {
			conn.Call("addEventListener", "change", f)
		}
	case kind == browser.Play:
		// media events do not bubble
		h.document.Call("addEventListener", string(kind), f, true)
	case windowEvents[kind]:
		h.window.Call("addEventListener", string(kind), f, map[string]any{"passive": true})
	default:
		h.document.Call("addEventListener", string(kind), f, true)
	}
}

func (h *Host) translate(kind browser.EventKind, ev js.Value) browser.Event {
	out := browser.Event{Kind: kind}
	if ev.Type() != js.TypeObject {
		return out
	}
	out.Target = wrap(ev.Get("target"))
	out.RelatedTarget = wrap(ev.Get("relatedTarget"))
	out.ClientX = number(ev.Get("clientX"))
	out.ClientY = number(ev.Get("clientY"))
	out.Key = str(ev.Get("key"))

	switch kind {
	case browser.Error:
		out.Message = str(ev.Get("message"))
		out.Source = str(ev.Get("filename"))
	case browser.Rejection:
		if reason := ev.Get("reason"); reason.Type() == js.TypeObject {
			out.Message = str(reason.Get("message"))
		} else {
			out.Message = str(reason)
		}
	case browser.Copy:
		if sel := h.window.Call("getSelection"); sel.Type() == js.TypeObject {
			out.TextLength = sel.Call("toString").Length()
		}
	case browser.LanguageChange:
		out.Locale = str(h.window.Get("navigator").Get("language"))
	}
	return out
}

func (h *Host) ObserveIntersection(selector string, threshold float64, fn func(browser.IntersectionEntry)) {
	ctor := h.window.Get("IntersectionObserver")
	if ctor.Type() != js.TypeFunction {
		return
	}
	cb := h.keep(js.FuncOf(func(_ js.Value, args []js.Value) any {
		entries := args[0]
		for i := 0; i < entries.Length(); i++ {
			e := entries.Index(i)
			target := wrap(e.Get("target"))
			if target == nil {
				continue
			}
			fn(browser.IntersectionEntry{
				Target:       target,
				Intersecting: truthy(e.Get("isIntersecting")),
				Ratio:        number(e.Get("intersectionRatio")),
			})
		}
		return nil
	}))
	obs := ctor.New(cb, map[string]any{"threshold": threshold})
	nodes := h.document.Call("querySelectorAll", selector)
	for i := 0; i < nodes.Length(); i++ {
		obs.Call("observe", nodes.Index(i))
	}
}

func (h *Host) OnHistoryChange(fn func()) {
	h.mu.Lock()
	h.history = append(h.history, fn)
	h.mu.Unlock()
}

// hookHistory wraps pushState and replaceState and listens to popstate, so
// client-side routing reaches the OnHistoryChange hooks.
func (h *Host) hookHistory() {
	hist := h.window.Get("history")
	for _, name := range []string{"pushState", "replaceState"} {
		orig := hist.Get(name)
		if orig.Type() != js.TypeFunction {
			continue
		}
		hist.Set(name, h.keep(js.FuncOf(func(this js.Value, args []js.Value) any {
			call := make([]any, len(args))
			for i, a := range args {
				call[i] = a
			}
			res := orig.Call("apply", this, call)
			h.notifyHistory()
			return res
		})))
	}
	h.window.Call("addEventListener", "popstate", h.keep(js.FuncOf(func(js.Value, []js.Value) any {
		h.notifyHistory()
		return nil
	})))
}

func (h *Host) notifyHistory() {
	h.mu.Lock()
	hooks := append([]func(){}, h.history...)
	h.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func number(v js.Value) float64 {
	if v.Type() != js.TypeNumber {
		return 0
	}
	return v.Float()
}

func str(v js.Value) string {
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func truthy(v js.Value) bool { return v.Truthy() }
