//go:build js && wasm

// Command tracker-wasm is the in-page build of the tracker. The page sets
// window.__CONVTRACK__ and loads the module with wasm_exec.js; the module
// then exposes window.convtrack.
package main

import (
	"context"
	"syscall/js"

	"github.com/okian/convtrack/internal/adapters/host/jsdom"
	"github.com/okian/convtrack/internal/adapters/mq/bus"
	"github.com/okian/convtrack/internal/app/tracker"
	"github.com/okian/convtrack/internal/domain/consent"
	"github.com/okian/convtrack/internal/domain/schema"
	"github.com/okian/convtrack/pkg/logger"
)

func main() {
	_ = logger.InitWith(jsdom.Console{}, logger.FormatText)
	ctx := context.Background()
	log := logger.Named("wasm")

	opts, err := parseOptions(jsdom.JSONBytes(js.Global().Get(globalOptions)))
	if err != nil {
		log.Warn(ctx, "ignoring page options", logger.Error(err))
	}
	level := "warn"
	if opts.Debug {
		level = "debug"
	}
	_ = logger.SetLevelString(level)

	host := jsdom.NewHost()
	gate := &consent.Gate{}
	b := bus.New()
	manager := consent.NewManager(host.LocalStorage(), gate, host.Now)
	tracker.BridgeConsent(manager, b)
	host.BridgeBus(b)

	trk := tracker.New(host,
		tracker.WithEndpoint(opts.Endpoint),
		tracker.WithEnabled(opts.enabled()),
		tracker.WithDebug(opts.Debug),
		tracker.WithLocale(opts.Locale),
		tracker.WithTransport(jsdom.NewBeaconTransport()),
		tracker.WithBus(b),
		tracker.WithGate(gate),
	)

	phase := manager.Init()
	if trk.Init(ctx) {
		go trk.Run(ctx)
	}
	expose(trk, manager)
	log.Info(ctx, "tracker ready", logger.String("consent", phase.String()))

	select {}
}

// expose publishes window.convtrack. The functions are never released; they
// live as long as the page.
func expose(trk *tracker.Tracker, m *consent.Manager) {
	fn := func(f func(args []js.Value) any) js.Func {
		return js.FuncOf(func(_ js.Value, args []js.Value) any { return f(args) })
	}
	arg := func(args []js.Value, i int) js.Value {
		if i < len(args) {
			return args[i]
		}
		return js.Undefined()
	}

	consentAPI := map[string]any{
		"acceptAll": fn(func([]js.Value) any {
			m.AcceptAll()
			return nil
		}),
		"rejectOptional": fn(func([]js.Value) any {
			m.RejectOptional()
			return nil
		}),
		"customize": fn(func(args []js.Value) any {
			c := arg(args, 0)
			if c.Type() != js.TypeObject {
				return nil
			}
			m.Customize(consent.Categories{
				Analytics: c.Get("analytics").Truthy(),
				Marketing: c.Get("marketing").Truthy(),
			})
			return nil
		}),
		"reopen": fn(func([]js.Value) any {
			m.Reopen()
			return nil
		}),
		"phase": fn(func([]js.Value) any {
			return m.Phase().String()
		}),
		"granted": fn(func([]js.Value) any {
			return trk.Gate().Granted()
		}),
	}

	js.Global().Set("convtrack", map[string]any{
		"track": fn(func(args []js.Value) any {
			name := arg(args, 0)
			if name.Type() != js.TypeString {
				return nil
			}
			trk.Track(schema.EventName(name.String()), decodeData(jsdom.JSONBytes(arg(args, 1))))
			return nil
		}),
		"flush": fn(func([]js.Value) any {
			trk.Flush(false)
			return nil
		}),
		"consent": consentAPI,
	})
}
