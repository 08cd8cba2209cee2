package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/convtrack/internal/adapters/host/htmlhost"
	"github.com/okian/convtrack/internal/adapters/mq/bus"
	"github.com/okian/convtrack/internal/adapters/storage"
	"github.com/okian/convtrack/internal/adapters/transport"
	"github.com/okian/convtrack/internal/app/tracker"
	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/internal/domain/consent"
	"github.com/okian/convtrack/internal/domain/identity"
	"github.com/okian/convtrack/internal/domain/schema"
)

// ErrTrackerInactive is returned when a visitor's tracker refuses to start.
var ErrTrackerInactive = errors.New("tracker did not initialize")

// environment is what every visitor shares.
type environment struct {
	html      string
	siteURL   string
	endpoint  string
	transport transport.Transport
	local     browser.Storage
	seed      int64
}

// visitResult describes one finished session.
type visitResult struct {
	returning bool
	consented bool
}

type profile struct {
	navigator browser.Navigator
	viewport  browser.Viewport
}

var profiles = []profile{
	{
		navigator: browser.Navigator{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0 Safari/537.36",
			Language:            "en-US",
			HardwareConcurrency: 8,
			DeviceMemory:        8,
			Online:              true,
			Connection:          browser.Connection{Present: true, EffectiveType: "4g"},
		},
		viewport: browser.Viewport{Width: 1440, Height: 900, DocumentHeight: 5400},
	},
	{
		navigator: browser.Navigator{
			UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			Language:       "ja-JP",
			MaxTouchPoints: 5,
			Online:         true,
		},
		viewport: browser.Viewport{Width: 390, Height: 844, DocumentHeight: 7600},
	},
	{
		navigator: browser.Navigator{
			UserAgent:           "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0 Mobile Safari/537.36",
			Language:            "en-GB",
			HardwareConcurrency: 8,
			DeviceMemory:        4,
			MaxTouchPoints:      5,
			Online:              true,
			Connection:          browser.Connection{Present: true, EffectiveType: "3g", SaveData: true},
		},
		viewport: browser.Viewport{Width: 412, Height: 915, DocumentHeight: 8200},
	},
	{
		navigator: browser.Navigator{
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0",
			Language:            "de-DE",
			HardwareConcurrency: 4,
			Online:              true,
		},
		viewport: browser.Viewport{Width: 1280, Height: 720, DocumentHeight: 4800},
	},
	{
		navigator: browser.Navigator{
			UserAgent:           "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			Language:            "fr-FR",
			HardwareConcurrency: 6,
			MaxTouchPoints:      5,
			Online:              true,
		},
		viewport: browser.Viewport{Width: 820, Height: 1180, DocumentHeight: 6000},
	},
}

var referrers = []string{
	"",
	"",
	"https://www.google.com/",
	"https://t.co/x1y2z3",
	"https://www.facebook.com/",
	"https://news.example.org/convention-preview",
}

var landingQueries = []string{
	"",
	"",
	"?utm_source=newsletter&utm_medium=email&utm_campaign=early_bird",
	"?utm_source=x&utm_medium=social",
	"?ref=partner_site",
}

var experimentVariants = []string{"a", "b"}

// visit drives one visitor session from landing to unload.
func visit(ctx context.Context, env *environment, id int) (visitResult, error) {
	var res visitResult
	rng := rand.New(rand.NewPCG(uint64(env.seed), uint64(id))) //nolint:gosec // simulated behavior, not security

	doc, err := htmlhost.ParseString(env.html)
	if err != nil {
		return res, err
	}
	p := profiles[rng.IntN(len(profiles))]
	clock := htmlhost.NewClock(time.Now())
	session := storage.NewMemory()
	local := storage.NewNamespaced(fmt.Sprintf("visitor-%d/", id), env.local)

	page := htmlhost.NewPage(doc,
		htmlhost.WithURL(env.siteURL+pick(rng, landingQueries)),
		htmlhost.WithReferrer(pick(rng, referrers)),
		htmlhost.WithClock(clock),
		htmlhost.WithNavigator(p.navigator),
		htmlhost.WithViewport(p.viewport),
		htmlhost.WithVitals(randomVitals(rng)),
		htmlhost.WithMedia("(prefers-reduced-motion: reduce)", rng.Float64() < 0.1),
		htmlhost.WithMedia("(prefers-color-scheme: dark)", rng.Float64() < 0.4),
		htmlhost.WithSessionStorage(session),
		htmlhost.WithLocalStorage(local),
	)

	gate := &consent.Gate{}
	b := bus.New()
	manager := consent.NewManager(local, gate, clock.Now)
	tracker.BridgeConsent(manager, b)
	ident := identity.New(session, local)
	trk := tracker.New(page,
		tracker.WithEndpoint(env.endpoint),
		tracker.WithTransport(env.transport),
		tracker.WithBus(b),
		tracker.WithGate(gate),
		tracker.WithIdentity(ident),
	)
	defer trk.Close()

	phase := manager.Init()
	if !trk.Init(ctx) {
		return res, ErrTrackerInactive
	}
	res.returning = ident.Returning()
	if phase == consent.PhaseModalOpen {
		decide(rng, manager)
	}
	res.consented = gate.Granted()

	s := &script{page: page, doc: doc, clock: clock, rng: rng, bus: b}
	err = s.run(ctx)
	page.Unload()
	return res, err
}

// decide answers the consent banner the way a first-time visitor might.
func decide(rng *rand.Rand, m *consent.Manager) {
	switch r := rng.Float64(); {
	case r < acceptAllRate:
		m.AcceptAll()
	case r < acceptAllRate+rejectRate:
		m.RejectOptional()
	case r < acceptAllRate+rejectRate+customizeRate:
		m.Customize(consent.Categories{Analytics: true})
	}
}

func randomVitals(rng *rand.Rand) browser.Vitals {
	metric := func(lo, hi float64) browser.Metric {
		return browser.Metric{Value: lo + rng.Float64()*(hi-lo), OK: true}
	}
	return browser.Vitals{
		LCP:  metric(900, 5200),
		CLS:  metric(0, 0.4),
		INP:  metric(40, 700),
		FCP:  metric(400, 3500),
		TTFB: metric(50, 2000),
	}
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

// script is the sequence of actions one visitor performs.
type script struct {
	page  *htmlhost.Page
	doc   *htmlhost.Document
	clock *htmlhost.Clock
	rng   *rand.Rand
	bus   *bus.Bus
}

func (s *script) run(ctx context.Context) error {
	s.bus.EmitExperimentExposure(schema.ExperimentExposureDetail{
		ExperimentID: "hero_copy",
		Variant:      pick(s.rng, experimentVariants),
	})
	s.bus.EmitFunnelStep(schema.FunnelStepDetail{Funnel: "tickets", Step: "landing", StepIndex: 0})

	steps := []func(){
		s.scroll,
		s.keyboard,
		s.ctas,
		s.faqs,
		s.media,
		s.links,
		s.form,
		s.tabAway,
		s.route,
		s.checkout,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		step()
		s.think()
	}
	return nil
}

func (s *script) think() {
	span := int64(maxThink - minThink)
	s.clock.Advance(minThink + time.Duration(s.rng.Int64N(span)))
}

func (s *script) chance(p float64) bool { return s.rng.Float64() < p }

func (s *script) click(selector string) bool {
	el := s.doc.First(selector)
	if el == nil {
		return false
	}
	s.page.Click(el)
	return true
}

// scroll reads down to a random depth, bringing each section into view.
func (s *script) scroll() {
	sections := s.doc.Query(selectorSections)
	if len(sections) == 0 {
		return
	}
	vp := s.page.Viewport()
	maxY := vp.DocumentHeight - vp.Height
	depth := 1 + s.rng.IntN(len(sections))
	for i := 0; i < depth; i++ {
		if i > 0 {
			s.page.SetIntersection(sections[i-1], 0)
		}
		s.page.SetIntersection(sections[i], 0.6+0.4*s.rng.Float64())
		if maxY > 0 {
			s.page.ScrollTo(maxY * float64(i+1) / float64(len(sections)))
		}
		s.think()
	}
}

func (s *script) keyboard() {
	if !s.chance(0.15) {
		return
	}
	if el := s.doc.First(selectorLinks); el != nil {
		s.page.Dispatch(browser.Event{Kind: browser.KeyDown, Key: "Tab", Target: el})
	}
}

func (s *script) ctas() {
	ctas := s.doc.Query(selectorCTA)
	if len(ctas) == 0 || !s.chance(ctaRate) {
		return
	}
	el := pick(s.rng, ctas)
	s.page.Click(el)
	if s.chance(rageRate) {
		s.page.Click(el)
		s.page.Click(el)
	}
}

func (s *script) faqs() {
	for _, q := range s.doc.Query(selectorFAQ) {
		if s.chance(faqRate) {
			s.page.Click(q)
			s.think()
		}
	}
}

func (s *script) media() {
	if !s.chance(0.2) {
		return
	}
	if el := s.doc.First(selectorMedia); el != nil {
		s.page.Dispatch(browser.Event{Kind: browser.Play, Target: el})
	}
}

// links follows the page's secondary affordances: share, outbound,
// download, copy, print and a dead click on plain text.
func (s *script) links() {
	if s.chance(shareRate) {
		s.click(selectorShare)
	}
	if s.chance(outboundRate) {
		s.click(`a[href^="http"]`)
	}
	if s.chance(0.1) {
		s.click(`a[href$=".pdf"]`)
	}
	if s.chance(0.1) {
		if el := s.doc.First(selectorText); el != nil {
			s.page.Dispatch(browser.Event{Kind: browser.Copy, Target: el, TextLength: 10 + s.rng.IntN(200)})
		}
	}
	if s.chance(0.05) {
		s.click(selectorText)
	}
	if s.chance(0.03) {
		s.page.Dispatch(browser.Event{Kind: browser.BeforePrint})
	}
	if s.chance(0.05) {
		s.click(selectorLocale)
	}
}

func (s *script) form() {
	if !s.chance(formRate) {
		return
	}
	for _, field := range s.doc.Query(selectorFields) {
		s.page.Dispatch(browser.Event{Kind: browser.FocusIn, Target: field})
		s.think()
	}
	if !s.chance(submitRate) {
		return
	}
	if f := s.doc.First(selectorForm); f != nil {
		s.page.Dispatch(browser.Event{Kind: browser.Submit, Target: f})
		s.bus.EmitDemographics(schema.DemographicsDetail{
			Role:           "student",
			Region:         "domestic",
			AttendanceType: "in_person",
		})
	}
}

func (s *script) tabAway() {
	if !s.chance(tabAwayRate) {
		return
	}
	s.page.SetHidden(true)
	s.clock.Advance(time.Duration(5+s.rng.IntN(60)) * time.Second)
	s.page.SetHidden(false)
}

func (s *script) route() {
	if !s.chance(routeRate) {
		return
	}
	s.page.PushState("/schedule")
	s.think()
	if s.chance(0.3) {
		s.page.PopState("/")
	}
}

func (s *script) checkout() {
	if !s.chance(checkoutRate) {
		return
	}
	s.bus.EmitFunnelStep(schema.FunnelStepDetail{Funnel: "tickets", Step: "select_ticket", StepIndex: 1})
	s.think()
	s.bus.EmitFunnelStep(schema.FunnelStepDetail{Funnel: "tickets", Step: schema.TerminalFunnelStep, StepIndex: 2})
}
