package htmlhost

import (
	"net/url"
	"sync"
	"time"

	"github.com/okian/convtrack/internal/adapters/storage"
	"github.com/okian/convtrack/internal/domain/browser"
)

type observer struct {
	selector  string
	threshold float64
	fn        func(browser.IntersectionEntry)
}

// Page is a browser.Host over a Document. Dispatch methods invoke listeners
// synchronously on the calling goroutine, one event at a time.
type Page struct {
	doc   *Document
	clock *Clock

	mu        sync.Mutex
	url       *url.URL
	referrer  string
	viewport  browser.Viewport
	navigator browser.Navigator
	hidden    bool
	navType   string
	vitals    browser.Vitals
	media     map[string]bool
	session   browser.Storage
	local     browser.Storage
	listeners map[browser.EventKind][]func(browser.Event)
	observers []observer
	history   []func()

	dispatchMu sync.Mutex
}

var _ browser.Host = (*Page)(nil)

// Option configures a Page.
type Option func(*Page)

// WithURL sets the document URL.
func WithURL(href string) Option {
	return func(p *Page) {
		if u, err := url.Parse(href); err == nil {
			p.url = u
		}
	}
}

// WithReferrer sets document.referrer.
func WithReferrer(ref string) Option { return func(p *Page) { p.referrer = ref } }

// WithClock sets the clock used by Now.
func WithClock(c *Clock) Option {
	return func(p *Page) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithViewport sets the viewport and scroll geometry.
func WithViewport(vp browser.Viewport) Option { return func(p *Page) { p.viewport = vp } }

// WithNavigator sets navigator facts.
func WithNavigator(n browser.Navigator) Option { return func(p *Page) { p.navigator = n } }

// WithVitals sets the Web Vitals snapshot.
func WithVitals(v browser.Vitals) Option { return func(p *Page) { p.vitals = v } }

// WithNavigationType sets the navigation timing type.
func WithNavigationType(t string) Option { return func(p *Page) { p.navType = t } }

// WithMedia sets the result of a media query.
func WithMedia(query string, matches bool) Option {
	return func(p *Page) { p.media[query] = matches }
}

// WithSessionStorage sets the session-scoped storage.
func WithSessionStorage(s browser.Storage) Option {
	return func(p *Page) {
		if s != nil {
			p.session = s
		}
	}
}

// WithLocalStorage sets the persistent storage.
func WithLocalStorage(s browser.Storage) Option {
	return func(p *Page) {
		if s != nil {
			p.local = s
		}
	}
}

// NewPage returns a visible page at https://localhost/ with a desktop
// viewport and in-memory storages unless configured otherwise.
func NewPage(doc *Document, opts ...Option) *Page {
	u, _ := url.Parse("https://localhost/")
	p := &Page{
		doc:      doc,
		clock:    NewClock(time.Unix(1_700_000_000, 0)),
		url:      u,
		viewport: browser.Viewport{Width: 1280, Height: 800, DocumentHeight: 3200},
		navigator: browser.Navigator{
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
			Language:            "en-US",
			HardwareConcurrency: 8,
			DeviceMemory:        8,
			Online:              true,
		},
		navType:   "navigate",
		media:     make(map[string]bool),
		session:   storage.NewMemory(),
		local:     storage.NewMemory(),
		listeners: make(map[browser.EventKind][]func(browser.Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Document returns the page document.
func (p *Page) Document() *Document { return p.doc }

// Clock returns the page clock.
func (p *Page) Clock() *Clock { return p.clock }

func (p *Page) Now() time.Time { return p.clock.Now() }

func (p *Page) Location() browser.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	path := p.url.EscapedPath()
	if path == "" {
		path = "/"
	}
	search := ""
	if p.url.RawQuery != "" {
		search = "?" + p.url.RawQuery
	}
	return browser.Location{Href: p.url.String(), Host: p.url.Host, Pathname: path, Search: search}
}

func (p *Page) Referrer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.referrer
}

func (p *Page) Viewport() browser.Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

func (p *Page) Navigator() browser.Navigator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigator
}

func (p *Page) Hidden() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hidden
}

func (p *Page) NavigationType() string { return p.navType }

func (p *Page) Vitals() browser.Vitals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vitals
}

func (p *Page) MatchMedia(query string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.media[query]
}

func (p *Page) SessionStorage() browser.Storage { return p.session }
func (p *Page) LocalStorage() browser.Storage   { return p.local }

func (p *Page) AddEventListener(kind browser.EventKind, fn func(browser.Event)) {
	p.mu.Lock()
	p.listeners[kind] = append(p.listeners[kind], fn)
	p.mu.Unlock()
}

func (p *Page) ObserveIntersection(selector string, threshold float64, fn func(browser.IntersectionEntry)) {
	p.mu.Lock()
	p.observers = append(p.observers, observer{selector: selector, threshold: threshold, fn: fn})
	p.mu.Unlock()
}

func (p *Page) OnHistoryChange(fn func()) {
	p.mu.Lock()
	p.history = append(p.history, fn)
	p.mu.Unlock()
}

// Listeners returns how many listeners are registered for kind.
func (p *Page) Listeners(kind browser.EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners[kind])
}

// Dispatch delivers ev to every listener of its kind in registration order.
func (p *Page) Dispatch(ev browser.Event) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	p.mu.Lock()
	fns := append([]func(browser.Event){}, p.listeners[ev.Kind]...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Click dispatches a click on el.
func (p *Page) Click(el browser.Element) {
	p.Dispatch(browser.Event{Kind: browser.Click, Target: el})
}

// ScrollTo sets the vertical scroll offset and dispatches scroll.
func (p *Page) ScrollTo(y float64) {
	p.mu.Lock()
	p.viewport.ScrollY = y
	p.mu.Unlock()
	p.Dispatch(browser.Event{Kind: browser.Scroll})
}

// Resize changes the viewport size and dispatches resize.
func (p *Page) Resize(width, height float64) {
	p.mu.Lock()
	p.viewport.Width, p.viewport.Height = width, height
	p.mu.Unlock()
	p.Dispatch(browser.Event{Kind: browser.Resize})
}

// SetHidden changes document visibility and dispatches visibilitychange.
func (p *Page) SetHidden(hidden bool) {
	p.mu.Lock()
	p.hidden = hidden
	p.mu.Unlock()
	p.Dispatch(browser.Event{Kind: browser.VisibilityChange})
}

// SetOnline toggles connectivity and dispatches online or offline.
func (p *Page) SetOnline(online bool) {
	p.mu.Lock()
	p.navigator.Online = online
	p.mu.Unlock()
	kind := browser.Offline
	if online {
		kind = browser.Online
	}
	p.Dispatch(browser.Event{Kind: kind})
}

// SetVitals replaces the Web Vitals snapshot.
func (p *Page) SetVitals(v browser.Vitals) {
	p.mu.Lock()
	p.vitals = v
	p.mu.Unlock()
}

// PushState navigates to ref relative to the current URL and notifies
// history hooks. ReplaceState and PopState behave the same way here.
func (p *Page) PushState(ref string) { p.navigate(ref) }

// ReplaceState replaces the current URL and notifies history hooks.
func (p *Page) ReplaceState(ref string) { p.navigate(ref) }

// PopState simulates back/forward navigation to ref.
func (p *Page) PopState(ref string) { p.navigate(ref) }

func (p *Page) navigate(ref string) {
	p.mu.Lock()
	if r, err := url.Parse(ref); err == nil {
		p.url = p.url.ResolveReference(r)
	}
	hooks := append([]func(){}, p.history...)
	p.mu.Unlock()

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// SetIntersection reports el at the given visible ratio to every observer
// whose selector matches it.
func (p *Page) SetIntersection(el *Element, ratio float64) {
	if el == nil {
		return
	}
	p.mu.Lock()
	obs := append([]observer{}, p.observers...)
	p.mu.Unlock()

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	for _, o := range obs {
		if !el.Matches(o.selector) {
			continue
		}
		o.fn(browser.IntersectionEntry{Target: el, Intersecting: ratio >= o.threshold && ratio > 0, Ratio: ratio})
	}
}

// Unload dispatches beforeunload followed by pagehide.
func (p *Page) Unload() {
	p.Dispatch(browser.Event{Kind: browser.BeforeUnload})
	p.Dispatch(browser.Event{Kind: browser.PageHide})
}
