// Package browser defines the narrow view of a page that the tracking engine
// and the signal collectors read from. Adapters implement it over a real DOM
// (syscall/js) or over a parsed HTML document.
package browser

import "time"

// EventKind names a DOM or window event the engine listens to.
type EventKind string

// Listened event kinds.
const (
	Click             EventKind = "click"
	MouseOut          EventKind = "mouseout"
	KeyDown           EventKind = "keydown"
	Scroll            EventKind = "scroll"
	Resize            EventKind = "resize"
	VisibilityChange  EventKind = "visibilitychange"
	PageHide          EventKind = "pagehide"
	BeforeUnload      EventKind = "beforeunload"
	Error             EventKind = "error"
	Rejection         EventKind = "unhandledrejection"
	Online            EventKind = "online"
	Offline           EventKind = "offline"
	ConnectionChange  EventKind = "connectionchange"
	FocusIn           EventKind = "focusin"
	Submit            EventKind = "submit"
	Copy              EventKind = "copy"
	BeforePrint       EventKind = "beforeprint"
	OrientationChange EventKind = "orientationchange"
	Play              EventKind = "play"
	LanguageChange    EventKind = "languagechange"
)

// Element is a DOM element. Implementations return a nil interface, never a
// typed nil, when Closest or Parent find nothing.
type Element interface {
	TagName() string
	Attr(name string) (string, bool)
	Closest(selector string) Element
	Parent() Element
}

// Event is the subset of a dispatched DOM event the engine needs.
type Event struct {
	Kind          EventKind
	Target        Element
	RelatedTarget Element
	ClientX       float64
	ClientY       float64
	Key           string
	// Message and Source describe script errors. They are classified, never
	// forwarded.
	Message string
	Source  string
	// TextLength is the length of the copied selection.
	TextLength int
	// Locale carries the new locale for LanguageChange.
	Locale string
}

// Location is the current document URL.
type Location struct {
	Href     string
	Host     string
	Pathname string
	Search   string
}

// Viewport describes the visual viewport and scroll position.
type Viewport struct {
	Width          float64
	Height         float64
	ScrollY        float64
	DocumentHeight float64
}

// Connection mirrors navigator.connection. Present is false when the API is
// unavailable.
type Connection struct {
	Present       bool
	EffectiveType string
	SaveData      bool
}

// Navigator holds user agent facts. Values are only read through collectors
// that bucket them.
type Navigator struct {
	UserAgent           string
	Language            string
	HardwareConcurrency int
	DeviceMemory        float64
	MaxTouchPoints      int
	Online              bool
	Connection          Connection
}

// Metric is a single measurement that may be unavailable.
type Metric struct {
	Value float64
	OK    bool
}

// Vitals is a Web Vitals snapshot.
type Vitals struct {
	LCP  Metric
	CLS  Metric
	INP  Metric
	FCP  Metric
	TTFB Metric
}

// IntersectionEntry reports a visibility change of an observed element.
type IntersectionEntry struct {
	Target       Element
	Intersecting bool
	Ratio        float64
}

// Storage is a string key-value store with web storage semantics. Errors mean
// the storage is blocked or unavailable.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Host is the page the engine runs in.
type Host interface {
	Now() time.Time
	Location() Location
	Referrer() string
	Viewport() Viewport
	Navigator() Navigator
	Hidden() bool
	NavigationType() string
	Vitals() Vitals
	MatchMedia(query string) bool
	SessionStorage() Storage
	LocalStorage() Storage
	// AddEventListener registers fn for kind. Callbacks run to completion
	// one at a time.
	AddEventListener(kind EventKind, fn func(Event))
	// ObserveIntersection reports visibility changes of every element that
	// matches selector once its visible ratio crosses threshold.
	ObserveIntersection(selector string, threshold float64, fn func(IntersectionEntry))
	// OnHistoryChange calls fn after pushState, replaceState and popstate.
	OnHistoryChange(fn func())
}
