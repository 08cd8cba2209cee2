package tracker

import (
	"sort"
	"strings"
	"time"

	"github.com/okian/convtrack/internal/domain/privacy"
	"github.com/okian/convtrack/internal/domain/schema"
	"github.com/okian/convtrack/internal/domain/signals"
)

const (
	rageClickWindow    = time.Second
	rageClickThreshold = 3
	maxNavPathEntries  = 5
	navPathSeparator   = ">"
)

// Error recovery statuses.
const (
	recoveryRecovered    = "recovered"
	recoveryNotRecovered = "not_recovered"
)

type formProgress struct {
	startedAt time.Time
	fields    map[string]struct{}
	submitted bool
}

// runtimeState is the mutable state of one page session. Every access holds
// Tracker.mu.
type runtimeState struct {
	sessionStart time.Time
	locale       string
	currentPath  string
	visitedPaths []string
	pageViews    int
	totalClicks  int
	clickTimes   []time.Time

	maxScrollDepth int
	milestones     map[int]struct{}
	orientation    string

	visible      bool
	visibleSince time.Time
	hiddenAt     time.Time
	activeTime   time.Duration

	activeSection      string
	activeSectionSince time.Time
	dwell              map[string]time.Duration
	sectionsSeen       map[string]int
	ctaSeen            map[string]struct{}

	firstInteraction bool
	returnIntent     bool
	keyboardNav      bool

	errorOccurred  bool
	errorRecovered bool

	forms map[string]*formProgress
	ended bool
}

func newRuntimeState(now time.Time, path string, visible bool, locale string) *runtimeState {
	return &runtimeState{
		sessionStart: now,
		locale:       locale,
		currentPath:  path,
		milestones:   make(map[int]struct{}, len(signals.ScrollMilestones)),
		visible:      visible,
		visibleSince: now,
		dwell:        make(map[string]time.Duration),
		sectionsSeen: make(map[string]int),
		ctaSeen:      make(map[string]struct{}),
		forms:        make(map[string]*formProgress),
	}
}

func (s *runtimeState) recordPageView(path string) {
	s.pageViews++
	s.currentPath = path
	if len(s.visitedPaths) >= maxNavPathEntries {
		return
	}
	for _, p := range s.visitedPaths {
		if p == path {
			return
		}
	}
	s.visitedPaths = append(s.visitedPaths, path)
}

// navPathCluster joins the first distinct paths with ">". Paths that would
// push the value past the string limit are left out.
func (s *runtimeState) navPathCluster() string {
	var b strings.Builder
	for _, p := range s.visitedPaths {
		extra := len(p)
		if b.Len() > 0 {
			extra += len(navPathSeparator)
		}
		if b.Len()+extra > privacy.MaxStringLen {
			break
		}
		if b.Len() > 0 {
			b.WriteString(navPathSeparator)
		}
		b.WriteString(p)
	}
	return b.String()
}

// recordClick adds a click to the sliding window and returns how many clicks
// it holds.
func (s *runtimeState) recordClick(now time.Time) int {
	kept := s.clickTimes[:0]
	for _, at := range s.clickTimes {
		if now.Sub(at) < rageClickWindow {
			kept = append(kept, at)
		}
	}
	s.clickTimes = append(kept, now)
	return len(s.clickTimes)
}

// updateActiveSection moves dwell accounting to section, which may be empty.
// Time only accrues while the page is visible.
func (s *runtimeState) updateActiveSection(section string, now time.Time) {
	s.closeDwell(now)
	s.activeSection = section
	s.activeSectionSince = now
}

func (s *runtimeState) closeDwell(now time.Time) {
	if s.activeSection != "" && s.visible && now.After(s.activeSectionSince) {
		s.dwell[s.activeSection] += now.Sub(s.activeSectionSince)
	}
	s.activeSectionSince = now
}

func (s *runtimeState) hide(now time.Time) {
	if !s.visible {
		return
	}
	s.closeDwell(now)
	if now.After(s.visibleSince) {
		s.activeTime += now.Sub(s.visibleSince)
	}
	s.visible = false
	s.hiddenAt = now
}

// show returns how long the page was hidden.
func (s *runtimeState) show(now time.Time) (time.Duration, bool) {
	if s.visible {
		return 0, false
	}
	s.visible = true
	s.visibleSince = now
	s.activeSectionSince = now
	if s.hiddenAt.IsZero() {
		return 0, true
	}
	return now.Sub(s.hiddenAt), true
}

func (s *runtimeState) form(id string) *formProgress {
	f, ok := s.forms[id]
	if !ok {
		f = &formProgress{fields: make(map[string]struct{})}
		s.forms[id] = f
	}
	return f
}

// endSession records the session summary. It runs at most once per page.
func (t *Tracker) endSession() {
	st := t.state
	if st.ended {
		return
	}
	st.ended = true
	now := t.host.Now()

	st.hide(now)
	st.updateActiveSection("", now)

	t.track(schema.EventSessionEnd, map[string]any{
		"durationBucket":        signals.DurationBucket(now.Sub(st.sessionStart)),
		"pagesPerSessionBucket": signals.PagesPerSessionBucket(st.pageViews),
		"activeTimeBucket":      signals.DurationBucket(st.activeTime),
		"navPathCluster":        st.navPathCluster(),
		"maxScrollDepth":        st.maxScrollDepth,
	})

	sections := make([]string, 0, len(st.dwell))
	for id := range st.dwell {
		sections = append(sections, id)
	}
	sort.Strings(sections)
	for _, id := range sections {
		t.track(schema.EventDwellTimePerSection, map[string]any{
			"sectionId":   id,
			"dwellBucket": signals.DwellBucket(st.dwell[id]),
		})
	}

	score := signals.EngagementScore(st.pageViews, st.totalClicks, len(st.sectionsSeen), st.maxScrollDepth)
	t.track(schema.EventEngagementScoreBucket, map[string]any{
		"engagementBucket": signals.EngagementBucket(score),
		"score":            score,
	})

	if st.errorOccurred && !st.errorRecovered {
		t.track(schema.EventErrorRecovery, map[string]any{"status": recoveryNotRecovered})
	}

	ids := make([]string, 0, len(st.forms))
	for id, f := range st.forms {
		if !f.submitted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		t.track(schema.EventFormAbandon, map[string]any{
			"formId":              id,
			"fieldsTouchedBucket": signals.FieldCountBucket(len(st.forms[id].fields)),
		})
	}
}
