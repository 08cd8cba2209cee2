package tracker

import (
	"context"
	"strings"

	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/internal/domain/privacy"
	"github.com/okian/convtrack/internal/domain/schema"
	"github.com/okian/convtrack/internal/domain/signals"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

const (
	visibilityThreshold = 0.5
	returnIntentEdge    = 24
	localeSwitchAttr    = "data-locale-switch"
)

// attach wires page listeners, observers, the history hook and the bus
// subscriptions. Caller holds mu.
func (t *Tracker) attach() {
	h := t.host

	t.on(browser.Click, t.onClick)
	t.on(browser.MouseOut, t.onMouseOut)
	t.on(browser.KeyDown, t.onKeyDown)
	t.on(browser.Scroll, func(browser.Event) { t.onScroll() })
	t.on(browser.Resize, func(browser.Event) { t.onOrientation() })
	t.on(browser.OrientationChange, func(browser.Event) { t.onOrientation() })
	t.on(browser.VisibilityChange, func(browser.Event) { t.onVisibility() })
	t.on(browser.PageHide, func(browser.Event) { t.Flush(true) })
	t.on(browser.BeforeUnload, func(browser.Event) {
		t.endSession()
		t.Flush(true)
	})
	t.on(browser.Error, t.onError)
	t.on(browser.Rejection, t.onError)
	t.on(browser.Online, func(browser.Event) { t.onNetwork() })
	t.on(browser.Offline, func(browser.Event) { t.onNetwork() })
	t.on(browser.ConnectionChange, func(browser.Event) { t.onNetwork() })
	t.on(browser.FocusIn, t.onFocusIn)
	t.on(browser.Submit, t.onSubmit)
	t.on(browser.Copy, t.onCopy)
	t.on(browser.BeforePrint, func(browser.Event) { t.track(schema.EventPrintPage, nil) })
	t.on(browser.Play, t.onPlay)
	t.on(browser.LanguageChange, func(ev browser.Event) { t.switchLocale(ev.Locale) })

	h.ObserveIntersection(signals.SelectorSection, visibilityThreshold, t.observe(t.onSectionEntry))
	h.ObserveIntersection(signals.SelectorCTA, visibilityThreshold, t.observe(t.onCTAEntry))
	h.OnHistoryChange(t.onHistory)

	t.unsubscribe = append(t.unsubscribe, t.bus.Subscribe(schema.ChannelNavigation, t.onNavigation))
	for _, ch := range schema.PayloadChannels() {
		t.unsubscribe = append(t.unsubscribe, t.bus.Subscribe(ch, t.onPayload(ch)))
	}
}

// on registers fn for kind. The callback runs with mu held and a panic in it
// is logged and swallowed so the page keeps working.
func (t *Tracker) on(kind browser.EventKind, fn func(browser.Event)) {
	t.host.AddEventListener(kind, func(ev browser.Event) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		defer t.recoverListener(string(kind))
		fn(ev)
	})
}

func (t *Tracker) observe(fn func(browser.IntersectionEntry)) func(browser.IntersectionEntry) {
	return func(e browser.IntersectionEntry) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		defer t.recoverListener("intersection")
		fn(e)
	}
}

func (t *Tracker) recoverListener(source string) {
	if r := recover(); r != nil {
		t.log.Warn(context.Background(), "listener panicked",
			logger.String("source", source), logger.Any("panic", r))
	}
}

// put sets key only when ok, so unreadable signals are omitted.
func put(m map[string]any, key, value string, ok bool) {
	if ok && value != "" {
		m[key] = value
	}
}

func withSection(m map[string]any, target browser.Element) map[string]any {
	id, ok := signals.SectionID(target)
	put(m, "sectionId", id, ok)
	return m
}

func (t *Tracker) onClick(ev browser.Event) {
	st := t.state
	now := t.host.Now()
	target := ev.Target
	elementType := signals.ElementType(target)

	if !st.firstInteraction {
		st.firstInteraction = true
		t.track(schema.EventFirstInteractionLatency, map[string]any{
			"latencyBucket":   signals.LatencyBucket(now.Sub(st.sessionStart)),
			"interactionType": "click",
		})
	}
	st.totalClicks++

	if n := st.recordClick(now); n >= rageClickThreshold {
		t.track(schema.EventRageClick, withSection(map[string]any{
			"clickCount":  n,
			"elementType": elementType,
		}, target))
	}

	if data, ok := signals.DatasetSignals(target); ok {
		data["elementType"] = elementType
		t.track(schema.EventClick, withSection(data, target))
	} else if signals.Interactive(target) {
		t.track(schema.EventClick, withSection(map[string]any{"elementType": elementType}, target))
	} else {
		t.track(schema.EventDeadClick, withSection(map[string]any{"elementType": elementType}, target))
	}

	if cta, ok := signals.CTAID(target); ok {
		t.track(schema.EventCTAClick, withSection(map[string]any{
			"ctaId":       cta,
			"elementType": elementType,
		}, target))
	}

	if href, ok := signals.LinkHref(target); ok {
		if fileType, ok := signals.DownloadFileType(href); ok {
			t.track(schema.EventDownloadClick, withSection(map[string]any{"fileType": fileType}, target))
		} else if signals.IsOutbound(href, t.host.Location().Host) {
			t.track(schema.EventOutboundClick, withSection(map[string]any{
				"destinationBucket": signals.DestinationBucket(href),
			}, target))
		}
	}

	if network, ok := signals.ShareNetwork(target); ok {
		t.track(schema.EventShareClick, withSection(map[string]any{"network": network}, target))
	}

	if faqID, action, ok := signals.FAQAction(target); ok {
		t.track(schema.EventFAQToggle, map[string]any{"faqId": faqID, "action": action})
	}

	if target != nil {
		if el := target.Closest("[" + localeSwitchAttr + "]"); el != nil {
			if to, ok := el.Attr(localeSwitchAttr); ok {
				t.switchLocale(to)
			}
		}
	}
}

// switchLocale records a language change and makes to the locale of every
// later event.
func (t *Tracker) switchLocale(to string) {
	st := t.state
	to = strings.TrimSpace(to)
	if to == "" || strings.EqualFold(to, st.locale) {
		return
	}
	if _, ok := privacy.SanitizeKey(to); !ok {
		return
	}
	from := st.locale
	st.locale = to
	t.track(schema.EventLanguageSwitch, map[string]any{
		"fromLocale": signals.LanguageBucket(from),
		"toLocale":   signals.LanguageBucket(to),
	})
}

func (t *Tracker) onMouseOut(ev browser.Event) {
	st := t.state
	if st.returnIntent || ev.RelatedTarget != nil || ev.ClientY > returnIntentEdge {
		return
	}
	st.returnIntent = true
	data := map[string]any{
		"timeOnPageBucket": signals.DurationBucket(t.host.Now().Sub(st.sessionStart)),
	}
	put(data, "sectionId", st.activeSection, true)
	t.track(schema.EventReturnIntent, data)
}

func (t *Tracker) onKeyDown(ev browser.Event) {
	st := t.state
	if st.keyboardNav || ev.Key != "Tab" {
		return
	}
	st.keyboardNav = true
	t.track(schema.EventKeyboardNavigation, withSection(map[string]any{}, ev.Target))
}

func (t *Tracker) onScroll() {
	st := t.state
	vp := t.host.Viewport()
	depth := signals.ScrollDepthPercent(vp.ScrollY, vp.Height, vp.DocumentHeight)
	if depth > st.maxScrollDepth {
		st.maxScrollDepth = depth
	}
	for _, m := range signals.ScrollMilestones {
		if m > depth {
			break
		}
		if _, fired := st.milestones[m]; fired {
			continue
		}
		st.milestones[m] = struct{}{}
		t.track(schema.EventScrollDepth, map[string]any{"depth": m})
	}
}

func (t *Tracker) onOrientation() {
	st := t.state
	vp := t.host.Viewport()
	o := signals.Orientation(vp.Width, vp.Height)
	if o == signals.Unknown || o == st.orientation {
		return
	}
	previous := st.orientation
	st.orientation = o
	if previous == "" || previous == signals.Unknown {
		return
	}
	t.track(schema.EventOrientationChange, map[string]any{"orientation": o})
}

func (t *Tracker) onVisibility() {
	st := t.state
	now := t.host.Now()
	if t.host.Hidden() {
		if !st.visible {
			return
		}
		st.hide(now)
		t.track(schema.EventVisibilityChange, map[string]any{"state": "hidden"})
		t.Flush(true)
		return
	}
	away, changed := st.show(now)
	if !changed {
		return
	}
	t.track(schema.EventVisibilityChange, map[string]any{"state": "visible"})
	t.track(schema.EventTabReturn, map[string]any{"awayBucket": signals.AwayBucket(away)})
}

func (t *Tracker) onError(ev browser.Event) {
	t.state.errorOccurred = true
	t.track(schema.EventJSError, map[string]any{
		"errorKind":    signals.ErrorKind(ev.Message),
		"sourceBucket": signals.SourceBucket(ev.Source, t.host.Location().Host),
	})
}

func (t *Tracker) onNetwork() {
	t.track(schema.EventNetworkChange, signals.NetworkSnapshot(t.host.Navigator()))
}

func isFormField(el browser.Element) bool {
	if el == nil {
		return false
	}
	switch strings.ToLower(el.TagName()) {
	case "input", "select", "textarea":
		return true
	}
	return false
}

func fieldKey(el browser.Element) string {
	for _, attr := range []string{"name", "id"} {
		if v, ok := el.Attr(attr); ok && v != "" {
			return v
		}
	}
	return strings.ToLower(el.TagName())
}

func (t *Tracker) onFocusIn(ev browser.Event) {
	if !isFormField(ev.Target) {
		return
	}
	formID, ok := signals.FormID(ev.Target)
	if !ok {
		return
	}
	_, started := t.state.forms[formID]
	f := t.state.form(formID)
	f.fields[fieldKey(ev.Target)] = struct{}{}
	if started {
		return
	}
	f.startedAt = t.host.Now()
	t.track(schema.EventFormStart, map[string]any{"formId": formID})
}

func (t *Tracker) onSubmit(ev browser.Event) {
	formID, ok := signals.FormID(ev.Target)
	if !ok {
		return
	}
	f := t.state.form(formID)
	if f.submitted {
		return
	}
	f.submitted = true
	data := map[string]any{
		"formId":           formID,
		"fieldCountBucket": signals.FieldCountBucket(len(f.fields)),
	}
	if !f.startedAt.IsZero() {
		data["durationBucket"] = signals.DurationBucket(t.host.Now().Sub(f.startedAt))
	}
	t.track(schema.EventFormSubmit, data)
}

func (t *Tracker) onCopy(ev browser.Event) {
	if ev.TextLength <= 0 {
		return
	}
	t.track(schema.EventCopyText, withSection(map[string]any{
		"lengthBucket": signals.LengthBucket(ev.TextLength),
	}, ev.Target))
}

func (t *Tracker) onPlay(ev browser.Event) {
	data := map[string]any{}
	id, ok := signals.MediaID(ev.Target)
	put(data, "mediaId", id, ok)
	t.track(schema.EventMediaPlay, withSection(data, ev.Target))
}

func (t *Tracker) onSectionEntry(e browser.IntersectionEntry) {
	st := t.state
	id, ok := signals.SectionIDOf(e.Target)
	if !ok {
		return
	}
	now := t.host.Now()
	if !e.Intersecting {
		if id == st.activeSection {
			st.updateActiveSection("", now)
		}
		return
	}
	if id != st.activeSection {
		st.updateActiveSection(id, now)
	}
	if _, seen := st.sectionsSeen[id]; seen {
		return
	}
	st.sectionsSeen[id] = len(st.sectionsSeen) + 1
	t.track(schema.EventSectionView, map[string]any{"sectionId": id, "order": st.sectionsSeen[id]})
}

func (t *Tracker) onCTAEntry(e browser.IntersectionEntry) {
	if !e.Intersecting {
		return
	}
	id, ok := signals.CTAID(e.Target)
	if !ok {
		return
	}
	if _, seen := t.state.ctaSeen[id]; seen {
		return
	}
	t.state.ctaSeen[id] = struct{}{}
	t.track(schema.EventCTAImpression, withSection(map[string]any{"ctaId": id}, e.Target))
}

func (t *Tracker) trackAccessibilityModes() {
	for _, mode := range signals.AccessibilityModes(t.host.MatchMedia) {
		t.track(schema.EventAccessibilityMode, map[string]any{"mode": mode})
	}
}

// onHistory announces a navigation only when the sanitized path changed, so
// no-op history calls do not produce page views.
func (t *Tracker) onHistory() {
	path := privacy.SanitizePath(t.host.Location().Pathname)
	t.mu.Lock()
	changed := !t.closed && path != t.state.currentPath
	t.mu.Unlock()
	if changed {
		t.bus.EmitNavigation(path)
	}
}

func (t *Tracker) onNavigation(detail any) {
	var d schema.NavigationDetail
	if err := schema.Decode(detail, &d); err != nil {
		metrics.RecordPayloadRejected(string(schema.ChannelNavigation))
		return
	}
	path := privacy.SanitizePath(d.Path)

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	if t.closed || path == st.currentPath {
		return
	}
	st.recordPageView(path)
	nav := t.host.Navigator()
	vp := t.host.Viewport()
	t.track(schema.EventPageView, map[string]any{
		"pageViewIndex":  st.pageViews,
		"referrerBucket": "internal",
		"navigationType": "navigate",
		"deviceType":     signals.DeviceType(nav, vp),
		"browserFamily":  signals.BrowserFamily(nav.UserAgent),
		"osFamily":       signals.OSFamily(nav.UserAgent),
	})
}

// onPayload forwards a validated bus payload into track. Malformed details
// are dropped.
func (t *Tracker) onPayload(ch schema.Channel) func(any) {
	return func(detail any) {
		p, err := schema.DecodeChannel(ch, detail)
		if err != nil {
			metrics.RecordPayloadRejected(string(ch))
			t.log.Debug(context.Background(), "payload dropped",
				logger.String("channel", string(ch)), logger.Error(err))
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		t.track(p.Event(), p.Data())

		st := t.state
		if step, ok := p.(schema.FunnelStepDetail); ok && step.Step == schema.TerminalFunnelStep &&
			st.errorOccurred && !st.errorRecovered {
			st.errorRecovered = true
			t.track(schema.EventErrorRecovery, map[string]any{"status": recoveryRecovered})
		}
	}
}
