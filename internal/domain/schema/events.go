// Package schema declares every analytics event name, the data fields each
// event may carry, and the validated payload shapes accepted from outside
// the tracker (custom events, forms).
package schema

// EventName identifies an analytics event.
type EventName string

// Event names.
const (
	EventPageView                EventName = "page_view"
	EventSessionStart            EventName = "session_start"
	EventSessionEnd              EventName = "session_end"
	EventClick                   EventName = "click"
	EventCTAClick                EventName = "cta_click"
	EventOutboundClick           EventName = "outbound_click"
	EventDownloadClick           EventName = "download_click"
	EventShareClick              EventName = "share_click"
	EventRageClick               EventName = "rage_click"
	EventDeadClick               EventName = "dead_click"
	EventScrollDepth             EventName = "scroll_depth"
	EventSectionView             EventName = "section_view"
	EventCTAImpression           EventName = "cta_impression"
	EventDwellTimePerSection     EventName = "dwell_time_per_section"
	EventFirstInteractionLatency EventName = "first_interaction_latency"
	EventReturnIntent            EventName = "return_intent"
	EventEngagementScoreBucket   EventName = "engagement_score_bucket"
	EventErrorRecovery           EventName = "error_recovery"
	EventJSError                 EventName = "js_error"
	EventWebVitals               EventName = "web_vitals"
	EventDevicePerformanceClass  EventName = "device_performance_class"
	EventReferralCampaignBucket  EventName = "referral_campaign_bucket"
	EventNetworkChange           EventName = "network_change"
	EventVisibilityChange        EventName = "visibility_change"
	EventTabReturn               EventName = "tab_return"
	EventFormStart               EventName = "form_start"
	EventFormSubmit              EventName = "form_submit"
	EventFormAbandon             EventName = "form_abandon"
	EventCopyText                EventName = "copy_text"
	EventFAQToggle               EventName = "faq_toggle"
	EventLanguageSwitch          EventName = "language_switch"
	EventAccessibilityMode       EventName = "accessibility_mode"
	EventKeyboardNavigation      EventName = "keyboard_navigation"
	EventPrintPage               EventName = "print_page"
	EventOrientationChange       EventName = "orientation_change"
	EventMediaPlay               EventName = "media_play"
	EventDemographicsSubmitted   EventName = "demographics_submitted"
	EventContentInteraction      EventName = "content_interaction"
	EventFunnelStep              EventName = "funnel_step"
	EventExperimentExposure      EventName = "experiment_exposure"
	EventConsentPreference       EventName = "consent_preference"
	EventTutorialStepSelected    EventName = "tutorial_step_selected"
	EventTutorialStepToggled     EventName = "tutorial_step_toggled"
	EventTutorialProgressBucket  EventName = "tutorial_progress_bucket"
)

// Base data keys attached to every event by the tracker.
const (
	KeySessionID   = "sessionId"
	KeyAnonymousID = "anonymousId"
)

// BaseKeys are the identity fields every event carries regardless of the allowlist.
var BaseKeys = []string{KeySessionID, KeyAnonymousID}

// TerminalFunnelStep is the funnel step that marks a completed conversion.
const TerminalFunnelStep = "complete_checkout"

type fieldSet map[string]struct{}

func fields(names ...string) fieldSet {
	s := make(fieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// allowlist maps every event to the data fields it may carry. It is the only
// privacy boundary for payload shape: the sanitizer never emits a key that is
// absent here.
var allowlist = map[EventName]fieldSet{
	EventPageView:                fields("pageViewIndex", "referrerBucket", "navigationType", "deviceType", "browserFamily", "osFamily"),
	EventSessionStart:            fields("deviceType", "browserFamily", "osFamily", "isReturning", "languageBucket"),
	EventSessionEnd:              fields("durationBucket", "pagesPerSessionBucket", "activeTimeBucket", "navPathCluster", "maxScrollDepth"),
	EventClick:                   fields("elementType", "sectionId", "trackId", "trackLabel", "position"),
	EventCTAClick:                fields("ctaId", "sectionId", "elementType"),
	EventOutboundClick:           fields("destinationBucket", "sectionId"),
	EventDownloadClick:           fields("fileType", "sectionId"),
	EventShareClick:              fields("network", "sectionId"),
	EventRageClick:               fields("clickCount", "sectionId", "elementType"),
	EventDeadClick:               fields("sectionId", "elementType"),
	EventScrollDepth:             fields("depth"),
	EventSectionView:             fields("sectionId", "order"),
	EventCTAImpression:           fields("ctaId", "sectionId"),
	EventDwellTimePerSection:     fields("sectionId", "dwellBucket"),
	EventFirstInteractionLatency: fields("latencyBucket", "interactionType"),
	EventReturnIntent:            fields("sectionId", "timeOnPageBucket"),
	EventEngagementScoreBucket:   fields("engagementBucket", "score"),
	EventErrorRecovery:           fields("status"),
	EventJSError:                 fields("errorKind", "sourceBucket"),
	EventWebVitals:               fields("lcpBucket", "clsBucket", "inpBucket", "fcpBucket", "ttfbBucket"),
	EventDevicePerformanceClass:  fields("performanceClass", "cpuBucket", "memoryBucket"),
	EventReferralCampaignBucket:  fields("referrerBucket", "campaignBucket", "hasUtm"),
	EventNetworkChange:           fields("online", "effectiveType", "saveData"),
	EventVisibilityChange:        fields("state"),
	EventTabReturn:               fields("awayBucket"),
	EventFormStart:               fields("formId"),
	EventFormSubmit:              fields("formId", "fieldCountBucket", "durationBucket"),
	EventFormAbandon:             fields("formId", "fieldsTouchedBucket"),
	EventCopyText:                fields("sectionId", "lengthBucket"),
	EventFAQToggle:               fields("faqId", "action"),
	EventLanguageSwitch:          fields("fromLocale", "toLocale"),
	EventAccessibilityMode:       fields("mode"),
	EventKeyboardNavigation:      fields("sectionId"),
	EventPrintPage:               fields(),
	EventOrientationChange:       fields("orientation"),
	EventMediaPlay:               fields("mediaId", "sectionId"),
	EventDemographicsSubmitted:   fields("ageBucket", "role", "region", "attendanceType", "firstTime"),
	EventContentInteraction:      fields("contentId", "action", "sectionId"),
	EventFunnelStep:              fields("funnel", "step", "stepIndex"),
	EventExperimentExposure:      fields("experimentId", "variant"),
	EventConsentPreference:       fields("source", "analytics", "marketing"),
	EventTutorialStepSelected:    fields("stepId", "stepIndex"),
	EventTutorialStepToggled:     fields("stepId", "expanded"),
	EventTutorialProgressBucket:  fields("progressBucket", "completedSteps"),
}

// analyticsOnly are behavioral events recorded only after opt-in.
var analyticsOnly = map[EventName]struct{}{
	EventClick: {}, EventCTAClick: {}, EventOutboundClick: {}, EventDownloadClick: {},
	EventShareClick: {}, EventRageClick: {}, EventDeadClick: {}, EventScrollDepth: {},
	EventSectionView: {}, EventCTAImpression: {}, EventDwellTimePerSection: {},
	EventFirstInteractionLatency: {}, EventReturnIntent: {}, EventEngagementScoreBucket: {},
	EventTabReturn: {}, EventFormStart: {}, EventFormSubmit: {}, EventFormAbandon: {},
	EventCopyText: {}, EventFAQToggle: {}, EventLanguageSwitch: {}, EventKeyboardNavigation: {},
	EventMediaPlay: {}, EventDemographicsSubmitted: {}, EventContentInteraction: {},
	EventFunnelStep: {}, EventExperimentExposure: {}, EventTutorialStepSelected: {},
	EventTutorialStepToggled: {}, EventTutorialProgressBucket: {},
}

// Known reports whether name is a declared event.
func Known(name EventName) bool {
	_, ok := allowlist[name]
	return ok
}

// Allowed reports whether field may appear in the data of event name.
func Allowed(name EventName, field string) bool {
	set, ok := allowlist[name]
	if !ok {
		return false
	}
	_, ok = set[field]
	return ok
}

// AllowedFields returns the allowlisted fields of name in no particular order.
func AllowedFields(name EventName) []string {
	set := allowlist[name]
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	return out
}

// IsAnalyticsOnly reports whether name is gated behind analytics consent.
func IsAnalyticsOnly(name EventName) bool {
	_, ok := analyticsOnly[name]
	return ok
}

// Names returns every declared event name.
func Names() []EventName {
	out := make([]EventName, 0, len(allowlist))
	for n := range allowlist {
		out = append(out, n)
	}
	return out
}
