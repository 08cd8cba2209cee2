package signals

import (
	"strings"

	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/internal/domain/privacy"
)

// Selectors read by the element collectors.
const (
	SelectorSection = "[data-section-id], section[id]"
	SelectorTrack   = "[data-track-id]"
	SelectorCTA     = "[data-cta-id]"
	SelectorFAQ     = "[data-faq-id]"
	SelectorLink    = "a[href]"
	SelectorForm    = "form"
	SelectorMedia   = "video, audio"
	SelectorShare   = "[data-share-network]"
	SelectorButton  = "button, [role=button]"
)

func closest(target browser.Element, selector string) browser.Element {
	if target == nil {
		return nil
	}
	return target.Closest(selector)
}

func attrToken(el browser.Element, names ...string) (string, bool) {
	if el == nil {
		return "", false
	}
	for _, n := range names {
		if v, ok := el.Attr(n); ok {
			if k, ok := privacy.SanitizeKey(v); ok {
				return k, true
			}
		}
	}
	return "", false
}

// SectionID returns the id of the nearest section ancestor of target.
func SectionID(target browser.Element) (string, bool) {
	return attrToken(closest(target, SelectorSection), "data-section-id", "id")
}

// SectionIDOf returns the id of a section element itself.
func SectionIDOf(section browser.Element) (string, bool) {
	return attrToken(section, "data-section-id", "id")
}

// CTAID returns the call-to-action id of the nearest CTA ancestor.
func CTAID(target browser.Element) (string, bool) {
	return attrToken(closest(target, SelectorCTA), "data-cta-id")
}

// DatasetSignals returns the trackId and trackLabel of the nearest tracked
// element. The label passes the same value checks as event data.
func DatasetSignals(target browser.Element) (map[string]any, bool) {
	el := closest(target, SelectorTrack)
	id, ok := attrToken(el, "data-track-id")
	if !ok {
		return nil, false
	}
	out := map[string]any{"trackId": id}
	if label, ok := el.Attr("data-track-label"); ok {
		label = strings.TrimSpace(label)
		if label != "" && privacy.CheckString("trackLabel", label) == privacy.DropNone {
			out["trackLabel"] = label
		}
	}
	if pos, ok := el.Attr("data-track-position"); ok {
		if k, ok := privacy.SanitizeKey(pos); ok {
			out["position"] = k
		}
	}
	return out, true
}

// FAQAction returns the FAQ id of the nearest FAQ item and whether the click
// expands or collapses it, judged from its state before the toggle.
func FAQAction(target browser.Element) (faqID, action string, ok bool) {
	el := closest(target, SelectorFAQ)
	faqID, ok = attrToken(el, "data-faq-id")
	if !ok {
		return "", "", false
	}
	expanded := false
	if v, has := el.Attr("aria-expanded"); has {
		expanded = v == "true"
	} else if _, has := el.Attr("open"); has {
		expanded = true
	} else if btn := closest(target, "[aria-expanded]"); btn != nil {
		v, _ := btn.Attr("aria-expanded")
		expanded = v == "true"
	}
	if expanded {
		return faqID, "collapse", true
	}
	return faqID, "expand", true
}

// ElementType buckets the clicked element.
func ElementType(target browser.Element) string {
	if target == nil {
		return Unknown
	}
	if closest(target, SelectorLink) != nil {
		return "link"
	}
	if closest(target, SelectorButton) != nil {
		return "button"
	}
	switch strings.ToLower(target.TagName()) {
	case "input", "select", "textarea", "label":
		return "form_control"
	case "img", "svg", "picture", "video":
		return "media"
	case "summary", "details":
		return "disclosure"
	default:
		return "other"
	}
}

// Interactive reports whether a click on target could do something.
func Interactive(target browser.Element) bool {
	if target == nil {
		return false
	}
	if closest(target, "a[href], button, input, select, textarea, summary, label, [role=button], [onclick], [data-track-id], [data-faq-id], [data-cta-id]") != nil {
		return true
	}
	return false
}

// LinkHref returns the href of the nearest link ancestor.
func LinkHref(target browser.Element) (string, bool) {
	el := closest(target, SelectorLink)
	if el == nil {
		return "", false
	}
	return el.Attr("href")
}

// ShareNetwork returns the share network of the nearest share control.
func ShareNetwork(target browser.Element) (string, bool) {
	return attrToken(closest(target, SelectorShare), "data-share-network")
}

// FormID returns the id of the nearest form ancestor.
func FormID(target browser.Element) (string, bool) {
	return attrToken(closest(target, SelectorForm), "data-form-id", "id", "name")
}

// MediaID returns the id of the nearest media element.
func MediaID(target browser.Element) (string, bool) {
	return attrToken(closest(target, SelectorMedia), "data-media-id", "id")
}

// ErrorKind classifies a script error message without keeping its text.
func ErrorKind(message string) string {
	m := strings.ToLower(message)
	switch {
	case m == "":
		return Unknown
	case strings.Contains(m, "chunkloaderror") || strings.Contains(m, "loading chunk") || strings.Contains(m, "dynamically imported module"):
		return "chunk_load"
	case strings.Contains(m, "failed to fetch") || strings.Contains(m, "networkerror") || strings.Contains(m, "network request failed"):
		return "network"
	case strings.Contains(m, "typeerror"):
		return "type_error"
	case strings.Contains(m, "referenceerror"):
		return "reference_error"
	case strings.Contains(m, "syntaxerror"):
		return "syntax_error"
	case strings.Contains(m, "rangeerror"):
		return "range_error"
	case strings.Contains(m, "script error"):
		return "cross_origin"
	default:
		return "other"
	}
}

// SourceBucket classifies where a script error came from.
func SourceBucket(source, currentHost string) string {
	s := strings.ToLower(source)
	switch {
	case s == "":
		return "inline"
	case strings.HasPrefix(s, "chrome-extension:") || strings.HasPrefix(s, "moz-extension:") || strings.HasPrefix(s, "safari-extension:"):
		return "extension"
	case IsOutbound(source, currentHost):
		return "third_party"
	default:
		return "first_party"
	}
}
