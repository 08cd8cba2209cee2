// Package privacy scrubs paths, query keys and event payloads so that no
// personally identifying value leaves the page.
package privacy

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/okian/convtrack/internal/domain/model"
	"github.com/okian/convtrack/internal/domain/schema"
)

// Limits applied by the sanitizer.
const (
	MaxSegmentLen   = 48
	MaxKeyLen       = 48
	MaxQueryKeys    = 32
	MaxStringLen    = 64
	MaxNumericValue = 10_000_000
	minPhoneDigits  = 7
	IDPlaceholder   = ":id"
)

// DropReason explains why a field was removed from an event payload.
type DropReason string

const (
	DropNone          DropReason = ""
	DropNotAllowed    DropReason = "not_allowlisted"
	DropNotPrimitive  DropReason = "not_primitive"
	DropOutOfRange    DropReason = "out_of_range"
	DropSuspiciousKey DropReason = "suspicious_key"
	DropTooLong       DropReason = "too_long"
	DropCharset       DropReason = "charset"
	DropEmail         DropReason = "email"
	DropPhone         DropReason = "phone"
)

var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	digitSegment   = regexp.MustCompile(`^[0-9]{3,}$`)
	tokenSegment   = regexp.MustCompile(`^[A-Za-z0-9]{16,}$`)
	segmentStrip   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	phoneSegment   = regexp.MustCompile(`^\+?[0-9 ().-]+$`)
	keyNormalize   = regexp.MustCompile(`[^a-z0-9_-]+`)
	safeToken      = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	safeValue      = regexp.MustCompile(`^[\p{L}\p{N} _\-:./>]*$`)
	emailShape     = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)
	camelBoundary  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	tokenSeparator = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// sensitiveTerms are matched against whole key tokens, never substrings, so
// "sectionId" is fine while "user_email" is not.
var sensitiveTerms = map[string]struct{}{
	"name": {}, "firstname": {}, "lastname": {}, "fullname": {}, "username": {},
	"email": {}, "mail": {}, "phone": {}, "tel": {}, "mobile": {},
	"address": {}, "addr": {}, "street": {}, "zip": {}, "postal": {}, "postcode": {},
	"password": {}, "passwd": {}, "pwd": {}, "pass": {},
	"token": {}, "secret": {}, "auth": {}, "apikey": {}, "otp": {}, "pin": {},
	"ssn": {}, "card": {}, "cc": {}, "cvv": {}, "iban": {}, "credit": {},
	"birth": {}, "birthday": {}, "dob": {}, "ip": {},
}

// SanitizePath collapses slashes, replaces id-like segments with ":id" and
// strips every character outside a conservative set. The empty path is "/".
func SanitizePath(pathname string) string {
	if i := strings.IndexAny(pathname, "?#"); i >= 0 {
		pathname = pathname[:i]
	}
	raw := strings.Split(pathname, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		if dec, err := url.PathUnescape(s); err == nil {
			s = dec
		}
		if isIDSegment(s) {
			segs = append(segs, IDPlaceholder)
			continue
		}
		s = segmentStrip.ReplaceAllString(s, "")
		if len(s) > MaxSegmentLen {
			s = s[:MaxSegmentLen]
		}
		if s == "" {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// isIDSegment reports whether a decoded path segment is an identifier or a
// piece of contact data.
func isIDSegment(s string) bool {
	switch {
	case uuidSegment.MatchString(s), digitSegment.MatchString(s), tokenSegment.MatchString(s):
		return true
	case emailShape.MatchString(s):
		return true
	case phoneSegment.MatchString(s) && countDigits(s) >= minPhoneDigits:
		return true
	}
	return false
}

// SanitizeKey normalizes key to a lowercase safe token. It reports false when
// nothing usable is left or the result is too long.
func SanitizeKey(key string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	k = keyNormalize.ReplaceAllString(k, "_")
	k = strings.Trim(k, "_")
	if k == "" || len(k) > MaxKeyLen || !safeToken.MatchString(k) {
		return "", false
	}
	return k, true
}

// keyTokens splits a key on separators and camelCase boundaries.
func keyTokens(key string) []string {
	split := camelBoundary.ReplaceAllString(key, "${1} ${2}")
	parts := tokenSeparator.Split(split, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// IsSuspiciousKey reports whether any token of key names a sensitive term.
func IsSuspiciousKey(key string) bool {
	for _, t := range keyTokens(key) {
		if _, ok := sensitiveTerms[t]; ok {
			return true
		}
	}
	return false
}

// SanitizedQueryKeys returns the sorted, deduplicated query parameter names of
// rawURL with sensitive names removed. Values are never returned.
func SanitizedQueryKeys(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return []string{}
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil && len(q) == 0 {
		return []string{}
	}
	raw := make([]string, 0, len(q))
	for k := range q {
		raw = append(raw, k)
	}
	return SanitizeKeyList(raw)
}

// SanitizeKeyList cleans a list of key names the same way query keys are
// cleaned: normalized, sensitive names removed, sorted, deduplicated and
// capped at MaxQueryKeys.
func SanitizeKeyList(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, r := range raw {
		if IsSuspiciousKey(r) {
			continue
		}
		k, ok := SanitizeKey(r)
		if !ok || IsSuspiciousKey(k) {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > MaxQueryKeys {
		keys = keys[:MaxQueryKeys]
	}
	return keys
}

// CheckString applies the value-shape rules to a string stored under key.
func CheckString(key, value string) DropReason {
	switch {
	case IsSuspiciousKey(key):
		return DropSuspiciousKey
	case utf8.RuneCountInString(value) > MaxStringLen:
		return DropTooLong
	case emailShape.MatchString(value):
		return DropEmail
	case countDigits(value) >= minPhoneDigits:
		return DropPhone
	case !safeValue.MatchString(value):
		return DropCharset
	}
	return DropNone
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// CheckValue normalizes value for key and reports why it must be dropped,
// if at all.
func CheckValue(key string, value any) (any, DropReason) {
	v, ok := model.Primitive(value)
	if !ok {
		return nil, DropNotPrimitive
	}
	switch t := v.(type) {
	case float64:
		if math.Abs(t) > MaxNumericValue {
			return nil, DropOutOfRange
		}
	case string:
		if r := CheckString(key, t); r != DropNone {
			return nil, r
		}
	}
	return v, DropNone
}

// DropFunc observes fields removed by SanitizeEventDataFunc.
type DropFunc func(key string, reason DropReason)

// SanitizeEventData returns base plus every field of raw that is allowlisted
// for name and passes the value checks.
func SanitizeEventData(name schema.EventName, raw, base map[string]any) model.Data {
	return SanitizeEventDataFunc(name, raw, base, nil)
}

// SanitizeEventDataFunc is SanitizeEventData with a callback for each dropped
// field. onDrop may be nil.
func SanitizeEventDataFunc(name schema.EventName, raw, base map[string]any, onDrop DropFunc) model.Data {
	out := make(model.Data, len(base)+len(raw))
	for k, v := range base {
		if p, ok := model.Primitive(v); ok {
			out[k] = p
		}
	}
	for k, v := range raw {
		if !schema.Allowed(name, k) {
			if onDrop != nil {
				onDrop(k, DropNotAllowed)
			}
			continue
		}
		clean, reason := CheckValue(k, v)
		if reason != DropNone {
			if onDrop != nil {
				onDrop(k, reason)
			}
			continue
		}
		out[k] = clean
	}
	return out
}
