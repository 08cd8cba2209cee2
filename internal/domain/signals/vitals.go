package signals

import "github.com/okian/convtrack/internal/domain/browser"

// Web Vitals ratings.
const (
	RatingGood             = "good"
	RatingNeedsImprovement = "needs_improvement"
	RatingPoor             = "poor"
)

type thresholds struct{ good, poor float64 }

var (
	lcpThresholds  = thresholds{2500, 4000}
	clsThresholds  = thresholds{0.1, 0.25}
	inpThresholds  = thresholds{200, 500}
	fcpThresholds  = thresholds{1800, 3000}
	ttfbThresholds = thresholds{800, 1800}
)

func (t thresholds) rate(m browser.Metric) (string, bool) {
	if !m.OK || m.Value < 0 {
		return "", false
	}
	switch {
	case m.Value <= t.good:
		return RatingGood, true
	case m.Value <= t.poor:
		return RatingNeedsImprovement, true
	default:
		return RatingPoor, true
	}
}

// LCPBucket rates largest contentful paint in milliseconds.
func LCPBucket(m browser.Metric) (string, bool) { return lcpThresholds.rate(m) }

// CLSBucket rates cumulative layout shift.
func CLSBucket(m browser.Metric) (string, bool) { return clsThresholds.rate(m) }

// INPBucket rates interaction to next paint in milliseconds.
func INPBucket(m browser.Metric) (string, bool) { return inpThresholds.rate(m) }

// FCPBucket rates first contentful paint in milliseconds.
func FCPBucket(m browser.Metric) (string, bool) { return fcpThresholds.rate(m) }

// TTFBBucket rates time to first byte in milliseconds.
func TTFBBucket(m browser.Metric) (string, bool) { return ttfbThresholds.rate(m) }

// WebVitals returns the web_vitals payload. Unavailable metrics are omitted.
func WebVitals(v browser.Vitals) map[string]any {
	out := map[string]any{}
	add := func(key string, r string, ok bool) {
		if ok {
			out[key] = r
		}
	}
	r, ok := LCPBucket(v.LCP)
	add("lcpBucket", r, ok)
	r, ok = CLSBucket(v.CLS)
	add("clsBucket", r, ok)
	r, ok = INPBucket(v.INP)
	add("inpBucket", r, ok)
	r, ok = FCPBucket(v.FCP)
	add("fcpBucket", r, ok)
	r, ok = TTFBBucket(v.TTFB)
	add("ttfbBucket", r, ok)
	return out
}
