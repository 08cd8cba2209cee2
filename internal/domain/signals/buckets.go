// Package signals turns ambient page state into coarse, privacy-safe buckets.
// Every collector is a pure function of its inputs and degrades to "unknown"
// or a false ok result instead of failing.
package signals

import (
	"math"
	"strings"
	"time"

	"github.com/okian/convtrack/internal/domain/model"
)

// Unknown is returned when a signal cannot be read.
const Unknown = "unknown"

// ViewportBucket buckets a CSS pixel width.
func ViewportBucket(width float64) model.Viewport {
	switch {
	case width <= 0 || math.IsNaN(width):
		return model.ViewportUnknown
	case width < 640:
		return model.ViewportXS
	case width < 1024:
		return model.ViewportSM
	case width < 1440:
		return model.ViewportMD
	default:
		return model.ViewportLG
	}
}

// DurationBucket buckets session and active time. The lower bucket is
// inclusive of 30 seconds.
func DurationBucket(d time.Duration) string {
	switch {
	case d <= 30*time.Second:
		return "lt_30s"
	case d <= 2*time.Minute:
		return "30s_2m"
	case d <= 5*time.Minute:
		return "2m_5m"
	case d <= 15*time.Minute:
		return "5m_15m"
	default:
		return "gt_15m"
	}
}

// LatencyBucket buckets the delay before a first interaction.
func LatencyBucket(d time.Duration) string {
	switch {
	case d < time.Second:
		return "lt_1s"
	case d < 3*time.Second:
		return "1_3s"
	case d < 10*time.Second:
		return "3_10s"
	case d < 30*time.Second:
		return "10_30s"
	default:
		return "gt_30s"
	}
}

// DwellBucket buckets time spent with a section in view.
func DwellBucket(d time.Duration) string {
	switch {
	case d < 5*time.Second:
		return "lt_5s"
	case d < 15*time.Second:
		return "5s_15s"
	case d < time.Minute:
		return "15s_60s"
	default:
		return "gt_60s"
	}
}

// AwayBucket buckets how long a tab stayed hidden.
func AwayBucket(d time.Duration) string {
	switch {
	case d < 30*time.Second:
		return "lt_30s"
	case d < 5*time.Minute:
		return "30s_5m"
	default:
		return "gt_5m"
	}
}

// PagesPerSessionBucket buckets a page view count.
func PagesPerSessionBucket(n int) string {
	switch {
	case n <= 1:
		return "1"
	case n <= 3:
		return "2_3"
	case n <= 6:
		return "4_6"
	default:
		return "7_plus"
	}
}

// EngagementScore combines session counters into one score.
func EngagementScore(pageViews, clicks, sectionsSeen int, maxScrollDepth int) int {
	return pageViews + clicks + sectionsSeen + maxScrollDepth/25
}

// EngagementBucket buckets an engagement score.
func EngagementBucket(score int) string {
	switch {
	case score <= 8:
		return "low"
	case score <= 20:
		return "medium"
	default:
		return "high"
	}
}

// FieldCountBucket buckets a number of form fields.
func FieldCountBucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n <= 3:
		return "1_3"
	case n <= 6:
		return "4_6"
	default:
		return "7_plus"
	}
}

// LengthBucket buckets a text length such as a copied selection.
func LengthBucket(n int) string {
	switch {
	case n < 20:
		return "lt_20"
	case n < 100:
		return "20_100"
	case n < 500:
		return "100_500"
	default:
		return "gt_500"
	}
}

// ScrollMilestones are the depths reported by scroll_depth, each once.
var ScrollMilestones = []int{25, 50, 75, 100}

// ScrollDepthPercent returns how far down the document the bottom of the
// viewport is, clamped to 0..100.
func ScrollDepthPercent(scrollY, viewportHeight, documentHeight float64) int {
	if documentHeight <= 0 || viewportHeight <= 0 {
		return 0
	}
	if documentHeight <= viewportHeight {
		return 100
	}
	pct := (scrollY + viewportHeight) / documentHeight * 100
	switch {
	case math.IsNaN(pct) || pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// LanguageBucket reduces a locale tag to a supported language or "other".
func LanguageBucket(locale string) string {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	switch lang {
	case "ja", "en":
		return lang
	case "":
		return Unknown
	default:
		return "other"
	}
}

// Orientation returns portrait or landscape from viewport dimensions.
func Orientation(width, height float64) string {
	switch {
	case width <= 0 || height <= 0:
		return Unknown
	case height >= width:
		return "portrait"
	default:
		return "landscape"
	}
}
