package signals

import (
	"strings"

	"github.com/okian/convtrack/internal/domain/browser"
)

// DeviceType classifies the device from touch support and viewport width.
func DeviceType(nav browser.Navigator, vp browser.Viewport) string {
	ua := strings.ToLower(nav.UserAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone"):
		return "mobile"
	case nav.MaxTouchPoints > 0 && vp.Width > 0 && vp.Width < 640:
		return "mobile"
	case nav.MaxTouchPoints > 0 && vp.Width > 0 && vp.Width < 1024:
		return "tablet"
	case ua == "" && vp.Width <= 0:
		return Unknown
	default:
		return "desktop"
	}
}

// BrowserFamily buckets a user agent into a small set of engines. Order
// matters: Edge and Samsung Internet also advertise Chrome.
func BrowserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return Unknown
	case strings.Contains(ua, "edg/"):
		return "edge"
	case strings.Contains(ua, "samsungbrowser"):
		return "samsung"
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios"):
		return "firefox"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios"):
		return "chrome"
	case strings.Contains(ua, "safari/"):
		return "safari"
	default:
		return "other"
	}
}

// OSFamily buckets a user agent into an operating system family.
func OSFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return Unknown
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "cros"):
		return "chromeos"
	case strings.Contains(ua, "linux"):
		return "linux"
	default:
		return "other"
	}
}

// EffectiveType maps the Network Information API type to 2g, 3g, 4g or unknown.
func EffectiveType(conn browser.Connection) string {
	if !conn.Present {
		return Unknown
	}
	switch conn.EffectiveType {
	case "slow-2g", "2g":
		return "2g"
	case "3g":
		return "3g"
	case "4g":
		return "4g"
	default:
		return Unknown
	}
}

// NetworkSnapshot returns the network_change payload.
func NetworkSnapshot(nav browser.Navigator) map[string]any {
	return map[string]any{
		"online":        nav.Online,
		"effectiveType": EffectiveType(nav.Connection),
		"saveData":      nav.Connection.Present && nav.Connection.SaveData,
	}
}

// CPUBucket buckets navigator.hardwareConcurrency.
func CPUBucket(cores int) string {
	switch {
	case cores <= 0:
		return Unknown
	case cores <= 2:
		return "1_2"
	case cores <= 4:
		return "3_4"
	case cores <= 8:
		return "5_8"
	default:
		return "9_plus"
	}
}

// MemoryBucket buckets navigator.deviceMemory (GiB, already coarse).
func MemoryBucket(gib float64) string {
	switch {
	case gib <= 0:
		return Unknown
	case gib <= 2:
		return "le_2"
	case gib <= 4:
		return "4"
	default:
		return "ge_8"
	}
}

// PerformanceClass classifies the device as low, mid or high end.
func PerformanceClass(nav browser.Navigator) string {
	cores, mem := nav.HardwareConcurrency, nav.DeviceMemory
	switch {
	case cores <= 0 && mem <= 0:
		return Unknown
	case (cores > 0 && cores <= 2) || (mem > 0 && mem <= 2):
		return "low"
	case cores >= 8 && (mem <= 0 || mem >= 8):
		return "high"
	default:
		return "mid"
	}
}

// DevicePerformance returns the device_performance_class payload.
func DevicePerformance(nav browser.Navigator) map[string]any {
	return map[string]any{
		"performanceClass": PerformanceClass(nav),
		"cpuBucket":        CPUBucket(nav.HardwareConcurrency),
		"memoryBucket":     MemoryBucket(nav.DeviceMemory),
	}
}

// NavigationType normalizes the navigation timing type.
func NavigationType(t string) string {
	switch t {
	case "navigate", "reload", "back_forward", "prerender":
		return t
	case "back-forward":
		return "back_forward"
	default:
		return Unknown
	}
}

// Accessibility modes detected from media queries.
const (
	ModeReducedMotion = "reduced_motion"
	ModeHighContrast  = "high_contrast"
	ModeForcedColors  = "forced_colors"
	ModeDarkScheme    = "dark_scheme"
)

var accessibilityQueries = []struct {
	mode  string
	query string
}{
	{ModeReducedMotion, "(prefers-reduced-motion: reduce)"},
	{ModeHighContrast, "(prefers-contrast: more)"},
	{ModeForcedColors, "(forced-colors: active)"},
	{ModeDarkScheme, "(prefers-color-scheme: dark)"},
}

// AccessibilityModes lists the active accessibility related preferences.
func AccessibilityModes(matchMedia func(string) bool) []string {
	if matchMedia == nil {
		return nil
	}
	var out []string
	for _, q := range accessibilityQueries {
		if matchMedia(q.query) {
			out = append(out, q.mode)
		}
	}
	return out
}
