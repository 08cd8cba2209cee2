package signals

import (
	"net/url"
	"path"
	"strings"
)

var searchHosts = []string{"google.", "bing.", "yahoo.", "duckduckgo.", "baidu.", "yandex.", "ecosia."}

var socialHosts = []string{
	"facebook.", "fb.", "twitter.", "t.co", "x.com", "instagram.", "linkedin.", "lnkd.in",
	"reddit.", "tiktok.", "youtube.", "youtu.be", "pinterest.", "threads.net", "bsky.", "line.me", "discord.",
}

func hostMatches(host string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasPrefix(host, p) || strings.Contains(host, "."+p) || host == strings.TrimSuffix(p, ".") {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ReferrerBucket classifies document.referrer relative to the current host.
func ReferrerBucket(referrer, currentHost string) string {
	if strings.TrimSpace(referrer) == "" {
		return "direct"
	}
	h := hostOf(referrer)
	switch {
	case h == "":
		return Unknown
	case h == strings.TrimPrefix(strings.ToLower(currentHost), "www."):
		return "internal"
	case hostMatches(h, searchHosts):
		return "search"
	case hostMatches(h, socialHosts):
		return "social"
	case strings.Contains(h, "mail."):
		return "email"
	default:
		return "other"
	}
}

// CampaignBucket classifies the utm_medium of href. The raw value never
// leaves this function.
func CampaignBucket(href string) (bucket string, hasUTM bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "none", false
	}
	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			hasUTM = true
			break
		}
	}
	if !hasUTM {
		if q.Has("gclid") || q.Has("fbclid") {
			return "paid", false
		}
		return "none", false
	}
	medium := strings.ToLower(q.Get("utm_medium"))
	switch {
	case medium == "":
		return "untagged", true
	case strings.Contains(medium, "cpc") || strings.Contains(medium, "paid") || strings.Contains(medium, "ppc") || medium == "display":
		return "paid", true
	case strings.Contains(medium, "social"):
		return "social", true
	case strings.Contains(medium, "mail") || medium == "newsletter":
		return "email", true
	case medium == "referral" || medium == "affiliate" || medium == "partner":
		return "referral", true
	default:
		return "other", true
	}
}

// ReferralCampaign returns the referral_campaign_bucket payload.
func ReferralCampaign(referrer, href, currentHost string) map[string]any {
	bucket, hasUTM := CampaignBucket(href)
	return map[string]any{
		"referrerBucket": ReferrerBucket(referrer, currentHost),
		"campaignBucket": bucket,
		"hasUtm":         hasUTM,
	}
}

// DestinationBucket classifies an outbound link host.
func DestinationBucket(href string) string {
	h := hostOf(href)
	switch {
	case h == "":
		return Unknown
	case hostMatches(h, socialHosts):
		return "social"
	case hostMatches(h, searchHosts):
		return "search"
	case strings.Contains(h, "maps.") || strings.HasPrefix(h, "goo.gl"):
		return "maps"
	case strings.Contains(h, "ticket") || strings.Contains(h, "eventbrite") || strings.Contains(h, "peatix"):
		return "ticketing"
	default:
		return "other"
	}
}

var downloadTypes = map[string]string{
	".pdf": "pdf", ".zip": "zip", ".ics": "calendar", ".png": "image", ".jpg": "image",
	".jpeg": "image", ".svg": "image", ".csv": "spreadsheet", ".xlsx": "spreadsheet",
	".doc": "document", ".docx": "document", ".mp4": "video", ".mp3": "audio",
}

// DownloadFileType returns the file type of a downloadable link, or false
// when the link does not point at a known file type.
func DownloadFileType(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	t, ok := downloadTypes[strings.ToLower(path.Ext(u.Path))]
	return t, ok
}

// IsOutbound reports whether href points at a host other than currentHost.
// Relative and non-http links are never outbound.
func IsOutbound(href, currentHost string) bool {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "" {
		return false
	}
	return !strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(hostOnly(currentHost), "www."))
}

func hostOnly(h string) string {
	if i := strings.LastIndexByte(h, ':'); i >= 0 && !strings.Contains(h[i:], "]") {
		return h[:i]
	}
	return h
}
