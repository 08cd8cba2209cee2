package simulate

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed landing.html
var defaultLanding string

// Selectors the visitor script acts on.
const (
	selectorSections = "[data-section-id]"
	selectorCTA      = "[data-cta-id]"
	selectorFAQ      = "[data-faq-id] button"
	selectorLinks    = "a[href]"
	selectorShare    = "[data-share-network]"
	selectorMedia    = "video, audio"
	selectorForm     = "form"
	selectorFields   = "form input"
	selectorLocale   = "[data-locale-switch]"
	selectorText     = "p"
)

// LoadPage returns the HTML visitors browse: the file at path, or the built-in
// landing page when path is empty.
func LoadPage(path string) (string, error) {
	if path == "" {
		return defaultLanding, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(raw), nil
}
