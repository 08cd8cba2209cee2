package main

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/okian/convtrack/internal/domain/schema"
)

// globalOptions is the window property the page sets before loading the
// module.
const globalOptions = "__CONVTRACK__"

// options mirrors window.__CONVTRACK__.
type options struct {
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	Enabled  *bool  `json:"enabled"`
	Debug    bool   `json:"debug"`
	Locale   string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

func (o options) enabled() bool { return o.Enabled == nil || *o.Enabled }

// parseOptions decodes the page options. A missing object yields the
// defaults: enabled, no endpoint.
func parseOptions(raw []byte) (options, error) {
	var o options
	if len(raw) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(raw, &o); err != nil {
		return options{}, fmt.Errorf("%s: %w", globalOptions, err)
	}
	if err := schema.Validator().Struct(o); err != nil {
		return options{}, fmt.Errorf("%s: %w", globalOptions, err)
	}
	return o, nil
}

// decodeData turns the JSON of a track() data argument into event data.
// Anything other than an object is treated as no data.
func decodeData(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}
