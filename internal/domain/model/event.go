// Package model contains domain models passed between layers.
package model

import (
	"math"
	"reflect"
)

// Viewport is the coarse viewport width bucket attached to every event.
type Viewport string

const (
	ViewportXS      Viewport = "xs"
	ViewportSM      Viewport = "sm"
	ViewportMD      Viewport = "md"
	ViewportLG      Viewport = "lg"
	ViewportUnknown Viewport = "unknown"
)

// Data is an event payload. Every value is a Primitive: string, float64,
// bool or nil. Numbers of other Go kinds are normalized by Primitive.
type Data map[string]any

// AnalyticsEvent is one recorded occurrence. It is constructed once by the
// tracker and treated as immutable afterwards.
type AnalyticsEvent struct {
	Name      string   `json:"name"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
	Path      string   `json:"path"`
	QueryKeys []string `json:"queryKeys"`
	Locale    string   `json:"locale"`
	Viewport  Viewport `json:"viewport"`
	Data      Data     `json:"data"`
}

// Batch is the wire body posted to the collector.
type Batch struct {
	SentAt int64            `json:"sentAt" validate:"gt=0"`
	Events []AnalyticsEvent `json:"events" validate:"required,min=1,max=200,dive"`
}

// SessionID returns the session id carried in the first event, if any.
func (b *Batch) SessionID() string {
	for _, e := range b.Events {
		if s, ok := e.Data["sessionId"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Primitive normalizes v into the Primitive set. It reports false for
// anything that is not a string, bool, nil, or a finite real number.
// Integer and float kinds collapse to float64.
func Primitive(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string, bool:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, false
		}
		return t, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// Clone returns a shallow copy of d. Primitive values make it a full copy.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
