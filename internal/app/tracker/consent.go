package tracker

import (
	"github.com/okian/convtrack/internal/adapters/mq/bus"
	"github.com/okian/convtrack/internal/domain/consent"
	"github.com/okian/convtrack/internal/domain/schema"
)

// BridgeConsent publishes every decision taken on m as a consent-preference
// event on b. The consent banner and the tracker only share the bus.
func BridgeConsent(m *consent.Manager, b *bus.Bus) {
	if m == nil || b == nil {
		return
	}
	m.OnChange(func(st consent.State) {
		b.EmitConsentPreference(schema.ConsentPreferenceDetail{
			Source:    string(st.Source),
			Analytics: st.Categories.Analytics,
			Marketing: st.Categories.Marketing,
		})
	})
}
