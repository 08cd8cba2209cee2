// Package bus is the window-level publish/subscribe layer UI code uses to
// hand structured payloads to the tracking engine without importing it.
package bus

import (
	"context"
	"sync"

	"github.com/okian/convtrack/internal/domain/schema"
	"github.com/okian/convtrack/pkg/logger"
)

// Handler receives the untrusted detail of a published event.
type Handler func(detail any)

type subscription struct {
	id int
	fn Handler
}

// Bus delivers each published detail synchronously to the subscribers of its
// channel, in subscription order. A panicking handler is isolated.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[schema.Channel][]subscription
	log    logger.Logger
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[schema.Channel][]subscription), log: logger.OrNop().Named("bus")}
}

// Subscribe registers fn on ch and returns a function that removes it.
func (b *Bus) Subscribe(ch schema.Channel, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[ch] = append(b.subs[ch], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[ch]
			for i, s := range list {
				if s.id == id {
					b.subs[ch] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish dispatches detail to the subscribers of ch and returns how many
// received it.
func (b *Bus) Publish(ch schema.Channel, detail any) int {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[ch]...)
	b.mu.RUnlock()

	for _, s := range list {
		b.deliver(ch, s.fn, detail)
	}
	return len(list)
}

func (b *Bus) deliver(ch schema.Channel, fn Handler, detail any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn(context.Background(), "bus handler panicked",
				logger.String("channel", string(ch)), logger.Any("panic", r))
		}
	}()
	fn(detail)
}

// Subscribers returns the number of handlers on ch.
func (b *Bus) Subscribers(ch schema.Channel) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ch])
}

// EmitNavigation announces an SPA path change.
func (b *Bus) EmitNavigation(path string) {
	b.Publish(schema.ChannelNavigation, schema.NavigationDetail{Path: path})
}

// EmitDemographics publishes a demographics form submission.
func (b *Bus) EmitDemographics(d schema.DemographicsDetail) {
	b.Publish(schema.ChannelDemographics, d)
}

// EmitContentInteraction publishes a content interaction.
func (b *Bus) EmitContentInteraction(d schema.ContentInteractionDetail) {
	b.Publish(schema.ChannelContentInteraction, d)
}

// EmitFunnelStep publishes a funnel step.
func (b *Bus) EmitFunnelStep(d schema.FunnelStepDetail) {
	b.Publish(schema.ChannelFunnelStep, d)
}

// EmitExperimentExposure publishes an experiment exposure.
func (b *Bus) EmitExperimentExposure(d schema.ExperimentExposureDetail) {
	b.Publish(schema.ChannelExperimentExposure, d)
}

// EmitConsentPreference publishes a consent decision.
func (b *Bus) EmitConsentPreference(d schema.ConsentPreferenceDetail) {
	b.Publish(schema.ChannelConsentPreference, d)
}

// EmitTutorialStepSelected publishes a tutorial step selection.
func (b *Bus) EmitTutorialStepSelected(d schema.TutorialStepSelectedDetail) {
	b.Publish(schema.ChannelTutorialStepSelect, d)
}

// EmitTutorialStepToggled publishes a tutorial step toggle.
func (b *Bus) EmitTutorialStepToggled(d schema.TutorialStepToggledDetail) {
	b.Publish(schema.ChannelTutorialStepToggle, d)
}

// EmitTutorialProgress publishes tutorial progress.
func (b *Bus) EmitTutorialProgress(d schema.TutorialProgressDetail) {
	b.Publish(schema.ChannelTutorialProgress, d)
}
