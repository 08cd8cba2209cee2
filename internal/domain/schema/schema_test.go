package schema

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAllowlist(t *testing.T) {
	Convey("Given the event registry", t, func() {
		Convey("Every analytics-only event is a known event", func() {
			for name := range analyticsOnly {
				So(Known(name), ShouldBeTrue)
			}
		})

		Convey("Rage clicks may carry their click count", func() {
			So(Allowed(EventRageClick, "clickCount"), ShouldBeTrue)
			So(Allowed(EventRageClick, "sectionId"), ShouldBeTrue)
			So(Allowed(EventRageClick, "email"), ShouldBeFalse)
		})

		Convey("Unknown events allow nothing", func() {
			So(Known("made_up"), ShouldBeFalse)
			So(Allowed("made_up", "sectionId"), ShouldBeFalse)
			So(AllowedFields("made_up"), ShouldBeEmpty)
		})

		Convey("Base keys are never part of an allowlist", func() {
			for _, name := range Names() {
				for _, k := range BaseKeys {
					So(Allowed(name, k), ShouldBeFalse)
				}
			}
		})

		Convey("Session lifecycle events are not gated", func() {
			So(IsAnalyticsOnly(EventPageView), ShouldBeFalse)
			So(IsAnalyticsOnly(EventSessionEnd), ShouldBeFalse)
			So(IsAnalyticsOnly(EventConsentPreference), ShouldBeFalse)
			So(IsAnalyticsOnly(EventClick), ShouldBeTrue)
			So(IsAnalyticsOnly(EventRageClick), ShouldBeTrue)
		})
	})
}

func TestDecodeChannel(t *testing.T) {
	Convey("Given custom event details", t, func() {
		Convey("A well-formed funnel step decodes to its payload", func() {
			p, err := DecodeChannel(ChannelFunnelStep, map[string]any{
				"funnel": "registration", "step": "choose_ticket", "stepIndex": 2,
			})
			So(err, ShouldBeNil)
			So(p.Event(), ShouldEqual, EventFunnelStep)
			So(p.Data()["step"], ShouldEqual, "choose_ticket")
			So(p.Data()["stepIndex"], ShouldEqual, 2)
		})

		Convey("Raw JSON bytes are accepted", func() {
			p, err := DecodeChannel(ChannelExperimentExposure, []byte(`{"experimentId":"hero","variant":"b"}`))
			So(err, ShouldBeNil)
			So(p.Data(), ShouldResemble, map[string]any{"experimentId": "hero", "variant": "b"})
		})

		Convey("Missing required fields are rejected", func() {
			_, err := DecodeChannel(ChannelFunnelStep, map[string]any{"funnel": "registration"})
			So(errors.Is(err, ErrInvalidPayload), ShouldBeTrue)
		})

		Convey("Values outside a closed list are rejected", func() {
			_, err := DecodeChannel(ChannelDemographics, map[string]any{"ageBucket": "42"})
			So(errors.Is(err, ErrInvalidPayload), ShouldBeTrue)
		})

		Convey("Free text in identifier fields is rejected", func() {
			_, err := DecodeChannel(ChannelContentInteraction, map[string]any{
				"contentId": "john@example.com is here", "action": "open",
			})
			So(errors.Is(err, ErrInvalidPayload), ShouldBeTrue)
		})

		Convey("Wrong JSON types are rejected", func() {
			_, err := DecodeChannel(ChannelTutorialStepToggle, map[string]any{"stepId": "s1", "expanded": "yes"})
			So(errors.Is(err, ErrInvalidPayload), ShouldBeTrue)
		})

		Convey("Nil details and unknown channels are rejected", func() {
			_, err := DecodeChannel(ChannelFunnelStep, nil)
			So(errors.Is(err, ErrInvalidPayload), ShouldBeTrue)
			_, err = DecodeChannel("analytics:nope", map[string]any{})
			So(errors.Is(err, ErrInvalidPayload), ShouldBeTrue)
		})

		Convey("Optional demographics fields are omitted when empty", func() {
			p, err := DecodeChannel(ChannelDemographics, map[string]any{"role": "student", "firstTime": true})
			So(err, ShouldBeNil)
			So(p.Data(), ShouldResemble, map[string]any{"role": "student", "firstTime": true})
		})

		Convey("Every payload channel maps to a known event", func() {
			for _, ch := range PayloadChannels() {
				_, err := DecodeChannel(ch, map[string]any{})
				// empty details may or may not validate, but the channel must be recognized
				if err != nil {
					So(err.Error(), ShouldNotContainSubstring, "unknown channel")
				}
			}
		})
	})
}
