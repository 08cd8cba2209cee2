package bus

import (
	"testing"

	"github.com/okian/convtrack/internal/domain/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBus(t *testing.T) {
	Convey("Given a bus", t, func() {
		b := New()
		var got []any
		unsub := b.Subscribe(schema.ChannelFunnelStep, func(d any) { got = append(got, d) })

		Convey("Published details reach subscribers of the channel only", func() {
			b.EmitFunnelStep(schema.FunnelStepDetail{Funnel: "registration", Step: "start"})
			b.EmitExperimentExposure(schema.ExperimentExposureDetail{ExperimentID: "x", Variant: "a"})
			So(len(got), ShouldEqual, 1)
			So(got[0], ShouldResemble, schema.FunnelStepDetail{Funnel: "registration", Step: "start"})
		})

		Convey("Unsubscribing stops delivery and is idempotent", func() {
			unsub()
			unsub()
			So(b.Publish(schema.ChannelFunnelStep, map[string]any{}), ShouldEqual, 0)
			So(got, ShouldBeEmpty)
			So(b.Subscribers(schema.ChannelFunnelStep), ShouldEqual, 0)
		})

		Convey("A panicking handler does not stop later handlers", func() {
			b.Subscribe(schema.ChannelDemographics, func(any) { panic("boom") })
			reached := false
			b.Subscribe(schema.ChannelDemographics, func(any) { reached = true })
			So(func() { b.EmitDemographics(schema.DemographicsDetail{}) }, ShouldNotPanic)
			So(reached, ShouldBeTrue)
		})

		Convey("Handlers may subscribe while a publish is in flight", func() {
			b.Subscribe(schema.ChannelNavigation, func(any) {
				b.Subscribe(schema.ChannelNavigation, func(any) {})
			})
			So(func() { b.EmitNavigation("/a") }, ShouldNotPanic)
			So(b.Subscribers(schema.ChannelNavigation), ShouldEqual, 2)
		})
	})
}
