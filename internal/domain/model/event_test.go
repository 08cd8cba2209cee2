package model_test

import (
	"math"
	"testing"

	model "github.com/okian/convtrack/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestPrimitive(t *testing.T) {
	convey.Convey("Given values of various kinds", t, func() {
		convey.Convey("When they are already primitives", func() {
			for _, v := range []any{"x", true, 1.5} {
				got, ok := model.Primitive(v)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got, convey.ShouldEqual, v)
			}
			got, ok := model.Primitive(nil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got, convey.ShouldBeNil)
		})

		convey.Convey("When they are other numeric kinds", func() {
			got, ok := model.Primitive(3)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got, convey.ShouldEqual, float64(3))

			got, ok = model.Primitive(uint8(7))
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got, convey.ShouldEqual, float64(7))

			got, ok = model.Primitive(float32(0.5))
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got, convey.ShouldEqual, float64(0.5))
		})

		convey.Convey("When they are non-finite or complex", func() {
			for _, v := range []any{math.NaN(), math.Inf(1), float32(math.Inf(-1)), []int{1}, map[string]any{}, struct{}{}} {
				_, ok := model.Primitive(v)
				convey.So(ok, convey.ShouldBeFalse)
			}
		})
	})
}

func TestBatch(t *testing.T) {
	convey.Convey("Given a batch", t, func() {
		b := model.Batch{SentAt: 1, Events: []model.AnalyticsEvent{
			{Name: "page_view", Data: model.Data{}},
			{Name: "click", Data: model.Data{"sessionId": "s-1"}},
		}}

		convey.Convey("Then SessionID returns the first carried session id", func() {
			convey.So(b.SessionID(), convey.ShouldEqual, "s-1")
		})

		convey.Convey("Then an empty batch has no session id", func() {
			convey.So((&model.Batch{}).SessionID(), convey.ShouldEqual, "")
		})
	})
}

func TestDataClone(t *testing.T) {
	convey.Convey("Given event data", t, func() {
		d := model.Data{"a": "b"}
		c := d.Clone()
		c["a"] = "changed"

		convey.So(d["a"], convey.ShouldEqual, "b")
	})
}
