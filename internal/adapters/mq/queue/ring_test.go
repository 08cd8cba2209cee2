package queue

import (
	"fmt"
	"testing"

	"github.com/okian/convtrack/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ev(i int) model.AnalyticsEvent {
	return model.AnalyticsEvent{Name: "click", Timestamp: int64(i), Data: model.Data{"trackId": fmt.Sprintf("t%d", i)}}
}

func TestRing(t *testing.T) {
	Convey("Given a ring with the default capacity", t, func() {
		r := NewRing(0)
		So(r.Cap(), ShouldEqual, DefaultRingCapacity)

		Convey("Pushing 201 events keeps 200 and evicts the oldest", func() {
			evictions := 0
			for i := 0; i < 201; i++ {
				if r.Push(ev(i)) {
					evictions++
				}
			}
			So(evictions, ShouldEqual, 1)
			So(r.Len(), ShouldEqual, 200)

			snap := r.Snapshot()
			So(snap[0].Timestamp, ShouldEqual, 1)
			So(snap[0].Data["trackId"], ShouldEqual, "t1")
			So(snap[199].Timestamp, ShouldEqual, 200)
			So(r.Pushed(), ShouldEqual, uint64(201))
		})

		Convey("Drain empties the ring in FIFO order", func() {
			for i := 0; i < 3; i++ {
				r.Push(ev(i))
			}
			out := r.Drain()
			So(len(out), ShouldEqual, 3)
			So(out[0].Timestamp, ShouldEqual, 0)
			So(out[2].Timestamp, ShouldEqual, 2)
			So(r.Len(), ShouldEqual, 0)
			So(r.Drain(), ShouldBeEmpty)

			r.Push(ev(9))
			So(r.Snapshot()[0].Timestamp, ShouldEqual, 9)
		})
	})

	Convey("Given a tiny ring that wraps many times", t, func() {
		r := NewRing(3)
		for i := 0; i < 10; i++ {
			r.Push(ev(i))
		}
		out := r.Drain()
		So([]int64{out[0].Timestamp, out[1].Timestamp, out[2].Timestamp}, ShouldResemble, []int64{7, 8, 9})
	})
}
