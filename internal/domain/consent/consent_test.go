package consent

import (
	"testing"
	"time"

	"github.com/okian/convtrack/internal/adapters/storage"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given a storage", t, func() {
		s := storage.NewMemory()
		now := time.UnixMilli(1_700_000_000_123)

		Convey("Save then Load round-trips with necessary forced on", func() {
			saved, err := Save(s, Categories{Necessary: false, Analytics: true}, SourceCustomize, now)
			So(err, ShouldBeNil)

			got, ok := Load(s)
			So(ok, ShouldBeTrue)
			So(got, ShouldResemble, saved)
			So(got.Categories.Necessary, ShouldBeTrue)
			So(got.Categories.Analytics, ShouldBeTrue)
			So(got.Categories.Marketing, ShouldBeFalse)
			So(got.Source, ShouldEqual, SourceCustomize)
			So(got.UpdatedAt, ShouldEqual, now.UnixMilli())
			So(got.Version, ShouldEqual, CurrentVersion)
		})

		Convey("Corrupt records are treated as absent", func() {
			_ = s.Set(StorageKey, "{not json")
			_, ok := Load(s)
			So(ok, ShouldBeFalse)

			_ = s.Set(StorageKey, `{"version":1,"updatedAt":1,"source":"bogus","categories":{}}`)
			_, ok = Load(s)
			So(ok, ShouldBeFalse)
		})

		Convey("Records with another version are treated as absent", func() {
			_ = s.Set(StorageKey, `{"version":0,"updatedAt":5,"source":"accept_all","categories":{"necessary":true,"analytics":true}}`)
			_, ok := Load(s)
			So(ok, ShouldBeFalse)
		})

		Convey("Blocked storage never panics", func() {
			_, ok := Load(storage.Blocked{})
			So(ok, ShouldBeFalse)
			st, err := Save(storage.Blocked{}, Categories{Analytics: true}, SourceAcceptAll, now)
			So(err, ShouldNotBeNil)
			So(st.Categories.Analytics, ShouldBeTrue)
			_, ok = Load(nil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestManager(t *testing.T) {
	Convey("Given a manager with no stored decision", t, func() {
		s := storage.NewMemory()
		gate := &Gate{}
		m := NewManager(s, gate, func() time.Time { return time.UnixMilli(42) })
		var changes []State
		m.OnChange(func(st State) { changes = append(changes, st) })

		So(m.Phase(), ShouldEqual, PhaseUninitialized)
		So(m.Init(), ShouldEqual, PhaseModalOpen)
		So(gate.Granted(), ShouldBeFalse)

		Convey("Accepting opens the gate immediately and persists", func() {
			m.AcceptAll()
			So(gate.Granted(), ShouldBeTrue)
			So(m.Phase(), ShouldEqual, PhaseDecided)
			So(len(changes), ShouldEqual, 1)
			So(changes[0].Source, ShouldEqual, SourceAcceptAll)

			Convey("A new manager skips the modal", func() {
				g2 := &Gate{}
				m2 := NewManager(s, g2, nil)
				So(m2.Init(), ShouldEqual, PhaseDecided)
				So(g2.Granted(), ShouldBeTrue)
			})

			Convey("Rejecting afterwards closes the gate", func() {
				m.Reopen()
				So(m.Phase(), ShouldEqual, PhaseModalOpen)
				m.RejectOptional()
				So(gate.Granted(), ShouldBeFalse)
				st, ok := m.State()
				So(ok, ShouldBeTrue)
				So(st.Source, ShouldEqual, SourceRejectOptional)
				So(st.Categories.Necessary, ShouldBeTrue)
			})
		})

		Convey("Customize stores the selection", func() {
			st := m.Customize(Categories{Marketing: true})
			So(gate.Granted(), ShouldBeFalse)
			So(st.Categories.Marketing, ShouldBeTrue)
			So(st.Source, ShouldEqual, SourceCustomize)
		})
	})

	Convey("A nil gate is never granted", t, func() {
		var g *Gate
		So(g.Granted(), ShouldBeFalse)
	})
}
