package identity

import (
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/okian/convtrack/internal/adapters/storage"
	. "github.com/smartystreets/goconvey/convey"
)

func TestIdentity(t *testing.T) {
	Convey("Given empty storages", t, func() {
		session, local := storage.NewMemory(), storage.NewMemory()
		id := New(session, local)

		Convey("Tokens are created lazily and persisted", func() {
			So(session.Len(), ShouldEqual, 0)
			sid := id.SessionID()
			_, err := uuid.Parse(sid)
			So(err, ShouldBeNil)
			stored, ok, _ := session.Get(SessionKey)
			So(ok, ShouldBeTrue)
			So(stored, ShouldEqual, sid)
			So(id.SessionID(), ShouldEqual, sid)
			So(id.Returning(), ShouldBeFalse)
		})

		Convey("A later page reuses both tokens", func() {
			first := id.Base()
			again := New(session, local)
			So(again.Base(), ShouldResemble, first)
			So(again.Returning(), ShouldBeTrue)
		})

		Convey("A new tab keeps the visitor but starts a new session", func() {
			anon := id.AnonymousID()
			tab := New(storage.NewMemory(), local)
			So(tab.AnonymousID(), ShouldEqual, anon)
			So(tab.SessionID(), ShouldNotEqual, id.SessionID())
		})
	})

	Convey("Given blocked storages", t, func() {
		n := 0
		id := New(storage.Blocked{}, nil, WithGenerator(func() string { n++; return "t" + strconv.Itoa(n) }))

		Convey("Ephemeral tokens are stable for the page", func() {
			So(id.SessionID(), ShouldEqual, "t1")
			So(id.SessionID(), ShouldEqual, "t1")
			So(id.AnonymousID(), ShouldEqual, "t2")
			So(id.Returning(), ShouldBeFalse)
		})
	})
}
