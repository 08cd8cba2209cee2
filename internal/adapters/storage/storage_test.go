package storage

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMemory(t *testing.T) {
	Convey("Given a memory storage", t, func() {
		m := NewMemory()

		Convey("Values round-trip and can be removed", func() {
			So(m.Set("k", "v"), ShouldBeNil)
			v, ok, err := m.Get("k")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "v")

			So(m.Remove("k"), ShouldBeNil)
			_, ok, _ = m.Get("k")
			So(ok, ShouldBeFalse)
			So(m.Len(), ShouldEqual, 0)
		})
	})
}

func TestNamespacedAndBlocked(t *testing.T) {
	Convey("Given a namespaced storage", t, func() {
		m := NewMemory()
		a := NewNamespaced("visitor-1", m)
		b := NewNamespaced("visitor-2", m)

		So(a.Set("anon", "1"), ShouldBeNil)
		So(b.Set("anon", "2"), ShouldBeNil)

		va, _, _ := a.Get("anon")
		vb, _, _ := b.Get("anon")
		So(va, ShouldEqual, "1")
		So(vb, ShouldEqual, "2")
		So(m.Len(), ShouldEqual, 2)

		raw, ok, _ := m.Get("visitor-1:anon")
		So(ok, ShouldBeTrue)
		So(raw, ShouldEqual, "1")
	})

	Convey("Blocked storage always fails", t, func() {
		_, _, err := Blocked{}.Get("k")
		So(errors.Is(err, ErrStorageUnavailable), ShouldBeTrue)
		So(errors.Is(Blocked{}.Set("k", "v"), ErrStorageUnavailable), ShouldBeTrue)
		So(errors.Is(Blocked{}.Remove("k"), ErrStorageUnavailable), ShouldBeTrue)
	})
}

func TestBadger(t *testing.T) {
	Convey("Given a badger storage on disk", t, func() {
		dir := t.TempDir()
		b, err := OpenBadger(dir, WithSyncWrites(false))
		So(err, ShouldBeNil)

		So(b.Set("analytics_anon_id", "abc"), ShouldBeNil)
		So(b.Set("other", "x"), ShouldBeNil)

		Convey("Values survive a reopen", func() {
			So(b.Close(), ShouldBeNil)
			b2, err := OpenBadger(dir)
			So(err, ShouldBeNil)
			defer b2.Close()

			v, ok, err := b2.Get("analytics_anon_id")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "abc")

			n, err := b2.Count("analytics_")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("Missing keys are reported without error", func() {
			defer b.Close()
			_, ok, err := b.Get("missing")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			So(b.Remove("other"), ShouldBeNil)
			_, ok, _ = b.Get("other")
			So(ok, ShouldBeFalse)
		})
	})

	Convey("An in-memory badger needs no directory", t, func() {
		b, err := OpenBadger("", WithInMemory())
		So(err, ShouldBeNil)
		defer b.Close()
		So(b.Set("k", "v"), ShouldBeNil)
	})

	Convey("A persistent badger without a directory is rejected", t, func() {
		_, err := OpenBadger("")
		So(errors.Is(err, ErrStorageUnavailable), ShouldBeTrue)
	})
}
