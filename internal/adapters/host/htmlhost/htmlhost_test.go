package htmlhost

import (
	"testing"
	"time"

	"github.com/okian/convtrack/internal/domain/browser"
	. "github.com/smartystreets/goconvey/convey"
)

const fixture = `<html><body>
<section id="hero" data-section-id="hero"><button id="go" aria-expanded="false">Go <b id="deep">now</b></button></section>
<section id="faq"></section>
</body></html>`

func TestDocument(t *testing.T) {
	Convey("Given a parsed document", t, func() {
		doc, err := ParseString(fixture)
		So(err, ShouldBeNil)

		Convey("Query returns matches in document order", func() {
			secs := doc.Query("section")
			So(len(secs), ShouldEqual, 2)
			id, _ := secs[1].Attr("id")
			So(id, ShouldEqual, "faq")
		})

		Convey("Closest includes the element itself and walks up", func() {
			deep := doc.First("#deep")
			So(deep.Closest("b"), ShouldNotBeNil)
			sec := deep.Closest("[data-section-id]")
			So(sec, ShouldNotBeNil)
			So(sec.TagName(), ShouldEqual, "section")
			So(deep.Closest("form"), ShouldBeNil)
			So(deep.Parent().TagName(), ShouldEqual, "button")
		})

		Convey("Invalid selectors match nothing", func() {
			So(doc.Query("[[["), ShouldBeEmpty)
			So(doc.First("#go").Closest("[[["), ShouldBeNil)
		})

		Convey("Attributes can be flipped", func() {
			btn := doc.First("#go")
			btn.SetAttr("aria-expanded", "true")
			v, _ := btn.Attr("aria-expanded")
			So(v, ShouldEqual, "true")
			So(btn.Text(), ShouldEqual, "Go now")
		})

		Convey("A nil element is inert", func() {
			var e *Element
			So(e.TagName(), ShouldEqual, "")
			So(e.Closest("section"), ShouldBeNil)
			So(e.Parent(), ShouldBeNil)
		})
	})
}

func TestPage(t *testing.T) {
	Convey("Given a page", t, func() {
		doc, _ := ParseString(fixture)
		clock := NewClock(time.Unix(100, 0))
		p := NewPage(doc, WithURL("https://site.test/a?utm_source=x"), WithClock(clock), WithMedia("(forced-colors: active)", true))

		Convey("Location reflects the URL", func() {
			loc := p.Location()
			So(loc.Pathname, ShouldEqual, "/a")
			So(loc.Search, ShouldEqual, "?utm_source=x")
			So(loc.Host, ShouldEqual, "site.test")
		})

		Convey("Listeners receive dispatched events in order", func() {
			var got []string
			p.AddEventListener(browser.Click, func(browser.Event) { got = append(got, "first") })
			p.AddEventListener(browser.Click, func(browser.Event) { got = append(got, "second") })
			p.Click(doc.First("#go"))
			So(got, ShouldResemble, []string{"first", "second"})
			So(p.Listeners(browser.Click), ShouldEqual, 2)
		})

		Convey("History changes update the location before hooks run", func() {
			var seen string
			p.OnHistoryChange(func() { seen = p.Location().Pathname })
			p.PushState("/b/c")
			So(seen, ShouldEqual, "/b/c")
		})

		Convey("Intersections go to observers whose selector matches", func() {
			var entries []browser.IntersectionEntry
			p.ObserveIntersection("[data-section-id]", 0.5, func(e browser.IntersectionEntry) { entries = append(entries, e) })
			p.SetIntersection(doc.First("#hero"), 0.6)
			p.SetIntersection(doc.First("#faq"), 0.9)
			p.SetIntersection(doc.First("#hero"), 0.2)
			So(len(entries), ShouldEqual, 2)
			So(entries[0].Intersecting, ShouldBeTrue)
			So(entries[1].Intersecting, ShouldBeFalse)
		})

		Convey("State changes are visible to listeners", func() {
			var hidden bool
			p.AddEventListener(browser.VisibilityChange, func(browser.Event) { hidden = p.Hidden() })
			p.SetHidden(true)
			So(hidden, ShouldBeTrue)

			p.ScrollTo(400)
			So(p.Viewport().ScrollY, ShouldEqual, 400)
			So(p.MatchMedia("(forced-colors: active)"), ShouldBeTrue)

			clock.Advance(time.Second)
			So(p.Now().Unix(), ShouldEqual, 101)
		})
	})
}
