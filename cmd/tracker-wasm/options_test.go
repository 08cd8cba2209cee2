package main

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseOptions(t *testing.T) {
	Convey("Given page options", t, func() {
		Convey("Missing options keep tracking enabled without an endpoint", func() {
			o, err := parseOptions(nil)
			So(err, ShouldBeNil)
			So(o.enabled(), ShouldBeTrue)
			So(o.Endpoint, ShouldBeEmpty)
		})

		Convey("Every field is read", func() {
			o, err := parseOptions([]byte(`{"endpoint":"https://c.test/events","enabled":false,"debug":true,"locale":"ja"}`))
			So(err, ShouldBeNil)
			So(o.Endpoint, ShouldEqual, "https://c.test/events")
			So(o.enabled(), ShouldBeFalse)
			So(o.Debug, ShouldBeTrue)
			So(o.Locale, ShouldEqual, "ja")
		})

		Convey("A malformed endpoint is rejected", func() {
			_, err := parseOptions([]byte(`{"endpoint":"not a url"}`))
			So(err, ShouldNotBeNil)
		})

		Convey("Invalid JSON is rejected", func() {
			_, err := parseOptions([]byte(`{`))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given track data", t, func() {
		So(decodeData([]byte(`{"sectionId":"faq"}`)), ShouldResemble, map[string]any{"sectionId": "faq"})
		So(decodeData([]byte(`"text"`)), ShouldBeNil)
		So(decodeData(nil), ShouldBeNil)
	})
}
