package privacy

import (
	"math"
	"strings"
	"testing"

	"github.com/okian/convtrack/internal/domain/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSanitizePath(t *testing.T) {
	Convey("Given raw paths", t, func() {
		Convey("UUID segments become :id and siblings are untouched", func() {
			So(SanitizePath("/users/3f2e1a9b-1c2d-4e5f-8a9b-0123456789ab/profile"), ShouldEqual, "/users/:id/profile")
		})

		Convey("Long digit runs and long tokens become :id", func() {
			So(SanitizePath("/orders/12345/items"), ShouldEqual, "/orders/:id/items")
			So(SanitizePath("/t/AbCdEf0123456789xyz"), ShouldEqual, "/t/:id")
		})

		Convey("Short numbers and words are kept", func() {
			So(SanitizePath("/day/12/schedule"), ShouldEqual, "/day/12/schedule")
		})

		Convey("Repeated slashes collapse and empty paths become root", func() {
			So(SanitizePath("//a///b/"), ShouldEqual, "/a/b")
			So(SanitizePath(""), ShouldEqual, "/")
			So(SanitizePath("///"), ShouldEqual, "/")
		})

		Convey("Disallowed characters are stripped and segments truncated", func() {
			So(SanitizePath("/hello world!/<b>"), ShouldEqual, "/helloworld/b")
			long := strings.Repeat("ab-", 30)
			got := SanitizePath("/" + long)
			So(len(got), ShouldEqual, MaxSegmentLen+1)
		})

		Convey("Contact data in a segment becomes :id", func() {
			So(SanitizePath("/u/john%40mail.com"), ShouldEqual, "/u/:id")
			So(SanitizePath("/u/john@mail.com/settings"), ShouldEqual, "/u/:id/settings")
			So(SanitizePath("/call/+1%20(555)%20010-9999"), ShouldEqual, "/call/:id")
			So(SanitizePath("/call/555-01"), ShouldEqual, "/call/555-01")
		})

		Convey("Tildes are stripped so paths stay safe event values", func() {
			got := SanitizePath("/~staff/page")
			So(got, ShouldEqual, "/staff/page")
			So(CheckString("path", got), ShouldEqual, DropNone)
		})

		Convey("Query strings and fragments are ignored", func() {
			So(SanitizePath("/faq?email=a@b.co#top"), ShouldEqual, "/faq")
		})
	})
}

func TestSanitizeKey(t *testing.T) {
	Convey("Given query keys", t, func() {
		k, ok := SanitizeKey(" UTM Source ")
		So(ok, ShouldBeTrue)
		So(k, ShouldEqual, "utm_source")

		_, ok = SanitizeKey("")
		So(ok, ShouldBeFalse)
		_, ok = SanitizeKey("!!!")
		So(ok, ShouldBeFalse)
		_, ok = SanitizeKey(strings.Repeat("a", MaxKeyLen+1))
		So(ok, ShouldBeFalse)
	})
}

func TestIsSuspiciousKey(t *testing.T) {
	Convey("Sensitive terms match whole tokens only", t, func() {
		So(IsSuspiciousKey("email"), ShouldBeTrue)
		So(IsSuspiciousKey("userEmail"), ShouldBeTrue)
		So(IsSuspiciousKey("first_name"), ShouldBeTrue)
		So(IsSuspiciousKey("reset-token"), ShouldBeTrue)
		So(IsSuspiciousKey("sectionId"), ShouldBeFalse)
		So(IsSuspiciousKey("username_hint"), ShouldBeTrue)
		So(IsSuspiciousKey("renamed"), ShouldBeFalse)
		So(IsSuspiciousKey("utm_campaign"), ShouldBeFalse)
	})
}

func TestSanitizedQueryKeys(t *testing.T) {
	Convey("Given a URL with query parameters", t, func() {
		keys := SanitizedQueryKeys("https://example.com/?utm_source=x&email=a%40b.co&b=1&UTM_SOURCE=y&a=2&userPhone=5")

		Convey("Only sanitized, sorted, unique, non-sensitive names remain", func() {
			So(keys, ShouldResemble, []string{"a", "b", "utm_source"})
		})

		Convey("The list is capped", func() {
			var sb strings.Builder
			sb.WriteString("/?")
			for i := 0; i < 40; i++ {
				sb.WriteString("k")
				sb.WriteString(strings.Repeat("x", i+1))
				sb.WriteString("=1&")
			}
			So(len(SanitizedQueryKeys(sb.String())), ShouldEqual, MaxQueryKeys)
		})

		Convey("No query yields an empty list", func() {
			So(SanitizedQueryKeys("/plain"), ShouldBeEmpty)
		})
	})

	Convey("A key list from an untrusted batch is cleaned the same way", t, func() {
		So(SanitizeKeyList([]string{"Ref", "ref", "password", "", "utm-medium"}), ShouldResemble, []string{"ref", "utm-medium"})
		So(SanitizeKeyList(nil), ShouldBeEmpty)
	})
}

func TestSanitizeEventData(t *testing.T) {
	Convey("Given an event payload", t, func() {
		base := map[string]any{"sessionId": "s-1", "anonymousId": "a-1"}

		Convey("Only allowlisted keys and base keys survive", func() {
			for _, name := range schema.Names() {
				out := SanitizeEventData(name, map[string]any{
					"sectionId": "hero", "email": "x", "arbitrary": "y", "clickCount": 3,
				}, base)
				for k := range out {
					_, inBase := base[k]
					So(inBase || schema.Allowed(name, k), ShouldBeTrue)
				}
				So(out["sessionId"], ShouldEqual, "s-1")
			}
		})

		Convey("Email and phone shaped values are dropped even when allowlisted", func() {
			var drops []DropReason
			out := SanitizeEventDataFunc(schema.EventClick, map[string]any{
				"trackLabel": "write to john@example.com",
				"trackId":    "call 555 123 4567",
				"sectionId":  "hero",
			}, base, func(_ string, r DropReason) { drops = append(drops, r) })

			So(out, ShouldNotContainKey, "trackLabel")
			So(out, ShouldNotContainKey, "trackId")
			So(out["sectionId"], ShouldEqual, "hero")
			So(drops, ShouldContain, DropEmail)
			So(drops, ShouldContain, DropPhone)
		})

		Convey("Numbers are normalized and bounded", func() {
			out := SanitizeEventData(schema.EventRageClick, map[string]any{"clickCount": 3}, nil)
			So(out["clickCount"], ShouldEqual, float64(3))

			out = SanitizeEventData(schema.EventScrollDepth, map[string]any{"depth": 2e7}, nil)
			So(out, ShouldNotContainKey, "depth")

			out = SanitizeEventData(schema.EventScrollDepth, map[string]any{"depth": math.Inf(1)}, nil)
			So(out, ShouldNotContainKey, "depth")
		})

		Convey("Long and oddly shaped strings are dropped", func() {
			out := SanitizeEventData(schema.EventClick, map[string]any{
				"trackLabel": strings.Repeat("a", MaxStringLen+1),
				"trackId":    "<script>",
			}, nil)
			So(out, ShouldBeEmpty)
		})

		Convey("Booleans and null always pass", func() {
			out := SanitizeEventData(schema.EventNetworkChange, map[string]any{"online": false, "saveData": nil}, nil)
			So(out["online"], ShouldEqual, false)
			So(out, ShouldContainKey, "saveData")
		})

		Convey("Complex values are rejected", func() {
			out := SanitizeEventData(schema.EventClick, map[string]any{"sectionId": []string{"a"}}, nil)
			So(out, ShouldBeEmpty)
		})

		Convey("Unicode labels are accepted", func() {
			out := SanitizeEventData(schema.EventClick, map[string]any{"trackLabel": "チケット 購入"}, nil)
			So(out["trackLabel"], ShouldEqual, "チケット 購入")
		})
	})
}
