package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/convtrack/internal/adapters/host/htmlhost"
	"github.com/okian/convtrack/internal/adapters/http/api"
	"github.com/okian/convtrack/internal/adapters/transport"
	service "github.com/okian/convtrack/internal/app"
	"github.com/okian/convtrack/internal/app/tracker"
	"github.com/okian/convtrack/internal/domain/consent"
	"github.com/okian/convtrack/internal/domain/model"
)

const landing = `<html><body>
<section data-section-id="hero"><button id="buy" data-cta-id="hero_buy">Buy</button></section>
<section data-section-id="faq"><div data-faq-id="parking" aria-expanded="false"><button id="q">Parking?</button></div></section>
</body></html>`

func TestCollectorEndToEnd(t *testing.T) {
	Convey("Given a running collector behind its HTTP API", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(api.NewServer(svc, svc).Routes())
		defer srv.Close()

		Convey("When a tracked visit ends with an unload beacon", func() {
			doc, err := htmlhost.ParseString(landing)
			So(err, ShouldBeNil)
			page := htmlhost.NewPage(doc, htmlhost.WithURL("https://con.test/?utm_source=mail"))
			gate := &consent.Gate{}
			gate.Set(true)
			tr := transport.NewHTTP()
			trk := tracker.New(page,
				tracker.WithEndpoint(srv.URL+"/events"),
				tracker.WithTransport(tr),
				tracker.WithGate(gate),
			)
			So(trk.Init(ctx), ShouldBeTrue)
			page.Click(doc.First("#buy"))
			page.Click(doc.First("#q"))
			page.Unload()
			tr.Wait()

			Convey("Then every event is stored and visible in the stats", func() {
				So(waitFor(func() bool { return storedEvents(svc) > 0 }), ShouldBeTrue)

				resp, err := http.Get(srv.URL + "/stats")
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusOK)

				var stats struct {
					StoredEvents int64             `json:"storedEvents"`
					EventsByName []model.NameCount `json:"eventsByName"`
				}
				So(json.NewDecoder(resp.Body).Decode(&stats), ShouldBeNil)
				names := map[string]int64{}
				for _, nc := range stats.EventsByName {
					names[nc.Name] = nc.Count
				}
				So(names["session_start"], ShouldEqual, 1)
				So(names["page_view"], ShouldEqual, 1)
				So(names["cta_click"], ShouldEqual, 1)
				So(names["faq_toggle"], ShouldEqual, 1)
				So(names["session_end"], ShouldEqual, 1)
			})
		})

		Convey("When the same batch is posted twice", func() {
			body := `{"sentAt":1700000000000,"events":[{"name":"page_view","timestamp":1,"path":"/","data":{"sessionId":"s-1"}}]}`
			first, err := http.Post(srv.URL+"/events", "text/plain", strings.NewReader(body))
			So(err, ShouldBeNil)
			_ = first.Body.Close()
			second, err := http.Post(srv.URL+"/events", "text/plain", strings.NewReader(body))
			So(err, ShouldBeNil)
			_ = second.Body.Close()

			Convey("Then it is stored once", func() {
				So(first.StatusCode, ShouldEqual, http.StatusAccepted)
				So(second.StatusCode, ShouldEqual, http.StatusOK)
				So(waitFor(func() bool { return storedEvents(svc) == 1 }), ShouldBeTrue)
			})
		})
	})
}
