package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/okian/convtrack/internal/config"
	"github.com/okian/convtrack/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	convey.Convey("Given a collector listening on a free port", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.New(ctx)
		cfg.DBPath = ":memory:"
		cfg.WorkerCount = 1
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		base := "http://" + ln.Addr().String()

		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, ln, logger.OrNop()) }()

		convey.Convey("Then it answers health checks and accepts batches until cancelled", func() {
			resp, err := http.Get(base + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			body := `{"sentAt":5,"events":[{"name":"print_page","timestamp":5,"path":"/"}]}`
			resp, err = http.Post(base+"/events", "application/json", strings.NewReader(body))
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)

			cancel()
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(5 * time.Second):
				t.Fatal("collector did not stop")
			}
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Updating system metrics does not panic", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
