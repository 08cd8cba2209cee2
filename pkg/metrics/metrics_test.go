package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "convtrack")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("pre"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithBatchSizeBuckets([]float64{1, 50}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.latencyBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.batchSizeBuckets, ShouldResemble, []float64{1, 50})

				manager.eventsGated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_pre_events_consent_gated_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""), WithSubsystem(""), WithLatencyBuckets(nil),
				WithBatchSizeBuckets(nil), WithPrometheusRegistry(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "convtrack")
				So(manager.subsystem, ShouldEqual, "analytics")
				So(manager.batchSizeBuckets, ShouldResemble, defaultBatchSizeBuckets)
			})
		})
	})
}

func TestTrackerMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording tracked events", func() {
			before := testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("page_view"))
			RecordEventTracked("page_view")
			RecordEventTracked("page_view")

			Convey("Then the labelled counter increases", func() {
				after := testutil.ToFloat64(globalManager.eventsTracked.WithLabelValues("page_view"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording flushes", func() {
			before := testutil.ToFloat64(globalManager.flushes.WithLabelValues("beacon"))
			RecordFlush("beacon", 12)
			RecordFlushFailure("beacon")

			Convey("Then the flush counter increases", func() {
				So(testutil.ToFloat64(globalManager.flushes.WithLabelValues("beacon"))-before, ShouldEqual, 1)
			})
		})

		Convey("Then the remaining helpers do not panic", func() {
			So(func() {
				RecordEventGated()
				RecordEventEvicted()
				RecordFieldDropped("not_allowlisted")
				RecordPayloadRejected("analytics:funnel_step")
				UpdateTrackerQueueLength(5)
				RecordBatchReceived()
				RecordBatchDuplicate()
				RecordBatchRejected("invalid")
				RecordEventsStored(3)
				RecordStoreLatency(1.5)
				UpdateQueueSize(1)
				UpdateQueueCapacity(10)
				RecordQueueEnqueueError("full")
				UpdateWorkerCount(4)
				RecordWorkerError()
				RecordHTTPRequest("events", "POST", "202")
				RecordHTTPRequestDuration("events", "POST", "202", 3)
				RecordScanUnit("axe", "ok")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.eventsEvicted)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordEventEvicted()
				}
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(globalManager.eventsEvicted)-before, ShouldEqual, 1000)
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given the custom registry served over HTTP", t, func() {
		RecordBatchReceived()
		rec := httptest.NewRecorder()
		promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

		Convey("Then our metrics are exposed without Go runtime metrics", func() {
			body := rec.Body.String()
			So(body, ShouldContainSubstring, "convtrack_analytics_collector_batches_received_total")
			So(strings.Contains(body, "go_goroutines"), ShouldBeFalse)
		})
	})
}
