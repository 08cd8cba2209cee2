package scan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/convtrack/internal/app/scan"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeAuditor struct {
	mu      sync.Mutex
	results map[string][]scan.AxeViolation
	fail    map[string]error
	calls   []string
}

func (f *fakeAuditor) Audit(_ context.Context, url string) ([]scan.AxeViolation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	return f.results[url], nil
}

func nodes(selectors ...string) []scan.AxeNode {
	out := make([]scan.AxeNode, len(selectors))
	for i, s := range selectors {
		out[i] = scan.AxeNode{Target: []string{s}}
	}
	return out
}

func readFile(path string, v any) {
	raw, err := os.ReadFile(path)
	So(err, ShouldBeNil)
	So(json.Unmarshal(raw, v), ShouldBeNil)
}

func TestCheckpoint(t *testing.T) {
	Convey("Given a checkpoint file", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "cp.json")
		cp := scan.NewCheckpoint[scan.AxeCheckpoint](path)

		Convey("Loading before any save reports nothing", func() {
			_, ok, err := cp.Load("https://site.test")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("A saved record loads back for the same target", func() {
			So(cp.Save(scan.AxeCheckpoint{BaseURL: "https://site.test", CompletedRoutes: []string{"/"}}), ShouldBeNil)
			rec, ok, err := cp.Load("https://site.test")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(rec.CompletedRoutes, ShouldResemble, []string{"/"})

			entries, err := os.ReadDir(filepath.Dir(path))
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
		})

		Convey("A record for another target is discarded", func() {
			So(cp.Save(scan.AxeCheckpoint{BaseURL: "https://old.test"}), ShouldBeNil)
			_, ok, err := cp.Load("https://site.test")
			So(errors.Is(err, scan.ErrCheckpointMismatch), ShouldBeTrue)
			So(ok, ShouldBeFalse)
			_, statErr := os.Stat(path)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("A corrupt record is discarded", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o750), ShouldBeNil)
			So(os.WriteFile(path, []byte("{"), 0o600), ShouldBeNil)
			_, ok, err := cp.Load("https://site.test")
			So(err, ShouldNotBeNil)
			So(ok, ShouldBeFalse)
			_, statErr := os.Stat(path)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("Clearing a missing record is not an error", func() {
			So(cp.Clear(), ShouldBeNil)
		})
	})
}

func TestAxeRunner(t *testing.T) {
	Convey("Given an axe runner", t, func() {
		dir := t.TempDir()
		auditor := &fakeAuditor{
			results: map[string][]scan.AxeViolation{
				"https://site.test/": {
					{ID: "color-contrast", Impact: "serious", Help: "Contrast", Nodes: nodes(".a", ".b", ".a", ".c", ".d")},
				},
				"https://site.test/a": {
					{ID: "image-alt", Impact: "critical", Help: "Alt text", Nodes: nodes("img.hero")},
					{ID: "color-contrast", Impact: "serious", Help: "Contrast", Nodes: nodes(".e")},
				},
			},
			fail: map[string]error{},
		}
		runner := scan.NewAxeRunner(auditor, dir, scan.WithClock(clock))

		Convey("When every route is audited", func() {
			summary, err := runner.Run(context.Background(), "https://site.test/", []string{"/", "/a"})
			So(err, ShouldBeNil)

			Convey("Then the findings keep every deduplicated selector", func() {
				var findings scan.AxeFindings
				readFile(filepath.Join(dir, scan.AxeFindingsFile), &findings)
				So(findings.Routes, ShouldResemble, []string{"/", "/a"})
				So(findings.Violations, ShouldHaveLength, 3)
				So(findings.Violations[0].Selectors, ShouldResemble, []string{".a", ".b", ".c", ".d"})
			})

			Convey("And the summary is capped and sorted by impact", func() {
				So(summary.TotalViolations, ShouldEqual, 3)
				So(summary.Violations, ShouldHaveLength, 2)
				So(summary.Violations[0].ID, ShouldEqual, "image-alt")
				contrast := summary.Violations[1]
				So(contrast.Count, ShouldEqual, 5)
				So(contrast.Elements, ShouldResemble, []string{".a", ".b", ".c"})
				So(contrast.Routes, ShouldResemble, []string{"/", "/a"})
				So(summary.ByImpact, ShouldResemble, map[string]int{"critical": 1, "serious": 1})
			})

			Convey("And the checkpoint is removed", func() {
				_, err := os.Stat(filepath.Join(dir, scan.AxeCheckpointFile))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When a checkpoint for the same target lists / as done", func() {
			cp := scan.NewCheckpoint[scan.AxeCheckpoint](filepath.Join(dir, scan.AxeCheckpointFile))
			So(cp.Save(scan.AxeCheckpoint{
				BaseURL:         "https://site.test",
				CompletedRoutes: []string{"/"},
				Violations:      []scan.RouteViolation{{Route: "/", ID: "region", Impact: "moderate", Selectors: []string{"main"}}},
			}), ShouldBeNil)

			summary, err := runner.Run(context.Background(), "https://site.test", []string{"/", "/a"})
			So(err, ShouldBeNil)

			Convey("Then only /a is audited and the results are merged", func() {
				So(auditor.calls, ShouldResemble, []string{"https://site.test/a"})
				So(summary.Routes, ShouldEqual, 2)
				ids := []string{}
				for _, v := range summary.Violations {
					ids = append(ids, v.ID)
				}
				So(ids, ShouldResemble, []string{"image-alt", "color-contrast", "region"})
			})
		})

		Convey("When the checkpoint belongs to another target", func() {
			cp := scan.NewCheckpoint[scan.AxeCheckpoint](filepath.Join(dir, scan.AxeCheckpointFile))
			So(cp.Save(scan.AxeCheckpoint{BaseURL: "https://staging.test", CompletedRoutes: []string{"/", "/a"}}), ShouldBeNil)

			_, err := runner.Run(context.Background(), "https://site.test", []string{"/", "/a"})
			So(err, ShouldBeNil)
			So(auditor.calls, ShouldHaveLength, 2)
		})

		Convey("When one route fails", func() {
			auditor.fail["https://site.test/"] = errors.New("navigation timeout")
			summary, err := runner.Run(context.Background(), "https://site.test", []string{"/", "/a"})

			Convey("Then the error is recorded and the run continues", func() {
				So(err, ShouldBeNil)
				So(auditor.calls, ShouldHaveLength, 2)
				So(summary.Errors, ShouldResemble, []scan.RouteError{{Route: "/", Error: "navigation timeout"}})
				So(summary.TotalViolations, ShouldEqual, 2)
			})
		})

		Convey("When the run is cancelled part way", func() {
			ctx, cancel := context.WithCancel(context.Background())
			auditor.results["https://site.test/"] = nil
			cancelling := &cancelAfterFirst{next: auditor, cancel: cancel}
			r := scan.NewAxeRunner(cancelling, dir, scan.WithClock(clock))
			_, err := r.Run(ctx, "https://site.test", []string{"/", "/a"})

			Convey("Then the completed route stays checkpointed", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				var cp scan.AxeCheckpoint
				readFile(filepath.Join(dir, scan.AxeCheckpointFile), &cp)
				So(cp.CompletedRoutes, ShouldResemble, []string{"/"})
			})
		})

		Convey("When the base URL is not absolute", func() {
			_, err := runner.Run(context.Background(), "site.test", []string{"/"})
			So(errors.Is(err, scan.ErrInvalidTarget), ShouldBeTrue)
		})
	})
}

type cancelAfterFirst struct {
	next   scan.Auditor
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) Audit(ctx context.Context, url string) ([]scan.AxeViolation, error) {
	defer c.cancel()
	return c.next.Audit(ctx, url)
}

type fakeCLI struct {
	report []byte
	err    error
	calls  int
}

func (f *fakeCLI) Report(context.Context, string) ([]byte, error) {
	f.calls++
	return f.report, f.err
}

const lhReport = `{
 "requestedUrl": "https://site.test/",
 "categories": {
  "performance": {"title": "Performance", "score": 0.87},
  "accessibility": {"title": "Accessibility", "score": 1}
 },
 "audits": {
  "largest-contentful-paint": {"id": "largest-contentful-paint", "title": "LCP", "score": 0.4, "displayValue": "3.9 s"},
  "image-alt": {"id": "image-alt", "title": "Images have alt", "score": 0},
  "document-title": {"id": "document-title", "title": "Has title", "score": 1},
  "diagnostics": {"id": "diagnostics", "title": "Diagnostics", "score": null}
 }
}`

func TestLighthouseRunner(t *testing.T) {
	Convey("Given a Lighthouse runner", t, func() {
		dir := t.TempDir()
		cli := &fakeCLI{report: []byte(lhReport)}
		runner := scan.NewLighthouseRunner(cli, dir, scan.WithClock(clock))

		Convey("When it runs for the first time", func() {
			summary, err := runner.Run(context.Background(), "https://site.test")
			So(err, ShouldBeNil)

			Convey("Then failing audits are listed worst first", func() {
				So(cli.calls, ShouldEqual, 1)
				So(summary.Cached, ShouldBeFalse)
				So(summary.Categories, ShouldResemble, map[string]int{"performance": 87, "accessibility": 100})
				So(summary.TotalIssues, ShouldEqual, 2)
				So(summary.TopIssues[0].ID, ShouldEqual, "image-alt")
				So(summary.TopIssues[1].DisplayValue, ShouldEqual, "3.9 s")

				var findings scan.LighthouseFindings
				readFile(filepath.Join(dir, scan.LighthouseFindingsFile), &findings)
				So(findings.Issues, ShouldHaveLength, 2)
			})

			Convey("And the status is completed", func() {
				st, ok, err := scan.ReadLighthouseStatus(dir)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(st.Status, ShouldEqual, scan.StatusCompleted)
			})

			Convey("And a second run reuses the cached report", func() {
				again, err := runner.Run(context.Background(), "https://site.test/")
				So(err, ShouldBeNil)
				So(cli.calls, ShouldEqual, 1)
				So(again.Cached, ShouldBeTrue)
				So(again.TotalIssues, ShouldEqual, 2)
			})

			Convey("And a fresh run ignores the cache", func() {
				fresh := scan.NewLighthouseRunner(cli, dir, scan.WithClock(clock), scan.WithFresh(true))
				_, err := fresh.Run(context.Background(), "https://site.test")
				So(err, ShouldBeNil)
				So(cli.calls, ShouldEqual, 2)
			})

			Convey("And another target runs again", func() {
				_, err := runner.Run(context.Background(), "https://other.test")
				So(err, ShouldBeNil)
				So(cli.calls, ShouldEqual, 2)
			})
		})

		Convey("When the CLI cannot be found", func() {
			cli.err = scan.ErrToolNotFound
			_, err := runner.Run(context.Background(), "https://site.test")

			Convey("Then the run fails and the status says so", func() {
				So(errors.Is(err, scan.ErrToolNotFound), ShouldBeTrue)
				st, ok, _ := scan.ReadLighthouseStatus(dir)
				So(ok, ShouldBeTrue)
				So(st.Status, ShouldEqual, scan.StatusFailed)
				So(st.Error, ShouldContainSubstring, "not found")
				_, statErr := os.Stat(filepath.Join(dir, scan.LighthouseResultFile))
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When the report is not JSON", func() {
			cli.report = []byte("<html>")
			_, err := runner.Run(context.Background(), "https://site.test")
			So(err, ShouldNotBeNil)
			_, statErr := os.Stat(filepath.Join(dir, scan.LighthouseResultFile))
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})
	})
}
