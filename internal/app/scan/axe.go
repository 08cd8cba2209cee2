// Package scan runs accessibility and performance audits as resumable jobs.
// Progress is checkpointed after every unit of work so an interrupted run
// resumes where it stopped, and every run ends with an uncapped findings
// file plus a compact summary.
package scan

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

// File names written under the output directory.
const (
	AxeCheckpointFile = "axe-checkpoint.json"
	AxeFindingsFile   = "axe-findings.json"
)

const (
	toolAxe = "axe"

	// summaryElements caps the selectors listed per violation in a summary.
	summaryElements = 3
)

// impactRank orders axe impact levels from most to least severe.
var impactRank = map[string]int{"critical": 0, "serious": 1, "moderate": 2, "minor": 3}

func rankOf(impact string) int {
	if r, ok := impactRank[impact]; ok {
		return r
	}
	return len(impactRank)
}

// AxeNode is one element flagged by a rule.
type AxeNode struct {
	Target []string `json:"target"`
	HTML   string   `json:"html,omitempty"`
}

// AxeViolation is one rule violation as reported by axe-core.
type AxeViolation struct {
	ID      string    `json:"id"`
	Impact  string    `json:"impact"`
	Help    string    `json:"help"`
	HelpURL string    `json:"helpUrl"`
	Nodes   []AxeNode `json:"nodes"`
}

// Auditor runs axe-core against one URL.
type Auditor interface {
	Audit(ctx context.Context, url string) ([]AxeViolation, error)
}

// RouteViolation is a violation found on one route with its deduplicated
// selectors.
type RouteViolation struct {
	Route     string   `json:"route"`
	ID        string   `json:"id"`
	Impact    string   `json:"impact"`
	Help      string   `json:"help"`
	HelpURL   string   `json:"helpUrl"`
	Selectors []string `json:"selectors"`
}

// RouteError records a route that could not be audited.
type RouteError struct {
	Route string `json:"route"`
	Error string `json:"error"`
}

// AxeCheckpoint is the persisted progress of an axe run.
type AxeCheckpoint struct {
	BaseURL         string           `json:"baseUrl"`
	CompletedRoutes []string         `json:"completedRoutes"`
	Violations      []RouteViolation `json:"violations"`
	Errors          []RouteError     `json:"errors"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// TargetURL implements Target.
func (c AxeCheckpoint) TargetURL() string { return c.BaseURL }

func (c *AxeCheckpoint) completed(route string) bool {
	for _, r := range c.CompletedRoutes {
		if r == route {
			return true
		}
	}
	return false
}

// AxeFindings is the uncapped report.
type AxeFindings struct {
	BaseURL    string           `json:"baseUrl"`
	ScannedAt  time.Time        `json:"scannedAt"`
	Routes     []string         `json:"routes"`
	Violations []RouteViolation `json:"violations"`
	Errors     []RouteError     `json:"errors"`
}

// SummaryViolation groups one rule across routes.
type SummaryViolation struct {
	ID       string   `json:"id"`
	Impact   string   `json:"impact"`
	Help     string   `json:"help"`
	Routes   []string `json:"routes"`
	Count    int      `json:"count"`
	Elements []string `json:"elements"`
}

// AxeSummary is the compact result of an axe run.
type AxeSummary struct {
	BaseURL         string             `json:"baseUrl"`
	Routes          int                `json:"routes"`
	TotalViolations int                `json:"totalViolations"`
	ByImpact        map[string]int     `json:"byImpact"`
	Violations      []SummaryViolation `json:"violations"`
	Errors          []RouteError       `json:"errors"`
	FindingsPath    string             `json:"findingsPath"`
}

// AxeRunner audits a list of routes one at a time.
type AxeRunner struct {
	auditor    Auditor
	dir        string
	checkpoint *Checkpoint[AxeCheckpoint]
	now        func() time.Time
	log        logger.Logger
	fresh      bool
}

// NewAxeRunner returns a runner writing its files under dir.
func NewAxeRunner(auditor Auditor, dir string, opts ...Option) *AxeRunner {
	o := applyOptions(opts)
	return &AxeRunner{
		auditor:    auditor,
		dir:        dir,
		checkpoint: NewCheckpoint[AxeCheckpoint](filepath.Join(dir, AxeCheckpointFile)),
		now:        o.now,
		log:        o.log.Named("axe"),
		fresh:      o.fresh,
	}
}

// Run audits every route of baseURL. Routes completed by an earlier run for
// the same base URL are skipped and their results merged. A route that
// fails is recorded and the run continues. The checkpoint is removed once
// the findings are written.
func (r *AxeRunner) Run(ctx context.Context, baseURL string, routes []string) (AxeSummary, error) {
	base, err := normalizeBase(baseURL)
	if err != nil {
		return AxeSummary{}, err
	}

	if r.fresh {
		if err := r.checkpoint.Clear(); err != nil {
			return AxeSummary{}, err
		}
	}
	cp, ok, err := r.checkpoint.Load(base)
	switch {
	case err != nil:
		r.log.Warn(ctx, "starting without checkpoint", logger.Error(err))
	case ok:
		r.log.Info(ctx, "resuming from checkpoint",
			logger.Int("completed", len(cp.CompletedRoutes)), logger.Int("routes", len(routes)))
	}
	if !ok {
		cp = AxeCheckpoint{BaseURL: base}
	}

	for _, route := range routes {
		if cp.completed(route) {
			metrics.RecordScanUnit(toolAxe, "skipped")
			continue
		}
		if err := ctx.Err(); err != nil {
			return AxeSummary{}, err
		}

		target := base + route
		violations, err := r.auditor.Audit(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return AxeSummary{}, ctx.Err()
			}
			metrics.RecordScanUnit(toolAxe, "error")
			r.log.Warn(ctx, "route audit failed", logger.String("route", route), logger.Error(err))
			cp.Errors = append(cp.Errors, RouteError{Route: route, Error: err.Error()})
		} else {
			metrics.RecordScanUnit(toolAxe, "ok")
			r.log.Info(ctx, "route audited", logger.String("route", route), logger.Int("violations", len(violations)))
			cp.Violations = append(cp.Violations, routeViolations(route, violations)...)
		}
		cp.CompletedRoutes = append(cp.CompletedRoutes, route)
		cp.UpdatedAt = r.now()
		if err := r.checkpoint.Save(cp); err != nil {
			return AxeSummary{}, err
		}
	}

	findings := AxeFindings{
		BaseURL:    base,
		ScannedAt:  r.now(),
		Routes:     cp.CompletedRoutes,
		Violations: nonNil(cp.Violations),
		Errors:     nonNil(cp.Errors),
	}
	findingsPath := filepath.Join(r.dir, AxeFindingsFile)
	if err := writeJSON(findingsPath, findings); err != nil {
		return AxeSummary{}, err
	}
	if err := r.checkpoint.Clear(); err != nil {
		return AxeSummary{}, err
	}

	summary := summarizeAxe(findings)
	summary.FindingsPath = findingsPath
	return summary, nil
}

// routeViolations attaches route to each violation and deduplicates its
// selectors in first-seen order.
func routeViolations(route string, vs []AxeViolation) []RouteViolation {
	out := make([]RouteViolation, 0, len(vs))
	for _, v := range vs {
		seen := make(map[string]struct{}, len(v.Nodes))
		selectors := make([]string, 0, len(v.Nodes))
		for _, n := range v.Nodes {
			sel := strings.Join(n.Target, " ")
			if sel == "" {
				continue
			}
			if _, dup := seen[sel]; dup {
				continue
			}
			seen[sel] = struct{}{}
			selectors = append(selectors, sel)
		}
		out = append(out, RouteViolation{
			Route:     route,
			ID:        v.ID,
			Impact:    v.Impact,
			Help:      v.Help,
			HelpURL:   v.HelpURL,
			Selectors: selectors,
		})
	}
	return out
}

// summarizeAxe groups violations by rule, caps the listed elements and sorts
// by impact, then by how many elements are affected.
func summarizeAxe(f AxeFindings) AxeSummary {
	s := AxeSummary{
		BaseURL:  f.BaseURL,
		Routes:   len(f.Routes),
		ByImpact: map[string]int{},
		Errors:   f.Errors,
	}
	index := map[string]int{}
	seen := map[string]map[string]struct{}{}
	for _, v := range f.Violations {
		s.TotalViolations++
		i, ok := index[v.ID]
		if !ok {
			i = len(s.Violations)
			index[v.ID] = i
			seen[v.ID] = map[string]struct{}{}
			s.Violations = append(s.Violations, SummaryViolation{ID: v.ID, Impact: v.Impact, Help: v.Help})
			s.ByImpact[impactKey(v.Impact)]++
		}
		sv := &s.Violations[i]
		sv.Routes = append(sv.Routes, v.Route)
		for _, sel := range v.Selectors {
			if _, dup := seen[v.ID][sel]; dup {
				continue
			}
			seen[v.ID][sel] = struct{}{}
			sv.Count++
			if len(sv.Elements) < summaryElements {
				sv.Elements = append(sv.Elements, sel)
			}
		}
	}
	sort.SliceStable(s.Violations, func(i, j int) bool {
		a, b := s.Violations[i], s.Violations[j]
		if ra, rb := rankOf(a.Impact), rankOf(b.Impact); ra != rb {
			return ra < rb
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ID < b.ID
	})
	if s.Violations == nil {
		s.Violations = []SummaryViolation{}
	}
	return s
}

func impactKey(impact string) string {
	if impact == "" {
		return "unknown"
	}
	return impact
}

func normalizeBase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
