package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/convtrack/pkg/logger"
	"github.com/okian/convtrack/pkg/metrics"
)

// File names written under the output directory.
const (
	LighthouseResultFile   = "lh-result.json"
	LighthouseStatusFile   = "lh-status.json"
	LighthouseFindingsFile = "lh-findings.json"
)

const (
	toolLighthouse = "lighthouse"

	// summaryIssues caps the issues listed in a Lighthouse summary.
	summaryIssues = 10
)

// Lighthouse run states recorded in the status file.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// LighthouseCLI produces a Lighthouse JSON report for one URL.
type LighthouseCLI interface {
	Report(ctx context.Context, url string) ([]byte, error)
}

// LighthouseStatus is the content of the status file.
type LighthouseStatus struct {
	BaseURL    string    `json:"baseUrl"`
	Status     string    `json:"status"`
	Cached     bool      `json:"cached"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// LighthouseResult caches the full report for one base URL.
type LighthouseResult struct {
	BaseURL   string          `json:"baseUrl"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Report    json.RawMessage `json:"report"`
}

// TargetURL implements Target.
func (r LighthouseResult) TargetURL() string { return r.BaseURL }

// lighthouseReport is the part of a Lighthouse report the runner reads.
type lighthouseReport struct {
	Categories map[string]struct {
		Title string   `json:"title"`
		Score *float64 `json:"score"`
	} `json:"categories"`
	Audits map[string]struct {
		ID           string   `json:"id"`
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		Score        *float64 `json:"score"`
		DisplayValue string   `json:"displayValue"`
	} `json:"audits"`
}

// LighthouseIssue is an audit that did not pass.
type LighthouseIssue struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Score        float64 `json:"score"`
	DisplayValue string  `json:"displayValue,omitempty"`
}

// LighthouseFindings is the uncapped report.
type LighthouseFindings struct {
	BaseURL    string            `json:"baseUrl"`
	ScannedAt  time.Time         `json:"scannedAt"`
	Categories map[string]int    `json:"categories"`
	Issues     []LighthouseIssue `json:"issues"`
}

// LighthouseSummary is the compact result of a Lighthouse run.
type LighthouseSummary struct {
	BaseURL      string            `json:"baseUrl"`
	Cached       bool              `json:"cached"`
	Categories   map[string]int    `json:"categories"`
	TotalIssues  int               `json:"totalIssues"`
	TopIssues    []LighthouseIssue `json:"topIssues"`
	FindingsPath string            `json:"findingsPath"`
}

// LighthouseRunner runs Lighthouse once per base URL and caches the report.
type LighthouseRunner struct {
	cli    LighthouseCLI
	dir    string
	result *Checkpoint[LighthouseResult]
	now    func() time.Time
	log    logger.Logger
	fresh  bool
}

// NewLighthouseRunner returns a runner writing its files under dir.
func NewLighthouseRunner(cli LighthouseCLI, dir string, opts ...Option) *LighthouseRunner {
	o := applyOptions(opts)
	return &LighthouseRunner{
		cli:    cli,
		dir:    dir,
		result: NewCheckpoint[LighthouseResult](filepath.Join(dir, LighthouseResultFile)),
		now:    o.now,
		log:    o.log.Named("lighthouse"),
		fresh:  o.fresh,
	}
}

// Run produces findings for baseURL. A cached report for the same URL is
// reused; otherwise the CLI runs and its report is cached before it is
// analyzed. ErrToolNotFound from the CLI fails the run.
func (r *LighthouseRunner) Run(ctx context.Context, baseURL string) (LighthouseSummary, error) {
	base, err := normalizeBase(baseURL)
	if err != nil {
		return LighthouseSummary{}, err
	}
	status := LighthouseStatus{BaseURL: base, Status: StatusRunning, StartedAt: r.now()}
	if err := r.writeStatus(status); err != nil {
		return LighthouseSummary{}, err
	}

	if r.fresh {
		if err := r.result.Clear(); err != nil {
			return LighthouseSummary{}, r.fail(status, err)
		}
	}
	cached, ok, err := r.result.Load(base)
	if err != nil {
		r.log.Warn(ctx, "discarding cached report", logger.Error(err))
	}
	if ok {
		metrics.RecordScanUnit(toolLighthouse, "skipped")
		r.log.Info(ctx, "using cached report", logger.String("fetchedAt", cached.FetchedAt.Format(time.RFC3339)))
		status.Cached = true
	} else {
		raw, err := r.cli.Report(ctx, base)
		if err != nil {
			metrics.RecordScanUnit(toolLighthouse, "error")
			return LighthouseSummary{}, r.fail(status, err)
		}
		metrics.RecordScanUnit(toolLighthouse, "ok")
		cached = LighthouseResult{BaseURL: base, FetchedAt: r.now(), Report: raw}
		if err := r.result.Save(cached); err != nil {
			return LighthouseSummary{}, r.fail(status, err)
		}
	}

	var report lighthouseReport
	if err := json.Unmarshal(cached.Report, &report); err != nil {
		// An unreadable report must not be reused by the next run.
		return LighthouseSummary{}, r.fail(status, errors.Join(fmt.Errorf("decode lighthouse report: %w", err), r.result.Clear()))
	}

	findings := LighthouseFindings{
		BaseURL:    base,
		ScannedAt:  r.now(),
		Categories: categoryScores(report),
		Issues:     failingAudits(report),
	}
	findingsPath := filepath.Join(r.dir, LighthouseFindingsFile)
	if err := writeJSON(findingsPath, findings); err != nil {
		return LighthouseSummary{}, r.fail(status, err)
	}

	status.Status = StatusCompleted
	status.FinishedAt = r.now()
	if err := r.writeStatus(status); err != nil {
		return LighthouseSummary{}, err
	}

	top := findings.Issues
	if len(top) > summaryIssues {
		top = top[:summaryIssues]
	}
	return LighthouseSummary{
		BaseURL:      base,
		Cached:       status.Cached,
		Categories:   findings.Categories,
		TotalIssues:  len(findings.Issues),
		TopIssues:    top,
		FindingsPath: findingsPath,
	}, nil
}

func (r *LighthouseRunner) writeStatus(s LighthouseStatus) error {
	return writeJSON(filepath.Join(r.dir, LighthouseStatusFile), s)
}

// fail records cause in the status file and returns it.
func (r *LighthouseRunner) fail(s LighthouseStatus, cause error) error {
	s.Status = StatusFailed
	s.FinishedAt = r.now()
	s.Error = cause.Error()
	if err := r.writeStatus(s); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// ReadLighthouseStatus returns the status file under dir, if any.
func ReadLighthouseStatus(dir string) (LighthouseStatus, bool, error) {
	var s LighthouseStatus
	ok, err := readJSON(filepath.Join(dir, LighthouseStatusFile), &s)
	return s, ok, err
}

// categoryScores converts 0..1 category scores to 0..100.
func categoryScores(r lighthouseReport) map[string]int {
	out := make(map[string]int, len(r.Categories))
	for id, c := range r.Categories {
		if c.Score == nil {
			continue
		}
		out[id] = int(*c.Score*100 + 0.5)
	}
	return out
}

// failingAudits lists every scored audit below 1, worst first.
func failingAudits(r lighthouseReport) []LighthouseIssue {
	out := []LighthouseIssue{}
	for id, a := range r.Audits {
		if a.Score == nil || *a.Score >= 1 {
			continue
		}
		if a.ID != "" {
			id = a.ID
		}
		out = append(out, LighthouseIssue{
			ID:           id,
			Title:        a.Title,
			Description:  a.Description,
			Score:        *a.Score,
			DisplayValue: a.DisplayValue,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
