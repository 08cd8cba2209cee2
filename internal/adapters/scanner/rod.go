// Package scanner binds the scan runners to their external tools: a headless
// Chrome driven through Rod for axe-core, and the Lighthouse CLI.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/goccy/go-json"

	"github.com/okian/convtrack/internal/app/scan"
	"github.com/okian/convtrack/pkg/logger"
)

const (
	defaultNavigationTimeout = 30 * time.Second

	// EnvChromePath overrides browser discovery.
	EnvChromePath = "CHROME_PATH"
)

// axeRun evaluates axe-core in the page and returns its violations as a
// JSON string.
const axeRun = `() => axe.run(document, { resultTypes: ["violations"] })
	.then(r => JSON.stringify(r.violations))`

// ResolveChrome returns the Chrome binary to drive: CHROME_PATH when set,
// otherwise the first browser found on the system.
func ResolveChrome() (string, error) {
	if p := os.Getenv(EnvChromePath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s=%s: %v", scan.ErrToolNotFound, EnvChromePath, p, err)
		}
		return p, nil
	}
	if p, ok := launcher.LookPath(); ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: no chrome or chromium binary found", scan.ErrToolNotFound)
}

// RodOption configures a RodAuditor.
type RodOption func(*RodAuditor)

// WithNavigationTimeout bounds loading and auditing one page.
func WithNavigationTimeout(d time.Duration) RodOption {
	return func(a *RodAuditor) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithControlURL connects to an already running browser instead of
// launching one.
func WithControlURL(u string) RodOption {
	return func(a *RodAuditor) { a.controlURL = u }
}

// RodAuditor runs axe-core in headless Chrome.
type RodAuditor struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
	script     string
	timeout    time.Duration
	log        logger.Logger
}

var _ scan.Auditor = (*RodAuditor)(nil)

// NewRodAuditor loads the axe-core script at scriptPath and starts the
// browser. A missing script or browser is ErrToolNotFound.
func NewRodAuditor(scriptPath string, opts ...RodOption) (*RodAuditor, error) {
	raw, err := os.ReadFile(scriptPath)
	if errors.Is(err, fs.ErrNotExist) || scriptPath == "" {
		return nil, fmt.Errorf("%w: axe-core script %q", scan.ErrToolNotFound, scriptPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read axe-core script: %w", err)
	}

	a := &RodAuditor{
		script:  string(raw),
		timeout: defaultNavigationTimeout,
		log:     logger.OrNop().Named("rod"),
	}
	for _, opt := range opts {
		opt(a)
	}

	wsURL := a.controlURL
	if wsURL == "" {
		bin, err := ResolveChrome()
		if err != nil {
			return nil, err
		}
		a.launcher = launcher.New().Bin(bin).Headless(true)
		if wsURL, err = a.launcher.Launch(); err != nil {
			return nil, fmt.Errorf("%w: launch %s: %v", scan.ErrToolNotFound, bin, err)
		}
		a.log.Info(context.Background(), "launched headless chrome", logger.String("bin", bin))
	}

	a.browser = rod.New().ControlURL(wsURL)
	if err := a.browser.Connect(); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return a, nil
}

// Audit opens url in a fresh tab, injects axe-core and returns the
// violations it reports.
func (a *RodAuditor) Audit(ctx context.Context, url string) ([]scan.AxeViolation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	page, err := a.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.log.Debug(context.Background(), "close tab", logger.Error(err))
		}
	}()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	if err := p.AddScriptTag("", a.script); err != nil {
		return nil, fmt.Errorf("inject axe-core: %w", err)
	}
	res, err := p.Eval(axeRun)
	if err != nil {
		return nil, fmt.Errorf("run axe-core: %w", err)
	}
	var violations []scan.AxeViolation
	if err := json.Unmarshal([]byte(res.Value.Str()), &violations); err != nil {
		return nil, fmt.Errorf("decode axe-core result: %w", err)
	}
	return violations, nil
}

// Close shuts the browser down.
func (a *RodAuditor) Close() error {
	var err error
	if a.browser != nil {
		err = a.browser.Close()
	}
	a.cleanup()
	return err
}

func (a *RodAuditor) cleanup() {
	if a.launcher != nil {
		a.launcher.Kill()
		a.launcher.Cleanup()
	}
}
