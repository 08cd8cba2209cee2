package scanner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/okian/convtrack/internal/app/scan"
	"github.com/okian/convtrack/pkg/logger"
)

// DefaultLighthouseBin is the CLI looked up on PATH.
const DefaultLighthouseBin = "lighthouse"

var defaultLighthouseFlags = []string{
	"--output=json",
	"--output-path=stdout",
	"--quiet",
	"--only-categories=performance,accessibility,best-practices,seo",
	"--chrome-flags=--headless=new --no-sandbox",
}

// Lighthouse runs the Lighthouse CLI as a subprocess.
type Lighthouse struct {
	bin    string
	chrome string
	flags  []string
	log    logger.Logger
}

var _ scan.LighthouseCLI = (*Lighthouse)(nil)

// NewLighthouse resolves the CLI and the Chrome binary it will drive. Either
// missing is ErrToolNotFound.
func NewLighthouse(bin string) (*Lighthouse, error) {
	if bin == "" {
		bin = DefaultLighthouseBin
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", scan.ErrToolNotFound, bin, err)
	}
	chrome, err := ResolveChrome()
	if err != nil {
		return nil, err
	}
	return &Lighthouse{
		bin:    path,
		chrome: chrome,
		flags:  defaultLighthouseFlags,
		log:    logger.OrNop().Named("lighthouse"),
	}, nil
}

// Report runs Lighthouse against url and returns the JSON report.
func (l *Lighthouse) Report(ctx context.Context, url string) ([]byte, error) {
	args := append([]string{url}, l.flags...)
	cmd := exec.CommandContext(ctx, l.bin, args...) //nolint:gosec // binary resolved by LookPath, url validated by the runner
	cmd.Env = append(os.Environ(), EnvChromePath+"="+l.chrome)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.log.Info(ctx, "running lighthouse", logger.String("url", url), logger.String("bin", l.bin))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("lighthouse %s: %w: %s", url, err, lastLine(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
