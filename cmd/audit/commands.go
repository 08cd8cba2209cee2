package main

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/okian/convtrack/internal/adapters/scanner"
	"github.com/okian/convtrack/internal/app/scan"
	"github.com/okian/convtrack/internal/config"
	"github.com/okian/convtrack/pkg/logger"
)

const (
	defaultAxeScript  = "node_modules/axe-core/axe.min.js"
	defaultNavTimeout = 30 * time.Second
)

// auditor is a scan.Auditor holding a browser.
type auditor interface {
	scan.Auditor
	Close() error
}

// tools builds the external tool bindings. Tests replace them with fakes.
type tools struct {
	newAuditor    func(script string, timeout time.Duration) (auditor, error)
	newLighthouse func(bin string) (scan.LighthouseCLI, error)
}

func defaultTools() tools {
	return tools{
		newAuditor: func(script string, timeout time.Duration) (auditor, error) {
			a, err := scanner.NewRodAuditor(script, scanner.WithNavigationTimeout(timeout))
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		newLighthouse: func(bin string) (scan.LighthouseCLI, error) {
			l, err := scanner.NewLighthouse(bin)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
	}
}

type rootFlags struct {
	baseURL string
	out     string
	fresh   bool
}

func newRootCmd(cfg *config.Config, t tools) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "audit",
		Short: "Run resumable accessibility and performance scans",
		Long: `audit drives axe-core and Lighthouse against a site. Progress is
checkpointed under the output directory after every route, so an interrupted
scan resumes where it stopped. Each scan writes an uncapped findings file and
prints a compact JSON summary.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", cfg.AuditBaseURL, "site to audit")
	root.PersistentFlags().StringVar(&flags.out, "out", cfg.AuditDir, "directory for checkpoints and findings")
	root.PersistentFlags().BoolVar(&flags.fresh, "fresh", false, "ignore checkpoints and cached results")

	root.AddCommand(newAxeCmd(cfg, t, flags), newLighthouseCmd(cfg, t, flags), newStatusCmd(flags))
	return root
}

func newAxeCmd(cfg *config.Config, t tools, flags *rootFlags) *cobra.Command {
	script := cfg.AxeScript
	if script == "" {
		script = defaultAxeScript
	}
	routes := append([]string(nil), cfg.AuditRoutes...)
	timeout := defaultNavTimeout

	cmd := &cobra.Command{
		Use:   "axe",
		Short: "Audit routes with axe-core in headless Chrome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := t.newAuditor(script, timeout)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Get().Warn(ctx, "failed to close browser", logger.Error(err))
				}
			}()

			runner := scan.NewAxeRunner(a, flags.out, scan.WithFresh(flags.fresh), scan.WithLogger(logger.Get()))
			summary, err := runner.Run(ctx, flags.baseURL, routes)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringArrayVar(&routes, "route", routes, "route to audit; repeat for several")
	cmd.Flags().StringVar(&script, "axe-script", script, "path to axe.min.js")
	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "per-route navigation and audit timeout")
	return cmd
}

func newLighthouseCmd(cfg *config.Config, t tools, flags *rootFlags) *cobra.Command {
	bin := cfg.LighthouseBin
	cmd := &cobra.Command{
		Use:   "lighthouse",
		Short: "Run Lighthouse once against the base URL",
		Long: `lighthouse runs the Lighthouse CLI against the base URL and writes
lh-findings.json plus a summary of the ten worst audits.

The raw report is kept in lh-result.json after the run completes and is
reused by the next run for the same base URL. Pass --fresh to discard it
and run Lighthouse again.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := t.newLighthouse(bin)
			if err != nil {
				return err
			}
			runner := scan.NewLighthouseRunner(cli, flags.out, scan.WithFresh(flags.fresh), scan.WithLogger(logger.Get()))
			summary, err := runner.Run(cmd.Context(), flags.baseURL)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&bin, "bin", bin, "lighthouse executable")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state of the last Lighthouse run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, ok, err := scan.ReadLighthouseStatus(flags.out)
			if err != nil {
				return err
			}
			if !ok {
				return printJSON(cmd, map[string]string{"status": "none"})
			}
			return printJSON(cmd, st)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
