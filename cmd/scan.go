// File: cmd/scan.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/scalpeldep/internal/alert"
	"github.com/xkilldash9x/scalpeldep/internal/browser"
	"github.com/xkilldash9x/scalpeldep/internal/config"
	"github.com/xkilldash9x/scalpeldep/internal/model"
	"github.com/xkilldash9x/scalpeldep/internal/network"
	"github.com/xkilldash9x/scalpeldep/internal/observability"
	"github.com/xkilldash9x/scalpeldep/internal/orchestrator"
	"github.com/xkilldash9x/scalpeldep/internal/registry"
	"github.com/xkilldash9x/scalpeldep/internal/report"
	"github.com/xkilldash9x/scalpeldep/internal/scheduler"
	"github.com/xkilldash9x/scalpeldep/internal/setup"
	"github.com/xkilldash9x/scalpeldep/internal/sourcemap"
)

var scanFlags config.ScanConfig

var scanCmd = &cobra.Command{
	Use:   "scan [OPTIONS] [TARGETS...]",
	Short: "Scan one or more web applications for hijackable dependency names",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanFlags.Targets = args
		return runScan(cmd.Context(), cmd, &scanFlags)
	},
}

func init() {
	flags := scanCmd.Flags()
	flags.StringVarP(&scanFlags.TargetFile, "file", "f", "", "read target URLs from file, one per line")
	flags.IntVarP(&scanFlags.Parallel, "parallel", "p", 1, "host-scheduler width")
	flags.StringVarP(&scanFlags.Output, "output", "o", "", "write report to file (default stdout)")
	flags.BoolVar(&scanFlags.JSON, "json", false, "emit machine-readable report")
	flags.BoolVar(&scanFlags.Fast, "fast", false, "short settle debounce")
	flags.BoolVarP(&scanFlags.Quiet, "quiet", "q", false, "suppress targets with no findings")
	flags.BoolVar(&scanFlags.ScopedOnly, "scoped-only", false, "drop unscoped candidates after filter stack")
	flags.BoolVar(&scanFlags.SkipNpmCheck, "skip-npm-check", false, "emit all candidates with class Unknown")
	flags.StringVar(&scanFlags.MinConfidence, "min-confidence", "low", "confidence threshold: low, medium, high")
	flags.String("chrome-path", "", "override browser binary")
	flags.DurationVar(&scanFlags.Timeout, "timeout", 30*time.Second, "per-target deadline")
	flags.Float64("rate-limit", 10, "registry bucket size (requests/sec)")
	flags.IntVar(&scanFlags.MaxRetries, "max-retries", 3, "script-fetch retry budget")
	flags.Bool("telegram", false, "enable alert forwarder for High+ findings")
	flags.BoolVarP(&scanFlags.Verbose, "verbose", "v", false, "log filtered-out candidates")

	rootCmd.AddCommand(scanCmd)
}

func runScan(ctx context.Context, cmd *cobra.Command, sc *config.ScanConfig) error {
	logger := observability.GetLogger()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg.SetScanConfig(*sc)

	chromePath, _ := cmd.Flags().GetString("chrome-path")
	rateLimit, _ := cmd.Flags().GetFloat64("rate-limit")
	telegramEnabled, _ := cmd.Flags().GetBool("telegram")
	cfg.SetRegistryRateLimit(rateLimit)
	cfg.SetBrowserHeadless(true)

	browserCfg := cfg.Browser()
	resolvedPath, err := setup.Ensure(chromePath, logger)
	if err != nil {
		return fmt.Errorf("usage error: %w", err)
	}
	browserCfg.ChromePath = resolvedPath

	targets, err := collectTargets(sc)
	if err != nil {
		return fmt.Errorf("usage error: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("usage error: no targets given (pass URLs or --file)")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher, err := browser.NewLauncher(ctx, logger, browserCfg)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer launcher.Shutdown()

	netCfg := cfg.Network()
	httpClient := network.NewClient(network.NewDefaultClientConfig())
	reg := registry.NewClient(cfg.Registry(), netCfg)
	fetcher := sourcemap.NewFetcher(httpClient, logger, sc.MaxRetries)

	orch := orchestrator.New(reg, fetcher, httpClient, logger, cfg.Discovery(), browserCfg, *sc)
	sched := scheduler.New(launcher, orch, logger, sc.Parallel, sc.Timeout)

	telegramCfg := cfg.Telegram()
	telegramCfg.Enabled = telegramCfg.Enabled || telegramEnabled
	forwarder, _ := alert.New(telegramCfg, netCfg, logger)

	reports := sched.Run(ctx, targets)
	for _, r := range reports {
		forwarder.ForwardTarget(ctx, r)
	}

	out := os.Stdout
	if sc.Output != "" {
		f, err := os.Create(sc.Output)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if sc.JSON {
		if err := report.WriteJSON(out, reports, time.Now()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	} else {
		if err := report.WriteText(out, reports, sc.Quiet); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	return exitStatus(reports)
}

// exitStatus maps the scan's outcome onto the documented exit codes: 2
// when every target failed, 3 when at least one Critical finding was
// reported (advisory, since the flag that opts into treating it as a
// hard failure is left to the caller's shell), 0 otherwise.
func exitStatus(reports []*model.TargetReport) error {
	if len(reports) == 0 {
		return nil
	}
	allFailed := true
	hasCritical := false
	for _, r := range reports {
		if r.Status != model.StatusError && r.Status != model.StatusTimedOut {
			allFailed = false
		}
		for _, f := range r.Findings {
			if f.Severity == model.SeverityCritical {
				hasCritical = true
			}
		}
	}
	if allFailed {
		return exitCodeError{code: 2, msg: "all targets failed"}
	}
	if hasCritical {
		return exitCodeError{code: 3, msg: "at least one critical finding"}
	}
	return nil
}

// exitCodeError carries a non-default process exit code through cobra's
// error-returning RunE without forcing every caller to parse the message.
type exitCodeError struct {
	code int
	msg  string
}

func (e exitCodeError) Error() string { return e.msg }

func collectTargets(sc *config.ScanConfig) ([]string, error) {
	targets := append([]string{}, sc.Targets...)
	if sc.TargetFile == "" {
		return targets, nil
	}
	f, err := os.Open(sc.TargetFile)
	if err != nil {
		return nil, fmt.Errorf("open target file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read target file: %w", err)
	}
	return targets, nil
}
