package browser

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/config"
)

// Launcher owns the lifecycle of the headless Chrome/Chromium process. A
// single Launcher is shared across the scheduler's worker pool; each
// worker asks it for a fresh tab context per host group.
type Launcher struct {
	logger          *zap.Logger
	cfg             config.BrowserConfig
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// NewLauncher builds the exec allocator and verifies the browser starts
// and responds before returning, so a broken Chrome install fails fast at
// startup rather than on the first scanned target.
func NewLauncher(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{logger: logger.Named("browser_launcher"), cfg: cfg}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	l.allocatorCtx = allocCtx
	l.allocatorCancel = cancel

	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	defer cancelTest()
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	l.logger.Info("browser launched and responsive", zap.Bool("headless", cfg.Headless))
	return l, nil
}

// allocatorOptions assembles the flags for a headless, CI/container-safe
// Chrome instance. A custom --chrome-path is honored when set; otherwise
// chromedp locates a binary on PATH/well-known locations itself.
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", l.cfg.Headless),
		chromedp.Flag("disable-extensions", true),
	)

	if l.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ChromePath))
	}

	for _, arg := range l.cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewTab creates a fresh browser tab (a chromedp.NewContext derived from
// the shared allocator) and returns its context plus a teardown func. The
// scheduler calls this once per host-group session and closes it when the
// group finishes or the session needs to be recreated after a failure.
func (l *Launcher) NewTab() (context.Context, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(l.allocatorCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create browser tab: %w", err)
	}
	return tabCtx, cancel, nil
}

// Shutdown terminates the browser process. Safe to call once; subsequent
// calls are no-ops because the allocator context is already canceled.
func (l *Launcher) Shutdown() {
	if l.allocatorCancel != nil {
		l.allocatorCancel()
	}
}
