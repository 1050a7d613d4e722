// Package scheduler implements the host-grouped worker pool that drives
// many targets through a shared Orchestrator. Targets are grouped by
// registrable domain so that a single browser session can be reused
// across same-site targets, and torn down only on session failure or at
// a group boundary.
package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// Runner is the subset of *orchestrator.Orchestrator the scheduler drives.
// Kept as an interface so tests can swap in a fake without a real browser.
type Runner interface {
	Run(ctx context.Context, targetURL string, tabCtx context.Context, timeout time.Duration) *model.TargetReport
}

// TabProvider is the subset of *browser.Launcher the scheduler needs.
type TabProvider interface {
	NewTab() (context.Context, context.CancelFunc, error)
}

// Scheduler groups targets by registrable domain and fans work out across
// a fixed-size worker pool. One instance drives an entire scan run.
type Scheduler struct {
	launcher TabProvider
	runner   Runner
	logger   *zap.Logger
	parallel int
	timeout  time.Duration
}

// New builds a Scheduler. parallel is clamped to at least 1 (the scheduler
// always makes progress even if --parallel was misconfigured to 0).
func New(launcher TabProvider, runner Runner, logger *zap.Logger, parallel int, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallel <= 0 {
		parallel = 1
	}
	return &Scheduler{
		launcher: launcher,
		runner:   runner,
		logger:   logger.Named("scheduler"),
		parallel: parallel,
		timeout:  timeout,
	}
}

// hostGroup is one registrable-domain's worth of targets, processed
// sequentially by whichever worker claims it.
type hostGroup struct {
	key     string
	targets []string
}

// Run groups targets, fans them out across the worker pool, and returns
// one TargetReport per input target (reports of one group stay together,
// and groups appear in the order workers finish them, not the original
// input order — callers that need input order should index the result by
// TargetReport.URL). Once ctx is cancelled, workers stop claiming groups,
// and targets in groups no worker claimed get no report.
func (s *Scheduler) Run(ctx context.Context, targets []string) []*model.TargetReport {
	groups := groupByHost(targets)
	s.logger.Info("grouped targets into host sessions",
		zap.Int("targets", len(targets)), zap.Int("groups", len(groups)))

	groupChan := make(chan hostGroup, len(groups))
	for _, g := range groups {
		groupChan <- g
	}
	close(groupChan)

	var (
		mu      sync.Mutex
		reports []*model.TargetReport
		wg      sync.WaitGroup
	)

	workerCount := s.parallel
	if workerCount > len(groups) && len(groups) > 0 {
		workerCount = len(groups)
	}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.runWorker(ctx, workerID, groupChan, &mu, &reports)
		}(i + 1)
	}
	wg.Wait()

	return reports
}

// runWorker claims host groups off the shared channel until it is drained
// or the context is cancelled, processing each group's targets
// sequentially against one reused browser tab.
func (s *Scheduler) runWorker(ctx context.Context, workerID int, groupChan <-chan hostGroup, mu *sync.Mutex, reports *[]*model.TargetReport) {
	logger := s.logger.With(zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, worker shutting down")
			return
		case group, ok := <-groupChan:
			if !ok {
				return
			}
			results := s.runGroup(ctx, logger, group)
			mu.Lock()
			*reports = append(*reports, results...)
			mu.Unlock()
		}
	}
}

// runGroup processes every target in a host group against one browser tab,
// recreating the tab if a target's session appears to have crashed it.
func (s *Scheduler) runGroup(ctx context.Context, logger *zap.Logger, group hostGroup) []*model.TargetReport {
	logger = logger.With(zap.String("session_id", uuid.New().String()))
	reports := make([]*model.TargetReport, 0, len(group.targets))

	tabCtx, cancelTab, err := s.launcher.NewTab()
	if err != nil {
		logger.Error("failed to open browser tab for host group", zap.String("host", group.key), zap.Error(err))
		for _, t := range group.targets {
			reports = append(reports, &model.TargetReport{
				URL:    t,
				Status: model.StatusError,
				Errors: []string{fmt.Errorf("no browser session available: %w", err).Error()},
			})
		}
		return reports
	}
	// Deferred as a closure, not defer cancelTab(), because cancelTab is
	// reassigned below on session-recreation: a direct defer would bind the
	// first tab's cancel func and leak every tab created after it.
	defer func() { cancelTab() }()

	for i, target := range group.targets {
		if ctx.Err() != nil {
			reports = append(reports, &model.TargetReport{URL: target, Status: model.StatusTimedOut})
			continue
		}

		report, sessionBroken := s.runOne(ctx, logger, target, tabCtx)
		reports = append(reports, report)

		if sessionBroken {
			cancelTab()
			newTabCtx, newCancel, err := s.launcher.NewTab()
			if err != nil {
				logger.Error("failed to recreate browser tab after session failure", zap.String("host", group.key), zap.Error(err))
				for _, rest := range group.targets[i+1:] {
					reports = append(reports, &model.TargetReport{
						URL:    rest,
						Status: model.StatusError,
						Errors: []string{fmt.Errorf("no browser session available: %w", err).Error()},
					})
				}
				break
			}
			tabCtx, cancelTab = newTabCtx, newCancel
		}
	}
	return reports
}

// runOne runs a single target through the orchestrator, recovering from a
// panic so one bad target cannot take the whole worker down. A panic is
// treated the same as a session failure: the caller recreates the tab
// before moving to the next target in the group.
func (s *Scheduler) runOne(ctx context.Context, logger *zap.Logger, target string, tabCtx context.Context) (report *model.TargetReport, sessionBroken bool) {
	taskID := uuid.NewString()
	logger = logger.With(zap.String("task_id", taskID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("target processing panicked",
				zap.String("target", target),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			report = &model.TargetReport{
				URL:    target,
				Status: model.StatusError,
				Errors: []string{fmt.Sprintf("panic: %v", r)},
			}
			sessionBroken = true
		}
	}()

	report = s.runner.Run(ctx, target, tabCtx, s.timeout)
	sessionBroken = report.Status == model.StatusError
	return report, sessionBroken
}

// groupByHost buckets targets by registrable domain (eTLD+1), so
// app.example.com and static.example.com share one session while
// app.example.com and app.other.com do not. A target with an unparseable
// URL or no host is grouped under its raw string, and a host the
// public-suffix lookup can't resolve is grouped under the bare host, so a
// bad input never silently disappears.
func groupByHost(targets []string) []hostGroup {
	order := make([]string, 0, len(targets))
	byKey := make(map[string][]string)

	for _, t := range targets {
		key := hostGroupKey(t)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], t)
	}

	groups := make([]hostGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, hostGroup{key: key, targets: byKey[key]})
	}
	return groups
}

func hostGroupKey(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	host := u.Hostname()
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}
