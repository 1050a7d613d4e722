// Package orchestrator sequences the per-target pipeline: browser capture,
// iterative chunk/source-map discovery, extraction, filtering, registry
// classification, and severity assignment. The host scheduler owns worker
// concurrency and session lifecycle; the orchestrator owns one target at a
// time, handed an already-acquired browser tab context.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/browser"
	"github.com/xkilldash9x/scalpeldep/internal/chunks"
	"github.com/xkilldash9x/scalpeldep/internal/config"
	"github.com/xkilldash9x/scalpeldep/internal/extract"
	"github.com/xkilldash9x/scalpeldep/internal/filter"
	"github.com/xkilldash9x/scalpeldep/internal/findings"
	"github.com/xkilldash9x/scalpeldep/internal/model"
	"github.com/xkilldash9x/scalpeldep/internal/network"
	"github.com/xkilldash9x/scalpeldep/internal/sourcemap"
)

// maxConcurrentScripts bounds per-script extraction fan-out within a single
// target, per the resource model's default of 32 concurrent scripts.
const maxConcurrentScripts = 32

// Registry is the subset of registry.Client the orchestrator depends on.
type Registry interface {
	LookupPackage(ctx context.Context, name string) (model.PackageClass, error)
}

// Orchestrator runs the per-target pipeline described above. One instance
// is shared across all targets a scheduler worker processes; it holds no
// per-target state between calls to Run.
type Orchestrator struct {
	registry   Registry
	fetcher    *sourcemap.Fetcher
	httpClient sourcemap.HTTPDoer
	logger     *zap.Logger
	discovery  config.DiscoveryConfig
	browser    config.BrowserConfig
	scan       config.ScanConfig
}

// New builds an Orchestrator. fetcher resolves source maps and httpClient
// retrieves the plain-HTTP body of a discovered chunk/manifest URL over
// the same transport (registry lookups and source-map probes already go
// through an equivalent client; chunk URLs are fetched the same way rather
// than via a fresh browser navigation, since they are standalone script
// files with no page semantics of their own).
func New(reg Registry, fetcher *sourcemap.Fetcher, httpClient sourcemap.HTTPDoer, logger *zap.Logger, discovery config.DiscoveryConfig, browserCfg config.BrowserConfig, scanCfg config.ScanConfig) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:   reg,
		fetcher:    fetcher,
		httpClient: httpClient,
		logger:     logger.Named("orchestrator"),
		discovery:  discovery,
		browser:    browserCfg,
		scan:       scanCfg,
	}
}

// Run executes the full pipeline for one target against an already-created
// browser tab context, returning a complete TargetReport even on partial
// failure (timeouts and capture errors are reflected in Status, not
// returned as a Go error, so the scheduler can always emit a report).
func (o *Orchestrator) Run(ctx context.Context, targetURL string, tabCtx context.Context, timeout time.Duration) *model.TargetReport {
	start := time.Now()
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := &model.TargetReport{URL: targetURL, Status: model.StatusOK}

	scripts, err := o.capture(deadline, tabCtx, targetURL)
	if err != nil {
		if len(scripts) == 0 {
			report.Duration = time.Since(start)
			if deadline.Err() != nil {
				report.Status = model.StatusTimedOut
			} else {
				report.Status = model.StatusError
				report.Errors = append(report.Errors, err.Error())
			}
			return report
		}
		// The page never settled within its debounce window, but the
		// navigation still yielded usable scripts — keep going with a
		// partial capture instead of throwing them away; the deadline
		// check at the end of this function marks the report timed-out.
		report.Errors = append(report.Errors, err.Error())
	}

	scripts = o.discoverAndFetch(deadline, targetURL, scripts)
	report.ScriptsSeen = len(scripts)

	candidates := o.extractAll(deadline, scripts)
	evidenceByKey := extract.CandidateEvidence(candidates...)

	var dropped *[]filter.Verdict
	if o.scan.Verbose {
		dropped = &[]filter.Verdict{}
	}
	survivors := filter.Stack(flatten(candidates), dropped)
	o.logDropped(dropped)

	classified := o.classify(deadline, survivors, evidenceByKey)
	findingsList := findings.Assemble(classified)
	findingsList = findings.FilterByConfidence(findingsList, minConfidence(o.scan.MinConfidence))
	if o.scan.ScopedOnly {
		findingsList = findings.FilterScopedOnly(findingsList)
	}

	report.Findings = findingsList
	report.UnknownCount = findings.CountUnknown(classified)
	report.Duration = time.Since(start)
	if deadline.Err() != nil {
		report.Status = model.StatusTimedOut
	}
	return report
}

// logDropped emits one log line per candidate the filter stack removed,
// only when --verbose asked for it (dropped is nil otherwise, so this is
// a no-op in the common case).
func (o *Orchestrator) logDropped(dropped *[]filter.Verdict) {
	if dropped == nil {
		return
	}
	for _, v := range *dropped {
		o.logger.Info("candidate filtered out",
			zap.String("name", v.Candidate.Name),
			zap.String("layer", v.Layer),
			zap.String("reason", v.Reason),
			zap.String("script_url", v.Candidate.ScriptURL))
	}
}

func minConfidence(s string) model.Confidence {
	c, ok := model.ParseConfidence(s)
	if !ok {
		return model.ConfidenceLow
	}
	return c
}

// capture drives the headless browser for the initial navigation. A page
// that fails to settle within its debounce window still yields every
// script captured up to that point, so those come back alongside the
// error rather than being discarded.
func (o *Orchestrator) capture(ctx context.Context, tabCtx context.Context, targetURL string) ([]*model.CapturedScript, error) {
	capturer := browser.NewCapturer(tabCtx, o.logger, o.browser.NavTimeout, o.browser.SettleDebounce, o.scan.Fast)
	scripts, err := capturer.Capture(ctx, targetURL)
	if err != nil {
		return scripts, fmt.Errorf("browser capture failed for %s: %w", targetURL, err)
	}
	return scripts, nil
}

// discoverAndFetch iteratively discovers lazy chunk URLs and resolves
// source maps for every captured script, feeding newly discovered scripts
// back through the same two steps until a round produces nothing new,
// MaxDepth rounds have run, or the discoverer's script cap is hit. Chunk URLs discovered this
// way are fetched over plain HTTP via the fetcher's client rather than a
// fresh navigation, since they are typically standalone script files with
// no page semantics of their own.
func (o *Orchestrator) discoverAndFetch(ctx context.Context, targetURL string, scripts []*model.CapturedScript) []*model.CapturedScript {
	already := make([]string, len(scripts))
	for i, s := range scripts {
		already[i] = s.URL
	}
	discoverer := chunks.NewDiscoverer(o.discovery.MaxDepth, o.discovery.MaxScripts, already)

	all := scripts
	round := scripts
	for depth := 0; depth < o.discovery.MaxDepth && len(round) > 0; depth++ {
		if ctx.Err() != nil {
			break
		}
		freshURLs := discoverer.Next(targetURL, round)
		if len(freshURLs) == 0 {
			break
		}
		var next []*model.CapturedScript
		for _, u := range freshURLs {
			if ctx.Err() != nil {
				break
			}
			body, contentType, ok := o.fetchScriptBody(ctx, u)
			if !ok {
				continue
			}
			cs := &model.CapturedScript{
				URL:         u,
				Body:        body,
				ContentType: contentType,
				Origin:      model.OriginChunkProbe,
				Depth:       depth + 1,
			}
			next = append(next, cs)
		}
		all = append(all, next...)
		round = next
	}

	o.attachSourceMaps(ctx, all)
	return all
}

func (o *Orchestrator) fetchScriptBody(ctx context.Context, scriptURL string) ([]byte, string, bool) {
	if o.httpClient == nil {
		return nil, "", false
	}
	resp, err := network.DoWithRetry(ctx, o.httpClient, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	}, o.scan.MaxRetries)
	if err != nil {
		o.logger.Debug("discovered script fetch failed", zap.String("url", scriptURL), zap.Error(err))
		return nil, "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", false
	}
	const maxScriptBytes = 32 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes))
	if err != nil {
		return nil, "", false
	}
	return body, resp.Header.Get("Content-Type"), true
}

func (o *Orchestrator) attachSourceMaps(ctx context.Context, scripts []*model.CapturedScript) {
	if o.fetcher == nil {
		return
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentScripts)
	for _, s := range scripts {
		if s.SourceMap != nil {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(s *model.CapturedScript) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			sm, mapURL, ok := o.fetcher.Fetch(ctx, s.URL, s.Body)
			if ok {
				s.SourceMap = sm
				s.SourceMapURL = mapURL
			}
		}(s)
	}
	wg.Wait()
}

// extractAll runs the five extractors against every captured script
// concurrently, bounded by maxConcurrentScripts.
func (o *Orchestrator) extractAll(ctx context.Context, scripts []*model.CapturedScript) [][]model.Candidate {
	results := make([][]model.Candidate, len(scripts))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentScripts)
	for i, s := range scripts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, s *model.CapturedScript) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			results[i] = extract.FromScript(s)
		}(i, s)
	}
	wg.Wait()
	return results
}

func flatten(groups [][]model.Candidate) []model.Candidate {
	var out []model.Candidate
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// classify queries the registry for every surviving candidate name,
// respecting --skip-npm-check to short-circuit straight to Unknown (the
// caller still wants filter-stack-surviving candidates reported as
// findings once a human decides to re-run with classification enabled, so
// Unknown candidates are preserved here and only dropped at Assemble). A
// name already on the layer 7 allowlist is classified Exists without
// touching the registry or --skip-npm-check at all: the allowlist itself
// is the source of truth there.
// Each survivor expands into one Classified entry per evidence item
// recorded under its key, falling back to the survivor's own provenance
// when none is recorded. Run builds evidenceByKey from candidates that
// FromScript has already merged per script, so there each key holds one
// item.
func (o *Orchestrator) classify(ctx context.Context, survivors []model.Candidate, evidenceByKey map[string][]model.Evidence) []findings.Classified {
	classes := make([]model.PackageClass, len(survivors))

	var toLookup []int
	for i, c := range survivors {
		if filter.IsWellKnown(c.Name) {
			classes[i] = model.ClassExists
		} else {
			toLookup = append(toLookup, i)
		}
	}

	if o.scan.SkipNpmCheck {
		for _, i := range toLookup {
			classes[i] = model.ClassUnknown
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, maxConcurrentScripts)
		for _, i := range toLookup {
			c := survivors[i]
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, c model.Candidate) {
				defer wg.Done()
				defer func() { <-sem }()
				class := model.ClassUnknown
				if ctx.Err() == nil {
					if resolved, err := o.registry.LookupPackage(ctx, c.Name); err == nil {
						class = resolved
					} else {
						o.logger.Debug("registry lookup failed", zap.String("name", c.Name), zap.Error(err))
					}
				}
				classes[i] = class
			}(i, c)
		}
		wg.Wait()
	}

	var out []findings.Classified
	for i, c := range survivors {
		evidence := evidenceByKey[c.Key()]
		if len(evidence) == 0 {
			evidence = []model.Evidence{{Method: c.Method, ScriptURL: c.ScriptURL, Context: c.Context}}
		}
		for _, ev := range evidence {
			out = append(out, findings.Classified{
				Candidate: model.Candidate{
					Name:       c.Name,
					Method:     ev.Method,
					ScriptURL:  ev.ScriptURL,
					Context:    ev.Context,
					Confidence: c.Confidence,
				},
				Class: classes[i],
			})
		}
	}
	return out
}
