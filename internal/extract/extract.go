package extract

import (
	"sync"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// FromScript runs all five extractors against a single captured script in
// parallel and unions their candidates through Merge. When two extractors
// agree on the same package name for the same script, the merged candidate
// keeps the higher confidence and the method and context of whichever
// extractor comes first in the list below; the other extractor's method
// and context are not kept.
func FromScript(script *model.CapturedScript) []model.Candidate {
	if script == nil {
		return nil
	}

	jobs := []func() []model.Candidate{
		func() []model.Candidate { return ASTImports(script.URL, script.Body) },
		func() []model.Candidate { return SourceMapSources(script.URL, script.SourceMap) },
		func() []model.Candidate { return BundlerManifest(script.URL, script.Body) },
		func() []model.Candidate { return BundlerHeuristic(script.URL, script.Body) },
		func() []model.Candidate { return Deobfuscate(script.URL, script.Body) },
	}

	results := make([][]model.Candidate, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job func() []model.Candidate) {
			defer wg.Done()
			results[i] = job()
		}(i, job)
	}
	wg.Wait()

	return Merge(results...)
}

// Merge unions any number of candidate slices, keyed by script URL and
// package name. Duplicate candidates collapse into one, keeping the
// highest confidence observed; call CandidateEvidence on the same groups
// to recover the full per-key provenance list.
func Merge(groups ...[]model.Candidate) []model.Candidate {
	order := make([]string, 0)
	merged := map[string]model.Candidate{}

	for _, group := range groups {
		for _, c := range group {
			key := c.Key()
			if existing, ok := merged[key]; ok {
				if c.Confidence > existing.Confidence {
					existing.Confidence = c.Confidence
					merged[key] = existing
				}
				continue
			}
			merged[key] = c
			order = append(order, key)
		}
	}

	out := make([]model.Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

// CandidateEvidence recomputes the per-key evidence list for a set of
// candidate groups, mirroring Merge's grouping. Given unmerged groups it
// records every extractor's contribution per key. The orchestrator passes
// it the per-script lists FromScript returns, which are already merged, so
// there each key maps to a single item.
func CandidateEvidence(groups ...[]model.Candidate) map[string][]model.Evidence {
	evidence := map[string][]model.Evidence{}
	for _, group := range groups {
		for _, c := range group {
			key := c.Key()
			evidence[key] = append(evidence[key], model.Evidence{
				Method:    c.Method,
				ScriptURL: c.ScriptURL,
				Context:   c.Context,
			})
		}
	}
	return evidence
}
