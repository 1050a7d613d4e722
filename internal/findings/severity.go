// Package findings assembles classified candidates into the final, sorted,
// deduplicated Finding set for a target, and implements the severity
// mapping table.
package findings

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// internalTokens are substrings whose presence in an unscoped package name
// suggests it names an internal-only artifact rather than a plausible
// public package, which raises severity on a NotFound result.
var internalTokens = []string{
	"internal", "private", "corp", "acme", "-inc-", "enterprise",
}

// CompanyTokens can be extended by the caller (e.g. from a config file) to
// add organization-specific internal-sounding tokens.
var CompanyTokens []string

// looksInternal applies the severity-heuristic grammar of an unscoped name:
// a small pinned token list plus any caller-supplied company tokens. This
// is deliberately a narrower, separate vocabulary from the filter stack's
// false-positive heuristics (§4.2) — it only ever raises severity, never
// drops a candidate.
func looksInternal(name string) bool {
	lower := strings.ToLower(name)
	for _, t := range internalTokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	for _, t := range CompanyTokens {
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// IsScoped reports whether name is of the form @scope/pkg.
func IsScoped(name string) bool {
	return strings.HasPrefix(name, "@") && strings.Contains(name, "/")
}

// Severity is the pure function of (class, scoped?, name-heuristic)
// required by the severity mapping table.
func Severity(name string, class model.PackageClass) model.Severity {
	switch class {
	case model.ClassExists:
		return model.SeverityInfo
	case model.ClassScopeNotClaimed:
		return model.SeverityCritical
	case model.ClassNotFound:
		if IsScoped(name) {
			// Scope is claimed (else it would have classified as
			// ScopeNotClaimed) but the exact package is missing.
			return model.SeverityHigh
		}
		if looksInternal(name) {
			return model.SeverityHigh
		}
		return model.SeverityMedium
	default: // Unknown
		return model.SeverityInfo
	}
}

// Classified is the input to Assemble: one candidate merged with its
// registry classification.
type Classified struct {
	Candidate model.Candidate
	Class     model.PackageClass
}

// Assemble merges classified candidates by name, builds evidence lists,
// computes severity and confidence, and returns a deterministically sorted
// Finding slice (severity descending, then name ascending) per the
// ordering-guarantees requirement on report output.
func Assemble(classified []Classified) []model.Finding {
	type accum struct {
		class      model.PackageClass
		evidence   []model.Evidence
		confidence model.Confidence
	}
	byName := make(map[string]*accum)
	order := make([]string, 0, len(classified))

	for _, c := range classified {
		a, ok := byName[c.Candidate.Name]
		if !ok {
			a = &accum{class: c.Class}
			byName[c.Candidate.Name] = a
			order = append(order, c.Candidate.Name)
		}
		// Exists/NotFound/ScopeNotClaimed all agree across duplicate
		// lookups of the same name (P2 cache coherence); Unknown should
		// not clobber a resolved class if one was already seen.
		if a.class == model.ClassUnknown && c.Class != model.ClassUnknown {
			a.class = c.Class
		}
		a.evidence = append(a.evidence, model.Evidence{
			Method:    c.Candidate.Method,
			ScriptURL: c.Candidate.ScriptURL,
			Context:   c.Candidate.Context,
		})
		if c.Candidate.Confidence > a.confidence {
			a.confidence = c.Candidate.Confidence
		}
	}

	out := make([]model.Finding, 0, len(order))
	for _, name := range order {
		a := byName[name]
		if a.class == model.ClassUnknown {
			// Unknown entries are excluded from findings per the spec's
			// chosen default policy; callers track the count separately.
			continue
		}
		out = append(out, model.Finding{
			Name:       name,
			Class:      a.class,
			Severity:   Severity(name, a.class),
			Confidence: a.confidence,
			Evidence:   a.evidence,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CountUnknown returns how many distinct candidate names classified as
// Unknown, for the per-target error-count surfaced alongside findings.
func CountUnknown(classified []Classified) int {
	seen := make(map[string]struct{})
	for _, c := range classified {
		if c.Class == model.ClassUnknown {
			seen[c.Candidate.Name] = struct{}{}
		}
	}
	return len(seen)
}

// FilterByConfidence drops findings below the threshold, applied last per
// the --min-confidence flag.
func FilterByConfidence(in []model.Finding, min model.Confidence) []model.Finding {
	out := in[:0:0]
	for _, f := range in {
		if f.Confidence >= min {
			out = append(out, f)
		}
	}
	return out
}

// FilterScopedOnly drops unscoped findings, applied when --scoped-only is set.
func FilterScopedOnly(in []model.Finding) []model.Finding {
	out := in[:0:0]
	for _, f := range in {
		if IsScoped(f.Name) {
			out = append(out, f)
		}
	}
	return out
}
