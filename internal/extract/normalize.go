// Package extract implements the five independent candidate extractors
// (E1-E5): syntactic AST imports, source-map sources, bundler manifests,
// bundler heuristic patterns, and deobfuscation. Each extractor takes a
// captured script and returns Candidates; the orchestrator unions them.
package extract

import (
	"strings"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// builtinModules mirrors the Node.js built-in module list used to reject
// candidates before they ever reach the filter stack, so the filter
// stack's own builtin layer only has to catch what slips through here.
var builtinModules = map[string]struct{}{
	"assert": {}, "async_hooks": {}, "buffer": {}, "child_process": {},
	"cluster": {}, "console": {}, "constants": {}, "crypto": {}, "dgram": {},
	"dns": {}, "domain": {}, "events": {}, "fs": {}, "http": {}, "http2": {},
	"https": {}, "inspector": {}, "module": {}, "net": {}, "os": {}, "path": {},
	"perf_hooks": {}, "process": {}, "punycode": {}, "querystring": {},
	"readline": {}, "repl": {}, "stream": {}, "string_decoder": {}, "sys": {},
	"timers": {}, "tls": {}, "trace_events": {}, "tty": {}, "url": {},
	"util": {}, "v8": {}, "vm": {}, "wasi": {}, "worker_threads": {}, "zlib": {},
}

func isNodeBuiltin(name string) bool {
	base := strings.TrimPrefix(name, "node:")
	_, ok := builtinModules[base]
	return ok
}

// isValidPackageNameSegment enforces npm's syntactic rules for a single
// unscoped name or the package half of a scoped name.
func isValidPackageNameSegment(name string) bool {
	if name == "" || len(name) > 214 {
		return false
	}
	if name[0] == '.' || name[0] == '_' {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

func isValidScope(scope string) bool {
	if !strings.HasPrefix(scope, "@") {
		return false
	}
	return isValidPackageNameSegment(scope[1:])
}

// NormalizePackageName takes a raw import/require string argument (or a
// path segment reconstructed by one of the other extractors) and returns
// the canonical package name npm would publish it under, or false if the
// string cannot be a package reference at all. This is the single choke
// point every extractor funnels string material through before it ever
// becomes a Candidate.
func NormalizePackageName(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if trimmed[0] == '.' || trimmed[0] == '/' {
		return "", false
	}
	if isNodeBuiltin(trimmed) {
		return "", false
	}

	if strings.HasPrefix(trimmed, "@") {
		parts := strings.SplitN(trimmed, "/", 3)
		if len(parts) < 2 {
			return "", false
		}
		scope, pkg := parts[0], parts[1]
		if !isValidScope(scope) || !isValidPackageNameSegment(pkg) {
			return "", false
		}
		return scope + "/" + pkg, true
	}

	pkg, _, _ := strings.Cut(trimmed, "/")
	if !isValidPackageNameSegment(pkg) {
		return "", false
	}
	return pkg, true
}

// packageFromPathSegment reconstructs a package name from the tail of a
// path that has already had its "node_modules/" or "packages/" prefix
// stripped, handling the scoped two-segment case.
func packageFromPathSegment(segment string) (string, bool) {
	segment = strings.TrimPrefix(segment, "/")
	if segment == "" {
		return "", false
	}
	if strings.HasPrefix(segment, "@") {
		parts := strings.SplitN(segment, "/", 3)
		if len(parts) < 2 {
			return "", false
		}
		return NormalizePackageName(parts[0] + "/" + parts[1])
	}
	head, _, _ := strings.Cut(segment, "/")
	return NormalizePackageName(head)
}

func cand(name string, method model.ExtractionMethod, scriptURL, context string, confidence model.Confidence) model.Candidate {
	return model.Candidate{
		Name:       name,
		Method:     method,
		ScriptURL:  scriptURL,
		Context:    context,
		Confidence: confidence,
	}
}
