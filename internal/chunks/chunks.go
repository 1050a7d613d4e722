// Package chunks discovers additional JavaScript URLs referenced from an
// already-captured script: lazy-loaded bundler chunks, and the fixed set
// of Next.js build-manifest URLs synthesized from an observed build ID.
// The per-target orchestrator feeds newly discovered URLs back through
// capture and extraction until a round produces nothing new or the
// bounded depth/count limits are hit.
package chunks

import (
	"net/url"
	"regexp"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

var chunkURLPatterns = []*regexp.Regexp{
	// Literal chunk filenames: "chunk-XXXX.js", "./chunk-XXXX.js", and the
	// .mjs variant some Angular/esbuild bundles use.
	regexp.MustCompile(`["']\.?/?(chunk-[a-zA-Z0-9_-]+\.m?js)["']`),
	// Dynamic import of a lazy chunk: import("./chunk-XXXX.js").
	regexp.MustCompile(`import\s*\(\s*["']\.?/?(chunk-[a-zA-Z0-9_-]+\.m?js)["']\s*\)`),
	// webpack's public-path concatenation: __webpack_require__.p + "chunk-XXXX."
	// followed by a runtime-computed hash and extension; we can only recover
	// the static prefix, so this pattern captures the literal filename form
	// webpack also emits directly for static (non-computed) chunk names.
	regexp.MustCompile(`__webpack_require__\.p\s*\+\s*["']([a-zA-Z0-9_.-]+\.m?js)["']`),
	// Vite's asset-URL-as-module form: new URL('/assets/chunk-XXXX.js', import.meta.url).
	regexp.MustCompile(`new\s+URL\s*\(\s*["']([^"']+\.m?js)["']\s*,\s*import\.meta\.url\s*\)`),
}

var nextBuildIDPattern = regexp.MustCompile(`_next/static/([a-zA-Z0-9_-]+)/`)

// DiscoverChunkURLs scans a script body for chunk-URL-shaped string
// literals and resolves each one against the script's own URL. Results
// are deduplicated within a single call; the caller is responsible for
// deduplicating against URLs already captured for the target.
func DiscoverChunkURLs(scriptURL string, body []byte) []string {
	base, err := url.Parse(scriptURL)
	if err != nil {
		return nil
	}
	content := string(body)
	seen := map[string]struct{}{}
	var out []string

	for _, re := range chunkURLPatterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			raw := m[1]
			resolved, err := resolve(base, raw)
			if err != nil {
				continue
			}
			if _, exists := seen[resolved]; exists {
				continue
			}
			seen[resolved] = struct{}{}
			out = append(out, resolved)
		}
	}
	return out
}

func resolve(base *url.URL, raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// NextBuildID extracts a Next.js build ID from a "_next/static/<buildId>/"
// path fragment observed anywhere in a captured script, or returns false
// if none is present.
func NextBuildID(body []byte) (string, bool) {
	m := nextBuildIDPattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// NextManifestURLs synthesizes the fixed set of Next.js build-manifest and
// runtime-chunk URLs for a given build ID, resolved against the site's
// origin. These are worth fetching unconditionally once a build ID is
// observed because they are rarely referenced by a literal string the page
// actually executes, yet almost always exist for a Next.js deployment.
func NextManifestURLs(siteURL, buildID string) []string {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil
	}
	origin := base.Scheme + "://" + base.Host

	paths := []string{
		"/_next/static/" + buildID + "/_buildManifest.js",
		"/_next/static/" + buildID + "/_ssgManifest.js",
		"/_next/static/chunks/webpack.js",
		"/_next/static/chunks/main.js",
		"/_next/static/chunks/framework.js",
		"/_next/static/chunks/pages/_app.js",
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = origin + p
	}
	return out
}

// Discoverer runs bounded iterative chunk discovery across successive
// rounds of newly captured scripts, enforcing a total per-target script
// cap. MaxDepth is carried for the caller; Next does not read it, and the
// orchestrator's round loop is what bounds the depth.
type Discoverer struct {
	MaxDepth    int
	MaxScripts  int
	seenURLs    map[string]struct{}
	seenBuildID bool
}

// NewDiscoverer builds a Discoverer with the given depth and per-target
// script-count limits. Callers pass the URLs already captured for the
// target (main-document scripts) to seed the seen-set.
func NewDiscoverer(maxDepth, maxScripts int, alreadyCaptured []string) *Discoverer {
	seen := make(map[string]struct{}, len(alreadyCaptured))
	for _, u := range alreadyCaptured {
		seen[u] = struct{}{}
	}
	return &Discoverer{MaxDepth: maxDepth, MaxScripts: maxScripts, seenURLs: seen}
}

// Next returns the set of not-yet-seen URLs discovered from one round of
// newly captured scripts, respecting the per-target script cap. It marks
// every returned URL as seen so a subsequent round never re-emits it.
// siteURL is used to resolve Next.js manifest URLs when a build ID is
// observed for the first time.
func (d *Discoverer) Next(siteURL string, round []*model.CapturedScript) []string {
	if len(d.seenURLs) >= d.MaxScripts {
		return nil
	}

	var candidates []string
	for _, script := range round {
		candidates = append(candidates, DiscoverChunkURLs(script.URL, script.Body)...)
		if !d.seenBuildID {
			if buildID, ok := NextBuildID(script.Body); ok {
				d.seenBuildID = true
				candidates = append(candidates, NextManifestURLs(siteURL, buildID)...)
			}
		}
	}

	var fresh []string
	for _, u := range candidates {
		if _, exists := d.seenURLs[u]; exists {
			continue
		}
		d.seenURLs[u] = struct{}{}
		fresh = append(fresh, u)
		if len(d.seenURLs) >= d.MaxScripts {
			break
		}
	}
	return fresh
}
