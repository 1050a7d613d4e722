package extract

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// manifestPatterns are E3: shapes that enumerate a module-id-to-path table
// wholesale, rather than referencing one package at a time. A hit here is
// high confidence because the surrounding syntax makes the path's role
// unambiguous.
var manifestPatterns = []*regexp.Regexp{
	// webpack module factory table: "node_modules/lodash/index.js": function(...)
	regexp.MustCompile(`["'](?:\./)?node_modules/([^"']+)["']\s*:\s*\(?function`),
	// webpack module id comment: /* 42 */ "node_modules/lodash/index.js"
	regexp.MustCompile(`/\*\s*\d+\s*\*/\s*["']([^"']+)["']`),
	// Parcel 2 module map: "node_modules/lodash/index.js": [function(...)
	regexp.MustCompile(`["']node_modules/([^"']+)["']\s*:\s*\[?\s*function`),
	// esbuild __commonJS / __esm manifest keys.
	regexp.MustCompile(`__(?:commonJS|esm)\s*\(\s*\{\s*["']node_modules/([^"']+)["']`),
	// Turbopack project-relative module path.
	regexp.MustCompile(`\[project\]/node_modules/(@[\w-]+/[\w.-]+|[\w.-]+)`),
}

// heuristicFamily groups E4's per-bundler pattern sets so provenance can
// record which family matched.
type heuristicFamily struct {
	name     string
	patterns []*regexp.Regexp
	// demangle reverses an underscore-for-slash scope mangling specific to
	// this bundler family, or returns the candidate unchanged.
	demangle func(string) string
}

var scopeLikeTokens = map[string]struct{}{
	"company": {}, "internal": {}, "private": {}, "org": {}, "team": {},
}

func demangleUnderscoreScope(s string) string {
	if strings.HasPrefix(s, "@") {
		return s
	}
	prefix, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	if _, ok := scopeLikeTokens[prefix]; !ok {
		return s
	}
	return "@" + prefix + "/" + rest
}

var heuristicFamilies = []heuristicFamily{
	{
		name: "webpack",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`window\["webpackJsonp"\]|webpackJsonp`),
			regexp.MustCompile(`vendors?[~-](@?[\w-]+(?:/[\w.-]+)?)`),
		},
	},
	{
		name: "vite",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`from\s*["']/node_modules/\.vite/deps/([^"'?]+)`),
			regexp.MustCompile(`/@id/__x00__(@[\w-]+/[\w.-]+|[\w.-]+)`),
			regexp.MustCompile(`chunk[_-](@?[\w-]+(?:/[\w.-]+)?)[_-][a-f0-9]+`),
			regexp.MustCompile(`vendor[._-](@?[\w-]+(?:/[\w.-]+)?)`),
			regexp.MustCompile(`/\*#__PURE__\*/\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
		},
		demangle: demangleUnderscoreScope,
	},
	{
		name: "parcel",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`parcelRequire\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`\$parcel\$require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`/\*\s*(@[\w-]+/[\w.-]+)\s*\*/`),
		},
	},
	{
		name: "turbopack",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`__turbopack_require__\s*\(\s*["']\[project\]/node_modules/([^"'\]]+)`),
			regexp.MustCompile(`__turbopack_import__\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`__turbopack_external_require__\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`turbopack[_-]?binding\s*\[\s*["']([^"']+)["']\s*\]`),
		},
	},
	{
		name: "esbuild",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`__require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`__toESM\s*\(\s*require_([a-zA-Z0-9_]+)\s*\(\s*\)\s*\)`),
			regexp.MustCompile(`var\s+init_([a-zA-Z0-9_]+)\s*=\s*__esm`),
			regexp.MustCompile(`//\s*node_modules/(@[\w-]+/[\w.-]+|[\w.-]+)`),
		},
		demangle: demangleUnderscoreScope,
	},
	{
		name: "swc",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`_interop_require_\w+\s*\(\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`_export_star\s*\(\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`from\s*["'](@swc/[\w.-]+)["']`),
		},
	},
	{
		name: "minified-generic",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:var|let|const)\s+[a-z]\s*=\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`\w\s*\[\s*["']require["']\s*\]\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`Object\.assign\s*\([^,]+,\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`\{\s*\.\.\.require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`module\.exports\s*=\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`\?\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`&&\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`\[\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
			regexp.MustCompile(`\(\s*\d+\s*,\s*require\s*\(\s*["']([^"']+)["']\s*\)`),
		},
	},
}

// BundlerManifest is E3: scans for known module-table shapes and applies
// the same node_modules/-segment extraction E2 uses against source maps.
func BundlerManifest(url string, body []byte) []model.Candidate {
	text := string(body)
	seen := map[string]model.Candidate{}
	for _, re := range manifestPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := m[1]
			name, ok := resolveManifestPath(raw)
			if !ok {
				continue
			}
			if _, exists := seen[name]; !exists {
				seen[name] = cand(name, model.MethodBundlerManifest, url, raw, model.ConfidenceHigh)
			}
		}
	}
	return flatten(seen)
}

// trimJSExtension strips a trailing bundler-added script extension from a
// single path segment so a captured reference like "company_widgets.js"
// demangles to the scope it actually names rather than carrying the file
// suffix into the package name.
func trimJSExtension(s string) string {
	if !strings.Contains(s, "/") {
		for _, ext := range []string{".mjs", ".cjs", ".js"} {
			if strings.HasSuffix(s, ext) {
				return strings.TrimSuffix(s, ext)
			}
		}
	}
	return s
}

func resolveManifestPath(raw string) (string, bool) {
	path := raw
	if idx := strings.Index(path, "node_modules/"); idx >= 0 {
		path = path[idx+len("node_modules/"):]
	}
	return packageFromPathSegment(path)
}

// BundlerHeuristic is E4: a library of per-bundler-family regexes that
// recognize embedded package references outside manifests. Provenance
// records the matching family, and underscore-mangled scoped names
// (Vite/esbuild) are demangled before normalization.
func BundlerHeuristic(url string, body []byte) []model.Candidate {
	text := string(body)
	seen := map[string]model.Candidate{}
	for _, family := range heuristicFamilies {
		confidence := model.ConfidenceHigh
		if family.name == "minified-generic" {
			confidence = model.ConfidenceMedium
		}
		for _, re := range family.patterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				if len(m) < 2 {
					continue
				}
				raw := trimJSExtension(m[1])
				if family.demangle != nil {
					raw = family.demangle(raw)
				}
				name, ok := NormalizePackageName(raw)
				if !ok {
					continue
				}
				key := family.name + "\x00" + name
				if _, exists := seen[key]; !exists {
					seen[key] = cand(name, model.MethodBundlerHeuristic, url, family.name+": "+raw, confidence)
				}
			}
		}
	}
	return flatten(seen)
}

func flatten(seen map[string]model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}
