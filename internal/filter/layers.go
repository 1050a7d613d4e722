// Package filter implements the nine-layer false-positive filter over
// candidate package names, plus the curated empirical extensions drawn
// from a large corpus of real scan findings.
package filter

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// Verdict is one layer's keep/drop decision, with a reason for diagnosis.
// Candidate is filled in by Stack, not by the individual layer funcs, so
// a dropped candidate can still be identified in a verbose log line.
type Verdict struct {
	Keep      bool
	Layer     string
	Reason    string
	Candidate model.Candidate
}

// Layer is a pure function over a candidate and its match context.
type Layer func(c model.Candidate) Verdict

var packageNameRe = regexp.MustCompile(`^(@[a-z0-9][a-z0-9\-_.]*\/)?[a-z0-9][a-z0-9\-_.]*$`)

// layer0WellFormed implements §4.2 layer 0: the package-name grammar.
func layer0WellFormed(c model.Candidate) Verdict {
	name := c.Name
	if name == "" || len(name) > 214 {
		return Verdict{Keep: false, Layer: "well_formed", Reason: "empty or too long"}
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return Verdict{Keep: false, Layer: "well_formed", Reason: "leading dot or underscore"}
	}
	if !packageNameRe.MatchString(name) {
		return Verdict{Keep: false, Layer: "well_formed", Reason: "does not match package grammar"}
	}
	return Verdict{Keep: true}
}

var disallowedExtensions = []string{".js", ".css", ".svg", ".png", ".map", ".json", ".ts"}

// layer1PathLiteral implements §4.2 layer 1.
func layer1PathLiteral(c model.Candidate) Verdict {
	name := c.Name
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") || strings.HasPrefix(name, "/") {
		return Verdict{Keep: false, Layer: "path_literal", Reason: "relative or absolute path"}
	}
	if strings.Contains(name, "\\") {
		return Verdict{Keep: false, Layer: "path_literal", Reason: "contains backslash"}
	}
	lower := strings.ToLower(name)
	for _, ext := range disallowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return Verdict{Keep: false, Layer: "path_literal", Reason: "disallowed file extension"}
		}
	}
	return Verdict{Keep: true}
}

// layer2URL implements §4.2 layer 2.
func layer2URL(c model.Candidate) Verdict {
	name := c.Name
	if strings.Contains(name, "://") {
		return Verdict{Keep: false, Layer: "url", Reason: "contains scheme separator"}
	}
	if u, err := url.Parse(name); err == nil && u.Scheme != "" && u.Host != "" {
		return Verdict{Keep: false, Layer: "url", Reason: "parses as absolute URL"}
	}
	return Verdict{Keep: true}
}

// isBEMlike reports whether name has BEM-style block/element/modifier
// punctuation or a curated UI-component prefix/suffix.
func isBEMlike(name string) bool {
	if strings.Contains(name, "__") || strings.Contains(name, "--") {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range cssUIPrefixes {
		if strings.HasPrefix(lower, p+"-") {
			return true
		}
	}
	for _, s := range cssUISuffixes {
		if strings.HasSuffix(lower, "-"+s) {
			return true
		}
	}
	return false
}

// layer3CSS implements §4.2 layer 3.
func layer3CSS(c model.Candidate) Verdict {
	name := c.Name
	if strings.HasPrefix(name, "-") {
		return Verdict{Keep: false, Layer: "css_class", Reason: "leading hyphen"}
	}
	if isBEMlike(name) && !strings.HasPrefix(name, "@") {
		return Verdict{Keep: false, Layer: "css_class", Reason: "BEM-style class name"}
	}
	return Verdict{Keep: true}
}

var regexTrailingFlagsRe = regexp.MustCompile(`/[gimsuy]{1,6}$`)

// isLocaleKey reports whether an unscoped name looks like a dotted
// translation key (two or three lowercase, dot-separated segments, no
// hyphens).
func isLocaleKey(name string) bool {
	if strings.Contains(name, "-") {
		return false
	}
	segments := strings.Split(name, ".")
	if len(segments) < 2 || len(segments) > 3 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}

// layer4I18n implements §4.2 layer 4.
func layer4I18n(c model.Candidate) Verdict {
	name := c.Name
	if strings.Count(name, "..") > 0 {
		return Verdict{Keep: false, Layer: "i18n", Reason: "consecutive dots"}
	}
	if isLocaleKey(name) {
		return Verdict{Keep: false, Layer: "i18n", Reason: "dotted locale-key shape"}
	}
	for _, ind := range i18nNamespaceIndicators {
		if strings.Contains(name, ind) || strings.Contains(c.Context, ind) {
			return Verdict{Keep: false, Layer: "i18n", Reason: "i18n namespace indicator"}
		}
	}
	for _, p := range i18nScopePrefixes {
		if strings.HasPrefix(name, p) {
			return Verdict{Keep: false, Layer: "i18n", Reason: "i18n scope prefix"}
		}
	}
	return Verdict{Keep: true}
}

var hexHashSuffixRe = regexp.MustCompile(`^[0-9a-f]{32,}$`)

// isBundlerHashArtifact reports whether name is "@prefix_<32+ hex chars>".
func isBundlerHashArtifact(name string) bool {
	for _, prefix := range bundlerHashPrefixes {
		if strings.HasPrefix(name, prefix) {
			rest := name[len(prefix):]
			if hexHashSuffixRe.MatchString(rest) {
				return true
			}
		}
	}
	return false
}

// layer5BundlerInternal implements §4.2 layer 5.
func layer5BundlerInternal(c model.Candidate) Verdict {
	if _, ok := bundlerInternalNames[c.Name]; ok {
		return Verdict{Keep: false, Layer: "bundler_internal", Reason: "known bundler runtime identifier"}
	}
	if isBundlerHashArtifact(c.Name) {
		return Verdict{Keep: false, Layer: "bundler_internal", Reason: "bundler-hash artifact"}
	}
	return Verdict{Keep: true}
}

// layer6Builtin implements §4.2 layer 6.
func layer6Builtin(c model.Candidate) Verdict {
	name := strings.TrimPrefix(c.Name, "node:")
	if _, ok := builtinModules[name]; ok {
		return Verdict{Keep: false, Layer: "builtin", Reason: "node built-in module"}
	}
	return Verdict{Keep: true}
}

// IsWellKnown reports whether name is in the curated allowlist (layer 7).
// Apply consults it to bypass layers 8-9; it is also exported so the
// classification stage can short-circuit straight to Exists without a
// registry round trip.
func IsWellKnown(name string) bool {
	_, ok := wellKnownPackages[name]
	return ok
}

var hexIdentifierRe = regexp.MustCompile(`^0x[0-9a-f]+$`)

func vowelCount(s string) int {
	n := 0
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			n++
		}
	}
	return n
}

// layer8Minified implements §4.2 layer 8, including the obfuscation
// artifact absorption described in the spec.
func layer8Minified(c model.Candidate) Verdict {
	name := c.Name
	bare := strings.TrimPrefix(name, "@")
	if idx := strings.Index(bare, "/"); idx >= 0 {
		bare = bare[idx+1:]
	}
	if len(bare) <= 2 && !strings.Contains(bare, "-") {
		return Verdict{Keep: false, Layer: "minified", Reason: "single or two character identifier"}
	}
	if hexIdentifierRe.MatchString(name) {
		return Verdict{Keep: false, Layer: "minified", Reason: "hex-numeric identifier"}
	}
	for _, frag := range obfuscationArtifactFragments {
		if strings.Contains(strings.ToLower(name), frag) {
			return Verdict{Keep: false, Layer: "minified", Reason: "anti-bot/fingerprinting fragment"}
		}
	}
	// Judged on the whole name, so a scoped package is not dropped just
	// because its package half is short.
	if len(name) <= 5 && !strings.Contains(name, "-") && vowelCount(name) <= 1 {
		return Verdict{Keep: false, Layer: "minified", Reason: "short low-vowel identifier"}
	}
	return Verdict{Keep: true}
}

// isURLPathComponent reports whether the candidate appears embedded as a
// path segment of an absolute URL in its match context, excluding the
// webpack:// and node_modules contexts which are legitimate.
func isURLPathComponent(c model.Candidate) bool {
	ctx := c.Context
	if strings.Contains(ctx, "webpack://") || strings.Contains(ctx, "node_modules") {
		return false
	}
	idx := strings.Index(ctx, "://")
	if idx < 0 {
		return false
	}
	rest := ctx[idx+3:]
	return strings.Contains(rest, "/"+c.Name+"/") || strings.HasSuffix(rest, "/"+c.Name)
}

// isServiceIntegration reports whether the originating script URL's host
// matches a curated third-party SaaS CDN allowlist.
func isServiceIntegration(scriptURL string) bool {
	u, err := url.Parse(scriptURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range serviceIntegrationHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// isOdooModule implements the supplemental Odoo ERP module-namespace
// detector: Odoo's @scope_name convention is underscore-delimited where
// npm scopes are hyphen-delimited, which is the tell.
func isOdooModule(c model.Candidate) bool {
	nameMatches := false
	for _, p := range odooScopePrefixes {
		if strings.HasPrefix(c.Name, p) {
			nameMatches = true
			break
		}
	}
	if !nameMatches {
		if strings.HasPrefix(c.Name, "@") {
			scope := c.Name[1:]
			if idx := strings.Index(scope, "/"); idx >= 0 {
				scope = scope[:idx]
			}
			if strings.Count(scope, "_") >= 2 {
				nameMatches = true
			}
		}
	}
	if !nameMatches {
		return false
	}
	return strings.Contains(c.ScriptURL, "/web/assets/") || strings.Contains(c.Context, "odoo.define(")
}

// isLogOrCSSOrAttributeContext is a heuristic preceding-token scan: the
// candidate appears only inside a string that is clearly a log message,
// CSS rule body, or HTML attribute literal.
func isLogOrCSSOrAttributeContext(c model.Candidate) bool {
	ctx := strings.ToLower(c.Context)
	logMarkers := []string{"console.log(", "console.warn(", "console.error(", ".log(`"}
	for _, m := range logMarkers {
		if strings.Contains(ctx, m) {
			return true
		}
	}
	if strings.Contains(ctx, "{") && strings.Contains(ctx, ":") && strings.Contains(ctx, ";") &&
		(strings.Contains(ctx, "px") || strings.Contains(ctx, "%") || strings.Contains(ctx, "rem")) {
		return true
	}
	attrMarkers := []string{"class=\"", "class='", "style=\"", "style='"}
	for _, m := range attrMarkers {
		if strings.Contains(ctx, m) {
			return true
		}
	}
	return false
}

// layer9Context implements §4.2 layer 9: regex trailing flags, URL path
// components, service-integration CDNs, the Odoo detector, and the
// log/CSS/attribute context re-validation.
func layer9Context(c model.Candidate) Verdict {
	if regexTrailingFlagsRe.MatchString(c.Name) {
		return Verdict{Keep: false, Layer: "context", Reason: "looks like a regex literal with trailing flags"}
	}
	if isURLPathComponent(c) {
		return Verdict{Keep: false, Layer: "context", Reason: "URL path component, not an import"}
	}
	if isServiceIntegration(c.ScriptURL) {
		return Verdict{Keep: false, Layer: "context", Reason: "known third-party SaaS integration script"}
	}
	if isOdooModule(c) {
		return Verdict{Keep: false, Layer: "context", Reason: "Odoo ERP module namespace"}
	}
	if isLogOrCSSOrAttributeContext(c) {
		return Verdict{Keep: false, Layer: "context", Reason: "log message, CSS rule, or HTML attribute literal"}
	}
	return Verdict{Keep: true}
}

// layersBeforeAllowlist are layers 0-6, run before the well-known allowlist
// check.
var layersBeforeAllowlist = []Layer{
	layer0WellFormed,
	layer1PathLiteral,
	layer2URL,
	layer3CSS,
	layer4I18n,
	layer5BundlerInternal,
	layer6Builtin,
}

// layersAfterAllowlist are layers 8-9, run only once a candidate has missed
// the well-known allowlist at layer 7.
var layersAfterAllowlist = []Layer{
	layer8Minified,
	layer9Context,
}

// Apply runs the layer stack in order, returning the first drop verdict or
// a keep verdict if every layer passes. Layer 7, the well-known allowlist,
// sits between layers 6 and 8: a match short-circuits straight to a keep
// verdict, bypassing layers 8 and 9 so a real package name like rxjs or d3
// can't be rejected by the minified-identifier or context heuristics meant
// for generated garbage.
func Apply(c model.Candidate) Verdict {
	for _, layer := range layersBeforeAllowlist {
		if v := layer(c); !v.Keep {
			return v
		}
	}
	if IsWellKnown(c.Name) {
		return Verdict{Keep: true, Layer: "well_known", Reason: "curated allowlist of real packages"}
	}
	for _, layer := range layersAfterAllowlist {
		if v := layer(c); !v.Keep {
			return v
		}
	}
	return Verdict{Keep: true}
}

// Stack filters a slice of candidates, returning the survivors. When
// verbose is non-nil, every drop verdict is appended to it for diagnosis.
func Stack(candidates []model.Candidate, verbose *[]Verdict) []model.Candidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		v := Apply(c)
		if v.Keep {
			out = append(out, c)
			continue
		}
		if verbose != nil {
			v.Candidate = c
			*verbose = append(*verbose, v)
		}
	}
	return out
}
