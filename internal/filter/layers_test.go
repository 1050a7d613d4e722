package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

func cand(name string) model.Candidate {
	return model.Candidate{Name: name, ScriptURL: "https://example.com/app.js"}
}

// Real vulnerabilities found in the wild; the filter stack must never
// reject these, no matter how aggressively the heuristics are tuned.
func TestStack_NeverFiltersKnownRealVulnerabilities(t *testing.T) {
	for _, name := range []string{"@getbento/website-components", "@playxp/style"} {
		v := Apply(cand(name))
		assert.True(t, v.Keep, "must keep %s, dropped by layer %s: %s", name, v.Layer, v.Reason)
	}
}

func TestLayer0_RejectsMalformed(t *testing.T) {
	assert.False(t, Apply(cand("")).Keep)
	assert.False(t, Apply(cand(".hidden")).Keep)
	assert.False(t, Apply(cand("_private")).Keep)
	assert.False(t, Apply(cand("Invalid Name")).Keep)
}

func TestLayer1_RejectsPathLiterals(t *testing.T) {
	assert.False(t, Apply(cand("./local/module")).Keep)
	assert.False(t, Apply(cand("../shared/utils")).Keep)
	assert.False(t, Apply(cand("styles.css")).Keep)
}

func TestLayer2_RejectsURLs(t *testing.T) {
	v := Apply(cand("https://example.com/bundle.js"))
	assert.False(t, v.Keep)
}

func TestLayer3_RejectsBEMClassNames(t *testing.T) {
	v := Apply(cand("btn-primary"))
	assert.False(t, v.Keep)
	v2 := Apply(cand("modal__header"))
	assert.False(t, v2.Keep)
}

func TestLayer4_RejectsLocaleKeys(t *testing.T) {
	v := Apply(cand("common.buttons.submit"))
	assert.False(t, v.Keep)
}

func TestLayer5_RejectsBundlerHashArtifacts(t *testing.T) {
	v := Apply(cand("@playwri_0123456789abcdef0123456789abcdef"))
	assert.False(t, v.Keep)
}

func TestLayer6_RejectsBuiltins(t *testing.T) {
	assert.False(t, Apply(cand("fs")).Keep)
	assert.False(t, Apply(cand("node:path")).Keep)
}

func TestLayer8_RejectsShortLowVowelIdentifiers(t *testing.T) {
	assert.False(t, Apply(cand("xq")).Keep)
	assert.False(t, Apply(cand("0x4f2a")).Keep)
	assert.False(t, Apply(cand("tmx_abc")).Keep)
}

func TestLayer9_RejectsServiceIntegrationCDNs(t *testing.T) {
	c := model.Candidate{Name: "tracker-widget", ScriptURL: "https://cdn.osano.com/tracker.js"}
	v := Apply(c)
	assert.False(t, v.Keep)
}

func TestLayer9_RejectsOdooModules(t *testing.T) {
	c := model.Candidate{
		Name:      "@web_tour/tour_service",
		ScriptURL: "https://example.com/web/assets/1/web.assets_common.min.js",
		Context:   "odoo.define('@web_tour/tour_service', function (require) {",
	}
	v := Apply(c)
	assert.False(t, v.Keep)
}

func TestLayer9_KeepsGenuineScopedPackageNotOdoo(t *testing.T) {
	c := model.Candidate{Name: "@acme/payment-sdk", ScriptURL: "https://example.com/static/chunk.js"}
	v := Apply(c)
	assert.True(t, v.Keep)
}

func TestStack_DropsAndCollectsVerbose(t *testing.T) {
	in := []model.Candidate{cand("fs"), cand("@acme/real-pkg")}
	var verbose []Verdict
	out := Stack(in, &verbose)
	assert.Len(t, out, 1)
	assert.Equal(t, "@acme/real-pkg", out[0].Name)
	assert.Len(t, verbose, 1)
	assert.Equal(t, "builtin", verbose[0].Layer)
}

// Layer 7 must short-circuit past layers 8 and 9 for an allowlisted name:
// rxjs would otherwise be dropped by layer8Minified's low-vowel rule, and
// d3 by its two-character rule.
func TestLayer7_BypassesLaterLayersForWellKnownNames(t *testing.T) {
	assert.False(t, layer8Minified(cand("rxjs")).Keep, "sanity: rxjs alone trips layer 8")
	assert.False(t, layer8Minified(cand("d3")).Keep, "sanity: d3 alone trips layer 8")

	v := Apply(cand("rxjs"))
	assert.True(t, v.Keep)
	assert.Equal(t, "well_known", v.Layer)

	v2 := Apply(cand("d3"))
	assert.True(t, v2.Keep)
	assert.Equal(t, "well_known", v2.Layer)
}

func TestIsWellKnown(t *testing.T) {
	assert.True(t, IsWellKnown("lodash"))
	assert.False(t, IsWellKnown("@xq9zk7823/design-system"))
}
