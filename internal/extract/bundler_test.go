package extract

import (
	"testing"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

func TestBundlerManifest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "webpack module factory table",
			body: `{"./node_modules/lodash/index.js": function(module, exports) {}}`,
			want: "lodash",
		},
		{
			name: "webpack module id comment",
			body: `/* 42 */ "node_modules/@company/widgets/dist/index.js"`,
			want: "@company/widgets",
		},
		{
			name: "parcel module map",
			body: `{"node_modules/axios/index.js": [function(require, module, exports) {}, {}]}`,
			want: "axios",
		},
		{
			name: "esbuild commonjs manifest",
			body: `__commonJS({"node_modules/react-dom/index.js"(exports, module) {}})`,
			want: "react-dom",
		},
		{
			name: "turbopack project path",
			body: `__turbopack_require__("[project]/node_modules/@internal/auth-lib/index.js")`,
			want: "@internal/auth-lib",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var candidates []model.Candidate
			if tt.name == "turbopack project path" {
				candidates = BundlerHeuristic("https://example.test/a.js", []byte(tt.body))
			} else {
				candidates = BundlerManifest("https://example.test/a.js", []byte(tt.body))
			}
			if _, ok := findCandidate(candidates, tt.want); !ok {
				t.Errorf("expected candidate %q, got %+v", tt.want, candidates)
			}
		})
	}
}

func TestBundlerHeuristic(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"vite demangled scope", `from "/node_modules/.vite/deps/company_widgets.js"`, "@company/widgets"},
		{"vite plain dep", `from "/node_modules/.vite/deps/axios.js"`, "axios"},
		{"parcel require", `parcelRequire("lodash")`, "lodash"},
		{"esbuild require", `__require("axios")`, "axios"},
		{"swc interop require", `_interop_require_default(require("react"))`, "react"},
		{"minified generic var require", `var a = require("sneaky-pkg")`, "sneaky-pkg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := BundlerHeuristic("https://example.test/a.js", []byte(tt.body))
			if _, ok := findCandidate(candidates, tt.want); !ok {
				t.Errorf("expected candidate %q, got %+v", tt.want, candidates)
			}
		})
	}
}

func TestBundlerHeuristic_MinifiedGenericIsMediumConfidence(t *testing.T) {
	candidates := BundlerHeuristic("https://example.test/a.js", []byte(`var a = require("sneaky-pkg")`))
	c, ok := findCandidate(candidates, "sneaky-pkg")
	if !ok {
		t.Fatal("expected candidate")
	}
	if c.Confidence != model.ConfidenceMedium {
		t.Errorf("confidence = %s, want medium", c.Confidence)
	}
}

func TestDemangleUnderscoreScope(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"company_widgets", "@company/widgets"},
		{"internal_auth_lib", "@internal/auth_lib"},
		{"random_thing", "random_thing"},
		{"@already/scoped", "@already/scoped"},
		{"noUnderscore", "noUnderscore"},
	}
	for _, tt := range tests {
		if got := demangleUnderscoreScope(tt.in); got != tt.want {
			t.Errorf("demangleUnderscoreScope(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
