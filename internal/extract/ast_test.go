package extract

import (
	"testing"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

func findCandidate(candidates []model.Candidate, name string) (model.Candidate, bool) {
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	return model.Candidate{}, false
}

func TestASTImports(t *testing.T) {
	src := `
import React from 'react';
import { helper } from "@company/widgets/dist/helper";
export { thing } from 'lodash';
const path = require('path');
const dep = require("@internal/auth-lib");
import('./local-chunk');
import('dynamic-pkg');
const tpl = require(` + "`axios`" + `);
`
	candidates := ASTImports("https://example.test/bundle.js", []byte(src))

	want := map[string]model.ExtractionMethod{
		"react":             model.MethodImport,
		"@company/widgets":  model.MethodImport,
		"lodash":            model.MethodImport,
		"@internal/auth-lib": model.MethodRequire,
		"dynamic-pkg":       model.MethodDynamicImport,
		"axios":             model.MethodRequire,
	}

	for name, method := range want {
		c, ok := findCandidate(candidates, name)
		if !ok {
			t.Errorf("expected candidate %q not found in %+v", name, candidates)
			continue
		}
		if c.Method != method {
			t.Errorf("candidate %q: method = %s, want %s", name, c.Method, method)
		}
		if c.Confidence != model.ConfidenceHigh {
			t.Errorf("candidate %q: confidence = %s, want high", name, c.Confidence)
		}
	}

	if _, ok := findCandidate(candidates, "path"); ok {
		t.Errorf("node builtin %q should have been excluded", "path")
	}
	if _, ok := findCandidate(candidates, "./local-chunk"); ok {
		t.Error("relative import should not produce a candidate")
	}
}

func TestASTImports_ParseFailureFallsBackToRegex(t *testing.T) {
	src := `require("broken-but-extractable"; this is not valid javascript {{{`
	candidates := ASTImports("https://example.test/broken.js", []byte(src))

	c, ok := findCandidate(candidates, "broken-but-extractable")
	if !ok {
		t.Fatalf("expected fallback regex extraction to find a candidate, got %+v", candidates)
	}
	if c.Confidence != model.ConfidenceMedium {
		t.Errorf("fallback candidate confidence = %s, want medium", c.Confidence)
	}
}

func TestRegexImports(t *testing.T) {
	src := []byte(`require('simple-pkg'); import "other-pkg";`)
	candidates := regexImports("https://example.test/x.js", src)
	if _, ok := findCandidate(candidates, "simple-pkg"); !ok {
		t.Error("expected simple-pkg candidate")
	}
	if _, ok := findCandidate(candidates, "other-pkg"); !ok {
		t.Error("expected other-pkg candidate")
	}
}
