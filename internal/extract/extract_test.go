package extract

import (
	"testing"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

func TestMerge_KeepsHighestConfidence(t *testing.T) {
	low := model.Candidate{Name: "axios", ScriptURL: "u", Method: model.MethodImport, Confidence: model.ConfidenceLow}
	high := model.Candidate{Name: "axios", ScriptURL: "u", Method: model.MethodBundlerManifest, Confidence: model.ConfidenceHigh}

	merged := Merge([]model.Candidate{low}, []model.Candidate{high})
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged candidate, got %d: %+v", len(merged), merged)
	}
	if merged[0].Confidence != model.ConfidenceHigh {
		t.Errorf("merged confidence = %s, want high", merged[0].Confidence)
	}
}

func TestMerge_DistinctScriptsDoNotCollapse(t *testing.T) {
	a := model.Candidate{Name: "axios", ScriptURL: "u1", Confidence: model.ConfidenceLow}
	b := model.Candidate{Name: "axios", ScriptURL: "u2", Confidence: model.ConfidenceLow}

	merged := Merge([]model.Candidate{a}, []model.Candidate{b})
	if len(merged) != 2 {
		t.Errorf("expected 2 distinct candidates for distinct scripts, got %d", len(merged))
	}
}

func TestCandidateEvidence_AccumulatesAcrossGroups(t *testing.T) {
	a := model.Candidate{Name: "axios", ScriptURL: "u", Method: model.MethodImport, Context: "import axios"}
	b := model.Candidate{Name: "axios", ScriptURL: "u", Method: model.MethodBundlerManifest, Context: "manifest hit"}

	evidence := CandidateEvidence([]model.Candidate{a}, []model.Candidate{b})
	key := a.Key()
	if len(evidence[key]) != 2 {
		t.Fatalf("expected 2 evidence entries, got %d: %+v", len(evidence[key]), evidence[key])
	}
}

func TestFromScript_UnionsAllExtractors(t *testing.T) {
	script := &model.CapturedScript{
		URL: "https://example.test/bundle.js",
		Body: []byte(`
import React from "react";
const x = require("@company/widgets");
/* 42 */ "node_modules/lodash/index.js"
`),
		SourceMap: &model.SourceMap{
			Sources: []string{"webpack:///./node_modules/axios/index.js"},
		},
	}

	candidates := FromScript(script)

	for _, want := range []string{"react", "@company/widgets", "lodash", "axios"} {
		if _, ok := findCandidate(candidates, want); !ok {
			t.Errorf("expected %q among unioned candidates, got %+v", want, candidates)
		}
	}
}

func TestFromScript_NilScript(t *testing.T) {
	if got := FromScript(nil); got != nil {
		t.Errorf("expected nil for nil script, got %+v", got)
	}
}
