package findings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

func TestSeverity_ScopeNotClaimed(t *testing.T) {
	assert.Equal(t, model.SeverityCritical, Severity("@xq9zk7823/design-system", model.ClassScopeNotClaimed))
}

func TestSeverity_Exists(t *testing.T) {
	assert.Equal(t, model.SeverityInfo, Severity("lodash", model.ClassExists))
}

func TestSeverity_NotFoundInternalSounding(t *testing.T) {
	assert.Equal(t, model.SeverityHigh, Severity("private-logger", model.ClassNotFound))
}

func TestSeverity_NotFoundGenericControl(t *testing.T) {
	assert.Equal(t, model.SeverityMedium, Severity("foobar-util", model.ClassNotFound))
}

func TestSeverity_NotFoundInternalToken(t *testing.T) {
	assert.Equal(t, model.SeverityHigh, Severity("company-internal-utils", model.ClassNotFound))
}

func TestSeverity_NotFoundScopedCollapsesToHighNotScopeNotClaimed(t *testing.T) {
	// Scope is claimed (it classified NotFound, not ScopeNotClaimed) but the
	// exact package under it is missing.
	assert.Equal(t, model.SeverityHigh, Severity("@acme/some-missing-pkg", model.ClassNotFound))
}

func TestSeverity_IsPureFunctionOfInputs(t *testing.T) {
	// P4: severity must be fully determined by (class, scoped?, heuristic) —
	// calling twice with identical inputs must be identical.
	a := Severity("@xq9zk7823/design-system", model.ClassScopeNotClaimed)
	b := Severity("@xq9zk7823/design-system", model.ClassScopeNotClaimed)
	assert.Equal(t, a, b)
}

func TestAssemble_SortsSeverityDescThenNameAsc(t *testing.T) {
	classified := []Classified{
		{Candidate: model.Candidate{Name: "foobar-util", Method: model.MethodImport, ScriptURL: "a.js"}, Class: model.ClassNotFound},
		{Candidate: model.Candidate{Name: "@xq9zk7823/design-system", Method: model.MethodImport, ScriptURL: "a.js"}, Class: model.ClassScopeNotClaimed},
		{Candidate: model.Candidate{Name: "lodash", Method: model.MethodImport, ScriptURL: "a.js"}, Class: model.ClassExists},
	}
	out := Assemble(classified)
	assert.Len(t, out, 3)
	assert.Equal(t, model.SeverityCritical, out[0].Severity)
	assert.Equal(t, model.SeverityMedium, out[1].Severity)
	assert.Equal(t, model.SeverityInfo, out[2].Severity)
}

func TestAssemble_ExcludesUnknown(t *testing.T) {
	classified := []Classified{
		{Candidate: model.Candidate{Name: "flaky-pkg", ScriptURL: "a.js"}, Class: model.ClassUnknown},
	}
	out := Assemble(classified)
	assert.Empty(t, out)
	assert.Equal(t, 1, CountUnknown(classified))
}

func TestAssemble_MergesEvidenceAcrossExtractors(t *testing.T) {
	classified := []Classified{
		{Candidate: model.Candidate{Name: "@acme/auth-sdk", Method: model.MethodImport, ScriptURL: "a.js", Confidence: model.ConfidenceHigh}, Class: model.ClassNotFound},
		{Candidate: model.Candidate{Name: "@acme/auth-sdk", Method: model.MethodDeobfuscate, ScriptURL: "b.js", Confidence: model.ConfidenceMedium}, Class: model.ClassNotFound},
	}
	out := Assemble(classified)
	assert.Len(t, out, 1)
	assert.Equal(t, model.ConfidenceHigh, out[0].Confidence)

	wantEvidence := []model.Evidence{
		{Method: model.MethodImport, ScriptURL: "a.js"},
		{Method: model.MethodDeobfuscate, ScriptURL: "b.js"},
	}
	if diff := cmp.Diff(wantEvidence, out[0].Evidence); diff != "" {
		t.Errorf("evidence mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterByConfidence(t *testing.T) {
	in := []model.Finding{
		{Name: "a", Confidence: model.ConfidenceLow},
		{Name: "b", Confidence: model.ConfidenceHigh},
	}
	out := FilterByConfidence(in, model.ConfidenceHigh)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Name)
}

func TestFilterScopedOnly(t *testing.T) {
	in := []model.Finding{
		{Name: "plain-pkg"},
		{Name: "@acme/pkg"},
	}
	out := FilterScopedOnly(in)
	assert.Len(t, out, 1)
	assert.Equal(t, "@acme/pkg", out[0].Name)
}
