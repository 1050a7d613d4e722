package filter

import (
	"testing"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// FuzzStack feeds arbitrary candidate names through the nine-layer
// filter stack's layer-0 grammar check (and everything downstream of it)
// to catch a panic in any layer's regex/string handling on malformed
// input — candidate names ultimately come from untrusted script text, so
// nothing about their shape is guaranteed.
func FuzzStack(f *testing.F) {
	f.Add("lodash")
	f.Add("@acme/internal-utils")
	f.Add("")
	f.Add("../../etc/passwd")
	f.Add("@@@---...")
	f.Add("UPPER_CASE_NOT_A_PACKAGE")
	f.Add("a/b/c/d/e/f/g")

	f.Fuzz(func(t *testing.T, name string) {
		candidate := model.Candidate{
			Name:      name,
			Method:    model.MethodImport,
			ScriptURL: "https://example.com/app.js",
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Stack panicked on name=%q: %v", name, r)
			}
		}()
		_ = Stack([]model.Candidate{candidate}, nil)
	})
}
