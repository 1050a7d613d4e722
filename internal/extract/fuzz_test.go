package extract

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// FuzzFromScript feeds raw, untrusted bytes through all five extractors at
// once (AST imports, source-map sources, bundler manifest/heuristic,
// deobfuscation) via FromScript's own fan-out, so a crafted script body
// that crashes any one extractor's parser surfaces here rather than on a
// real scan. go-fuzz-headers slices the corpus into a URL and a body so
// both seeds and fuzzer-found inputs exercise realistic (url, body)
// pairs instead of always pairing a fixed URL with fuzzed bytes.
func FuzzFromScript(f *testing.F) {
	f.Add([]byte(`import lodash from "lodash"; require("@acme/internal-utils");`))
	f.Add([]byte(`//# sourceMappingURL=data:application/json;base64,eyJ2ZXJzaW9uIjozfQ==`))
	f.Add([]byte(`webpackJsonp([0],{0:function(e,t,n){n("./node_modules/left-pad/index.js")}});`))
	f.Add([]byte(`!function(){"use strict";var e=require("d");e("http://example.com/a.js")}();`))
	f.Add([]byte(``))
	f.Add([]byte("\x00\x01\x02not valid javascript at all{{{"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fc := fuzz.NewConsumer(data)
		url, err := fc.GetString()
		if err != nil {
			url = "https://example.com/app.js"
		}
		body, err := fc.GetBytes()
		if err != nil {
			body = data
		}

		script := &model.CapturedScript{URL: url, Body: body}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("FromScript panicked on url=%q body=%q: %v", url, body, r)
			}
		}()
		_ = FromScript(script)
	})
}
