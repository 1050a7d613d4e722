package sourcemap

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"
)

func TestExtractSourceMappingURL(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		scriptURL string
		want      string
		wantOK    bool
	}{
		{
			name:      "standard comment relative",
			body:      "console.log('x');\n//# sourceMappingURL=main.js.map",
			scriptURL: "https://example.com/js/main.js",
			want:      "https://example.com/js/main.js.map",
			wantOK:    true,
		},
		{
			name:      "deprecated @ form",
			body:      "console.log('x');\n//@ sourceMappingURL=main.js.map",
			scriptURL: "https://example.com/js/main.js",
			want:      "https://example.com/js/main.js.map",
			wantOK:    true,
		},
		{
			name:      "block comment form",
			body:      "console.log('x');\n/*# sourceMappingURL=main.js.map */",
			scriptURL: "https://example.com/js/main.js",
			want:      "https://example.com/js/main.js.map",
			wantOK:    true,
		},
		{
			name:      "absolute https url",
			body:      "//# sourceMappingURL=https://cdn.example.com/maps/main.js.map",
			scriptURL: "https://example.com/js/main.js",
			want:      "https://cdn.example.com/maps/main.js.map",
			wantOK:    true,
		},
		{
			name:      "no comment present",
			body:      "console.log('no map here');",
			scriptURL: "https://example.com/js/main.js",
			wantOK:    false,
		},
		{
			name:      "data uri passthrough",
			body:      "//# sourceMappingURL=data:application/json;base64,eyJ2ZXJzaW9uIjozfQ==",
			scriptURL: "https://example.com/js/main.js",
			want:      "data:application/json;base64,eyJ2ZXJzaW9uIjozfQ==",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSourceMappingURL([]byte(tt.body), tt.scriptURL)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSourceMappingURL_RelativePathResolvesAgainstScriptURLNotJustFilename(t *testing.T) {
	body := "//# sourceMappingURL=main.js.map"
	got, ok := ExtractSourceMappingURL([]byte(body), "https://example.com/js/main.js")
	if !ok {
		t.Fatal("expected a resolved URL")
	}
	want := "https://example.com/js/main.js.map"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeInlineSourceMap(t *testing.T) {
	payload := `{"version":3}`
	dataURL := "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(payload))

	got, ok := DecodeInlineSourceMap(dataURL)
	if !ok {
		t.Fatal("expected decode success")
	}
	if string(got) != payload {
		t.Errorf("got %q, want %q", got, payload)
	}

	if _, ok := DecodeInlineSourceMap("not-a-data-uri"); ok {
		t.Error("expected non-data URI to fail")
	}
}

func TestVariations(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []string
	}{
		{
			name: "minified js adds unminified map",
			url:  "https://cdn.example.com/bundle.min.js",
			want: []string{
				"https://cdn.example.com/bundle.min.js.map",
				"https://cdn.example.com/bundle.js.map",
				"https://cdn.example.com/sourcemaps/bundle.min.js.map",
				"https://cdn.example.com/_sourcemaps/bundle.min.js.map",
				"https://cdn.example.com/maps/bundle.min.js.map",
			},
		},
		{
			name: "plain js adds minified map",
			url:  "https://cdn.example.com/bundle.js",
			want: []string{
				"https://cdn.example.com/bundle.js.map",
				"https://cdn.example.com/bundle.min.js.map",
				"https://cdn.example.com/sourcemaps/bundle.js.map",
				"https://cdn.example.com/_sourcemaps/bundle.js.map",
				"https://cdn.example.com/maps/bundle.js.map",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variations(tt.url)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d variations, want %d: %v", len(got), len(tt.want), got)
			}
			for i, v := range got {
				if v != tt.want[i] {
					t.Errorf("variation %d = %q, want %q", i, v, tt.want[i])
				}
			}
		})
	}
}

func TestLooksLikeSourceMap(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"valid with sources", `{"version":3,"sources":["a.js"]}`, true},
		{"valid with mappings only", `{"version":3,"mappings":"AAAA"}`, true},
		{"missing version", `{"sources":["a.js"]}`, false},
		{"not an object", `["a","b"]`, false},
		{"html error page", `<!DOCTYPE html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeSourceMap([]byte(tt.body)); got != tt.want {
				t.Errorf("looksLikeSourceMap(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	body := `{"version":3,"sources":["node_modules/lodash/index.js"],"sourcesContent":["module.exports = {};"]}`
	sm, ok := Decode([]byte(body))
	if !ok {
		t.Fatal("expected decode success")
	}
	if sm.Version != 3 {
		t.Errorf("version = %d, want 3", sm.Version)
	}
	if len(sm.Sources) != 1 || sm.Sources[0] != "node_modules/lodash/index.js" {
		t.Errorf("sources = %v", sm.Sources)
	}

	if _, ok := Decode([]byte(`{"name":"not a map"}`)); ok {
		t.Error("expected decode failure for non-sourcemap JSON")
	}
}

type stubDoer struct {
	responses map[string]*http.Response
	err       map[string]error
	calls     []string
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.calls = append(s.calls, req.URL.String())
	if err, ok := s.err[req.URL.String()]; ok {
		return nil, err
	}
	if resp, ok := s.responses[req.URL.String()]; ok {
		return resp, nil
	}
	return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestFetcher_Fetch_UsesEmbeddedCommentFirst(t *testing.T) {
	mapBody := `{"version":3,"sources":["node_modules/axios/index.js"]}`
	doer := &stubDoer{
		responses: map[string]*http.Response{
			"https://example.com/js/main.js.map": jsonResponse(mapBody),
		},
	}
	fetcher := NewFetcher(doer, nil, 2)

	scriptBody := []byte("console.log(1);\n//# sourceMappingURL=main.js.map")
	sm, resolvedURL, ok := fetcher.Fetch(context.Background(), "https://example.com/js/main.js", scriptBody)
	if !ok {
		t.Fatal("expected source map to be found")
	}
	if resolvedURL != "https://example.com/js/main.js.map" {
		t.Errorf("resolved URL = %q", resolvedURL)
	}
	if len(sm.Sources) != 1 || sm.Sources[0] != "node_modules/axios/index.js" {
		t.Errorf("sources = %v", sm.Sources)
	}
	if len(doer.calls) != 1 {
		t.Errorf("expected exactly one HTTP call when the comment hit succeeds, got %d: %v", len(doer.calls), doer.calls)
	}
}

func TestFetcher_Fetch_FallsBackToProbeList(t *testing.T) {
	mapBody := `{"version":3,"sources":["node_modules/lodash/index.js"]}`
	doer := &stubDoer{
		responses: map[string]*http.Response{
			"https://example.com/js/main.js.map": jsonResponse(mapBody),
		},
	}
	fetcher := NewFetcher(doer, nil, 2)

	scriptBody := []byte("console.log(1); // no sourceMappingURL here")
	sm, resolvedURL, ok := fetcher.Fetch(context.Background(), "https://example.com/js/main.js", scriptBody)
	if !ok {
		t.Fatal("expected probe fallback to find a source map")
	}
	if resolvedURL != "https://example.com/js/main.js.map" {
		t.Errorf("resolved URL = %q", resolvedURL)
	}
	if len(sm.Sources) != 1 || sm.Sources[0] != "node_modules/lodash/index.js" {
		t.Errorf("sources = %v", sm.Sources)
	}
}

func TestFetcher_Fetch_RejectsWrongContentType(t *testing.T) {
	doer := &stubDoer{
		responses: map[string]*http.Response{
			"https://example.com/js/main.js.map": {
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/html"}},
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"version":3,"sources":[]}`))),
			},
		},
	}
	fetcher := NewFetcher(doer, nil, 2)

	_, _, ok := fetcher.Fetch(context.Background(), "https://example.com/js/main.js", []byte("no comment"))
	if ok {
		t.Error("expected rejection of an html content-type response")
	}
}

func TestFetcher_Fetch_MissReturnsFalseNotError(t *testing.T) {
	doer := &stubDoer{responses: map[string]*http.Response{}}
	fetcher := NewFetcher(doer, nil, 2)

	_, _, ok := fetcher.Fetch(context.Background(), "https://example.com/js/main.js", []byte("nothing here"))
	if ok {
		t.Error("expected a full probe miss to return false")
	}
}
