// Package sourcemap locates and fetches a captured script's source map: it
// resolves the sourceMappingURL comment when present (including inline
// data: URIs), otherwise probes a fixed set of URL variations, and
// validates candidate bodies before decoding them into a model.SourceMap.
package sourcemap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/model"
	"github.com/xkilldash9x/scalpeldep/internal/network"
)

var sourceMappingURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`//[#@]\s*sourceMappingURL\s*=\s*(\S+)`),
	regexp.MustCompile(`/\*[#@]\s*sourceMappingURL\s*=\s*(\S+?)\s*\*/`),
}

// ExtractSourceMappingURL finds a trailing sourceMappingURL comment (either
// the current "//#" form or the deprecated "//@" form, plus the
// block-comment variant) in a script body and resolves it against the
// script's own URL. A data: URI is returned as-is; the caller decodes it
// inline rather than fetching it.
func ExtractSourceMappingURL(body []byte, scriptURL string) (string, bool) {
	content := string(body)
	for _, re := range sourceMappingURLPatterns {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "data:") {
			return raw, true
		}
		if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
			return raw, true
		}
		base, err := url.Parse(scriptURL)
		if err != nil {
			continue
		}
		resolved, err := url.Parse(raw)
		if err != nil {
			continue
		}
		return base.ResolveReference(resolved).String(), true
	}
	return "", false
}

// DecodeInlineSourceMap decodes a "data:application/json;base64,..." URI
// into its raw JSON bytes.
func DecodeInlineSourceMap(dataURL string) ([]byte, bool) {
	const marker = ";base64,"
	idx := strings.Index(dataURL, marker)
	if idx < 0 {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(dataURL[idx+len(marker):])
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// Variations returns the fixed, ordered list of probe URLs tried when a
// script carries no sourceMappingURL comment: the plain ".map" suffix, the
// ".min.js" toggle in whichever direction applies, and the
// "sourcemaps/"/"_sourcemaps/"/"maps/" sibling-directory forms. It is a
// pure function so the probe order can be unit-tested without any network
// I/O.
func Variations(scriptURL string) []string {
	var out []string
	out = append(out, scriptURL+".map")

	if strings.Contains(scriptURL, ".min.js") {
		out = append(out, strings.Replace(scriptURL, ".min.js", ".js", 1)+".map")
	}
	if strings.HasSuffix(scriptURL, ".js") && !strings.Contains(scriptURL, ".min.") {
		out = append(out, strings.TrimSuffix(scriptURL, ".js")+".min.js.map")
	}

	idx := strings.LastIndex(scriptURL, "/")
	if idx >= 0 {
		base, filename := scriptURL[:idx+1], scriptURL[idx+1:]
		for _, dir := range []string{"sourcemaps", "_sourcemaps", "maps"} {
			out = append(out, base+dir+"/"+filename+".map")
		}
	}

	return out
}

var acceptableContentTypes = []string{"json", "sourcemap", "text/plain", "application/octet-stream"}

func isAcceptableContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	lower := strings.ToLower(contentType)
	for _, want := range acceptableContentTypes {
		if strings.Contains(lower, want) {
			return true
		}
	}
	return false
}

// looksLikeSourceMap does a cheap structural check before paying for a
// full JSON unmarshal: a source map body must be a JSON object carrying a
// "version" field and either "sources" or "mappings".
func looksLikeSourceMap(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	return strings.Contains(trimmed, `"version"`) &&
		(strings.Contains(trimmed, `"sources"`) || strings.Contains(trimmed, `"mappings"`))
}

type rawSourceMap struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
}

// Decode validates and parses a candidate source map body, rejecting
// anything that doesn't carry the required fields even if it happened to
// parse as JSON.
func Decode(body []byte) (*model.SourceMap, bool) {
	if !looksLikeSourceMap(body) {
		return nil, false
	}
	var raw rawSourceMap
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	if raw.Version == 0 {
		return nil, false
	}
	return &model.SourceMap{
		Version:        raw.Version,
		Sources:        raw.Sources,
		SourcesContent: raw.SourcesContent,
	}, true
}

// HTTPDoer is the subset of *network.Client the fetcher needs, so tests can
// substitute a stub transport without standing up a real listener.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher locates and fetches a script's source map.
type Fetcher struct {
	client     HTTPDoer
	logger     *zap.Logger
	maxRetries int
}

// NewFetcher builds a Fetcher over the given HTTP client. A nil logger
// falls back to a no-op logger. maxRetries bounds the linear-backoff
// retry applied to network errors and 5xx responses on each candidate
// probe; a 4xx response (almost always a plain miss, since most probed
// URLs don't exist) never retries.
func NewFetcher(client HTTPDoer, logger *zap.Logger, maxRetries int) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, logger: logger, maxRetries: maxRetries}
}

// Fetch resolves a source map for the given captured script: it honors an
// embedded sourceMappingURL comment first (decoding a data: URI inline
// without any network call), then falls back to probing Variations in
// order and accepting the first response that passes content-type and
// shape validation. A miss at every step returns (nil, false) with no
// error — a probe miss is the overwhelmingly common case.
func (f *Fetcher) Fetch(ctx context.Context, scriptURL string, body []byte) (*model.SourceMap, string, bool) {
	if raw, ok := ExtractSourceMappingURL(body, scriptURL); ok {
		if strings.HasPrefix(raw, "data:") {
			decoded, ok := DecodeInlineSourceMap(raw)
			if !ok {
				return nil, "", false
			}
			sm, ok := Decode(decoded)
			if !ok {
				return nil, "", false
			}
			return sm, scriptURL, true
		}
		if sm, ok := f.fetchCandidate(ctx, raw); ok {
			return sm, raw, true
		}
		// An explicit, unreachable sourceMappingURL comment still falls
		// through to the probe list below: some CDNs strip .map assets
		// from production builds but still ship the comment.
	}

	for _, candidate := range Variations(scriptURL) {
		if sm, ok := f.fetchCandidate(ctx, candidate); ok {
			return sm, candidate, true
		}
	}
	return nil, "", false
}

func (f *Fetcher) fetchCandidate(ctx context.Context, mapURL string) (*model.SourceMap, bool) {
	resp, err := network.DoWithRetry(ctx, f.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, mapURL, nil)
	}, f.maxRetries)
	if err != nil {
		f.logger.Debug("sourcemap probe failed", zap.String("url", mapURL), zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}
	if !isAcceptableContentType(resp.Header.Get("Content-Type")) {
		return nil, false
	}

	const maxSourceMapBytes = 64 << 20
	limited := io.LimitReader(resp.Body, maxSourceMapBytes)
	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, false
	}

	return Decode(content)
}
