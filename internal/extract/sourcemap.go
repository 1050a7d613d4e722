package extract

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

var sourceContentImportRes = []*regexp.Regexp{
	regexp.MustCompile(`require\s*\(\s*["']([^"'./][^"']*)["']\s*\)`),
	regexp.MustCompile(`\bfrom\s+["']([^"'./][^"']*)["']`),
	regexp.MustCompile(`\bimport\s+["']([^"'./][^"']*)["']`),
}

// SourceMapSources is E2: it extracts package names from a decoded source
// map's sources[] array and, at lower confidence, from require/import
// statements embedded in sourcesContent. Monorepo workspace names (found
// only under a "packages/" segment, never under "node_modules/") are
// suppressed per the workspace-suppression rule.
func SourceMapSources(url string, sm *model.SourceMap) []model.Candidate {
	if sm == nil {
		return nil
	}

	nodeModuleNames := map[string]struct{}{}
	workspaceNames := map[string]struct{}{}
	for _, src := range sm.Sources {
		path := stripWebpackPrefix(src)
		if idx := strings.Index(path, "node_modules/"); idx >= 0 {
			if name, ok := packageFromPathSegment(path[idx+len("node_modules/"):]); ok {
				nodeModuleNames[name] = struct{}{}
			}
		} else if idx := strings.Index(path, "packages/"); idx >= 0 {
			if name, ok := packageFromPathSegment(path[idx+len("packages/"):]); ok {
				workspaceNames[name] = struct{}{}
			}
		}
	}
	workspaceOnly := map[string]struct{}{}
	for name := range workspaceNames {
		if _, inNodeModules := nodeModuleNames[name]; !inNodeModules {
			workspaceOnly[name] = struct{}{}
		}
	}

	seen := map[string]model.Candidate{}
	addCandidate := func(name, rawPath string, confidence model.Confidence) {
		if _, suppressed := workspaceOnly[name]; suppressed {
			return
		}
		c := cand(name, model.MethodSourceMap, url, rawPath, confidence)
		if existing, ok := seen[name]; !ok || confidence > existing.Confidence {
			seen[name] = c
		}
	}

	for _, src := range sm.Sources {
		path := stripWebpackPrefix(src)
		switch {
		case strings.Contains(path, "node_modules/"):
			idx := strings.Index(path, "node_modules/")
			if name, ok := packageFromPathSegment(path[idx+len("node_modules/"):]); ok {
				addCandidate(name, src, model.ConfidenceHigh)
			}
		case strings.Contains(path, "packages/"):
			idx := strings.Index(path, "packages/")
			if name, ok := packageFromPathSegment(path[idx+len("packages/"):]); ok {
				addCandidate(name, src, model.ConfidenceLow)
			}
		case strings.HasPrefix(path, "@") || strings.HasPrefix(path, "~/"):
			clean := strings.TrimPrefix(path, "~/")
			if name, ok := packageFromPathSegment(clean); ok {
				addCandidate(name, src, model.ConfidenceMedium)
			}
		}
	}

	for _, content := range sm.SourcesContent {
		extractFromSourceContent(content, addCandidate)
	}

	out := make([]model.Candidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}

func stripWebpackPrefix(s string) string {
	if rest, ok := cutPrefix(s, "webpack:///"); ok {
		return rest
	}
	if rest, ok := cutPrefix(s, "webpack://"); ok {
		return rest
	}
	return s
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func extractFromSourceContent(content string, addCandidate func(name, rawPath string, confidence model.Confidence)) {
	if content == "" {
		return
	}
	for _, re := range sourceContentImportRes {
		for _, loc := range re.FindAllSubmatchIndex([]byte(content), -1) {
			raw := content[loc[2]:loc[3]]
			matchStart := loc[0]
			lineStart := strings.LastIndexByte(content[:matchStart], '\n') + 1
			linePrefix := strings.TrimSpace(content[lineStart:matchStart])
			if strings.HasPrefix(linePrefix, "//") || strings.HasPrefix(linePrefix, "*") {
				continue
			}
			if name, ok := NormalizePackageName(raw); ok {
				addCandidate(name, raw, model.ConfidenceLow)
			}
		}
	}
}
