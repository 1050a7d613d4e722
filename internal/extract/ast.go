package extract

import (
	"context"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/xkilldash9x/scalpeldep/internal/model"
)

// fallbackImportRe is the regex safety net used when tree-sitter fails to
// produce a usable tree at all (rare, but minified/corrupt bodies do it).
var fallbackImportRe = regexp.MustCompile(`(?:import\s+(?:[\w*{}\s,]+\s+from\s+)?|require\s*\(\s*|import\s*\()\s*['"]([^'"]+)['"]`)

// ASTImports is E1: a syntactic-import extractor that parses the script
// into an AST and emits the string argument of every import declaration,
// import expression, require() call, and re-export form. It falls back
// to a regex pass at reduced confidence when the parse is unusable.
func ASTImports(url string, body []byte) []model.Candidate {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, body)
	if err != nil || tree == nil {
		return regexImports(url, body)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.IsNull() {
		return regexImports(url, body)
	}

	if root.HasError() {
		return regexImports(url, body)
	}

	var out []model.Candidate
	walkImports(root, body, url, &out)
	return out
}

func walkImports(node *sitter.Node, source []byte, url string, out *[]model.Candidate) {
	if node == nil || node.IsNull() {
		return
	}

	switch node.Type() {
	case "import_statement":
		emitStringArg(node.ChildByFieldName("source"), source, url, model.MethodImport, out)
	case "export_statement":
		emitStringArg(node.ChildByFieldName("source"), source, url, model.MethodImport, out)
	case "call_expression":
		callee := node.ChildByFieldName("function")
		if callee != nil && callee.Type() == "identifier" && callee.Content(source) == "require" {
			args := node.ChildByFieldName("arguments")
			if args != nil && args.NamedChildCount() > 0 {
				emitStringArg(args.NamedChild(0), source, url, model.MethodRequire, out)
			}
		}
	}

	// Dynamic import(...) calls: callee node type is "import".
	if node.Type() == "call_expression" {
		callee := node.ChildByFieldName("function")
		if callee != nil && callee.Type() == "import" {
			args := node.ChildByFieldName("arguments")
			if args != nil && args.NamedChildCount() > 0 {
				emitStringArg(args.NamedChild(0), source, url, model.MethodDynamicImport, out)
			}
		}
	}

	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()
	if cursor.GoToFirstChild() {
		for {
			walkImports(cursor.CurrentNode(), source, url, out)
			if !cursor.GoToNextSibling() {
				break
			}
		}
	}
}

func emitStringArg(n *sitter.Node, source []byte, url string, method model.ExtractionMethod, out *[]model.Candidate) {
	if n == nil || n.IsNull() {
		return
	}
	var raw string
	switch n.Type() {
	case "string":
		raw = stripQuotes(n.Content(source))
	case "template_string":
		raw = templatePrefix(n, source)
	default:
		return
	}
	if name, ok := NormalizePackageName(raw); ok {
		*out = append(*out, cand(name, method, url, raw, model.ConfidenceHigh))
	}
}

// templatePrefix extracts the literal prefix of a template string up to
// its first interpolation, treating an interpolation-free template as a
// plain literal.
func templatePrefix(n *sitter.Node, source []byte) string {
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child.Type() == "template_substitution" {
			break
		}
		if child.Type() == "string_fragment" {
			return child.Content(source)
		}
	}
	return ""
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func regexImports(url string, body []byte) []model.Candidate {
	var out []model.Candidate
	for _, m := range fallbackImportRe.FindAllSubmatch(body, -1) {
		if name, ok := NormalizePackageName(string(m[1])); ok {
			out = append(out, cand(name, model.MethodImport, url, string(m[1]), model.ConfidenceMedium))
		}
	}
	return out
}
