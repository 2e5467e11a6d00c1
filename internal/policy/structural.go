package policy

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// authDecisionPattern recognizes function/method names that encode an
// authorization decision, used by both the unconditional-pass check and
// the error-erasure check.
var authDecisionPattern = func(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range []string{"authoriz", "permit", "allow", "validat", "verify", "check"} {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// ScanStructural runs Phase B against content for the language dispatched
// from path. Unknown languages return (nil, nil): no structural findings,
// no error, because Phase A textual scanning remains the only gate for
// those files (spec §4.5 per-language dispatch with textual-only
// fallback).
func ScanStructural(path string, content []byte) ([]Violation, error) {
	lang := LanguageForPath(path)
	if lang == LangUnknown {
		return nil, nil
	}

	parser, release := pools.get(lang)
	defer release()

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return []Violation{{
			Category: CategoryUnparseableContent,
			Line:     1,
			Detail:   "tree-sitter failed to parse content: " + err.Error(),
		}}, nil
	}
	root := tree.RootNode()
	if root.HasError() {
		return []Violation{{
			Category: CategoryUnparseableContent,
			Line:     1,
			Detail:   "content contains a syntax error node; parse is not trustworthy for structural analysis",
		}}, nil
	}

	var violations []Violation
	walk(root, content, lang, &violations)
	return violations, nil
}

func walk(node *sitter.Node, src []byte, lang Language, out *[]Violation) {
	if node == nil {
		return
	}

	switch lang {
	case LangGo:
		checkGoNode(node, src, out)
	case LangJavaScript:
		checkJSNode(node, src, out)
	case LangPython:
		checkPythonNode(node, src, out)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), src, lang, out)
	}
}

func text(node *sitter.Node, src []byte) string {
	return node.Content(src)
}

func lineOfNode(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// checkGoNode inspects Go function/method declarations whose name encodes
// a decision for unconditional authorization passes and erased error
// handling (every return statement ends in a literal nil), and flags empty
// error-handling blocks. Discarding an error with `_ = err` or a blank
// identifier is not detected.
func checkGoNode(node *sitter.Node, src []byte, out *[]Violation) {
	switch node.Type() {
	case "function_declaration", "method_declaration":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return
		}
		name := text(nameNode, src)
		if !authDecisionPattern(name) {
			return
		}
		body := node.ChildByFieldName("body")
		if body == nil {
			return
		}
		if isSingleUnconditionalReturnTrue(body, src) {
			*out = append(*out, Violation{
				Category: CategoryStructuralPass,
				Line:     lineOfNode(node),
				Excerpt:  name,
				Detail:   "authorization-named function unconditionally returns true",
			})
		}
		if returnsErasedError(body, src) {
			*out = append(*out, Violation{
				Category: CategoryErasedErrorType,
				Line:     lineOfNode(node),
				Excerpt:  name,
				Detail:   "authorization-named function always returns a nil error regardless of input",
			})
		}

	case "block":
		if isEmptyHandlerBlock(node, src) {
			*out = append(*out, Violation{
				Category: CategoryEmptyHandlerBlock,
				Line:     lineOfNode(node),
				Detail:   "empty error-handling block",
			})
		}
	}
}

// isSingleUnconditionalReturnTrue reports whether body is exactly one
// statement: `return true`.
func isSingleUnconditionalReturnTrue(body *sitter.Node, src []byte) bool {
	stmts := namedChildren(body)
	if len(stmts) != 1 {
		return false
	}
	stmt := stmts[0]
	if stmt.Type() != "return_statement" {
		return false
	}
	return strings.TrimSpace(text(stmt, src)) == "return true"
}

// returnsErasedError reports whether the only return statements in body
// return a literal nil for their final (error-typed) result, i.e. the
// function can never signal failure.
func returnsErasedError(body *sitter.Node, src []byte) bool {
	found := true
	any := false
	var walkReturns func(n *sitter.Node)
	walkReturns = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "return_statement" {
			any = true
			t := strings.TrimSpace(text(n, src))
			if !strings.HasSuffix(t, "nil") {
				found = false
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walkReturns(n.Child(i))
		}
	}
	walkReturns(body)
	return any && found
}

// isEmptyHandlerBlock reports whether a block node is the empty body of an
// error-handling `if` (e.g. `if err != nil { }`). This is a syntactic
// approximation: it flags any empty block whose parent if_statement's
// condition contains the text "err" (which includes "error"). Empty
// deferred recover clauses are not detected.
func isEmptyHandlerBlock(block *sitter.Node, src []byte) bool {
	if block.NamedChildCount() != 0 {
		return false
	}
	parent := block.Parent()
	if parent == nil || parent.Type() != "if_statement" {
		return false
	}
	cond := parent.ChildByFieldName("condition")
	if cond == nil {
		return false
	}
	condText := strings.ToLower(text(cond, src))
	return strings.Contains(condText, "err")
}

func checkJSNode(node *sitter.Node, src []byte, out *[]Violation) {
	if node.Type() == "catch_clause" {
		body := node.ChildByFieldName("body")
		if body != nil && body.NamedChildCount() == 0 {
			*out = append(*out, Violation{
				Category: CategoryEmptyHandlerBlock,
				Line:     lineOfNode(node),
				Detail:   "empty catch block",
			})
		}
	}
	if node.Type() == "function_declaration" || node.Type() == "method_definition" {
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return
		}
		name := text(nameNode, src)
		if !authDecisionPattern(name) {
			return
		}
		body := node.ChildByFieldName("body")
		if body != nil && isSingleJSReturnTrue(body, src) {
			*out = append(*out, Violation{
				Category: CategoryStructuralPass,
				Line:     lineOfNode(node),
				Excerpt:  name,
				Detail:   "authorization-named function unconditionally returns true",
			})
		}
	}
}

func isSingleJSReturnTrue(body *sitter.Node, src []byte) bool {
	stmts := namedChildren(body)
	if len(stmts) != 1 {
		return false
	}
	return strings.TrimSpace(text(stmts[0], src)) == "return true;" ||
		strings.TrimSpace(text(stmts[0], src)) == "return true"
}

func checkPythonNode(node *sitter.Node, src []byte, out *[]Violation) {
	if node.Type() == "except_clause" {
		body := findChildOfType(node, "block")
		if body != nil && body.NamedChildCount() == 1 && text(body.NamedChild(0), src) == "pass" {
			*out = append(*out, Violation{
				Category: CategoryEmptyHandlerBlock,
				Line:     lineOfNode(node),
				Detail:   "except clause body is only `pass`",
			})
		}
	}
	if node.Type() == "function_definition" {
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return
		}
		name := text(nameNode, src)
		if !authDecisionPattern(name) {
			return
		}
		body := node.ChildByFieldName("body")
		if body != nil && body.NamedChildCount() == 1 {
			stmt := body.NamedChild(0)
			if stmt.Type() == "return_statement" && strings.TrimSpace(text(stmt, src)) == "return True" {
				*out = append(*out, Violation{
					Category: CategoryStructuralPass,
					Line:     lineOfNode(node),
					Excerpt:  name,
					Detail:   "authorization-named function unconditionally returns True",
				})
			}
		}
	}
}

func namedChildren(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}

func findChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c.Type() == typ {
			return c
		}
	}
	return nil
}
