package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// The javascript grammar handles TypeScript sources well enough for
// symbol and import extraction, so both languages share it.
func getJavaScriptLanguage() *sitter.Language {
	return javascript.GetLanguage()
}

func extractJavaScript(root *sitter.Node, source []byte) *Result {
	res := &Result{}

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	walkJavaScript(cursor, source, "", false, res)

	return res
}

func walkJavaScript(cursor *sitter.TreeCursor, source []byte, scope string, exported bool, res *Result) {
	node := cursor.CurrentNode()

	switch node.Type() {
	case "import_statement":
		if sourceNode := findChild(node, "string"); sourceNode != nil {
			target := strings.Trim(nodeContent(sourceNode, source), `"'`)
			res.Imports = append(res.Imports, Import{
				Source:   target,
				Relative: isPathRelative(target),
				Line:     int(node.StartPoint().Row) + 1,
			})
		}
		return

	case "export_statement":
		// Re-exports carry a source string: export { x } from './y'.
		if sourceNode := findChild(node, "string"); sourceNode != nil {
			target := strings.Trim(nodeContent(sourceNode, source), `"'`)
			res.Imports = append(res.Imports, Import{
				Source:   target,
				Relative: isPathRelative(target),
				Line:     int(node.StartPoint().Row) + 1,
			})
		}
		if cursor.GoToFirstChild() {
			walkJavaScript(cursor, source, scope, true, res)
			for cursor.GoToNextSibling() {
				walkJavaScript(cursor, source, scope, true, res)
			}
			cursor.GoToParent()
		}
		return

	case "function_declaration":
		sym := jsFunction(node, source, exported)
		res.Symbols = append(res.Symbols, sym)
		if exported && sym.Name != "" {
			res.Exports = append(res.Exports, sym.Name)
		}
		if body := findChild(node, "statement_block"); body != nil {
			bodyCursor := sitter.NewTreeCursor(body)
			defer bodyCursor.Close()
			walkJavaScript(bodyCursor, source, sym.Name, false, res)
		}
		return

	case "class_declaration":
		sym := jsClass(node, source, exported)
		res.Symbols = append(res.Symbols, sym)
		if exported && sym.Name != "" {
			res.Exports = append(res.Exports, sym.Name)
		}

		if heritage := findChild(node, "class_heritage"); heritage != nil {
			for i := 0; i < int(heritage.ChildCount()); i++ {
				child := heritage.Child(i)
				if child.Type() == "identifier" || child.Type() == "member_expression" {
					res.Calls = append(res.Calls, Call{
						Caller: sym.Name,
						Callee: nodeContent(child, source),
						Line:   int(node.StartPoint().Row) + 1,
					})
				}
			}
		}

		if body := findChild(node, "class_body"); body != nil {
			for i := 0; i < int(body.ChildCount()); i++ {
				child := body.Child(i)
				if child.Type() != "method_definition" {
					continue
				}
				method := jsMethod(child, source, sym.Name)
				res.Symbols = append(res.Symbols, method)
				if mbody := findChild(child, "statement_block"); mbody != nil {
					mc := sitter.NewTreeCursor(mbody)
					walkJavaScript(mc, source, sym.Name+"."+method.Name, false, res)
					mc.Close()
				}
			}
		}
		return

	case "call_expression":
		funcNode := node.Child(0)
		if funcNode == nil {
			break
		}
		if funcNode.Type() == "identifier" && nodeContent(funcNode, source) == "require" {
			if args := findChild(node, "arguments"); args != nil {
				if strArg := findChild(args, "string"); strArg != nil {
					target := strings.Trim(nodeContent(strArg, source), `"'`)
					res.Imports = append(res.Imports, Import{
						Source:   target,
						Relative: isPathRelative(target),
						Line:     int(node.StartPoint().Row) + 1,
					})
				}
			}
		} else if scope != "" {
			if target := jsCallTarget(funcNode, source); target != "" {
				res.Calls = append(res.Calls, Call{
					Caller: scope,
					Callee: target,
					Line:   int(node.StartPoint().Row) + 1,
				})
			}
		}
	}

	if cursor.GoToFirstChild() {
		walkJavaScript(cursor, source, scope, false, res)
		for cursor.GoToNextSibling() {
			walkJavaScript(cursor, source, scope, false, res)
		}
		cursor.GoToParent()
	}
}

func isPathRelative(target string) bool {
	return strings.HasPrefix(target, "./") ||
		strings.HasPrefix(target, "../") ||
		strings.HasPrefix(target, "/")
}

func jsFunction(node *sitter.Node, source []byte, exported bool) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	signature := "function " + name
	if params := findChild(node, "formal_parameters"); params != nil {
		signature += nodeContent(params, source)
	}

	return Symbol{
		Name:      name,
		Kind:      SymbolFunction,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Content:   nodeContent(node, source),
		Signature: signature,
		Exported:  exported,
	}
}

func jsClass(node *sitter.Node, source []byte, exported bool) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	return Symbol{
		Name:      name,
		Kind:      SymbolClass,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Content:   nodeContent(node, source),
		Exported:  exported,
	}
}

func jsMethod(node *sitter.Node, source []byte, parent string) Symbol {
	name := ""
	if nameNode := findChild(node, "property_identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	return Symbol{
		Name:      name,
		Kind:      SymbolMethod,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Content:   nodeContent(node, source),
		Parent:    parent,
	}
}

func jsCallTarget(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier", "member_expression":
		return nodeContent(node, source)
	}
	return ""
}
