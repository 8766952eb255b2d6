package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func getPythonLanguage() *sitter.Language {
	return python.GetLanguage()
}

// extractPython walks the AST collecting symbols, imports, exports and
// call sites in one pass over the file.
func extractPython(root *sitter.Node, source []byte) *Result {
	res := &Result{}

	// Module docstring: first statement, if it is a bare string.
	if root.ChildCount() > 0 {
		first := root.Child(0)
		if first.Type() == "expression_statement" {
			if str := findChild(first, "string"); str != nil {
				res.Doc = cleanDocstring(nodeContent(str, source))
			}
		}
	}

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	walkPython(cursor, source, "", res)

	// Top-level definitions without a leading underscore are the
	// module's public surface.
	for _, sym := range res.Symbols {
		if sym.Parent == "" && !strings.HasPrefix(sym.Name, "_") {
			res.Exports = append(res.Exports, sym.Name)
		}
	}

	return res
}

func walkPython(cursor *sitter.TreeCursor, source []byte, scope string, res *Result) {
	node := cursor.CurrentNode()

	switch node.Type() {
	case "import_statement":
		// import foo, bar.baz
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "dotted_name" {
				res.Imports = append(res.Imports, pythonImport(nodeContent(child, source), int(node.StartPoint().Row)+1))
			}
		}
		return

	case "import_from_statement":
		// from foo.bar import baz  |  from . import baz
		// The relative_import node must win over dotted_name: the
		// first dotted_name in a relative form is the imported name,
		// not the module.
		line := int(node.StartPoint().Row) + 1
		if relNode := findChild(node, "relative_import"); relNode != nil {
			res.Imports = append(res.Imports, pythonImport(nodeContent(relNode, source), line))
		} else if moduleNode := findChild(node, "dotted_name"); moduleNode != nil {
			res.Imports = append(res.Imports, pythonImport(nodeContent(moduleNode, source), line))
		}
		return

	case "function_definition":
		sym := pythonFunction(node, source, scope)
		res.Symbols = append(res.Symbols, sym)
		if body := findChild(node, "block"); body != nil {
			bodyCursor := sitter.NewTreeCursor(body)
			defer bodyCursor.Close()
			walkPython(bodyCursor, source, sym.Name, res)
		}
		return

	case "class_definition":
		sym := pythonClass(node, source)
		res.Symbols = append(res.Symbols, sym)

		// Base classes.
		if argList := findChild(node, "argument_list"); argList != nil {
			for i := 0; i < int(argList.ChildCount()); i++ {
				child := argList.Child(i)
				if child.Type() == "identifier" || child.Type() == "attribute" {
					res.Calls = append(res.Calls, Call{
						Caller: sym.Name,
						Callee: nodeContent(child, source),
						Line:   int(node.StartPoint().Row) + 1,
					})
				}
			}
		}

		if body := findChild(node, "block"); body != nil {
			for i := 0; i < int(body.ChildCount()); i++ {
				child := body.Child(i)
				if child.Type() != "function_definition" {
					continue
				}
				method := pythonFunction(child, source, sym.Name)
				method.Kind = SymbolMethod
				res.Symbols = append(res.Symbols, method)
				if mbody := findChild(child, "block"); mbody != nil {
					mc := sitter.NewTreeCursor(mbody)
					walkPython(mc, source, sym.Name+"."+method.Name, res)
					mc.Close()
				}
			}
		}
		return

	case "call":
		if scope != "" {
			if target := pythonCallTarget(node, source); target != "" {
				res.Calls = append(res.Calls, Call{
					Caller: scope,
					Callee: target,
					Line:   int(node.StartPoint().Row) + 1,
				})
			}
		}
	}

	if cursor.GoToFirstChild() {
		walkPython(cursor, source, scope, res)
		for cursor.GoToNextSibling() {
			walkPython(cursor, source, scope, res)
		}
		cursor.GoToParent()
	}
}

// pythonImport rewrites dotted module paths into the path-relative form
// the dependency resolver understands: ".mod" → "./mod", "..pkg.mod" →
// "../pkg/mod". Absolute dotted imports stay as written and resolve as
// external.
func pythonImport(target string, line int) Import {
	if !strings.HasPrefix(target, ".") {
		return Import{Source: target, Line: line}
	}

	rest := strings.TrimLeft(target, ".")
	dots := len(target) - len(rest)
	prefix := "./"
	for i := 1; i < dots; i++ {
		prefix += "../"
	}
	if dots > 1 {
		prefix = strings.TrimPrefix(prefix, "./")
	}
	source := prefix + strings.ReplaceAll(rest, ".", "/")
	source = strings.TrimSuffix(source, "/")
	return Import{Source: source, Relative: true, Line: line}
}

func pythonFunction(node *sitter.Node, source []byte, parent string) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	doc := ""
	if body := findChild(node, "block"); body != nil && body.ChildCount() > 0 {
		first := body.Child(0)
		if first.Type() == "expression_statement" {
			if str := findChild(first, "string"); str != nil {
				doc = cleanDocstring(nodeContent(str, source))
			}
		}
	}

	signature := "def " + name
	if params := findChild(node, "parameters"); params != nil {
		signature += nodeContent(params, source)
	}
	if retType := findChild(node, "type"); retType != nil {
		signature += " -> " + nodeContent(retType, source)
	}

	return Symbol{
		Name:      name,
		Kind:      SymbolFunction,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Content:   nodeContent(node, source),
		Doc:       doc,
		Parent:    parent,
		Signature: signature,
		Exported:  !strings.HasPrefix(name, "_"),
	}
}

func pythonClass(node *sitter.Node, source []byte) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	doc := ""
	if body := findChild(node, "block"); body != nil && body.ChildCount() > 0 {
		first := body.Child(0)
		if first.Type() == "expression_statement" {
			if str := findChild(first, "string"); str != nil {
				doc = cleanDocstring(nodeContent(str, source))
			}
		}
	}

	return Symbol{
		Name:      name,
		Kind:      SymbolClass,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Content:   nodeContent(node, source),
		Doc:       doc,
		Exported:  !strings.HasPrefix(name, "_"),
	}
}

func pythonCallTarget(node *sitter.Node, source []byte) string {
	if node.ChildCount() == 0 {
		return ""
	}
	funcNode := node.Child(0)
	switch funcNode.Type() {
	case "identifier", "attribute":
		return nodeContent(funcNode, source)
	}
	return ""
}

// Shared tree helpers.

func findChild(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == nodeType {
			return child
		}
	}
	return nil
}

func nodeContent(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func cleanDocstring(s string) string {
	if len(s) >= 6 && (s[:3] == `"""` || s[:3] == `'''`) {
		s = s[3 : len(s)-3]
	} else if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
