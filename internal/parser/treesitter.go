package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// TreeSitter is the built-in Parser implementation. It is stateless;
// a fresh tree-sitter parser is created per call so instances are safe
// for concurrent use.
type TreeSitter struct{}

// NewTreeSitter returns the built-in parser.
func NewTreeSitter() *TreeSitter {
	return &TreeSitter{}
}

// Parse implements Parser.
func (t *TreeSitter) Parse(path string, source []byte) (*Result, error) {
	lang, ok := Detect(path)
	if !ok {
		return nil, fmt.Errorf("no registered language claims %s", path)
	}

	if lang == LanguageMarkdown {
		return parseMarkdown(path, source), nil
	}

	p := sitter.NewParser()
	switch lang {
	case LanguagePython:
		p.SetLanguage(getPythonLanguage())
	case LanguageJavaScript, LanguageTypeScript:
		p.SetLanguage(getJavaScriptLanguage())
	default:
		return nil, fmt.Errorf("extraction not implemented for %s", lang)
	}

	tree, err := p.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	var res *Result
	switch lang {
	case LanguagePython:
		res = extractPython(tree.RootNode(), source)
	default:
		res = extractJavaScript(tree.RootNode(), source)
	}

	res.Chunks = buildChunks(path, lang, source, res)
	return res, nil
}
