package parser

import (
	"fmt"
	"strings"
)

const (
	// maxChunkTokens is the target ceiling per chunk; larger symbols
	// are split on line windows.
	maxChunkTokens = 500
	// largeClassMethods is the method count past which a class gets a
	// summary chunk instead of its full body.
	largeClassMethods = 50
)

var testPathMarkers = []string{
	"test_",
	"_test.py",
	"_test.go",
	".test.js",
	".test.ts",
	".spec.js",
	".spec.ts",
	"/tests/",
	"/__tests__/",
}

// buildChunks converts the parsed symbols of one file into retrieval
// chunks. Classes produce a class chunk (or a summary when very large)
// plus per-method chunks; files with no symbols fall back to
// whole-file line windows.
func buildChunks(path string, lang Language, source []byte, res *Result) []Chunk {
	isTest := isTestPath(path)
	weight := 1.0
	if isTest {
		weight = 0.5
	}

	children := make(map[string][]Symbol)
	var topLevel []Symbol
	for _, sym := range res.Symbols {
		if sym.Parent != "" {
			children[sym.Parent] = append(children[sym.Parent], sym)
		} else {
			topLevel = append(topLevel, sym)
		}
	}

	var chunks []Chunk
	for _, sym := range topLevel {
		switch sym.Kind {
		case SymbolClass:
			methods := children[sym.Name]
			chunks = append(chunks, classChunk(sym, methods, lang, isTest, weight))
			for _, m := range methods {
				chunks = append(chunks, methodChunk(path, sym.Name, m, lang, isTest, weight))
			}
		default:
			chunks = append(chunks, symbolChunks(sym, lang, isTest, weight)...)
		}
	}

	if len(chunks) == 0 && len(source) > 0 {
		chunks = fileWindows(string(source), lang, isTest, weight)
	}

	return chunks
}

func classChunk(class Symbol, methods []Symbol, lang Language, isTest bool, weight float64) Chunk {
	names := make([]string, 0, len(methods)+1)
	names = append(names, class.Name)
	for _, m := range methods {
		names = append(names, m.Name)
	}

	content := class.Content
	kind := string(SymbolClass)
	if len(methods) > largeClassMethods {
		var b strings.Builder
		fmt.Fprintf(&b, "class %s\n", class.Name)
		if class.Doc != "" {
			fmt.Fprintf(&b, "%s\n", class.Doc)
		}
		fmt.Fprintf(&b, "Methods: %s\n", strings.Join(names[1:], ", "))
		content = b.String()
		kind = "class_summary"
	}

	return Chunk{
		StartLine:     class.StartLine,
		EndLine:       class.EndLine,
		Content:       content,
		PrimarySymbol: class.Name,
		Symbols:       names,
		Language:      string(lang),
		Kind:          kind,
		IsTest:        isTest,
		Weight:        weight,
	}
}

func methodChunk(path, className string, m Symbol, lang Language, isTest bool, weight float64) Chunk {
	header := fmt.Sprintf("// %s · %s\n", path, className)
	return Chunk{
		StartLine:     m.StartLine,
		EndLine:       m.EndLine,
		Content:       header + m.Content,
		PrimarySymbol: m.Name,
		Symbols:       []string{className, m.Name},
		Language:      string(lang),
		Kind:          string(SymbolMethod),
		IsTest:        isTest,
		Weight:        weight,
	}
}

// symbolChunks emits one chunk per symbol, splitting oversized bodies
// into line windows that share the symbol as primary.
func symbolChunks(sym Symbol, lang Language, isTest bool, weight float64) []Chunk {
	if EstimateTokens(sym.Content) <= maxChunkTokens {
		return []Chunk{{
			StartLine:     sym.StartLine,
			EndLine:       sym.EndLine,
			Content:       sym.Content,
			PrimarySymbol: sym.Name,
			Symbols:       []string{sym.Name},
			Language:      string(lang),
			Kind:          string(sym.Kind),
			IsTest:        isTest,
			Weight:        weight,
		}}
	}

	var chunks []Chunk
	for _, w := range splitWindows(sym.Content, sym.StartLine) {
		chunks = append(chunks, Chunk{
			StartLine:     w.start,
			EndLine:       w.end,
			Content:       w.content,
			PrimarySymbol: sym.Name,
			Symbols:       []string{sym.Name},
			Language:      string(lang),
			Kind:          string(sym.Kind),
			IsTest:        isTest,
			Weight:        weight,
		})
	}
	return chunks
}

func fileWindows(content string, lang Language, isTest bool, weight float64) []Chunk {
	var chunks []Chunk
	for _, w := range splitWindows(content, 1) {
		chunks = append(chunks, Chunk{
			StartLine: w.start,
			EndLine:   w.end,
			Content:   w.content,
			Language:  string(lang),
			Kind:      "file",
			IsTest:    isTest,
			Weight:    weight,
		})
	}
	return chunks
}

type window struct {
	start, end int
	content    string
}

// splitWindows cuts content into consecutive line windows of at most
// maxChunkTokens each. firstLine anchors line numbering in the file.
func splitWindows(content string, firstLine int) []window {
	lines := strings.Split(content, "\n")
	budget := maxChunkTokens * 4 // bytes

	var windows []window
	start := 0
	size := 0
	for i, line := range lines {
		size += len(line) + 1
		if size >= budget && i > start {
			windows = append(windows, window{
				start:   firstLine + start,
				end:     firstLine + i,
				content: strings.Join(lines[start:i+1], "\n"),
			})
			start = i + 1
			size = 0
		}
	}
	if start < len(lines) {
		text := strings.Join(lines[start:], "\n")
		if strings.TrimSpace(text) != "" {
			windows = append(windows, window{
				start:   firstLine + start,
				end:     firstLine + len(lines) - 1,
				content: text,
			})
		}
	}
	return windows
}

func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range testPathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
