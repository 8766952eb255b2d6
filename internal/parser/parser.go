// Package parser defines the parse result model consumed by the index
// and provides tree-sitter based parsers for the built-in languages.
package parser

import (
	"path/filepath"
	"strings"
	"time"
)

// Language identifies a registered language.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageMarkdown   Language = "markdown"
)

// SymbolKind classifies a definition.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
	SymbolVariable SymbolKind = "variable"
)

// Symbol is a parsed definition. Lines are 1-based, spans inclusive.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Doc       string     `json:"doc,omitempty"`
	Parent    string     `json:"parent,omitempty"`
	Signature string     `json:"signature,omitempty"`
	Content   string     `json:"-"`
	Exported  bool       `json:"exported,omitempty"`
}

// Import is a literal import target as written in the source.
type Import struct {
	Source   string `json:"source"`
	Relative bool   `json:"relative"` // ./, ../ or /-anchored
	Line     int    `json:"line"`
}

// Call records a call site from one symbol to a named target.
type Call struct {
	Caller string `json:"caller,omitempty"`
	Callee string `json:"callee"`
	Line   int    `json:"line"`
}

// Chunk is the retrievable unit: a contiguous span of one file plus
// denormalized metadata. IDs are stable across reparses of the same
// symbol and span.
type Chunk struct {
	ID            string    `json:"id"`
	File          string    `json:"file"`
	StartLine     int       `json:"start_line"`
	EndLine       int       `json:"end_line"`
	Content       string    `json:"content"`
	PrimarySymbol string    `json:"primary_symbol,omitempty"`
	Symbols       []string  `json:"symbols,omitempty"`
	Language      string    `json:"language"`
	Kind          string    `json:"kind,omitempty"`
	TokenCount    int       `json:"token_count"`
	CreatedAt     time.Time `json:"created_at"`
	IsTest        bool      `json:"is_test,omitempty"`
	HasSecrets    bool      `json:"has_secrets,omitempty"`
	Weight        float64   `json:"weight,omitempty"` // retrieval multiplier, 1.0 when absent
}

// ParseError is a recovered per-file failure.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Result is everything a parser produces for one file.
type Result struct {
	Symbols []Symbol     `json:"symbols"`
	Imports []Import     `json:"imports"`
	Exports []string     `json:"exports"`
	Calls   []Call       `json:"calls"`
	Chunks  []Chunk      `json:"chunks"`
	Doc     string       `json:"doc,omitempty"`
	Errors  []ParseError `json:"errors,omitempty"`
}

// Parser is the external-collaborator boundary: implementations turn
// file text into a Result. The engine treats the output as
// authoritative after the adapter normalizes it.
type Parser interface {
	Parse(path string, source []byte) (*Result, error)
}

// languageExts maps each registered language to the extensions it
// claims. Order matters for dependency resolution candidates.
var languageExts = map[Language][]string{
	LanguagePython:     {".py"},
	LanguageJavaScript: {".js", ".jsx", ".mjs"},
	LanguageTypeScript: {".ts", ".tsx"},
	LanguageMarkdown:   {".md"},
}

// Detect returns the language claiming the file's extension.
func Detect(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for lang, exts := range languageExts {
		for _, e := range exts {
			if e == ext {
				return lang, true
			}
		}
	}
	return "", false
}

// SourceExtensions lists the extensions tried when resolving an
// extensionless import for files of the given language. Script
// languages can import across the JS/TS boundary, so both sets are
// offered there.
func SourceExtensions(lang Language) []string {
	switch lang {
	case LanguageJavaScript, LanguageTypeScript:
		return []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}
	case LanguagePython:
		return []string{".py"}
	default:
		return languageExts[lang]
	}
}

// EstimateTokens approximates token counts at ~4 bytes per token.
func EstimateTokens(content string) int {
	n := len(content) / 4
	if n == 0 && len(content) > 0 {
		n = 1
	}
	return n
}
