package parser

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/ucengine/uce/internal/security"
)

// Adapter wraps an external Parser and enforces the contract the rest
// of the engine relies on: 1-based inclusive line spans, stable chunk
// IDs, token counts, and panics captured as parse errors instead of
// propagating.
type Adapter struct {
	parser   Parser
	detector *security.Detector
	now      func() time.Time
}

// NewAdapter wraps p. The secret detector redacts chunk content before
// it reaches any index or embedding provider.
func NewAdapter(p Parser) *Adapter {
	return &Adapter{
		parser:   p,
		detector: security.NewDetector(),
		now:      time.Now,
	}
}

// Parse invokes the wrapped parser and normalizes its output. The
// returned Result is never nil; a failed parse yields empty slices and
// a populated Errors list.
func (a *Adapter) Parse(path string, source []byte) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			res = &Result{Errors: []ParseError{{Line: 1, Message: fmt.Sprintf("parser panic: %v", r)}}}
		}
	}()

	out, err := a.parser.Parse(path, source)
	if err != nil {
		return &Result{Errors: []ParseError{{Line: 1, Message: err.Error()}}}
	}
	if out == nil {
		return &Result{}
	}

	a.normalize(path, out)
	return out
}

func (a *Adapter) normalize(path string, res *Result) {
	lang := ""
	if l, ok := Detect(path); ok {
		lang = string(l)
	}
	created := a.now().UTC()

	for i := range res.Symbols {
		clampSpan(&res.Symbols[i].StartLine, &res.Symbols[i].EndLine)
	}
	for i := range res.Errors {
		if res.Errors[i].Line < 1 {
			res.Errors[i].Line = 1
		}
	}

	for i := range res.Chunks {
		c := &res.Chunks[i]
		clampSpan(&c.StartLine, &c.EndLine)
		c.File = path
		if c.Language == "" {
			c.Language = lang
		}
		if c.Weight == 0 {
			c.Weight = 1.0
		}
		if secrets := a.detector.Detect(c.Content); len(secrets) > 0 {
			c.Content = a.detector.Redact(c.Content)
			c.HasSecrets = true
		}
		c.TokenCount = EstimateTokens(c.Content)
		c.CreatedAt = created
		// IDs derive from identity, not content, so an unchanged
		// symbol keeps its ID across reparses.
		c.ID = ChunkID(path, c.PrimarySymbol, c.StartLine, c.EndLine)
	}
}

func clampSpan(start, end *int) {
	if *start < 1 {
		*start = 1
	}
	if *end < *start {
		*end = *start
	}
}

// ChunkID derives the stable chunk identifier from file, primary
// symbol and line span, formatted UUID-style.
func ChunkID(file, primarySymbol string, startLine, endLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%d", file, primarySymbol, startLine, endLine)))
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}
