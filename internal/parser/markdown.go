package parser

import (
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// parseMarkdown splits a document on headings. Each section becomes a
// doc chunk whose primary symbol is the heading path, so prose is
// retrievable next to code.
func parseMarkdown(path string, source []byte) *Result {
	res := &Result{}
	lines := strings.Split(string(source), "\n")

	type section struct {
		headingPath string
		start       int // 0-based line index of the heading
		end         int
	}

	var sections []section
	var stack []string
	current := -1

	for i, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		heading := strings.TrimSpace(m[2])

		if res.Doc == "" && level == 1 {
			res.Doc = heading
		}

		for len(stack) >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, heading)

		if current >= 0 {
			sections[current].end = i - 1
		}
		sections = append(sections, section{
			headingPath: strings.Join(stack, " > "),
			start:       i,
			end:         len(lines) - 1,
		})
		current = len(sections) - 1
	}

	if len(sections) == 0 {
		// No headings: a single chunk for the whole document.
		if strings.TrimSpace(string(source)) != "" {
			res.Chunks = fileWindows(string(source), LanguageMarkdown, false, 1.0)
		}
		return res
	}

	// Preamble before the first heading.
	if sections[0].start > 0 {
		pre := strings.Join(lines[:sections[0].start], "\n")
		if strings.TrimSpace(pre) != "" {
			res.Chunks = append(res.Chunks, Chunk{
				StartLine: 1,
				EndLine:   sections[0].start,
				Content:   pre,
				Language:  string(LanguageMarkdown),
				Kind:      "doc",
			})
		}
	}

	for _, s := range sections {
		content := strings.Join(lines[s.start:s.end+1], "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}
		res.Chunks = append(res.Chunks, Chunk{
			StartLine:     s.start + 1,
			EndLine:       s.end + 1,
			Content:       content,
			PrimarySymbol: s.headingPath,
			Language:      string(LanguageMarkdown),
			Kind:          "doc",
		})
	}

	return res
}
