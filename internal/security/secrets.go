// Package security detects and redacts secrets so they never reach an
// index snapshot or an embedding provider.
package security

import (
	"regexp"
	"strings"
)

// Secret is one detected credential occurrence.
type Secret struct {
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

type pattern struct {
	kind   string
	regex  *regexp.Regexp
	redact func(match string) string
}

// Detector scans chunk content for credential-shaped strings.
type Detector struct {
	patterns     []pattern
	placeholders []string
}

var quoted = regexp.MustCompile(`["'][^"']+["']`)

// NewDetector returns a detector with the default pattern set.
func NewDetector() *Detector {
	return &Detector{
		patterns: []pattern{
			{
				kind:  "api_key",
				regex: regexp.MustCompile(`(?i)(api[_-]?key|apikey|api_secret)\s*[=:]\s*["']([a-zA-Z0-9_\-]{20,})["']`),
				redact: func(match string) string {
					return quoted.ReplaceAllString(match, `"[REDACTED]"`)
				},
			},
			{
				kind:  "aws_access_key",
				regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
				redact: func(string) string { return "[REDACTED_AWS_KEY]" },
			},
			{
				kind:  "password",
				regex: regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*["']([^\s"']{8,})["']`),
				redact: func(match string) string {
					return quoted.ReplaceAllString(match, `"[REDACTED]"`)
				},
			},
			{
				kind:  "connection_string",
				regex: regexp.MustCompile(`(?i)(mongodb|postgres|mysql|redis|amqp)://[^\s"']+`),
				redact: func(match string) string {
					re := regexp.MustCompile(`(://[^:/]+:)[^@]+(@)`)
					return re.ReplaceAllString(match, "${1}[REDACTED]${2}")
				},
			},
			{
				kind:  "private_key",
				regex: regexp.MustCompile(`-----BEGIN (RSA |EC |DSA )?PRIVATE KEY-----`),
				redact: func(string) string { return "[REDACTED_PRIVATE_KEY]" },
			},
			{
				kind:  "jwt",
				regex: regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
				redact: func(string) string { return "[REDACTED_JWT]" },
			},
		},
		placeholders: []string{
			"your-", "example", "placeholder", "xxx", "changeme",
			"todo", "fixme", "<", ">", "${", "{{",
		},
	}
}

// Detect returns every secret occurrence in content.
func (d *Detector) Detect(content string) []Secret {
	var found []Secret
	for lineNum, line := range strings.Split(content, "\n") {
		if d.isPlaceholder(line) {
			continue
		}
		for _, p := range d.patterns {
			for range p.regex.FindAllStringIndex(line, -1) {
				found = append(found, Secret{Kind: p.kind, Line: lineNum + 1})
			}
		}
	}
	return found
}

// Redact replaces every secret match with its redacted form.
func (d *Detector) Redact(content string) string {
	out := content
	for _, p := range d.patterns {
		out = p.regex.ReplaceAllStringFunc(out, p.redact)
	}
	return out
}

func (d *Detector) isPlaceholder(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range d.placeholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
