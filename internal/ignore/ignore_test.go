package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIgnoreFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func TestBuiltinDefaults(t *testing.T) {
	m := NewMatcher(t.TempDir(), nil)

	tests := []struct {
		path    string
		isDir   bool
		ignored bool
	}{
		{".git", true, true},
		{".git/config", false, true},
		{"node_modules", true, true},
		{"src/node_modules/pkg/index.js", false, true},
		{"app.min.js", false, true},
		{"package-lock.json", false, true},
		{"src/main.ts", false, false},
		{"deep/nested/mod.py", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignored, m.Ignored(tt.path, tt.isDir))
		})
	}
}

func TestGitignorePatterns(t *testing.T) {
	root := t.TempDir()
	writeIgnoreFile(t, root, ".gitignore", `
# build artifacts
out/
*.log
/rooted.ts
`)
	m := NewMatcher(root, nil)

	assert.True(t, m.Ignored("out", true))
	assert.True(t, m.Ignored("out/bundle.js", false))
	assert.True(t, m.Ignored("server.log", false))
	assert.True(t, m.Ignored("logs/server.log", false))
	assert.True(t, m.Ignored("rooted.ts", false))
	assert.False(t, m.Ignored("sub/rooted.ts", false), "leading slash anchors to root")
	assert.False(t, m.Ignored("main.ts", false))
}

func TestLayerPrecedence(t *testing.T) {
	// .uceignore loads after .gitignore, so its negation wins.
	root := t.TempDir()
	writeIgnoreFile(t, root, ".gitignore", "*.gen.ts\n")
	writeIgnoreFile(t, root, ".uceignore", "!api.gen.ts\n")
	m := NewMatcher(root, nil)

	assert.True(t, m.Ignored("other.gen.ts", false))
	assert.False(t, m.Ignored("api.gen.ts", false))
}

func TestContextignoreLayer(t *testing.T) {
	root := t.TempDir()
	writeIgnoreFile(t, root, ".contextignore", "fixtures/\n")
	m := NewMatcher(root, nil)

	assert.True(t, m.Ignored("fixtures", true))
	assert.True(t, m.Ignored("fixtures/sample.py", false))
}

func TestExtraPatternsHighestPrecedence(t *testing.T) {
	root := t.TempDir()
	writeIgnoreFile(t, root, ".gitignore", "tmp/\n")
	m := NewMatcher(root, []string{"!tmp/keep.ts", "scratch.py"})

	assert.True(t, m.Ignored("tmp/drop.ts", false))
	assert.False(t, m.Ignored("tmp/keep.ts", false))
	assert.True(t, m.Ignored("scratch.py", false))
}

func TestNegationWithinOneFile(t *testing.T) {
	root := t.TempDir()
	writeIgnoreFile(t, root, ".gitignore", "*.md\n!README.md\n")
	m := NewMatcher(root, nil)

	assert.True(t, m.Ignored("notes.md", false))
	assert.False(t, m.Ignored("README.md", false))
	assert.False(t, m.Ignored("docs/README.md", false))
}

func TestPruneDir(t *testing.T) {
	root := t.TempDir()
	writeIgnoreFile(t, root, ".gitignore", "vendor/\nbuildout/\n")
	writeIgnoreFile(t, root, ".uceignore", "!vendor/keep.ts\n")
	m := NewMatcher(root, nil)

	assert.False(t, m.PruneDir("vendor"), "negation beneath forbids pruning")
	assert.True(t, m.PruneDir("buildout"))
	assert.False(t, m.PruneDir("src"))
}

func TestCommentsAndBlanksSkipped(t *testing.T) {
	root := t.TempDir()
	writeIgnoreFile(t, root, ".gitignore", "\n# just a comment\n\n")
	m := NewMatcher(root, nil)
	assert.False(t, m.Ignored("anything.ts", false))
}
