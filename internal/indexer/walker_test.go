package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucengine/uce/internal/config"
)

func discover(t *testing.T, root string, extra []string, maxSize int64) []string {
	t.Helper()
	if maxSize == 0 {
		maxSize = config.DefaultMaxFileSize
	}
	paths, err := NewWalker(root, extra, maxSize).Discover()
	require.NoError(t, err)
	return paths
}

func TestDiscoverClaimsKnownLanguages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "x = 1\n")
	writeFile(t, root, "app.ts", "const x = 1;\n")
	writeFile(t, root, "notes.md", "# Notes\n")
	writeFile(t, root, "data.csv", "a,b\n")
	writeFile(t, root, "binary.bin", "junk\n")

	paths := discover(t, root, nil, 0)
	assert.Equal(t, []string{"app.py", "app.ts", "notes.md"}, paths)
}

func TestDiscoverDefaultExcludes(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".git", "node_modules", "venv", "dist", "build"} {
		writeFile(t, root, dir+"/buried.py", "x = 1\n")
	}
	writeFile(t, root, "main.py", "x = 1\n")

	paths := discover(t, root, nil, 0)
	assert.Equal(t, []string{"main.py"}, paths)
}

func TestDiscoverGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.gen.ts\n")
	writeFile(t, root, "generated/out.ts", "const x = 1;\n")
	writeFile(t, root, "api.gen.ts", "const x = 1;\n")
	writeFile(t, root, "main.ts", "const x = 1;\n")

	paths := discover(t, root, nil, 0)
	assert.Equal(t, []string{"main.ts"}, paths)
}

func TestDiscoverNegationAcrossLayers(t *testing.T) {
	// .gitignore drops the directory, .uceignore re-admits one file.
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "vendor/\n")
	writeFile(t, root, ".uceignore", "!vendor/keep.ts\n")
	writeFile(t, root, "vendor/keep.ts", "const k = 1;\n")
	writeFile(t, root, "vendor/drop.ts", "const d = 1;\n")

	paths := discover(t, root, nil, 0)
	assert.Equal(t, []string{"vendor/keep.ts"}, paths)
}

func TestDiscoverExtraPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "x = 1\n")
	writeFile(t, root, "scratch.py", "x = 1\n")

	paths := discover(t, root, []string{"scratch.py"}, 0)
	assert.Equal(t, []string{"main.py"}, paths)
}

func TestDiscoverSizeLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.py", "x = 1\n")
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	writeFile(t, root, "big.py", "# "+string(big)+"\n")

	paths := discover(t, root, nil, 1024)
	assert.Equal(t, []string{"small.py"}, paths)
}

func TestDiscoverSkipsBinaryAndEmpty(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.py", "x = 1\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.py"), []byte{0x00, 0x01, 0x02}, 0o644))

	paths := discover(t, root, nil, 0)
	assert.Equal(t, []string{"ok.py"}, paths)
}

func TestDiscoverNestedSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/pkg/deep/d.py", "x = 1\n")
	writeFile(t, root, "src/a.py", "x = 1\n")
	writeFile(t, root, "top.py", "x = 1\n")

	paths := discover(t, root, nil, 0)
	assert.Equal(t, []string{"src/a.py", "src/pkg/deep/d.py", "top.py"}, paths)
}

func TestDiscoverSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/mod.py", "x = 1\n")

	// Loop back to the root; the visited set must break it.
	err := os.Symlink(root, filepath.Join(root, "sub", "loop"))
	if err != nil {
		t.Skip("symlinks unavailable")
	}

	paths := discover(t, root, nil, 0)
	assert.Contains(t, paths, "sub/mod.py")
}
