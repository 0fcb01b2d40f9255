package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindProjectRoot(t *testing.T) {
	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot returned error: %v", err)
	}
	if root == "" {
		t.Fatal("FindProjectRoot returned empty string")
	}

	goMod := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goMod); err != nil {
		t.Fatalf("go.mod not found at %s: %v", goMod, err)
	}
}

func TestWriteTree(t *testing.T) {
	dir := t.TempDir()
	WriteTree(t, dir, map[string]string{
		"a.txt":         "hello",
		"sub/b.txt":     "world",
		"sub/deep/c.md": "# c",
	})

	checks := []struct {
		rel  string
		want string
	}{
		{"a.txt", "hello"},
		{"sub/b.txt", "world"},
		{"sub/deep/c.md", "# c"},
	}

	for _, c := range checks {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(c.rel)))
		if err != nil {
			t.Fatalf("read %s: %v", c.rel, err)
		}
		if string(data) != c.want {
			t.Errorf("%s content = %q, want %q", c.rel, data, c.want)
		}
	}
}
