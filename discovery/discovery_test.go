package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func makeTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	mustMkdirAll(t, filepath.Join(root, "subdir1"))
	mustMkdirAll(t, filepath.Join(root, "subdir2", "nested"))

	mustWrite(t, filepath.Join(root, "file1.xml"), `<?xml version="1.0"?>`)
	mustWrite(t, filepath.Join(root, "file2.xml"), `<?xml version="1.0"?>`)
	mustWrite(t, filepath.Join(root, "file3.txt"), "text file")
	mustWrite(t, filepath.Join(root, "subdir1", "nested.xml"), `<?xml version="1.0"?>`)
	mustWrite(t, filepath.Join(root, "subdir2", "nested", "deep.xml"), `<?xml version="1.0"?>`)
	mustWrite(t, filepath.Join(root, "subdir2", "nested", "other.xsd"), "schema")

	return root
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o750); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func names(t *testing.T, files []string) map[string]bool {
	t.Helper()
	out := make(map[string]bool, len(files))
	for _, f := range files {
		out[filepath.Base(f)] = true
	}
	return out
}

func TestDiscoverXMLFiles(t *testing.T) {
	root := makeTestTree(t)
	files, err := Discover(root, Options{Extensions: []string{"xml"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 files, got %d: %v", len(files), files)
	}
	n := names(t, files)
	for _, want := range []string{"file1.xml", "file2.xml", "nested.xml", "deep.xml"} {
		if !n[want] {
			t.Errorf("expected to find %s", want)
		}
	}
}

func TestDiscoverMultipleExtensions(t *testing.T) {
	root := makeTestTree(t)
	files, err := Discover(root, Options{Extensions: []string{"xml", "xsd"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("expected 5 files, got %d", len(files))
	}
}

func TestMaxDepthLimit(t *testing.T) {
	root := makeTestTree(t)
	depth := 1
	files, err := Discover(root, Options{Extensions: []string{"xml"}, MaxDepth: &depth})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files within depth 1, got %d: %v", len(files), files)
	}
	n := names(t, files)
	if n["deep.xml"] {
		t.Error("deep.xml should be excluded by max depth")
	}
}

func TestIncludePatterns(t *testing.T) {
	root := makeTestTree(t)
	files, err := Discover(root, Options{Extensions: []string{"xml"}, IncludeGlobs: []string{"**/nested*"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file matching include pattern, got %d: %v", len(files), files)
	}
}

func TestExcludePatterns(t *testing.T) {
	root := makeTestTree(t)
	files, err := Discover(root, Options{Extensions: []string{"xml"}, ExcludeGlobs: []string{"**/subdir2/**"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(files), files)
	}
	if names(t, files)["deep.xml"] {
		t.Error("deep.xml should have been excluded")
	}
}

func TestExcludeCheckedBeforeInclude(t *testing.T) {
	root := makeTestTree(t)
	files, err := Discover(root, Options{
		Extensions:   []string{"xml"},
		IncludeGlobs: []string{"**/nested*"},
		ExcludeGlobs: []string{"**/subdir1/**"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// nested.xml lives under subdir1, so it is excluded even though it
	// would otherwise match the include pattern.
	if len(files) != 0 {
		t.Fatalf("expected 0 files, got %d: %v", len(files), files)
	}
}

func TestRootIsFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "single.xml")
	mustWrite(t, path, `<?xml version="1.0"?>`)

	files, err := Discover(path, Options{Extensions: []string{"xml"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Fatalf("expected [%s], got %v", path, files)
	}
}

func TestNonexistentRootIsFatal(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), Options{Extensions: []string{"xml"}})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestGlobToRegex(t *testing.T) {
	re, err := globToRegex("*.xml")
	if err != nil {
		t.Fatal(err)
	}
	if !re.MatchString("test.xml") || re.MatchString("test.txt") || re.MatchString("dir/test.xml") {
		t.Error("unexpected single-star match behavior")
	}

	re, err = globToRegex("**/*.xml")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"test.xml", "dir/test.xml", "dir/subdir/test.xml"} {
		if !re.MatchString(s) {
			t.Errorf("expected %s to match **/*.xml", s)
		}
	}
}

func TestSymlinksSkippedByDefault(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "real.xml"), `<?xml version="1.0"?>`)
	if err := os.Symlink(filepath.Join(root, "real.xml"), filepath.Join(root, "link.xml")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	files, err := Discover(root, Options{Extensions: []string{"xml"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected symlink to be skipped, got %d files: %v", len(files), files)
	}
}
