package safety

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeJoinUnder(t *testing.T) {
	root := t.TempDir()

	okPath, err := SafeJoinUnder(root, "a/b/c.txt")
	if err != nil {
		t.Fatalf("SafeJoinUnder returned error: %v", err)
	}
	if !strings.HasPrefix(okPath, root) {
		t.Fatalf("path %q is not under root %q", okPath, root)
	}

	if _, err := SafeJoinUnder(root, "../escape.txt"); err == nil {
		t.Fatal("expected traversal path to fail")
	}
	if _, err := SafeJoinUnder(root, "/abs/path.txt"); err == nil {
		t.Fatal("expected absolute path to fail")
	}
	if _, err := SafeJoinUnder(root, "a/../../escape.txt"); err == nil {
		t.Fatal("expected nested traversal to fail")
	}
}

func TestCleanRelativePath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"src/main.cpp", filepath.Join("src", "main.cpp"), false},
		{"./src//x.h", filepath.Join("src", "x.h"), false},
		{"", "", true},
		{".", "", true},
		{"..", "", true},
		{"/etc/passwd", "", true},
	}

	for _, tt := range tests {
		got, err := CleanRelativePath(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CleanRelativePath(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("CleanRelativePath(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanRelativePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureUnderRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := EnsureUnderRoot(root, root+"/child/file.txt"); err != nil {
		t.Fatalf("EnsureUnderRoot failed for child path: %v", err)
	}
	if _, err := EnsureUnderRoot(root, root+"/../escape"); err == nil {
		t.Fatal("expected escape path to fail")
	}
}

func TestEnsureNoSymlinks(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/etc", filepath.Join(root, "etc")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../outside", filepath.Join(root, "docs", "latest")); err != nil {
		t.Fatal(err)
	}

	if err := EnsureNoSymlinks(root, filepath.Join(root, "docs", "index.md")); err != nil {
		t.Fatalf("plain path rejected: %v", err)
	}
	if err := EnsureNoSymlinks(root, filepath.Join(root, "new", "dir", "file.txt")); err != nil {
		t.Fatalf("not-yet-created path rejected: %v", err)
	}
	if err := EnsureNoSymlinks(root, root); err != nil {
		t.Fatalf("root rejected: %v", err)
	}
	if err := EnsureNoSymlinks(root, filepath.Join(root, "etc", "passwd")); err == nil {
		t.Fatal("expected path through symlinked directory to fail")
	}
	if err := EnsureNoSymlinks(root, filepath.Join(root, "docs", "latest")); err == nil {
		t.Fatal("expected symlink itself to fail")
	}
	if err := EnsureNoSymlinks(root, filepath.Join(root, "..", "escape")); err == nil {
		t.Fatal("expected escaping path to fail")
	}
}
