package pathsafe

import (
	"path/filepath"
	"testing"
)

func TestResolveAcceptsPathsUnderRoot(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, filepath.Join("tests", "login.spec.js"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "tests", "login.spec.js")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveRejectsTraversalOutsideRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := Resolve(root, filepath.Join("..", "..", "etc", "passwd")); err == nil {
		t.Fatal("expected traversal outside root to be rejected")
	}
}

func TestResolveRejectsAbsolutePathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := Resolve(root, "/etc/passwd"); err == nil {
		t.Fatal("expected absolute path outside root to be rejected")
	}
}

func TestResolveAcceptsRootItself(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, ".")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != root {
		t.Fatalf("got %q, want %q", got, root)
	}
}
