package stage

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestNewStager_EmptyRoot(t *testing.T) {
	if _, err := NewStager(""); err == nil {
		t.Error("Expected error for empty root")
	}
}

func TestNewStager_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "stage")
	if _, err := NewStager(root); err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("Expected staging root to exist: %v", err)
	}
}

func TestStage_CommitsFileSet(t *testing.T) {
	requireGit(t)

	s, err := NewStager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}

	files := map[string][]byte{
		"index.html":           []byte("<html></html>"),
		"assets/style.css":     []byte(".a{}"),
		"favicons/favicon.svg": []byte("<svg/>"),
	}

	commitRef, dir, err := s.Stage(context.Background(), files)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer s.Cleanup(dir)

	if len(commitRef) != 40 {
		t.Errorf("Expected 40-char commit hash, got %q", commitRef)
	}

	for path, content := range files {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
		if err != nil {
			t.Errorf("Expected %s in working tree: %v", path, err)
			continue
		}
		if string(got) != string(content) {
			t.Errorf("File %s content = %q, want %q", path, got, content)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Errorf("Expected git repository in working tree: %v", err)
	}
}

func TestStage_RejectsPathEscapingTree(t *testing.T) {
	parent := t.TempDir()
	s, err := NewStager(filepath.Join(parent, "stage"))
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}

	traversals := []string{
		"../../outside/index.html",
		"a/../../../outside/index.html",
		"..",
	}
	for _, path := range traversals {
		files := map[string][]byte{path: []byte("escaped")}
		if _, _, err := s.Stage(context.Background(), files); err == nil {
			t.Errorf("Stage() accepted traversal path %q", path)
		}
	}

	if _, err := os.Stat(filepath.Join(parent, "outside")); !os.IsNotExist(err) {
		t.Error("Expected nothing to be written outside the staging root")
	}
}

func TestStage_EmptyFileSet(t *testing.T) {
	s, err := NewStager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}

	if _, _, err := s.Stage(context.Background(), nil); err == nil {
		t.Error("Expected error for empty file set")
	}
}

func TestStage_DistinctTreesPerCall(t *testing.T) {
	requireGit(t)

	s, err := NewStager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}
	files := map[string][]byte{"index.html": []byte("x")}

	_, dir1, err := s.Stage(context.Background(), files)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer s.Cleanup(dir1)

	_, dir2, err := s.Stage(context.Background(), files)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer s.Cleanup(dir2)

	if dir1 == dir2 {
		t.Error("Expected each Stage call to get its own working tree")
	}
}

func TestCleanup(t *testing.T) {
	requireGit(t)

	s, err := NewStager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}

	_, dir, err := s.Stage(context.Background(), map[string][]byte{"index.html": []byte("x")})
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	if err := s.Cleanup(dir); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected working tree to be removed")
	}
}

func TestCleanup_RefusesOutsideRoot(t *testing.T) {
	s, err := NewStager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}

	outside := t.TempDir()
	if err := s.Cleanup(outside); err == nil {
		t.Error("Expected refusal to cleanup path outside staging root")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("Outside directory must survive: %v", err)
	}

	if err := s.Cleanup(""); err != nil {
		t.Errorf("Cleanup(\"\") should be a no-op, got %v", err)
	}
}
