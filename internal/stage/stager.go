package stage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Stager materializes a generated file set into a disposable git working
// tree and reports the resulting commit hash. Trees live under a common
// root; Cleanup refuses to touch anything outside it.
type Stager struct {
	root string
}

// NewStager ensures the staging root exists and is accessible.
func NewStager(root string) (*Stager, error) {
	if root == "" {
		return nil, fmt.Errorf("staging root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Stager{root: root}, nil
}

// Stage writes every file of the set (creating parent directories as
// needed) into a fresh working tree, commits them in one commit and
// returns the commit hash plus the tree path. The caller owns Cleanup on
// both success and failure paths.
func (s *Stager) Stage(ctx context.Context, files map[string][]byte) (commitRef, dir string, err error) {
	if len(files) == 0 {
		return "", "", fmt.Errorf("file set cannot be empty")
	}

	dir = filepath.Join(s.root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create working tree: %w", err)
	}

	for path, content := range files {
		target := filepath.Join(dir, filepath.FromSlash(path))
		// Manifest paths come from tenant data; never write past the tree.
		rel, relErr := filepath.Rel(dir, target)
		if relErr != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return "", dir, fmt.Errorf("file path %q escapes the working tree", path)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", dir, fmt.Errorf("create parent dir for %s: %w", path, err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return "", dir, fmt.Errorf("write %s: %w", path, err)
		}
	}

	if err := s.git(ctx, dir, "init", "-q"); err != nil {
		return "", dir, err
	}
	if err := s.git(ctx, dir, "add", "-A"); err != nil {
		return "", dir, err
	}
	message := fmt.Sprintf("publish %d files", len(files))
	if err := s.git(ctx, dir, "-c", "user.name=sitegen", "-c", "user.email=sitegen@localhost", "commit", "-q", "-m", message); err != nil {
		return "", dir, err
	}

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", dir, fmt.Errorf("git rev-parse failed: %w", err)
	}

	return strings.TrimSpace(string(output)), dir, nil
}

// Cleanup removes the working tree unconditionally. It is called on both
// success and failure paths of the orchestrator.
func (s *Stager) Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	// Only remove directories within the configured root.
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to cleanup path outside staging root")
	}
	return os.RemoveAll(dir)
}

func (s *Stager) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, string(output))
	}
	return nil
}
