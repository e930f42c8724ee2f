package pipeline

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// runGit runs one git command in dir, teeing combined output into the stage
// log, and returns the trimmed stdout.
func runGit(ctx context.Context, dir string, out io.Writer, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var buf strings.Builder
	cmd.Stdout = io.MultiWriter(&buf, out)
	cmd.Stderr = out
	err := cmd.Run()
	return strings.TrimSpace(buf.String()), err
}

// gitQuery runs one git command in dir and returns trimmed stdout without
// logging, for metadata reads whose output is stored rather than shown.
func gitQuery(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	raw, err := cmd.Output()
	return strings.TrimSpace(string(raw)), err
}

// isGitAncestor reports whether maybeAncestor is an ancestor of commit in
// the repository at dir. Version control stays an external collaborator; the
// check shells out rather than reimplementing history walking.
func isGitAncestor(ctx context.Context, dir, maybeAncestor, commit string) bool {
	cmd := exec.CommandContext(ctx, "git",
		"merge-base", "--is-ancestor", maybeAncestor, commit)
	cmd.Dir = dir
	return cmd.Run() == nil
}

// gitCommitTime returns the unix committer timestamp of the newest commit
// touching path, or zero when git has no record of it.
func gitCommitTime(ctx context.Context, dir, path string) int64 {
	raw, err := gitQuery(ctx, dir, "log", "-1", "--format=%ct", "--", path)
	if err != nil || raw == "" {
		return 0
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
