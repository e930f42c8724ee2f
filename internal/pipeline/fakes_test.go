package pipeline

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slipway/internal/server/model"
)

// memStore keeps job and stage state in memory for pipeline tests.
type memStore struct {
	mu     sync.Mutex
	saves  int
	stages []*model.JobStage
}

func (s *memStore) Save(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *memStore) CreateStage(ctx context.Context, stage *model.JobStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage.ID = uint(len(s.stages) + 1)
	s.stages = append(s.stages, stage)
	return nil
}

func (s *memStore) UpdateStage(ctx context.Context, stage *model.JobStage) error {
	return nil
}

func (s *memStore) slugs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	slugs := make([]string, len(s.stages))
	for i, stage := range s.stages {
		slugs[i] = stage.Slug
	}
	return slugs
}

func (s *memStore) stage(slug string) *model.JobStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stage := range s.stages {
		if stage.Slug == slug {
			return stage
		}
	}
	return nil
}

// fakeDocker scripts daemon behavior and records every call made.
type fakeDocker struct {
	mu           sync.Mutex
	calls        []string
	images       map[string][]ImageSummary
	exitCode     int
	running      bool
	created      []CreateOptions
	removed      []string
	forceRemoved []string

	buildErr error
	pushErr  error
	listFn   func(reference string) ([]ImageSummary, error)
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{images: map[string][]ImageSummary{}}
}

func (f *fakeDocker) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDocker) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeDocker) Host() string { return "unix:///fake/docker.sock" }
func (f *fakeDocker) Close() error { return nil }

func (f *fakeDocker) ImageList(ctx context.Context, reference string) ([]ImageSummary, error) {
	f.record("ImageList")
	if f.listFn != nil {
		return f.listFn(reference)
	}
	return f.images[reference], nil
}

func (f *fakeDocker) ImageBuild(ctx context.Context, opts BuildOptions) (io.ReadCloser, error) {
	f.record("ImageBuild")
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return io.NopCloser(strings.NewReader(
		"Step 1/1 : FROM scratch\nSuccessfully built cafebabe1234\n")), nil
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, auth *AuthConfig) (io.ReadCloser, error) {
	f.record("ImagePull")
	return io.NopCloser(strings.NewReader("Pulled " + ref + "\n")), nil
}

func (f *fakeDocker) ImagePush(ctx context.Context, ref string, auth *AuthConfig) (io.ReadCloser, error) {
	f.record("ImagePush")
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	return io.NopCloser(strings.NewReader("Pushed " + ref + "\n")), nil
}

func (f *fakeDocker) ImageTag(ctx context.Context, source, target string) error {
	f.record("ImageTag")
	return nil
}

func (f *fakeDocker) ImageRemove(ctx context.Context, ref string, force bool) error {
	f.record("ImageRemove")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ref)
	return nil
}

func (f *fakeDocker) RegistryLogin(ctx context.Context, auth AuthConfig) error {
	f.record("RegistryLogin")
	return nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, opts CreateOptions) (string, error) {
	f.record("ContainerCreate")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, opts)
	return "container-1", nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, id string) error {
	f.record("ContainerStart")
	return nil
}

func (f *fakeDocker) ContainerAttach(ctx context.Context, id string) (io.ReadCloser, error) {
	f.record("ContainerAttach")
	return io.NopCloser(strings.NewReader("test output\n")), nil
}

func (f *fakeDocker) ContainerWait(ctx context.Context, id string) (int, error) {
	f.record("ContainerWait")
	return f.exitCode, nil
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, id string) (ContainerState, error) {
	f.record("ContainerInspect")
	return ContainerState{Running: f.running, ExitCode: f.exitCode}, nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, id string, force bool) error {
	f.record("ContainerRemove")
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.forceRemoved = append(f.forceRemoved, id)
	}
	return nil
}

func (f *fakeDocker) CopyFromContainer(ctx context.Context, id, path string) (io.ReadCloser, error) {
	f.record("CopyFromContainer")
	return io.NopCloser(strings.NewReader("tar bytes")), nil
}

// makeGitRepo builds a one-commit repository for pipeline runs and returns
// its path and head commit.
func makeGitRepo(t *testing.T) (string, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	steps := [][]string{
		{"init", "-q"},
		{"config", "user.email", "ci@example.com"},
		{"config", "user.name", "CI"},
		{"add", "."},
	}
	writeFile(t, dir, "Dockerfile", "FROM scratch\n")
	for _, step := range steps {
		cmd := exec.Command("git", step...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", step, out)
	}
	commit := exec.Command("git", "commit", "-q", "-m", "initial")
	commit.Dir = dir
	out, err := commit.CombinedOutput()
	require.NoError(t, err, "git commit: %s", out)

	head := exec.Command("git", "rev-parse", "HEAD")
	head.Dir = dir
	raw, err := head.Output()
	require.NoError(t, err)
	return dir, strings.TrimSpace(string(raw))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t,
		os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestRun(t *testing.T, job *model.Job, project *model.Project,
	docker Docker, store *memStore) *JobRun {
	t.Helper()
	return &JobRun{
		Job:         job,
		Project:     project,
		Docker:      docker,
		Store:       store,
		Log:         zap.NewNop(),
		DataDir:     t.TempDir(),
		ExternalURL: "http://ci.local",
	}
}
