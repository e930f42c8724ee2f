package pipeline

import (
	"context"
	"io"
)

// ImageSummary is the subset of daemon image metadata the pipeline needs.
type ImageSummary struct {
	ID       string
	RepoTags []string
}

// ContainerState is the subset of container inspect data the pipeline needs.
type ContainerState struct {
	Running  bool
	ExitCode int
}

// AuthConfig carries registry credentials for pull, push and login calls.
type AuthConfig struct {
	Username      string
	Password      string
	Email         string
	ServerAddress string
}

// CreateOptions describes a container to create.
type CreateOptions struct {
	Name  string
	Image string
	Cmd   []string
	Env   []string
	// Links are "container:alias" pairs wiring provisioned utility
	// containers into the created container's network namespace.
	Links []string
}

// BuildOptions describes an image build.
type BuildOptions struct {
	ContextDir string
	Dockerfile string
	Tag        string
	NoCache    bool
}

// Docker is the daemon surface the pipeline runs against. Streaming calls
// return line-oriented readers already decoded from the daemon's JSON
// message stream; the caller owns closing them.
type Docker interface {
	// Host is the daemon endpoint this client is bound to.
	Host() string

	ImageList(ctx context.Context, reference string) ([]ImageSummary, error)
	ImageBuild(ctx context.Context, opts BuildOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, ref string, auth *AuthConfig) (io.ReadCloser, error)
	ImagePush(ctx context.Context, ref string, auth *AuthConfig) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
	ImageRemove(ctx context.Context, ref string, force bool) error

	RegistryLogin(ctx context.Context, auth AuthConfig) error

	ContainerCreate(ctx context.Context, opts CreateOptions) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerAttach(ctx context.Context, id string) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, id string) (int, error)
	ContainerInspect(ctx context.Context, id string) (ContainerState, error)
	ContainerRemove(ctx context.Context, id string, force bool) error
	CopyFromContainer(ctx context.Context, id, path string) (io.ReadCloser, error)

	Close() error
}
