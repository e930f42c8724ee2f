// Package dockerpool binds jobs to docker daemon endpoints and wraps the
// docker SDK behind the pipeline's daemon interface.
package dockerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"

	"slipway/internal/pipeline"
)

// Client wraps one docker SDK client bound to a single daemon endpoint and
// adapts its streaming calls into the line-oriented form the pipeline
// consumes.
type Client struct {
	host string
	cli  *client.Client
}

// NewClient connects to the daemon at host.
func NewClient(host string) (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect docker host %s: %w", host, err)
	}
	return &Client{host: host, cli: cli}, nil
}

// NewClientFromEnv discovers the daemon from DOCKER_HOST and friends.
func NewClientFromEnv() (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect docker from environment: %w", err)
	}
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		host = client.DefaultDockerHost
	}
	return &Client{host: host, cli: cli}, nil
}

func (c *Client) Host() string { return c.host }

func (c *Client) Close() error { return c.cli.Close() }

func (c *Client) ImageList(ctx context.Context, reference string) ([]pipeline.ImageSummary, error) {
	summaries, err := c.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", reference)),
	})
	if err != nil {
		return nil, err
	}
	images := make([]pipeline.ImageSummary, len(summaries))
	for i, summary := range summaries {
		images[i] = pipeline.ImageSummary{
			ID:       summary.ID,
			RepoTags: summary.RepoTags,
		}
	}
	return images, nil
}

func (c *Client) ImageBuild(ctx context.Context, opts pipeline.BuildOptions) (io.ReadCloser, error) {
	buildContext, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return nil, err
	}
	resp, err := c.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{opts.Tag},
		Dockerfile: opts.Dockerfile,
		NoCache:    opts.NoCache,
		Remove:     true,
	})
	if err != nil {
		buildContext.Close()
		return nil, err
	}
	return decodeJSONStream(resp.Body), nil
}

func (c *Client) ImagePull(ctx context.Context, ref string, auth *pipeline.AuthConfig) (io.ReadCloser, error) {
	stream, err := c.cli.ImagePull(ctx, ref, image.PullOptions{
		RegistryAuth: encodeAuth(auth),
	})
	if err != nil {
		return nil, err
	}
	return decodeJSONStream(stream), nil
}

func (c *Client) ImagePush(ctx context.Context, ref string, auth *pipeline.AuthConfig) (io.ReadCloser, error) {
	stream, err := c.cli.ImagePush(ctx, ref, image.PushOptions{
		RegistryAuth: encodeAuth(auth),
	})
	if err != nil {
		return nil, err
	}
	return decodeJSONStream(stream), nil
}

func (c *Client) ImageTag(ctx context.Context, source, target string) error {
	return c.cli.ImageTag(ctx, source, target)
}

func (c *Client) ImageRemove(ctx context.Context, ref string, force bool) error {
	_, err := c.cli.ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	return err
}

func (c *Client) RegistryLogin(ctx context.Context, auth pipeline.AuthConfig) error {
	_, err := c.cli.RegistryLogin(ctx, registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		Email:         auth.Email,
		ServerAddress: auth.ServerAddress,
	})
	return err
}

func (c *Client) ContainerCreate(ctx context.Context, opts pipeline.CreateOptions) (string, error) {
	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image: opts.Image,
			Cmd:   opts.Cmd,
			Env:   opts.Env,
		},
		&container.HostConfig{
			Links: opts.Links,
		},
		nil, nil, opts.Name,
	)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) ContainerStart(ctx context.Context, id string) error {
	return c.cli.ContainerStart(ctx, id, container.StartOptions{})
}

// ContainerAttach follows the container's combined output as one
// line-oriented stream.
func (c *Client) ContainerAttach(ctx context.Context, id string) (io.ReadCloser, error) {
	logs, err := c.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, err
	}

	reader, writer := io.Pipe()
	go func() {
		defer logs.Close()
		_, err := stdcopy.StdCopy(writer, writer, logs)
		writer.CloseWithError(err)
	}()
	return reader, nil
}

func (c *Client) ContainerWait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

func (c *Client) ContainerInspect(ctx context.Context, id string) (pipeline.ContainerState, error) {
	info, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return pipeline.ContainerState{}, err
	}
	state := pipeline.ContainerState{}
	if info.State != nil {
		state.Running = info.State.Running
		state.ExitCode = info.State.ExitCode
	}
	return state, nil
}

func (c *Client) ContainerRemove(ctx context.Context, id string, force bool) error {
	return c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
}

func (c *Client) CopyFromContainer(ctx context.Context, id, path string) (io.ReadCloser, error) {
	stream, _, err := c.cli.CopyFromContainer(ctx, id, path)
	return stream, err
}

// encodeAuth packs credentials into the X-Registry-Auth wire form. Empty
// credentials encode to an empty header, which the daemon treats as
// anonymous.
func encodeAuth(auth *pipeline.AuthConfig) string {
	if auth == nil {
		return ""
	}
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		Email:         auth.Email,
		ServerAddress: auth.ServerAddress,
	})
	if err != nil {
		return ""
	}
	return encoded
}

// decodeJSONStream converts the daemon's line-delimited JSON message stream
// into plain text lines: progress status, build output, and the terminal
// image id from the aux payload. Daemon-reported errors surface as stream
// errors.
func decodeJSONStream(stream io.ReadCloser) io.ReadCloser {
	reader, writer := io.Pipe()
	go func() {
		defer stream.Close()
		decoder := json.NewDecoder(stream)
		for {
			var msg jsonmessage.JSONMessage
			if err := decoder.Decode(&msg); err != nil {
				if err == io.EOF {
					writer.Close()
				} else {
					writer.CloseWithError(err)
				}
				return
			}
			if msg.Error != nil {
				fmt.Fprintln(writer, msg.Error.Message)
				writer.CloseWithError(msg.Error)
				return
			}
			if msg.Aux != nil {
				var result struct {
					ID string `json:"ID"`
				}
				if err := json.Unmarshal(*msg.Aux, &result); err == nil && result.ID != "" {
					fmt.Fprintln(writer, result.ID)
				}
				continue
			}
			if msg.Stream != "" {
				io.WriteString(writer, msg.Stream)
				if msg.Stream[len(msg.Stream)-1] != '\n' {
					io.WriteString(writer, "\n")
				}
				continue
			}
			if msg.Status != "" {
				fmt.Fprintln(writer, msg.Status)
			}
		}
	}()
	return reader
}
