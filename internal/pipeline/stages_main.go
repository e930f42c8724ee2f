package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"slipway/internal/common"
)

// ErrTagImmutable rejects rebuilding an existing semantically versioned
// image. Tagged releases are immutable; the conflicting build never reaches
// the daemon.
var ErrTagImmutable = errors.New("semantic version tag already built")

var builtImageRe = regexp.MustCompile(`Successfully built ([0-9a-f]+)`)

// buildImageTag is the reference the build stage tags its image as.
func (r *JobRun) buildImageTag() string {
	if r.Job.Tag == "" {
		return r.imageName()
	}
	return r.imageName() + ":" + r.Job.Tag
}

// buildStage builds the job's image from the workdir. Version-tagged builds
// are uncached and refuse to replace an existing image under the same
// semantic tag; non-semantic tags are mutable and the stale image is removed
// first. The image id comes from the final build-stream line; a stream that
// ends without one is a failure even if the daemon reported no error.
func (r *JobRun) buildStage() Stage {
	return newStage("docker_build", func(ctx context.Context, out io.Writer) (int, error) {
		tagged := r.buildImageTag()

		if r.Job.Tag != "" {
			existing, err := r.Docker.ImageList(ctx, tagged)
			if err != nil {
				return 1, err
			}
			if len(existing) > 0 {
				if common.IsSemantic(r.Job.Tag) {
					fmt.Fprintf(out,
						"Image %s already exists and is a versioned release\n",
						tagged)
					return 1, ErrTagImmutable
				}
				fmt.Fprintf(out, "Removing stale image %s\n", tagged)
				if err := r.Docker.ImageRemove(ctx, tagged, true); err != nil {
					return 1, err
				}
			}
		}

		dockerfile := r.config.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		stream, err := r.Docker.ImageBuild(ctx, BuildOptions{
			ContextDir: r.workdir,
			Dockerfile: dockerfile,
			Tag:        tagged,
			NoCache:    r.Job.Tag != "",
		})
		if err != nil {
			return 1, err
		}
		defer stream.Close()

		return relayStream(stream, out, func(last string) (int, error) {
			imageID := parseBuiltImageID(last)
			if imageID == "" {
				fmt.Fprintln(out, "No image id in build output")
				return 1, nil
			}
			r.Job.ImageID = imageID
			return 0, r.Store.Save(ctx, r.Job)
		})
	})
}

// parseBuiltImageID extracts the image id from the terminal build line,
// which is either a bare id or a "Successfully built" message.
func parseBuiltImageID(line string) string {
	line = strings.TrimSpace(line)
	if match := builtImageRe.FindStringSubmatch(line); match != nil {
		return match[1]
	}
	if common.IsDockerID(line) {
		return strings.TrimPrefix(line, "sha256:")
	}
	return ""
}

// testStage runs the repo's test command in a container from the built
// image, linked to every provisioned utility, and adopts the container's
// exit code as the stage status.
func (r *JobRun) testStage() Stage {
	return newStage("docker_test", func(ctx context.Context, out io.Writer) (int, error) {
		if r.config.SkipTests {
			fmt.Fprintln(out, "Tests skipped by configuration")
			return 0, nil
		}

		command := r.config.TestCommand
		if len(command) == 0 {
			command = []string{"ci"}
		}
		links := make([]string, len(r.provisioned))
		for i, container := range r.provisioned {
			links[i] = container.ID + ":" + container.Alias
		}

		id, err := r.Docker.ContainerCreate(ctx, CreateOptions{
			Image: r.Job.ImageID,
			Cmd:   command,
			Links: links,
		})
		if err != nil {
			return 1, err
		}
		r.Job.ContainerID = id
		if err := r.Store.Save(ctx, r.Job); err != nil {
			return 1, err
		}

		stream, err := r.Docker.ContainerAttach(ctx, id)
		if err != nil {
			return 1, err
		}
		defer stream.Close()
		if err := r.Docker.ContainerStart(ctx, id); err != nil {
			return 1, err
		}

		return relayStream(stream, out, func(string) (int, error) {
			exitCode, err := r.Docker.ContainerWait(ctx, id)
			if err != nil {
				return 1, err
			}
			r.Job.ExitCode = &exitCode
			return exitCode, r.Store.Save(ctx, r.Job)
		})
	})
}
