package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"slipway/internal/common"
	"slipway/internal/notify"
	"slipway/internal/server/model"
)

// pushStage pushes the built image to the target registry. When the job is
// not a push candidate the stage is a successful no-op so the sequence reads
// the same for every job.
func (r *JobRun) pushStage() Stage {
	return newStage("docker_push", func(ctx context.Context, out io.Writer) (int, error) {
		if !r.pushCandidate {
			fmt.Fprintln(out, "Not a push candidate; nothing to push")
			return 0, nil
		}

		target := r.pushImageName() + ":" + r.Job.PushTag()
		fmt.Fprintf(out, "Tagging %s as %s\n",
			shortID(r.Job.ImageID), target)
		if err := r.Docker.ImageTag(ctx, r.Job.ImageID, target); err != nil {
			return 1, err
		}

		stream, err := r.Docker.ImagePush(ctx, target, r.registryAuth())
		if err != nil {
			return 1, err
		}
		defer stream.Close()
		return relayStream(stream, out, nil)
	})
}

// fetchStage copies declared build outputs out of the test container into
// the job's artifact directory, one tar per declared name. Best effort; a
// missed artifact never changes the job result.
func (r *JobRun) fetchStage() Stage {
	return newStage("docker_fetch", func(ctx context.Context, out io.Writer) (int, error) {
		if len(r.config.JobOutput) == 0 {
			fmt.Fprintln(out, "No job output configured")
			return 0, nil
		}
		if r.Job.ContainerID == "" {
			fmt.Fprintln(out, "No container to fetch from")
			return 1, nil
		}

		failures := 0
		for name, containerPath := range r.config.JobOutput {
			dest := filepath.Join(r.OutputDir(), name+".tar")
			size, err := r.fetchOutput(ctx, containerPath, dest)
			if err != nil {
				fmt.Fprintf(out, "Fetching %s from %s... FAILED: %v\n",
					name, containerPath, err)
				failures++
				continue
			}
			fmt.Fprintf(out, "Fetching %s from %s... DONE (%s)\n",
				name, containerPath, common.BytesHumanReadable(size))
		}
		if failures > 0 {
			return failures, nil
		}
		return 0, nil
	})
}

func (r *JobRun) fetchOutput(ctx context.Context, containerPath, dest string) (int64, error) {
	stream, err := r.Docker.CopyFromContainer(ctx, r.Job.ContainerID, containerPath)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	file, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(file, stream)
	if err != nil {
		file.Close()
		return size, err
	}
	return size, file.Close()
}

// externalStatusStage notifies every configured provider of the job's
// current state. Notification failures are logged into the stage output and
// counted, but the run driver never lets them change the job result.
func (r *JobRun) externalStatusStage(suffix string) Stage {
	return newStage("external_status_"+suffix, func(ctx context.Context, out io.Writer) (int, error) {
		state := r.Job.State()
		description := notify.DescriptionFor(state)

		failures := 0
		for _, sender := range r.Notifiers {
			if !sender.Configured(r.Project) {
				continue
			}
			fmt.Fprintf(out, "Submitting status to %s... ", sender.Name())

			providerState, err := notify.StateDataFor(
				providerKey(sender.Name()), state)
			if err == nil {
				err = sender.SendStatus(ctx, r.Project, r.Job,
					providerState, description, r.TargetURL())
			}
			if err != nil {
				fmt.Fprintf(out, "FAILED!\n%v\n", err)
				failures++
				continue
			}
			fmt.Fprintln(out, "DONE!")
		}
		return failures, nil
	})
}

func providerKey(name string) string {
	switch name {
	case "GitHub":
		return notify.ProviderGithub
	case "GitLab":
		return notify.ProviderGitlab
	}
	return name
}

// cleanupStage releases everything the run acquired: the test container,
// provisioned utility containers, the built image when it should not
// outlive the job, and the working directory. Every action is attempted;
// errors are joined and surfaced to the run driver, which records them
// without changing the job result.
func (r *JobRun) cleanupStage() Stage {
	return newStage("cleanup", func(ctx context.Context, out io.Writer) (int, error) {
		var errs []error

		if r.Job.ContainerID != "" {
			// A broken run can leave the test container running; removal
			// without force would fail on it.
			force := false
			if state, err := r.Docker.ContainerInspect(ctx, r.Job.ContainerID); err == nil && state.Running {
				force = true
			}
			fmt.Fprintf(out, "Removing container %s\n",
				shortID(r.Job.ContainerID))
			if err := r.Docker.ContainerRemove(ctx, r.Job.ContainerID, force); err != nil {
				errs = append(errs, err)
			}
		}
		for _, container := range r.provisioned {
			fmt.Fprintf(out, "Removing utility container %s (%s)\n",
				container.Slug, shortID(container.ID))
			if err := r.Docker.ContainerRemove(ctx, container.ID, true); err != nil {
				errs = append(errs, err)
			}
		}
		if r.Job.ImageID != "" && r.shouldRemoveImage() {
			fmt.Fprintf(out, "Removing image %s\n", shortID(r.Job.ImageID))
			if err := r.Docker.ImageRemove(ctx, r.Job.ImageID, false); err != nil {
				errs = append(errs, err)
			}
		}
		if r.workdir != "" {
			fmt.Fprintf(out, "Releasing working directory %s\n", r.workdir)
			if err := os.RemoveAll(r.workdir); err != nil {
				errs = append(errs, err)
			}
		}

		if err := errors.Join(errs...); err != nil {
			return 1, err
		}
		return 0, nil
	})
}

// shouldRemoveImage reports whether the built image is garbage: untagged
// images have no name to be found under, and images of failed or broken
// jobs must not linger as pushable artifacts.
func (r *JobRun) shouldRemoveImage() bool {
	if r.Job.Tag == "" {
		return true
	}
	return r.Job.Result == model.ResultFail ||
		r.Job.Result == model.ResultBroken
}
