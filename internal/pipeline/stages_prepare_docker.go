package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"slipway/internal/server/model"
)

// registryAuth builds credentials for the project's target registry, nil
// when none is configured or the registry is anonymous.
func (r *JobRun) registryAuth() *AuthConfig {
	registry := r.Project.TargetRegistry
	if registry == nil || !registry.NeedsLogin() {
		return nil
	}
	return &AuthConfig{
		Username:      registry.Username,
		Password:      registry.Password,
		Email:         registry.Email,
		ServerAddress: registry.BaseName,
	}
}

// imageName is the bare repository name images are built under.
func (r *JobRun) imageName() string {
	return r.Project.Slug
}

// pushImageName is the fully qualified name a push candidate is pushed as.
func (r *JobRun) pushImageName() string {
	registry := r.Project.TargetRegistry
	if registry == nil {
		return r.imageName()
	}
	return registry.BaseName + "/" + r.imageName()
}

// pushPrepStage decides whether this job is a push candidate and records the
// decision for the push stage.
func (r *JobRun) pushPrepStage() Stage {
	return newStage("push_prep", func(ctx context.Context, out io.Writer) (int, error) {
		r.pushCandidate = r.Job.PushCandidate(r.Project)
		switch {
		case r.Project.TargetRegistryID == nil:
			fmt.Fprintln(out, "No target registry configured; not pushing")
		case r.Job.TagPushCandidate():
			fmt.Fprintf(out, "Version tag %s; will push as %s:%s\n",
				r.Job.Tag, r.pushImageName(), r.Job.PushTag())
		case r.Job.BranchPushCandidate(r.Project):
			fmt.Fprintf(out, "Branch %s matches push pattern; will push as %s:%s\n",
				r.Job.Branch, r.pushImageName(), r.Job.PushTag())
		default:
			fmt.Fprintln(out, "Not a push candidate")
		}
		return 0, nil
	})
}

// dockerLoginStage authenticates the bound daemon against the target
// registry when a push is on the cards.
func (r *JobRun) dockerLoginStage() Stage {
	return newStage("docker_login", func(ctx context.Context, out io.Writer) (int, error) {
		if !r.pushCandidate {
			fmt.Fprintln(out, "No push planned; skipping registry login")
			return 0, nil
		}
		auth := r.registryAuth()
		if auth == nil {
			fmt.Fprintln(out, "Registry requires no authentication")
			return 0, nil
		}
		fmt.Fprintf(out, "Logging in to %s as %s\n",
			auth.ServerAddress, auth.Username)
		if err := r.Docker.RegistryLogin(ctx, *auth); err != nil {
			return 1, err
		}
		fmt.Fprintln(out, "Login succeeded")
		return 0, nil
	})
}

// utilityStages builds one stage per declared utility, resolving name
// collisions into deterministic slug suffixes.
func (r *JobRun) utilityStages() []Stage {
	names := make([]string, len(r.config.Utilities))
	for i, utility := range r.config.Utilities {
		names[i] = utility.Name
	}
	suffixes := model.UtilitySlugSuffixes(names)

	stages := make([]Stage, len(r.config.Utilities))
	for i, utility := range r.config.Utilities {
		stages[i] = r.utilityStage("utility_"+suffixes[i], utility)
	}
	return stages
}

// utilityStage provisions one auxiliary container and registers it for
// linking into the test stage.
func (r *JobRun) utilityStage(slug string, utility model.UtilityConfig) Stage {
	return newStage(slug, func(ctx context.Context, out io.Writer) (int, error) {
		alias := utility.Alias
		if alias == "" {
			alias = utility.Name
		}

		if err := r.ensureImage(ctx, out, utility.Image); err != nil {
			return 1, err
		}

		id, err := r.Docker.ContainerCreate(ctx, CreateOptions{
			Image: utility.Image,
			Cmd:   utility.Command,
			Env:   utility.Environment,
		})
		if err != nil {
			return 1, err
		}
		r.provisioned = append(r.provisioned, provisionedContainer{
			ID:    id,
			Slug:  utility.Name,
			Alias: alias,
		})
		if err := r.Docker.ContainerStart(ctx, id); err != nil {
			return 1, err
		}
		fmt.Fprintf(out, "Started %s (%s) as %s\n",
			utility.Image, shortID(id), alias)
		return 0, nil
	})
}

// provisionStage starts the service containers the repo declares and
// registers them for linking into the test stage, each under its configured
// alias or its image's base name.
func (r *JobRun) provisionStage() Stage {
	return newStage("docker_provision", func(ctx context.Context, out io.Writer) (int, error) {
		if len(r.config.Services) == 0 {
			fmt.Fprintln(out, "Nothing to provision")
			return 0, nil
		}
		for image, service := range r.config.Services {
			alias := service.Alias
			if alias == "" {
				alias = serviceName(image)
			}

			if err := r.ensureImage(ctx, out, image); err != nil {
				return 1, err
			}
			id, err := r.Docker.ContainerCreate(ctx, CreateOptions{
				Image: image,
				Cmd:   service.Command,
				Env:   service.Environment,
			})
			if err != nil {
				return 1, err
			}
			r.provisioned = append(r.provisioned, provisionedContainer{
				ID:    id,
				Slug:  alias,
				Alias: alias,
			})
			if err := r.Docker.ContainerStart(ctx, id); err != nil {
				return 1, err
			}
			fmt.Fprintf(out, "Started %s (%s) as %s\n",
				image, shortID(id), alias)
		}
		return 0, nil
	})
}

// serviceName derives a link alias from an image reference: the repository
// base name, without registry path or tag.
func serviceName(image string) string {
	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return name
}

// ensureImage pulls an image unless the daemon already has it.
func (r *JobRun) ensureImage(ctx context.Context, out io.Writer, image string) error {
	existing, err := r.Docker.ImageList(ctx, image)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	fmt.Fprintf(out, "Pulling %s\n", image)
	stream, err := r.Docker.ImagePull(ctx, image, r.registryAuth())
	if err != nil {
		return err
	}
	defer stream.Close()
	if rc, err := relayStream(stream, out, nil); err != nil {
		return err
	} else if rc != 0 {
		return fmt.Errorf("pull %s produced no output", image)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
