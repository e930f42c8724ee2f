// Package notify reports job state to source-control providers via their
// per-commit status APIs.
package notify

import (
	"context"
	"fmt"

	"slipway/internal/server/model"
)

// Providers that can receive commit statuses.
const (
	ProviderGithub = "github"
	ProviderGitlab = "gitlab"
)

// StatusContext is the value sent in the status payload's context field.
const StatusContext = "continuous-integration/slipway/push"

// StatusSender posts one provider's commit status for a job.
type StatusSender interface {
	// Name is the provider name, for logs and stage output.
	Name() string
	// Configured reports whether the project carries enough provider
	// settings for statuses to be sent at all.
	Configured(project *model.Project) bool
	// SendStatus posts the given provider-specific state string.
	SendStatus(ctx context.Context, project *model.Project, job *model.Job,
		state, description, targetURL string) error
}

// StateDataFor maps an internal job state onto the given provider's state
// string. Unknown internal states map the same way broken does, since a
// state this code does not understand is by definition an infrastructure
// problem.
func StateDataFor(provider, internal string) (string, error) {
	table, ok := stateTables[provider]
	if !ok {
		return "", fmt.Errorf("unknown status provider %q", provider)
	}
	if state, ok := table[internal]; ok {
		return state, nil
	}
	return table[model.ResultBroken], nil
}

// DescriptionFor is the human description accompanying a status.
func DescriptionFor(internal string) string {
	switch internal {
	case model.StateQueued:
		return "Job is queued"
	case model.StateRunning:
		return "Job is in progress"
	case model.ResultSuccess:
		return "Job completed successfully"
	case model.ResultFail:
		return "Tests failed"
	default:
		return "Job did not complete"
	}
}

var stateTables = map[string]map[string]string{
	ProviderGithub: {
		model.StateQueued:   "pending",
		model.StateRunning:  "pending",
		model.ResultSuccess: "success",
		model.ResultFail:    "failure",
		model.ResultBroken:  "error",
	},
	ProviderGitlab: {
		model.StateQueued:   "pending",
		model.StateRunning:  "running",
		model.ResultSuccess: "success",
		model.ResultFail:    "failed",
		model.ResultBroken:  "canceled",
	},
}
