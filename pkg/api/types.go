// Package api holds the request and response shapes shared by the server
// and the CLI client.
package api

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type ProjectRequest struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Repo           string `json:"repo"`
	Utility        bool   `json:"utility,omitempty"`
	BranchPattern  string `json:"branch_pattern,omitempty"`
	GithubRepoID   string `json:"github_repo_id,omitempty"`
	GithubSecret   string `json:"github_secret,omitempty"`
	GitlabRepoID   string `json:"gitlab_repo_id,omitempty"`
	GitlabSecret   string `json:"gitlab_secret,omitempty"`
	TargetRegistry string `json:"target_registry,omitempty"`
}

type ProjectBrief struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Repo    string `json:"repo"`
	Utility bool   `json:"utility"`
}

// ProjectCreated is the create response. Hook secrets appear here and
// nowhere else, so a caller must record them at creation time.
type ProjectCreated struct {
	ProjectBrief
	GithubSecret string `json:"github_secret,omitempty"`
	GitlabSecret string `json:"gitlab_secret,omitempty"`
}

type TriggerRequest struct {
	Commit string `json:"commit"`
	Tag    string `json:"tag,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// RequeueRequest re-runs a completed job as a new job with an ancestor
// back-reference; the commit and refs are inherited.
type RequeueRequest struct {
	JobSlug string `json:"job_slug"`
}

type JobBrief struct {
	Slug    string `json:"slug"`
	Project string `json:"project"`
	Commit  string `json:"commit"`
	Tag     string `json:"tag,omitempty"`
	Branch  string `json:"branch,omitempty"`
	State   string `json:"state"`
}

type JobDetail struct {
	JobBrief
	StartTs       string       `json:"start_ts,omitempty"`
	CompleteTs    string       `json:"complete_ts,omitempty"`
	ImageID       string       `json:"image_id,omitempty"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	DockerHost    string       `json:"docker_host,omitempty"`
	AncestorSlug  string       `json:"ancestor_slug,omitempty"`
	ChangedResult *bool        `json:"changed_result,omitempty"`
	Stages        []StageBrief `json:"stages"`
}

type StageBrief struct {
	Slug       string `json:"slug"`
	ReturnCode *int   `json:"return_code,omitempty"`
}

type RegistryRequest struct {
	BaseName    string `json:"base_name"`
	DisplayName string `json:"display_name,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Email       string `json:"email,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}
