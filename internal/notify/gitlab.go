package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"slipway/internal/server/model"
)

// GitlabSender posts commit statuses to the GitLab commit status API.
type GitlabSender struct {
	apiBase string
	token   string
	client  *http.Client
}

func NewGitlabSender(apiBase, token string) *GitlabSender {
	return &GitlabSender{
		apiBase: apiBase,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *GitlabSender) Name() string { return "GitLab" }

func (s *GitlabSender) Configured(project *model.Project) bool {
	return s.token != "" && project.GitlabRepoID != ""
}

func (s *GitlabSender) SendStatus(ctx context.Context, project *model.Project,
	job *model.Job, state, description, targetURL string) error {
	body, err := json.Marshal(map[string]string{
		"state":       state,
		"target_url":  targetURL,
		"description": description,
		"context":     StatusContext,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/statuses/%s",
		s.apiBase, url.PathEscape(project.GitlabRepoID), job.Commit)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gitlab status returned %d: %s",
			resp.StatusCode, msg)
	}
	return nil
}
