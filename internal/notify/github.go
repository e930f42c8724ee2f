package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"slipway/internal/server/model"
)

// ErrHookNotTracked means a webhook operation was attempted on a repository
// whose hook id was never recorded.
var ErrHookNotTracked = errors.New("github hook not tracked")

// GithubSender posts commit statuses to the GitHub statuses API.
type GithubSender struct {
	apiBase string
	token   string
	client  *http.Client
}

func NewGithubSender(apiBase, token string) *GithubSender {
	return &GithubSender{
		apiBase: apiBase,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *GithubSender) Name() string { return "GitHub" }

func (s *GithubSender) Configured(project *model.Project) bool {
	return s.token != "" && project.GithubRepoID != ""
}

func (s *GithubSender) SendStatus(ctx context.Context, project *model.Project,
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

	url := fmt.Sprintf("%s/repos/%s/statuses/%s",
		s.apiBase, project.GithubRepoID, job.Commit)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github status returned %d: %s",
			resp.StatusCode, msg)
	}
	return nil
}

// RegisterHook creates a push webhook on the repository, pointing at
// callbackURL and signed with secret, and returns the id GitHub assigns so
// the hook can be removed later.
func (s *GithubSender) RegisterHook(ctx context.Context, repoID, callbackURL, secret string) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"push"},
		"config": map[string]string{
			"url":          callbackURL,
			"secret":       secret,
			"content_type": "json",
		},
	})
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/repos/%s/hooks", s.apiBase, repoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("github hook create returned %d: %s",
			resp.StatusCode, msg)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// DeregisterHook removes a previously registered webhook. A nil hook id is a
// precondition error: there is nothing recorded to remove.
func (s *GithubSender) DeregisterHook(ctx context.Context, repoID string, hookID *int64) error {
	if hookID == nil {
		return ErrHookNotTracked
	}

	url := fmt.Sprintf("%s/repos/%s/hooks/%s",
		s.apiBase, repoID, strconv.FormatInt(*hookID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// A hook already gone on GitHub's side is the desired end state.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github hook delete returned %d: %s",
			resp.StatusCode, msg)
	}
	return nil
}
