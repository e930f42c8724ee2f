package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipway/internal/server/model"
)

func TestStateDataForTable(t *testing.T) {
	cases := []struct {
		internal string
		github   string
		gitlab   string
	}{
		{model.StateQueued, "pending", "pending"},
		{model.StateRunning, "pending", "running"},
		{model.ResultSuccess, "success", "success"},
		{model.ResultFail, "failure", "failed"},
		{model.ResultBroken, "error", "canceled"},
		{"something-new", "error", "canceled"},
	}
	for _, tc := range cases {
		github, err := StateDataFor(ProviderGithub, tc.internal)
		require.NoError(t, err)
		assert.Equal(t, tc.github, github, "github/%s", tc.internal)

		gitlab, err := StateDataFor(ProviderGitlab, tc.internal)
		require.NoError(t, err)
		assert.Equal(t, tc.gitlab, gitlab, "gitlab/%s", tc.internal)
	}

	_, err := StateDataFor("bitbucket", model.ResultSuccess)
	assert.Error(t, err)
}

func TestGithubSenderPostsStatus(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sender := NewGithubSender(server.URL, "secrettoken")
	project := &model.Project{GithubRepoID: "acme/widgets"}
	job := &model.Job{Commit: "abc123"}

	require.True(t, sender.Configured(project))
	err := sender.SendStatus(context.Background(), project, job,
		"success", "Job completed successfully", "http://ci/jobs/000001")
	require.NoError(t, err)

	assert.Equal(t, "/repos/acme/widgets/statuses/abc123", gotPath)
	assert.Equal(t, "token secrettoken", gotAuth)
	assert.Equal(t, "success", gotBody["state"])
	assert.Equal(t, StatusContext, gotBody["context"])
	assert.Equal(t, "http://ci/jobs/000001", gotBody["target_url"])
}

func TestGithubSenderNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	sender := NewGithubSender(server.URL, "badtoken")
	err := sender.SendStatus(context.Background(),
		&model.Project{GithubRepoID: "acme/widgets"},
		&model.Job{Commit: "abc123"}, "success", "", "")
	assert.ErrorContains(t, err, "401")
}

func TestGitlabSenderPostsStatus(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("PRIVATE-TOKEN")
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer server.Close()

	sender := NewGitlabSender(server.URL, "glpat")
	project := &model.Project{GitlabRepoID: "1234"}
	job := &model.Job{Commit: "def456"}

	require.True(t, sender.Configured(project))
	err := sender.SendStatus(context.Background(), project, job,
		"failed", "Tests failed", "http://ci/jobs/000002")
	require.NoError(t, err)

	assert.Equal(t, "/api/v4/projects/1234/statuses/def456", gotPath)
	assert.Equal(t, "glpat", gotToken)
	assert.Equal(t, "failed", gotBody["state"])
}

func TestSendersNotConfiguredWithoutRepoID(t *testing.T) {
	github := NewGithubSender("http://example.com", "token")
	gitlab := NewGitlabSender("http://example.com", "token")
	bare := &model.Project{}
	assert.False(t, github.Configured(bare))
	assert.False(t, gitlab.Configured(bare))

	noToken := NewGithubSender("http://example.com", "")
	assert.False(t, noToken.Configured(&model.Project{GithubRepoID: "a/b"}))
}
