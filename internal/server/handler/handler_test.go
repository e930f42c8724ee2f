package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"slipway/internal/common"
	"slipway/internal/notify"
	"slipway/internal/server/dao"
	"slipway/internal/server/middleware"
	"slipway/internal/server/model"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

// fakeHooks records webhook registrations instead of calling GitHub.
type fakeHooks struct {
	mu           sync.Mutex
	nextID       int64
	registered   []string
	secrets      []string
	deregistered []int64
}

func (f *fakeHooks) RegisterHook(ctx context.Context, repoID, callbackURL, secret string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, repoID)
	f.secrets = append(f.secrets, secret)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeHooks) DeregisterHook(ctx context.Context, repoID string, hookID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hookID == nil {
		return notify.ErrHookNotTracked
	}
	f.deregistered = append(f.deregistered, *hookID)
	return nil
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	queue  *fakeQueue
	hooks  *fakeHooks
	cfg    common.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, dao.Migrate(db))

	cfg := common.Config{
		JWTKey:      "test-key",
		DataDir:     t.TempDir(),
		ExternalURL: "http://ci.local",
	}
	queue := &fakeQueue{}
	hooks := &fakeHooks{}
	handlers := NewHandlers(cfg, zap.NewNop(), db, queue)
	handlers.hooks = hooks
	router := gin.New()
	handlers.RegisterRoutes(router)

	return &testServer{router: router, db: db, queue: queue, hooks: hooks, cfg: cfg}
}

func (s *testServer) authToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateJWT(s.cfg.JWTKey, "admin", "admin")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, payload any) (*httptest.ResponseRecorder, common.Response) {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var envelope common.Response
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		json.Unmarshal(w.Body.Bytes(), &envelope)
	}
	return w, envelope
}

func (s *testServer) createProject(t *testing.T, project *model.Project) {
	t.Helper()
	require.NoError(t, s.db.Create(project).Error)
}

const testCommit = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestTriggerRequiresAuth(t *testing.T) {
	server := newTestServer(t)
	_, envelope := server.do(t, http.MethodPost, "/api/projects/widgets/jobs", "",
		map[string]string{"commit": testCommit})
	assert.Equal(t, common.TokenInvalid, envelope.Code)
}

func TestTriggerValidatesCommit(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{Slug: "widgets", Name: "w", Repo: "repo"})
	token := server.authToken(t)

	for _, commit := range []string{"", "short", strings.Repeat("z", 40)} {
		_, envelope := server.do(t, http.MethodPost, "/api/projects/widgets/jobs",
			token, map[string]string{"commit": commit})
		assert.Equal(t, common.CommitInvalid, envelope.Code, "commit %q", commit)
	}
	assert.Empty(t, server.queue.tasks, "no job may be queued on validation failure")
}

func TestTriggerCreatesAndQueuesJob(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{Slug: "widgets", Name: "w", Repo: "repo"})
	token := server.authToken(t)

	_, envelope := server.do(t, http.MethodPost, "/api/projects/widgets/jobs",
		token, map[string]string{"commit": testCommit, "branch": "main"})
	require.Equal(t, common.SuccessCode, envelope.Code, envelope.Message)
	require.Len(t, server.queue.tasks, 1)

	var count int64
	server.db.Model(&model.Job{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestTriggerUnknownProject(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)
	_, envelope := server.do(t, http.MethodPost, "/api/projects/ghost/jobs",
		token, map[string]string{"commit": testCommit})
	assert.Equal(t, common.ProjectNotExists, envelope.Code)
}

func TestRequeueCreatesNewJobWithAncestor(t *testing.T) {
	server := newTestServer(t)
	project := &model.Project{Slug: "widgets", Name: "w", Repo: "repo"}
	server.createProject(t, project)

	original := &model.Job{
		ProjectID: project.ID,
		Commit:    testCommit,
		Branch:    "main",
		Result:    model.ResultFail,
	}
	require.NoError(t, server.db.Create(original).Error)
	token := server.authToken(t)

	_, envelope := server.do(t, http.MethodPost,
		"/api/projects/widgets/jobs/"+original.Slug()+"/requeue", token, nil)
	require.Equal(t, common.SuccessCode, envelope.Code, envelope.Message)

	var requeued model.Job
	require.NoError(t, server.db.Order("id DESC").First(&requeued).Error)
	assert.NotEqual(t, original.ID, requeued.ID)
	require.NotNil(t, requeued.AncestorJobID)
	assert.Equal(t, original.ID, *requeued.AncestorJobID)
	assert.Equal(t, original.Commit, requeued.Commit)
}

func TestUtilityProjectRequiresRegistry(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)

	_, envelope := server.do(t, http.MethodPost, "/api/projects", token,
		map[string]any{"slug": "helper", "repo": "repo", "utility": true})
	assert.Equal(t, common.RegistryRequired, envelope.Code)
}

func TestCreateProjectGeneratesHookSecret(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)

	_, envelope := server.do(t, http.MethodPost, "/api/projects", token,
		map[string]any{"slug": "widgets", "repo": "repo", "github_repo_id": "octo/widgets"})
	require.Equal(t, common.SuccessCode, envelope.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["github_secret"])
	assert.Empty(t, data["gitlab_secret"])

	// Secret must be persisted for webhook validation but never listed.
	project, err := dao.NewProjectDao(server.db).GetBySlug(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Equal(t, data["github_secret"], project.GithubSecret)

	_, envelope = server.do(t, http.MethodGet, "/api/projects/widgets", "", nil)
	brief, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, brief, "github_secret")
}

func TestCreateProjectRegistersGithubHook(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)

	_, envelope := server.do(t, http.MethodPost, "/api/projects", token,
		map[string]any{
			"slug":           "widgets",
			"repo":           "repo",
			"github_repo_id": "octo/widgets",
		})
	require.Equal(t, common.SuccessCode, envelope.Code)
	require.Equal(t, []string{"octo/widgets"}, server.hooks.registered)

	project, err := dao.NewProjectDao(server.db).GetBySlug(
		context.Background(), "widgets")
	require.NoError(t, err)
	require.NotNil(t, project.GithubHookID)
	assert.Equal(t, int64(1), *project.GithubHookID)
	// The hook is signed with the secret the server generated.
	assert.Equal(t, []string{project.GithubSecret}, server.hooks.secrets)
}

func TestDeleteProjectDeregistersGithubHook(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)
	hookID := int64(42)
	server.createProject(t, &model.Project{
		Slug: "widgets", Name: "w", Repo: "repo",
		GithubRepoID: "octo/widgets", GithubHookID: &hookID,
	})

	_, envelope := server.do(t, http.MethodDelete,
		"/api/projects/widgets", token, nil)
	require.Equal(t, common.SuccessCode, envelope.Code)
	assert.Equal(t, []int64{42}, server.hooks.deregistered)
}

func TestTriggerLinksCompletedAncestorForCommit(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)
	project := &model.Project{Slug: "widgets", Name: "w", Repo: "repo"}
	server.createProject(t, project)
	prior := &model.Job{
		ProjectID: project.ID, Commit: testCommit,
		Result: model.ResultSuccess,
	}
	require.NoError(t, server.db.Create(prior).Error)

	_, envelope := server.do(t, http.MethodPost,
		"/api/projects/widgets/jobs", token,
		map[string]any{"commit": testCommit})
	require.Equal(t, common.SuccessCode, envelope.Code)

	var created model.Job
	require.NoError(t, server.db.Order("id DESC").First(&created).Error)
	require.NotNil(t, created.AncestorJobID)
	assert.Equal(t, prior.ID, *created.AncestorJobID)
}

func TestRegistryListFallsBackToBaseName(t *testing.T) {
	server := newTestServer(t)
	token := server.authToken(t)

	_, envelope := server.do(t, http.MethodPost, "/api/registries", token,
		map[string]any{"base_name": "registry.local"})
	require.Equal(t, common.SuccessCode, envelope.Code)

	_, envelope = server.do(t, http.MethodGet, "/api/registries", token, nil)
	require.Equal(t, common.SuccessCode, envelope.Code)
	list, ok := envelope.Data.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	entry, ok := list[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "registry.local", entry["display_name"])
}

func TestGetJobDetail(t *testing.T) {
	server := newTestServer(t)
	project := &model.Project{Slug: "widgets", Name: "w", Repo: "repo"}
	server.createProject(t, project)

	job := &model.Job{ProjectID: project.ID, Commit: testCommit, Result: model.ResultSuccess}
	require.NoError(t, server.db.Create(job).Error)
	rc := 0
	require.NoError(t, server.db.Create(&model.JobStage{
		JobID: job.ID, Slug: "docker_build", ReturnCode: &rc,
	}).Error)

	w, envelope := server.do(t, http.MethodGet,
		"/api/projects/widgets/jobs/"+job.Slug(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, common.SuccessCode, envelope.Code)

	raw, _ := json.Marshal(envelope.Data)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(raw, &detail))
	assert.Equal(t, job.Slug(), detail["slug"])
	assert.Equal(t, model.ResultSuccess, detail["state"])
	stages, ok := detail["stages"].([]any)
	require.True(t, ok)
	require.Len(t, stages, 1)
}

func githubSign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGithubWebhookValidSignatureQueuesJob(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{
		Slug: "widgets", Name: "w", Repo: "repo",
		GithubRepoID: "acme/widgets", GithubSecret: "hooksecret",
	})

	body, _ := json.Marshal(map[string]any{
		"after": testCommit,
		"ref":   "refs/heads/main",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github/widgets",
		bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", githubSign("hooksecret", body))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	var envelope common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, common.SuccessCode, envelope.Code, envelope.Message)
	require.Len(t, server.queue.tasks, 1)

	var job model.Job
	require.NoError(t, server.db.First(&job).Error)
	assert.Equal(t, "main", job.Branch)
	assert.Empty(t, job.Tag)
}

func TestGithubWebhookBadSignatureRejected(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{
		Slug: "widgets", Name: "w", Repo: "repo",
		GithubRepoID: "acme/widgets", GithubSecret: "hooksecret",
	})

	body, _ := json.Marshal(map[string]any{"after": testCommit, "ref": "refs/heads/main"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github/widgets",
		bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", githubSign("wrongsecret", body))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	var envelope common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, common.SignatureInvalid, envelope.Code)
	assert.Empty(t, server.queue.tasks)
}

func TestGithubWebhookUntrackedProject(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{Slug: "widgets", Name: "w", Repo: "repo"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github/widgets",
		strings.NewReader("{}"))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	var envelope common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, common.HookNotTracked, envelope.Code)
}

func TestGitlabWebhookTagPush(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{
		Slug: "widgets", Name: "w", Repo: "repo",
		GitlabRepoID: "42", GitlabSecret: "gltoken",
	})

	body, _ := json.Marshal(map[string]any{
		"after": testCommit,
		"ref":   "refs/tags/v1.2.3",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab/widgets",
		bytes.NewReader(body))
	req.Header.Set("X-Gitlab-Token", "gltoken")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	var envelope common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, common.SuccessCode, envelope.Code, envelope.Message)

	var job model.Job
	require.NoError(t, server.db.First(&job).Error)
	assert.Equal(t, "v1.2.3", job.Tag)
	assert.Empty(t, job.Branch)
}

func TestWebhookBranchDeletionIgnored(t *testing.T) {
	server := newTestServer(t)
	server.createProject(t, &model.Project{
		Slug: "widgets", Name: "w", Repo: "repo",
		GitlabRepoID: "42", GitlabSecret: "gltoken",
	})

	body, _ := json.Marshal(map[string]any{
		"after": strings.Repeat("0", 40),
		"ref":   "refs/heads/old-branch",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab/widgets",
		bytes.NewReader(body))
	req.Header.Set("X-Gitlab-Token", "gltoken")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	var envelope common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, common.SuccessCode, envelope.Code)
	assert.Empty(t, server.queue.tasks)
}

func TestLoginFlow(t *testing.T) {
	server := newTestServer(t)
	require.NoError(t, server.db.Create(&model.User{
		Username: "admin",
		Password: common.HashPassword("opensesame"),
		Role:     "admin",
	}).Error)

	_, envelope := server.do(t, http.MethodPost, "/api/login", "",
		map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, common.PasswordErr, envelope.Code)

	_, envelope = server.do(t, http.MethodPost, "/api/login", "",
		map[string]string{"username": "admin", "password": "opensesame"})
	require.Equal(t, common.SuccessCode, envelope.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	token, _ := data["token"].(string)
	assert.NotEmpty(t, token)
}

func TestProjectShield(t *testing.T) {
	server := newTestServer(t)
	project := &model.Project{Slug: "widgets", Name: "w", Repo: "repo"}
	server.createProject(t, project)
	require.NoError(t, server.db.Create(&model.Job{
		ProjectID: project.ID, Commit: testCommit, Result: model.ResultSuccess,
	}).Error)

	w, _ := server.do(t, http.MethodGet, "/api/projects/widgets/shield", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var shield map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &shield))
	assert.Equal(t, "Passing", shield["message"])
	assert.Equal(t, "green", shield["color"])
}
