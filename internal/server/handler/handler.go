package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"slipway/internal/common"
	"slipway/internal/notify"
	"slipway/internal/server/dao"
	"slipway/internal/server/middleware"
)

// Enqueuer is the slice of the asynq client the handlers use, separated so
// tests can capture enqueued tasks.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// HookRegistrar manages webhooks on the source host, separated from the
// GitHub adapter so tests can fake it.
type HookRegistrar interface {
	RegisterHook(ctx context.Context, repoID, callbackURL, secret string) (int64, error)
	DeregisterHook(ctx context.Context, repoID string, hookID *int64) error
}

// Handlers carries the server's request handlers and their dependencies.
type Handlers struct {
	cfg   common.Config
	log   *zap.Logger
	queue Enqueuer
	hooks HookRegistrar

	projectDao  dao.ProjectDao
	jobDao      dao.JobDao
	registryDao dao.RegistryDao
	userDao     dao.UserDao
}

func NewHandlers(cfg common.Config, log *zap.Logger, db *gorm.DB, queue Enqueuer) *Handlers {
	h := &Handlers{
		cfg:         cfg,
		log:         log,
		queue:       queue,
		projectDao:  dao.NewProjectDao(db),
		jobDao:      dao.NewJobDao(db),
		registryDao: dao.NewRegistryDao(db),
		userDao:     dao.NewUserDao(db),
	}
	// Hook management needs API credentials; without a token the hooks on
	// tracked repositories are the operator's to manage.
	if cfg.GithubToken != "" {
		h.hooks = notify.NewGithubSender(cfg.GithubAPIBase, cfg.GithubToken)
	}
	return h
}

// RegisterRoutes wires all endpoints onto the engine. Webhooks and read-only
// views are public; everything that mutates requires a token.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/login", h.Login)

	router.POST("/webhooks/github/:project_slug", h.GithubWebhook)
	router.POST("/webhooks/gitlab/:project_slug", h.GitlabWebhook)

	public := router.Group("/api")
	{
		public.GET("/projects", h.ListProjects)
		public.GET("/projects/:project_slug", h.GetProject)
		public.GET("/projects/:project_slug/shield", h.ProjectShield)
		public.GET("/projects/:project_slug/jobs", h.ListJobs)
		public.GET("/projects/:project_slug/jobs/:job_slug", h.GetJob)
		public.GET("/projects/:project_slug/jobs/:job_slug/stages/:stage_slug/log", h.StageLog)
	}

	authed := router.Group("/api", middleware.JWTAuth(h.cfg.JWTKey))
	{
		authed.POST("/projects", h.CreateProject)
		authed.PUT("/projects/:project_slug", h.UpdateProject)
		authed.DELETE("/projects/:project_slug", h.DeleteProject)
		authed.POST("/projects/:project_slug/jobs", h.TriggerJob)
		authed.POST("/projects/:project_slug/jobs/:job_slug/requeue", h.RequeueJob)
		authed.GET("/registries", h.ListRegistries)
		authed.POST("/registries", h.CreateRegistry)
		authed.PUT("/registries/:base_name", h.UpdateRegistry)
		authed.DELETE("/registries/:base_name", h.DeleteRegistry)
	}
}
