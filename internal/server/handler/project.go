package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"slipway/internal/common"
	"slipway/internal/server/model"
	"slipway/pkg/api"
)

func (h *Handlers) CreateProject(c *gin.Context) {
	var req api.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		req.Slug == "" || req.Repo == "" {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	if _, err := h.projectDao.GetBySlug(c, req.Slug); err == nil {
		common.Error(c, common.NewErrNo(common.ProjectExists))
		return
	}

	project := &model.Project{
		Slug:          req.Slug,
		Name:          req.Name,
		Repo:          req.Repo,
		Utility:       req.Utility,
		BranchPattern: req.BranchPattern,
		GithubRepoID:  req.GithubRepoID,
		GithubSecret:  req.GithubSecret,
		GitlabRepoID:  req.GitlabRepoID,
		GitlabSecret:  req.GitlabSecret,
	}
	if req.Name == "" {
		project.Name = req.Slug
	}
	// Hook secrets are generated here when the caller tracks a repo without
	// supplying one. They are returned once, in this response only.
	if project.GithubRepoID != "" && project.GithubSecret == "" {
		project.GithubSecret = newWebhookSecret()
	}
	if project.GitlabRepoID != "" && project.GitlabSecret == "" {
		project.GitlabSecret = newWebhookSecret()
	}
	if err := h.applyTargetRegistry(c, project, req.TargetRegistry); err != nil {
		common.Error(c, err)
		return
	}

	if err := h.projectDao.Create(c, project); err != nil {
		common.Error(c, err)
		return
	}
	h.syncGithubHook(c, project)

	common.Success(c, api.ProjectCreated{
		ProjectBrief: projectBrief(project),
		GithubSecret: project.GithubSecret,
		GitlabSecret: project.GitlabSecret,
	})
}

func newWebhookSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// syncGithubHook registers a push webhook on the tracked repository when
// none is recorded yet, and persists the hook id GitHub assigns. Failures
// are logged, not fatal: the project stays usable, triggered manually.
func (h *Handlers) syncGithubHook(c *gin.Context, project *model.Project) {
	if h.hooks == nil || project.GithubRepoID == "" || project.GithubHookID != nil {
		return
	}

	callbackURL := h.cfg.ExternalURL + "/webhooks/github/" + project.Slug
	hookID, err := h.hooks.RegisterHook(c, project.GithubRepoID,
		callbackURL, project.GithubSecret)
	if err != nil {
		h.log.Warn("register github hook failed",
			zap.String("project", project.Slug), zap.Error(err))
		return
	}
	project.GithubHookID = &hookID
	if err := h.projectDao.Update(c, project); err != nil {
		h.log.Error("persist github hook id failed",
			zap.String("project", project.Slug), zap.Error(err))
	}
}

func (h *Handlers) UpdateProject(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}

	var req api.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	if req.Name != "" {
		project.Name = req.Name
	}
	if req.Repo != "" {
		project.Repo = req.Repo
	}
	project.Utility = req.Utility
	project.BranchPattern = req.BranchPattern
	project.GithubRepoID = req.GithubRepoID
	project.GitlabRepoID = req.GitlabRepoID
	// Secrets are write-only: a blank value keeps the stored one, the same
	// way registry updates keep their password.
	if req.GithubSecret != "" {
		project.GithubSecret = req.GithubSecret
	}
	if req.GitlabSecret != "" {
		project.GitlabSecret = req.GitlabSecret
	}
	if project.GithubRepoID != "" && project.GithubSecret == "" {
		project.GithubSecret = newWebhookSecret()
	}
	if err := h.applyTargetRegistry(c, project, req.TargetRegistry); err != nil {
		common.Error(c, err)
		return
	}

	if err := h.projectDao.Update(c, project); err != nil {
		common.Error(c, err)
		return
	}
	h.syncGithubHook(c, project)

	common.Success(c, projectBrief(project))
}

// applyTargetRegistry resolves a registry base name onto the project and
// enforces that utility projects have one: their images must be pullable by
// other projects' test stages.
func (h *Handlers) applyTargetRegistry(c *gin.Context, project *model.Project, baseName string) error {
	if baseName == "" {
		project.TargetRegistryID = nil
		project.TargetRegistry = nil
	} else {
		registry, err := h.registryDao.GetByBaseName(c, baseName)
		if err != nil {
			return common.NewErrNo(common.RequestInvalid)
		}
		project.TargetRegistryID = &registry.ID
		project.TargetRegistry = registry
	}
	if project.Utility && project.TargetRegistryID == nil {
		return common.NewErrNo(common.RegistryRequired)
	}
	return nil
}

func (h *Handlers) DeleteProject(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}

	// Best effort: a hook left behind only produces rejected deliveries.
	if h.hooks != nil && project.GithubRepoID != "" {
		if err := h.hooks.DeregisterHook(c, project.GithubRepoID,
			project.GithubHookID); err != nil {
			h.log.Warn("deregister github hook failed",
				zap.String("project", project.Slug), zap.Error(err))
		}
	}

	if err := h.projectDao.Delete(c, project.Slug); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Error(c, common.NewErrNo(common.ProjectNotExists))
			return
		}
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}

func (h *Handlers) GetProject(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}
	common.Success(c, projectBrief(project))
}

func (h *Handlers) ListProjects(c *gin.Context) {
	projects, err := h.projectDao.List(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	briefs := make([]api.ProjectBrief, len(projects))
	for i := range projects {
		briefs[i] = projectBrief(&projects[i])
	}
	common.Success(c, briefs)
}

// ProjectShield reports build status in the shields.io endpoint format so a
// README can embed a live badge.
func (h *Handlers) ProjectShield(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}

	latestResult := ""
	if latest, err := h.jobDao.LatestCompleted(c, project.ID); err == nil {
		latestResult = latest.Result
	}
	c.JSON(200, gin.H{
		"schemaVersion": 1,
		"label":         project.Slug,
		"message":       project.ShieldText(latestResult),
		"color":         project.ShieldColor(latestResult),
	})
}

func projectBrief(project *model.Project) api.ProjectBrief {
	return api.ProjectBrief{
		Slug:    project.Slug,
		Name:    project.Name,
		Repo:    project.Repo,
		Utility: project.Utility,
	}
}
