package handler

import (
	"crypto/subtle"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slipway/internal/common"
	"slipway/internal/server/model"
	"slipway/pkg/queue"
)

// pushPayload is the subset of a push webhook body shared by both providers.
type pushPayload struct {
	After   string `json:"after"`
	Ref     string `json:"ref"`
	Deleted bool   `json:"deleted"`
}

const zeroSHA = "0000000000000000000000000000000000000000"

// GithubWebhook triggers a job from a GitHub push event. The raw body is
// authenticated with HMAC-SHA1 against the project's shared secret before
// anything is parsed; a mismatch is a hard rejection.
func (h *Handlers) GithubWebhook(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}
	if project.GithubRepoID == "" || project.GithubSecret == "" {
		common.Error(c, common.NewErrNo(common.HookNotTracked))
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}
	if !common.ValidSignature(project.GithubSecret, body,
		c.GetHeader("X-Hub-Signature")) {
		common.Error(c, common.NewErrNo(common.SignatureInvalid))
		return
	}

	h.handlePush(c, project, body)
}

// GitlabWebhook triggers a job from a GitLab push event, authenticated by
// the provider echoing back the project's shared token.
func (h *Handlers) GitlabWebhook(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}
	if project.GitlabRepoID == "" || project.GitlabSecret == "" {
		common.Error(c, common.NewErrNo(common.HookNotTracked))
		return
	}

	token := c.GetHeader("X-Gitlab-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(project.GitlabSecret)) != 1 {
		common.Error(c, common.NewErrNo(common.SignatureInvalid))
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}
	h.handlePush(c, project, body)
}

func (h *Handlers) handlePush(c *gin.Context, project *model.Project, body []byte) {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}
	// Branch deletions push a zero sha; there is nothing to build.
	if payload.Deleted || payload.After == zeroSHA {
		common.Success(c, nil)
		return
	}
	if !common.IsGitHash(payload.After) {
		common.Error(c, common.NewErrNo(common.CommitInvalid))
		return
	}

	tag, branch := refNames(payload.Ref)
	job := &model.Job{
		ProjectID: project.ID,
		Commit:    payload.After,
		Tag:       tag,
		Branch:    branch,
	}
	if err := h.jobDao.Create(c, job); err != nil {
		common.Error(c, err)
		return
	}

	task, err := queue.NewJobExecuteTask(job.ID)
	if err == nil {
		_, err = h.queue.Enqueue(task)
	}
	if err != nil {
		h.log.Error("enqueue webhook job failed",
			zap.String("job", job.Slug()), zap.Error(err))
		common.Error(c, common.NewErrNo(common.QueueFail))
		return
	}

	h.log.Info("webhook job queued",
		zap.String("project", project.Slug),
		zap.String("job", job.Slug()),
		zap.String("ref", payload.Ref))
	common.Success(c, jobBrief(job, project.Slug))
}

// refNames splits a git ref into the tag or branch it names.
func refNames(ref string) (tag, branch string) {
	switch {
	case strings.HasPrefix(ref, "refs/tags/"):
		return strings.TrimPrefix(ref, "refs/tags/"), ""
	case strings.HasPrefix(ref, "refs/heads/"):
		return "", strings.TrimPrefix(ref, "refs/heads/")
	}
	return "", ref
}
