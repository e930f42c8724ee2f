package handler

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slipway/internal/common"
	"slipway/internal/server/model"
	"slipway/pkg/api"
	"slipway/pkg/queue"
)

func (h *Handlers) TriggerJob(c *gin.Context) {
	var req api.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}
	h.createAndQueue(c, req.Commit, req.Tag, req.Branch, nil)
}

// RequeueJob retries a job as a new job: the original is immutable once
// started, so the retry is a fresh record pointing back at its ancestor.
func (h *Handlers) RequeueJob(c *gin.Context) {
	ancestor, _, ok := h.loadJob(c)
	if !ok {
		return
	}
	h.createAndQueue(c, ancestor.Commit, ancestor.Tag, ancestor.Branch, &ancestor.ID)
}

func (h *Handlers) createAndQueue(c *gin.Context, commit, tag, branch string, ancestorID *uint) {
	if !common.IsGitHash(commit) {
		common.Error(c, common.NewErrNo(common.CommitInvalid))
		return
	}
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}

	// A commit that already completed a run gets that run as ancestor, so
	// the new job can report whether its result changed.
	if ancestorID == nil {
		if prior, err := h.jobDao.CompletedForCommit(c, project.ID, commit); err == nil && len(prior) > 0 {
			ancestorID = &prior[0].ID
		}
	}

	job := &model.Job{
		ProjectID:     project.ID,
		Commit:        commit,
		Tag:           tag,
		Branch:        branch,
		AncestorJobID: ancestorID,
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
		h.log.Error("enqueue job failed",
			zap.String("job", job.Slug()), zap.Error(err))
		common.Error(c, common.NewErrNo(common.QueueFail))
		return
	}

	h.log.Info("job queued",
		zap.String("project", project.Slug),
		zap.String("job", job.Slug()),
		zap.String("commit", commit))
	common.Success(c, jobBrief(job, project.Slug))
}

func (h *Handlers) ListJobs(c *gin.Context) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return
	}
	jobs, err := h.jobDao.ListByProject(c, project.ID, 50)
	if err != nil {
		common.Error(c, err)
		return
	}
	briefs := make([]api.JobBrief, len(jobs))
	for i := range jobs {
		briefs[i] = jobBrief(&jobs[i], project.Slug)
	}
	common.Success(c, briefs)
}

func (h *Handlers) GetJob(c *gin.Context) {
	job, project, ok := h.loadJob(c)
	if !ok {
		return
	}

	detail := api.JobDetail{
		JobBrief:   jobBrief(job, project.Slug),
		ImageID:    job.ImageID,
		ExitCode:   job.ExitCode,
		DockerHost: job.DockerClientHost,
	}
	if job.StartTs != nil {
		detail.StartTs = job.StartTs.Format(time.RFC3339)
	}
	if job.CompleteTs != nil {
		detail.CompleteTs = job.CompleteTs.Format(time.RFC3339)
	}
	if job.AncestorJobID != nil {
		detail.AncestorSlug = model.SlugFromJobID(*job.AncestorJobID)
		if ancestor, err := h.jobDao.GetByID(c, *job.AncestorJobID); err == nil {
			detail.ChangedResult = job.ChangedResult(ancestor)
		}
	} else {
		detail.ChangedResult = job.ChangedResult(nil)
	}

	stages, err := h.jobDao.ListStages(c, job.ID)
	if err != nil {
		common.Error(c, err)
		return
	}
	detail.Stages = make([]api.StageBrief, len(stages))
	for i, stage := range stages {
		detail.Stages[i] = api.StageBrief{
			Slug:       stage.Slug,
			ReturnCode: stage.ReturnCode,
		}
	}
	common.Success(c, detail)
}

// StageLog serves one stage's log file. With follow=true the response tails
// the file while the job is still running, so a browser can watch a build
// live.
func (h *Handlers) StageLog(c *gin.Context) {
	job, project, ok := h.loadJob(c)
	if !ok {
		return
	}
	path := filepath.Join(h.cfg.DataDir, project.Slug, job.Slug(),
		c.Param("stage_slug")+".log")

	if c.Query("follow") == "" {
		c.File(path)
		return
	}
	h.tailFile(c, path, job)
}

// tailFile streams a growing log file until the owning job completes and the
// file stops growing.
func (h *Handlers) tailFile(c *gin.Context, path string, job *model.Job) {
	file, err := os.Open(path)
	if err != nil {
		common.Error(c, common.NewErrNo(common.JobNotExists))
		return
	}
	defer file.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/plain; charset=utf-8")

	buf := make([]byte, 32*1024)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			if _, err := c.Writer.Write(buf[:n]); err != nil {
				return
			}
			c.Writer.Flush()
		}
		if readErr == io.EOF {
			current, err := h.jobDao.GetByID(c, job.ID)
			if err != nil || current.Completed() {
				return
			}
			select {
			case <-c.Request.Context().Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if readErr != nil {
			return
		}
	}
}

// loadJob resolves the project and job path parameters, answering the error
// response itself when either is missing.
func (h *Handlers) loadJob(c *gin.Context) (*model.Job, *model.Project, bool) {
	project, err := h.projectDao.GetBySlug(c, c.Param("project_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.ProjectNotExists))
		return nil, nil, false
	}
	jobID, err := model.JobIDFromSlug(c.Param("job_slug"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.JobNotExists))
		return nil, nil, false
	}
	job, err := h.jobDao.GetByID(c, jobID)
	if err != nil || job.ProjectID != project.ID {
		common.Error(c, common.NewErrNo(common.JobNotExists))
		return nil, nil, false
	}
	return job, project, true
}

func jobBrief(job *model.Job, projectSlug string) api.JobBrief {
	return api.JobBrief{
		Slug:    job.Slug(),
		Project: projectSlug,
		Commit:  job.Commit,
		Tag:     job.Tag,
		Branch:  job.Branch,
		State:   job.State(),
	}
}
