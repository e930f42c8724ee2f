// Package worker consumes queued jobs and drives them through the pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"slipway/internal/common"
	"slipway/internal/dockerpool"
	"slipway/internal/notify"
	"slipway/internal/pipeline"
	"slipway/internal/server/dao"
	"slipway/internal/server/model"
	"slipway/pkg/queue"
)

// Worker executes jobs pulled from the queue. Each job's stage sequence runs
// sequentially inside one handler invocation; concurrency across jobs is the
// queue server's worker count.
type Worker struct {
	cfg       common.Config
	log       *zap.Logger
	pool      *dockerpool.Pool
	jobDao    dao.JobDao
	notifiers []notify.StatusSender
}

func New(cfg common.Config, log *zap.Logger, db *gorm.DB) *Worker {
	return &Worker{
		cfg:    cfg,
		log:    log,
		pool:   dockerpool.NewPool(cfg, log),
		jobDao: dao.NewJobDao(db),
		notifiers: []notify.StatusSender{
			notify.NewGithubSender(cfg.GithubAPIBase, cfg.GithubToken),
			notify.NewGitlabSender(cfg.GitlabAPIBase, cfg.GitlabToken),
		},
	}
}

// Run blocks serving the queue until shutdown.
func (w *Worker) Run() error {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     w.cfg.RedisAddr,
			Password: w.cfg.RedisPassword,
		},
		asynq.Config{
			Concurrency:     w.cfg.WorkerConcurrency,
			ShutdownTimeout: 30 * time.Second,
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeJobExecute, w.HandleJobExecute)
	return server.Run(mux)
}

// HandleJobExecute runs one job end to end. A job that was already started
// is dropped rather than retried; the precondition guard exists exactly so a
// duplicate delivery cannot restart a run.
func (w *Worker) HandleJobExecute(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseJobExecutePayload(task.Payload())
	if err != nil {
		return err
	}
	job, err := w.jobDao.GetByID(ctx, payload.JobID)
	if err != nil {
		return err
	}

	var ancestor *model.Job
	if job.AncestorJobID != nil {
		ancestor, _ = w.jobDao.GetByID(ctx, *job.AncestorJobID)
	}

	cli, err := w.pool.ClientFor(job)
	if err != nil {
		w.log.Error("no docker client for job",
			zap.String("job", job.Slug()), zap.Error(err))
		job.Result = model.ResultBroken
		now := time.Now()
		job.CompleteTs = &now
		if saveErr := w.jobDao.Save(ctx, job); saveErr != nil {
			return saveErr
		}
		return err
	}
	defer cli.Close()
	// Persist the endpoint binding before anything can crash, so a
	// re-resolution lands on the same daemon.
	if err := w.jobDao.Save(ctx, job); err != nil {
		return err
	}

	run := &pipeline.JobRun{
		Job:         job,
		Project:     &job.Project,
		Ancestor:    ancestor,
		Docker:      cli,
		Store:       w.jobDao,
		Log:         w.log,
		DataDir:     w.cfg.DataDir,
		ExternalURL: w.cfg.ExternalURL,
		Notifiers:   w.notifiers,
	}

	w.log.Info("job started",
		zap.String("project", job.Project.Slug),
		zap.String("job", job.Slug()),
		zap.String("docker_host", job.DockerClientHost))

	if err := run.Run(ctx); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRun) {
			w.log.Warn("duplicate delivery for started job",
				zap.String("job", job.Slug()))
			return nil
		}
		return err
	}

	w.log.Info("job finished",
		zap.String("job", job.Slug()),
		zap.String("result", job.Result))
	return nil
}
