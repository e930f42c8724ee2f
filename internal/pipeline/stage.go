package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"slipway/internal/notify"
	"slipway/internal/server/model"
)

// Precondition errors raised before any stage runs.
var (
	// ErrAlreadyRun rejects starting a job whose start timestamp is
	// already set. Re-runs must be queued as new jobs.
	ErrAlreadyRun = errors.New("job has already been run")
)

// Stage is one discrete pipeline step. Runnable writes its log to out and
// returns an integer status, zero meaning success. Errors are not handled by
// the stage itself; the run driver catches them and classifies the job.
type Stage interface {
	Slug() string
	Runnable(ctx context.Context, out io.Writer) (int, error)
}

// stageFunc adapts a bare function into a Stage.
type stageFunc struct {
	slug string
	fn   func(ctx context.Context, out io.Writer) (int, error)
}

func newStage(slug string, fn func(ctx context.Context, out io.Writer) (int, error)) Stage {
	return &stageFunc{slug: slug, fn: fn}
}

func (s *stageFunc) Slug() string { return s.slug }

func (s *stageFunc) Runnable(ctx context.Context, out io.Writer) (int, error) {
	return s.fn(ctx, out)
}

// Store persists job and stage state transitions. Each stage commits its own
// state change before the next stage starts.
type Store interface {
	Save(ctx context.Context, job *model.Job) error
	CreateStage(ctx context.Context, stage *model.JobStage) error
	UpdateStage(ctx context.Context, stage *model.JobStage) error
}

// provisionedContainer tracks one auxiliary container started for the test
// stage. Never persisted; torn down by cleanup.
type provisionedContainer struct {
	ID    string
	Slug  string
	Alias string
}

// JobRun is the in-memory context of one job execution: the job and project
// under build, the bound docker client, persistence, notification targets,
// and the scratch state stages hand to each other.
type JobRun struct {
	Job     *model.Job
	Project *model.Project
	Docker  Docker
	Store   Store
	Log     *zap.Logger

	// Ancestor is the completed job this one was re-queued from, if any,
	// used to compute the changes summary.
	Ancestor *model.Job

	// DataDir is the root for job output; each job owns
	// <DataDir>/<project_slug>/<job_slug>/ exclusively.
	DataDir string

	// ExternalURL is the base for status target links.
	ExternalURL string

	Notifiers []notify.StatusSender

	// Set by the prepare stages.
	workdir       string
	config        *model.JobConfig
	pushCandidate bool
	provisioned   []provisionedContainer
}

// OutputDir is the job's exclusive artifact directory.
func (r *JobRun) OutputDir() string {
	return filepath.Join(r.DataDir, r.Project.Slug, r.Job.Slug())
}

// StageLogPath addresses one stage's append-only log file.
func (r *JobRun) StageLogPath(stageSlug string) string {
	return filepath.Join(r.OutputDir(), stageSlug+".log")
}

// TargetURL is the link external providers show next to the commit status.
func (r *JobRun) TargetURL() string {
	return r.ExternalURL + "/projects/" + r.Project.Slug +
		"/jobs/" + r.Job.Slug()
}

// execStage records the stage row, then runs the stage with its log file as
// the sink. The row is created before the runnable executes so a crash
// mid-stage is observable as a started-but-unfinished stage; the return code
// is attached only after the runnable finishes.
func (r *JobRun) execStage(ctx context.Context, stage Stage) (int, error) {
	record := &model.JobStage{JobID: r.Job.ID, Slug: stage.Slug()}
	if err := r.Store.CreateStage(ctx, record); err != nil {
		return 1, err
	}

	if err := os.MkdirAll(r.OutputDir(), 0o755); err != nil {
		return 1, err
	}
	handle, err := os.OpenFile(r.StageLogPath(stage.Slug()),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 1, err
	}
	defer handle.Close()

	rc, runErr := stage.Runnable(ctx, handle)
	record.ReturnCode = &rc
	if err := r.Store.UpdateStage(ctx, record); err != nil {
		r.Log.Warn("persist stage outcome failed",
			zap.String("stage", stage.Slug()), zap.Error(err))
	}

	r.Log.Info("stage finished",
		zap.String("job", r.Job.Slug()),
		zap.String("stage", stage.Slug()),
		zap.Int("rc", rc),
		zap.Error(runErr),
	)
	return rc, runErr
}
