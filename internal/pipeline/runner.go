package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"slipway/internal/server/model"
)

// Run drives the job through its full stage sequence: prepare, build, test,
// push, fetch, then unconditionally status notification and cleanup. It is
// the single place run outcomes are classified; stages return raw status
// codes and errors, never job results.
//
// Starting a job that already has a start timestamp is a precondition error
// and mutates nothing.
func (r *JobRun) Run(ctx context.Context) error {
	if r.Job.StartTs != nil {
		return ErrAlreadyRun
	}
	now := time.Now()
	r.Job.StartTs = &now
	if err := r.Store.Save(ctx, r.Job); err != nil {
		return err
	}
	if r.config == nil {
		r.config = &model.JobConfig{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.Job.Result = model.ResultBroken
			r.pseudoStage(ctx, "error",
				fmt.Sprintf("panic: %v\n\n%s", rec, debug.Stack()))
		}
		r.finish(ctx)
	}()

	r.runMain(ctx)
	return nil
}

// runMain executes everything up to the point the result is decided. The
// deferred finish in Run owns notification, cleanup and completion.
func (r *JobRun) runMain(ctx context.Context) {
	// Providers show "pending"/"running" from here; the outcome of the
	// notification itself never matters.
	if _, err := r.execStage(ctx, r.externalStatusStage("start")); err != nil {
		r.Log.Warn("start notification failed", zap.Error(err))
	}

	// Early prepare, before the repo config exists. Advisory stages may
	// fail without consequence; anything else failing breaks the job.
	early := []struct {
		stage    Stage
		advisory bool
	}{
		{r.workdirStage(), false},
		{r.gitInfoStage(), false},
		{r.gitChangesStage(r.Ancestor), false},
		{r.gitMtimeStage(), true},
		{r.tagVersionStage(), true},
	}
	for _, entry := range early {
		rc, err := r.execStage(ctx, entry.stage)
		if err != nil {
			r.breakWith(ctx, entry.stage.Slug(), err)
			return
		}
		if rc != 0 && !entry.advisory {
			r.Job.Result = model.ResultBroken
			return
		}
	}

	// Late prepare and build, now that the repo config is loaded.
	late := []Stage{r.pushPrepStage(), r.dockerLoginStage()}
	late = append(late, r.utilityStages()...)
	late = append(late, r.provisionStage(), r.buildStage())
	for _, stage := range late {
		rc, err := r.execStage(ctx, stage)
		if err != nil {
			r.breakWith(ctx, stage.Slug(), err)
			return
		}
		if rc != 0 {
			r.Job.Result = model.ResultBroken
			return
		}
	}

	// A non-zero test exit is a code-quality failure: the job fails and
	// push never runs.
	rc, err := r.execStage(ctx, r.testStage())
	if err != nil {
		r.breakWith(ctx, "docker_test", err)
		return
	}
	if rc != 0 {
		r.Job.Result = model.ResultFail
		return
	}

	// Push failure is infrastructure, not code: a tagged artifact that
	// failed to push cannot be rebuilt identically, so the job is broken
	// rather than failed.
	rc, err = r.execStage(ctx, r.pushStage())
	if err != nil || rc != 0 {
		r.breakWith(ctx, "docker_push", err)
		return
	}

	// Artifact fetch is best effort and never changes the result.
	if _, err := r.execStage(ctx, r.fetchStage()); err != nil {
		r.Log.Warn("artifact fetch failed",
			zap.String("job", r.Job.Slug()), zap.Error(err))
	}

	r.Job.Result = model.ResultSuccess
}

// finish runs unconditionally after the main sequence, whatever happened:
// it reports the final state, releases resources, and marks the job
// complete. Cleanup problems are recorded but never change the decided
// result.
func (r *JobRun) finish(ctx context.Context) {
	if r.Job.Result == "" {
		r.Job.Result = model.ResultBroken
	}
	if err := r.Store.Save(ctx, r.Job); err != nil {
		r.Log.Error("persist job result failed", zap.Error(err))
	}

	if _, err := r.execStage(ctx, r.externalStatusStage("complete")); err != nil {
		r.Log.Warn("completion notification failed", zap.Error(err))
	}

	rc, err := r.execStage(ctx, r.cleanupStage())
	if err != nil || rc != 0 {
		message := "cleanup did not complete"
		if err != nil {
			message = err.Error()
		}
		r.pseudoStage(ctx, "cleanup_error", message)
	}

	now := time.Now()
	r.Job.CompleteTs = &now
	if err := r.Store.Save(ctx, r.Job); err != nil {
		r.Log.Error("persist job completion failed", zap.Error(err))
	}
}

// breakWith classifies an unexpected stage error: the job is broken and the
// error text becomes the log of an "error" pseudo-stage so the failure is
// visible in the stage sequence.
func (r *JobRun) breakWith(ctx context.Context, stageSlug string, err error) {
	r.Job.Result = model.ResultBroken
	message := fmt.Sprintf("stage %s did not complete", stageSlug)
	if err != nil {
		message = fmt.Sprintf("stage %s: %v", stageSlug, err)
	}
	r.pseudoStage(ctx, "error", message)
}

// pseudoStage records a synthetic stage whose log is a fixed message rather
// than the output of a runnable.
func (r *JobRun) pseudoStage(ctx context.Context, slug, message string) {
	record := &model.JobStage{JobID: r.Job.ID, Slug: slug}
	if err := r.Store.CreateStage(ctx, record); err != nil {
		r.Log.Error("record pseudo-stage failed",
			zap.String("stage", slug), zap.Error(err))
		return
	}
	if err := os.MkdirAll(r.OutputDir(), 0o755); err == nil {
		if err := os.WriteFile(r.StageLogPath(slug),
			[]byte(message+"\n"), 0o644); err != nil {
			r.Log.Warn("write pseudo-stage log failed",
				zap.String("stage", slug), zap.Error(err))
		}
	}
	rc := 1
	record.ReturnCode = &rc
	if err := r.Store.UpdateStage(ctx, record); err != nil {
		r.Log.Warn("persist pseudo-stage failed",
			zap.String("stage", slug), zap.Error(err))
	}
}
