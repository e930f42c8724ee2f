package pipeline

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"slipway/internal/server/model"
)

// workdirStage materializes the job's isolated working directory. It is
// released only at the very end of the run, by cleanup.
func (r *JobRun) workdirStage() Stage {
	return newStage("workdir", func(ctx context.Context, out io.Writer) (int, error) {
		dir, err := os.MkdirTemp("", "slipway-"+r.Job.Slug()+"-")
		if err != nil {
			return 1, err
		}
		r.workdir = dir
		fmt.Fprintf(out, "Working directory: %s\n", dir)
		return 0, nil
	})
}

// gitInfoStage clones the commit into the workdir and extracts commit
// metadata onto the job. Failure here is fatal; nothing downstream can run
// without source.
func (r *JobRun) gitInfoStage() Stage {
	return newStage("git_info", func(ctx context.Context, out io.Writer) (int, error) {
		if _, err := runGit(ctx, "", out,
			"clone", r.Project.Repo, r.workdir); err != nil {
			return 1, err
		}
		if _, err := runGit(ctx, r.workdir, out,
			"checkout", r.Job.Commit); err != nil {
			return 1, err
		}

		fields := []struct {
			format string
			dest   *string
		}{
			{"%an", &r.Job.GitAuthorName},
			{"%ae", &r.Job.GitAuthorEmail},
			{"%cn", &r.Job.GitCommitterName},
			{"%ce", &r.Job.GitCommitterEmail},
		}
		for _, f := range fields {
			value, err := gitQuery(ctx, r.workdir,
				"show", "-s", "--format="+f.format, r.Job.Commit)
			if err != nil {
				return 1, err
			}
			*f.dest = value
		}
		fmt.Fprintf(out, "Author:    %s <%s>\n",
			r.Job.GitAuthorName, r.Job.GitAuthorEmail)
		fmt.Fprintf(out, "Committer: %s <%s>\n",
			r.Job.GitCommitterName, r.Job.GitCommitterEmail)

		if err := r.loadConfig(out); err != nil {
			return 1, err
		}
		return 0, r.Store.Save(ctx, r.Job)
	})
}

// loadConfig reads the repo's pipeline configuration from the workdir. A
// missing file means defaults.
func (r *JobRun) loadConfig(out io.Writer) error {
	raw, err := os.ReadFile(filepath.Join(r.workdir, model.JobConfigFile))
	if os.IsNotExist(err) {
		r.config = &model.JobConfig{}
		return nil
	}
	if err != nil {
		return err
	}
	config, err := model.ParseJobConfig(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", model.JobConfigFile, err)
	}
	r.config = config
	fmt.Fprintf(out, "Loaded %s\n", model.JobConfigFile)
	return nil
}

// gitChangesStage records a changelog summary relative to the job's
// ancestor. No ancestor, or an ancestor outside this commit's history, means
// no changes to report, which is still a success.
func (r *JobRun) gitChangesStage(ancestor *model.Job) Stage {
	return newStage("git_changes", func(ctx context.Context, out io.Writer) (int, error) {
		if ancestor == nil || ancestor.Commit == r.Job.Commit {
			fmt.Fprintln(out, "No ancestor to compare against")
			return 0, nil
		}
		if !isGitAncestor(ctx, r.workdir, ancestor.Commit, r.Job.Commit) {
			fmt.Fprintf(out, "Commit %s is not an ancestor of %s\n",
				ancestor.Commit, r.Job.Commit)
			return 0, nil
		}
		changes, err := runGit(ctx, r.workdir, out, "log", "--oneline",
			fmt.Sprintf("%s..%s", ancestor.Commit, r.Job.Commit))
		if err != nil {
			return 1, err
		}
		r.Job.GitChanges = changes
		return 0, r.Store.Save(ctx, r.Job)
	})
}

// gitMtimeStage rewinds file modification times to their last-commit times
// so docker layer caching keys on content history instead of checkout time.
func (r *JobRun) gitMtimeStage() Stage {
	return newStage("git_mtime", func(ctx context.Context, out io.Writer) (int, error) {
		count := 0
		err := filepath.WalkDir(r.workdir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(r.workdir, path)
			if err != nil {
				return err
			}
			ts := gitCommitTime(ctx, r.workdir, rel)
			if ts == 0 {
				return nil
			}
			mtime := time.Unix(ts, 0)
			if err := os.Chtimes(path, mtime, mtime); err != nil {
				return err
			}
			count++
			return nil
		})
		if err != nil {
			// mtime normalization only improves layer caching; the run
			// driver treats this stage as advisory, so report and move on.
			fmt.Fprintf(out, "Normalizing mtimes failed: %v\n", err)
			return 1, nil
		}
		fmt.Fprintf(out, "Normalized mtime of %d files\n", count)
		return 0, nil
	})
}

// tagVersionStage derives a version tag from the repository when the trigger
// supplied none. The run driver ignores this stage's status; a commit with
// no exact tag is normal.
func (r *JobRun) tagVersionStage() Stage {
	return newStage("git_tag", func(ctx context.Context, out io.Writer) (int, error) {
		if r.Job.Tag != "" {
			fmt.Fprintf(out, "Tag already set: %s\n", r.Job.Tag)
			return 0, nil
		}
		tag, err := runGit(ctx, r.workdir, out,
			"describe", "--tags", "--exact-match", r.Job.Commit)
		if err != nil || tag == "" {
			return 1, nil
		}
		r.Job.Tag = tag
		fmt.Fprintf(out, "Derived tag: %s\n", tag)
		return 0, r.Store.Save(ctx, r.Job)
	})
}
