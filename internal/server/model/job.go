package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gorm.io/gorm"

	"slipway/internal/common"
)

// Job results. Result is empty while the job is running and terminal once
// set: a job is never re-run in place, only re-queued as a new Job with an
// AncestorJob back-reference.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
	ResultBroken  = "broken"
)

// Job states derived from timestamps and result.
const (
	StateQueued  = "queued"
	StateRunning = "running"
)

// Job is one attempt to build, test and push a project's commit.
type Job struct {
	gorm.Model
	ProjectID uint    `gorm:"not null;index"`
	Project   Project `gorm:"foreignKey:ProjectID"`

	Commit string  `gorm:"type:varchar(40);not null"`
	Tag    string  `gorm:"type:varchar(255)"`
	Branch string  `gorm:"type:varchar(255)"`

	StartTs    *time.Time
	CompleteTs *time.Time
	Result     string `gorm:"type:varchar(16);index"`

	ImageID          string `gorm:"type:varchar(255)"`
	ContainerID      string `gorm:"type:varchar(255)"`
	ExitCode         *int
	DockerClientHost string `gorm:"type:varchar(255)"`

	GitAuthorName     string `gorm:"type:varchar(255)"`
	GitAuthorEmail    string `gorm:"type:varchar(255)"`
	GitCommitterName  string `gorm:"type:varchar(255)"`
	GitCommitterEmail string `gorm:"type:varchar(255)"`
	GitChanges        string `gorm:"type:text"`

	AncestorJobID *uint

	Stages []JobStage `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
}

// JobStage is one executed step of a job's pipeline. The row is created
// before the stage's runnable executes, so a crash mid-stage is visible as a
// stage with no return code. The log bytes live on disk next to the job's
// output artifacts.
type JobStage struct {
	gorm.Model
	JobID      uint   `gorm:"not null;index"`
	Slug       string `gorm:"type:varchar(64);not null"`
	ReturnCode *int
}

var jobSlugRe = regexp.MustCompile(`^[0-9a-f]{6,}$`)

// Slug returns the job's URL slug: the id as fixed-width lowercase hex,
// zero-padded to 6 characters.
func (j *Job) Slug() string {
	return SlugFromJobID(j.ID)
}

// SlugFromJobID encodes a job id as its slug.
func SlugFromJobID(id uint) string {
	return fmt.Sprintf("%06x", id)
}

// JobIDFromSlug decodes a job slug back into an id.
func JobIDFromSlug(slug string) (uint, error) {
	if !jobSlugRe.MatchString(slug) {
		return 0, fmt.Errorf("invalid job slug %q", slug)
	}
	id, err := strconv.ParseUint(slug, 16, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// State reports the job's lifecycle state: queued until started, running
// until a result is set, then the result itself.
func (j *Job) State() string {
	switch {
	case j.Result != "":
		return j.Result
	case j.StartTs != nil:
		return StateRunning
	default:
		return StateQueued
	}
}

// Completed reports whether the job reached a terminal state.
func (j *Job) Completed() bool {
	return j.Result != ""
}

// TagPushCandidate reports whether the job's tag alone qualifies it for a
// registry push.
func (j *Job) TagPushCandidate() bool {
	return j.Tag != "" && common.IsSemantic(j.Tag)
}

// BranchPushCandidate reports whether the job's branch matches the project's
// configured push pattern.
func (j *Job) BranchPushCandidate(project *Project) bool {
	if j.Branch == "" || project.BranchPattern == "" {
		return false
	}
	matched, err := regexp.MatchString(project.BranchPattern, j.Branch)
	return err == nil && matched
}

// PushCandidate reports whether this job should push its image: it carries a
// semantic version tag, or sits on a push-pattern branch, and the project
// has a target registry configured.
func (j *Job) PushCandidate(project *Project) bool {
	if project.TargetRegistryID == nil {
		return false
	}
	return j.TagPushCandidate() || j.BranchPushCandidate(project)
}

// PushTag is the tag used for a registry push: the job's own tag when set,
// otherwise a mutable latest-style tag derived from the branch.
func (j *Job) PushTag() string {
	if j.Tag != "" {
		return j.Tag
	}
	return "latest-" + j.Branch
}

// ChangedResult reports whether this job's result differs from its
// ancestor's. Nil when this job has no result yet; true when there is no
// ancestor to compare with.
func (j *Job) ChangedResult(ancestor *Job) *bool {
	if j.Result == "" {
		return nil
	}
	changed := ancestor == nil || ancestor.Result != j.Result
	return &changed
}
