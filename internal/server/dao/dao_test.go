package dao

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"slipway/internal/server/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestProjectDaoCRUD(t *testing.T) {
	db := openTestDB(t)
	projects := NewProjectDao(db)
	ctx := context.Background()

	project := &model.Project{Slug: "widgets", Name: "Widgets", Repo: "git@example.com:acme/widgets.git"}
	require.NoError(t, projects.Create(ctx, project))

	loaded, err := projects.GetBySlug(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, project.ID, loaded.ID)
	assert.Equal(t, "Widgets", loaded.Name)

	loaded.BranchPattern = "^main$"
	require.NoError(t, projects.Update(ctx, loaded))
	reloaded, err := projects.GetBySlug(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, "^main$", reloaded.BranchPattern)

	_, err = projects.GetBySlug(ctx, "nope")
	assert.Error(t, err)

	require.NoError(t, projects.Delete(ctx, "widgets"))
	_, err = projects.GetBySlug(ctx, "widgets")
	assert.Error(t, err)
}

func TestProjectDaoDeleteCascadesJobs(t *testing.T) {
	db := openTestDB(t)
	projects := NewProjectDao(db)
	jobs := NewJobDao(db)
	ctx := context.Background()

	project := &model.Project{Slug: "widgets", Name: "Widgets", Repo: "repo"}
	require.NoError(t, projects.Create(ctx, project))
	job := &model.Job{ProjectID: project.ID, Commit: "abc"}
	require.NoError(t, jobs.Create(ctx, job))

	require.NoError(t, projects.Delete(ctx, "widgets"))
	_, err := jobs.GetByID(ctx, job.ID)
	assert.Error(t, err)
}

func TestJobDaoLifecycle(t *testing.T) {
	db := openTestDB(t)
	projects := NewProjectDao(db)
	jobs := NewJobDao(db)
	ctx := context.Background()

	project := &model.Project{Slug: "widgets", Name: "Widgets", Repo: "repo"}
	require.NoError(t, projects.Create(ctx, project))

	job := &model.Job{ProjectID: project.ID, Commit: "abc", Branch: "main"}
	require.NoError(t, jobs.Create(ctx, job))

	now := time.Now()
	job.StartTs = &now
	job.Result = model.ResultSuccess
	require.NoError(t, jobs.Save(ctx, job))

	loaded, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "widgets", loaded.Project.Slug)
	assert.Equal(t, model.ResultSuccess, loaded.Result)
	require.NotNil(t, loaded.StartTs)
}

func TestJobDaoLatestCompleted(t *testing.T) {
	db := openTestDB(t)
	projects := NewProjectDao(db)
	jobs := NewJobDao(db)
	ctx := context.Background()

	project := &model.Project{Slug: "widgets", Name: "Widgets", Repo: "repo"}
	require.NoError(t, projects.Create(ctx, project))

	done := &model.Job{ProjectID: project.ID, Commit: "abc", Result: model.ResultFail}
	require.NoError(t, jobs.Create(ctx, done))
	running := &model.Job{ProjectID: project.ID, Commit: "def"}
	require.NoError(t, jobs.Create(ctx, running))

	latest, err := jobs.LatestCompleted(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, done.ID, latest.ID, "running jobs have no result yet")

	listed, err := jobs.ListByProject(ctx, project.ID, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, running.ID, listed[0].ID, "newest first")
}

func TestJobDaoStages(t *testing.T) {
	db := openTestDB(t)
	jobs := NewJobDao(db)
	ctx := context.Background()

	job := &model.Job{ProjectID: 1, Commit: "abc"}
	require.NoError(t, jobs.Create(ctx, job))

	first := &model.JobStage{JobID: job.ID, Slug: "workdir"}
	require.NoError(t, jobs.CreateStage(ctx, first))
	second := &model.JobStage{JobID: job.ID, Slug: "docker_build"}
	require.NoError(t, jobs.CreateStage(ctx, second))

	rc := 0
	first.ReturnCode = &rc
	require.NoError(t, jobs.UpdateStage(ctx, first))

	stages, err := jobs.ListStages(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "workdir", stages[0].Slug)
	require.NotNil(t, stages[0].ReturnCode)
	assert.Equal(t, 0, *stages[0].ReturnCode)
	assert.Nil(t, stages[1].ReturnCode, "unfinished stage has no outcome")
}

func TestRegistryDao(t *testing.T) {
	db := openTestDB(t)
	registries := NewRegistryDao(db)
	ctx := context.Background()

	registry := &model.AuthenticatedRegistry{
		BaseName: "registry.local",
		Username: "ci",
		Password: "hunter2",
	}
	require.NoError(t, registries.Create(ctx, registry))

	loaded, err := registries.GetByBaseName(ctx, "registry.local")
	require.NoError(t, err)
	assert.True(t, loaded.NeedsLogin())

	require.NoError(t, registries.Delete(ctx, "registry.local"))
	_, err = registries.GetByBaseName(ctx, "registry.local")
	assert.Error(t, err)
}

func TestUserDao(t *testing.T) {
	db := openTestDB(t)
	users := NewUserDao(db)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, &model.User{
		Username: "admin", Password: "hashed", Role: "admin",
	}))
	user, err := users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)

	_, err = users.GetByUsername(ctx, "ghost")
	assert.Error(t, err)
}
