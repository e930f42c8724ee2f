package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipway/internal/server/model"
)

func TestFetchStageReportsArtifactSize(t *testing.T) {
	docker := newFakeDocker()
	run := newTestRun(t, &model.Job{ContainerID: "container-1"},
		&model.Project{Slug: "widgets"}, docker, &memStore{})
	run.config = &model.JobConfig{JobOutput: map[string]string{"dist": "/out"}}
	require.NoError(t, os.MkdirAll(run.OutputDir(), 0o755))

	var out bytes.Buffer
	rc, err := run.fetchStage().Runnable(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 0, rc)

	// The fake container stream is 9 bytes of tar data.
	assert.Contains(t, out.String(), "DONE (9.0B)")
}

func TestCleanupForceRemovesRunningContainer(t *testing.T) {
	docker := newFakeDocker()
	docker.running = true
	run := newTestRun(t, &model.Job{ContainerID: "container-1"},
		&model.Project{Slug: "widgets"}, docker, &memStore{})
	run.config = &model.JobConfig{}

	rc, err := run.cleanupStage().Runnable(context.Background(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, rc)

	assert.True(t, docker.called("ContainerInspect"))
	assert.Equal(t, []string{"container-1"}, docker.forceRemoved)
}

func TestCleanupRemovesStoppedContainerWithoutForce(t *testing.T) {
	docker := newFakeDocker()
	run := newTestRun(t, &model.Job{ContainerID: "container-1"},
		&model.Project{Slug: "widgets"}, docker, &memStore{})
	run.config = &model.JobConfig{}

	rc, err := run.cleanupStage().Runnable(context.Background(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, rc)

	assert.True(t, docker.called("ContainerRemove"))
	assert.Empty(t, docker.forceRemoved)
}
