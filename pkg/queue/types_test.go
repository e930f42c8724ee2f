package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobExecuteTaskRoundTrip(t *testing.T) {
	task, err := NewJobExecuteTask(42)
	require.NoError(t, err)
	assert.Equal(t, TypeJobExecute, task.Type())

	payload, err := ParseJobExecutePayload(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, uint(42), payload.JobID)
}

func TestParseJobExecutePayloadRejectsGarbage(t *testing.T) {
	_, err := ParseJobExecutePayload([]byte("not json"))
	assert.Error(t, err)
}
