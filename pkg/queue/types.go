// Package queue defines the task types passed between the server and the
// pipeline workers.
package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TypeJobExecute is the task type for running one job's pipeline.
const TypeJobExecute = "job:execute"

// JobExecutePayload identifies the job a worker should run. The worker
// reloads everything else from storage so the payload survives schema
// changes between enqueue and execution.
type JobExecutePayload struct {
	JobID uint `json:"job_id"`
}

// NewJobExecuteTask builds the asynq task enqueued when a job is triggered.
func NewJobExecuteTask(jobID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(JobExecutePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	// One attempt only: retries are an explicit user action, re-queued
	// as a new job.
	return asynq.NewTask(TypeJobExecute, payload, asynq.MaxRetry(0)), nil
}

// ParseJobExecutePayload decodes a job execution payload.
func ParseJobExecutePayload(raw []byte) (*JobExecutePayload, error) {
	var payload JobExecutePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
