package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobState 后台任务状态
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = errors.New("invalid job state transition")

// Job 队列内部任务
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

// NewJob 创建排队中的任务
func NewJob(id, queue, jobType string, payload json.RawMessage, maxAttempts int) *Job {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := time.Now().UTC()
	return &Job{
		ID:          id,
		Queue:       queue,
		Type:        jobType,
		Payload:     payload,
		State:       JobStateQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start queued -> processing
func (j *Job) Start() error {
	if j.State != JobStateQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateProcessing)
	}
	j.Attempts++
	j.State = JobStateProcessing
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete processing -> completed
func (j *Job) Complete() error {
	if j.State != JobStateProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateCompleted)
	}
	now := time.Now().UTC()
	j.State = JobStateCompleted
	j.LastError = ""
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

// Fail processing -> queued（可重试）或 failed（终态）
func (j *Job) Fail(cause error) (terminal bool, err error) {
	if j.State != JobStateProcessing {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateFailed)
	}
	now := time.Now().UTC()
	if cause != nil {
		j.LastError = cause.Error()
	}
	j.UpdatedAt = now
	if j.Attempts >= j.MaxAttempts {
		j.State = JobStateFailed
		j.FinishedAt = &now
		return true, nil
	}
	j.State = JobStateQueued
	return false, nil
}

// IsTerminal 是否已到终态
func (j *Job) IsTerminal() bool {
	return j.State == JobStateCompleted || j.State == JobStateFailed
}
