package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeJewelryCleanup      JobType = "jewelry_cleanup"
	JobTypeGenerationReconcile JobType = "generation_reconcile"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// JewelryCleanupJobPayload contains the payload for jewelry deletion jobs.
// Object keys are captured at enqueue time so the job stays valid after the
// database row is gone.
type JewelryCleanupJobPayload struct {
	JewelryID   uint   `json:"jewelry_id"`
	JewelryUUID string `json:"jewelry_uuid"`
	ObjectKey   string `json:"object_key"`
	PreviewKey  string `json:"preview_key,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p JewelryCleanupJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"jewelry_id":   p.JewelryID,
		"jewelry_uuid": p.JewelryUUID,
		"object_key":   p.ObjectKey,
	}
	if p.PreviewKey != "" {
		m["preview_key"] = p.PreviewKey
	}
	return m
}

// JewelryCleanupJobPayloadFromMap creates a payload from a map
func JewelryCleanupJobPayloadFromMap(data map[string]interface{}) (*JewelryCleanupJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload JewelryCleanupJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// GenerationReconcileJobPayload contains the payload for reconciliation sweeps
type GenerationReconcileJobPayload struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	Limit          int `json:"limit"`
}

// ToMap converts the payload to a map for storage
func (p GenerationReconcileJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"timeout_seconds": p.TimeoutSeconds,
		"limit":           p.Limit,
	}
}

// GenerationReconcileJobPayloadFromMap creates a payload from a map
func GenerationReconcileJobPayloadFromMap(data map[string]interface{}) (*GenerationReconcileJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload GenerationReconcileJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
