package jobqueue

import (
	"testing"
	"time"
)

func TestJewelryCleanupPayloadRoundTrip(t *testing.T) {
	payload := JewelryCleanupJobPayload{
		JewelryID:   42,
		JewelryUUID: "b9c1e7d0-0000-0000-0000-000000000000",
		ObjectKey:   "jewelry/7/b9c1e7d0.png",
		PreviewKey:  "jewelry/7/previews/b9c1e7d0.jpg",
	}

	got, err := JewelryCleanupJobPayloadFromMap(payload.ToMap())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if *got != payload {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *got, payload)
	}
}

func TestJewelryCleanupPayloadOmitsEmptyPreview(t *testing.T) {
	payload := JewelryCleanupJobPayload{JewelryID: 1, ObjectKey: "k"}
	m := payload.ToMap()
	if _, ok := m["preview_key"]; ok {
		t.Fatalf("expected preview_key to be omitted when empty")
	}
}

func TestGenerationReconcilePayloadDefaults(t *testing.T) {
	got, err := GenerationReconcileJobPayloadFromMap(map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TimeoutSeconds != 0 || got.Limit != 0 {
		t.Fatalf("expected zero values for empty map, got %+v", got)
	}
}

func TestJobRetryLifecycle(t *testing.T) {
	job := &Job{
		ID:         "test",
		Type:       JobTypeJewelryCleanup,
		Status:     JobStatusPending,
		MaxRetries: 2,
	}

	job.MarkAsProcessing()
	if job.Status != JobStatusProcessing || job.ProcessedAt == nil {
		t.Fatalf("expected processing status with timestamp, got %+v", job)
	}

	job.MarkAsFailed("boom")
	if !job.IsRetryable() {
		t.Fatalf("expected first failure to be retryable")
	}
	job.MarkAsFailed("boom again")
	if job.IsRetryable() {
		t.Fatalf("expected job to exhaust retries after %d failures", job.RetryCount)
	}

	job.MarkAsCompleted()
	if job.Status != JobStatusCompleted || job.ErrorMsg != "" {
		t.Fatalf("expected completion to clear the error, got %+v", job)
	}
	if job.CompletedAt == nil || job.CompletedAt.Before(time.Now().Add(-time.Minute)) {
		t.Fatalf("expected a recent completion timestamp")
	}
}
