package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/studio"
)

const (
	defaultReconcileTimeout = 10 * time.Minute
	defaultReconcileLimit   = 100
)

// processGenerationReconcileJob fails generations whose callback never
// arrived and returns their credits.
func (q *Queue) processGenerationReconcileJob(ctx context.Context, job *Job) error {
	payload, err := GenerationReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reconcile payload: %w", err)
	}

	timeout := defaultReconcileTimeout
	if payload.TimeoutSeconds > 0 {
		timeout = time.Duration(payload.TimeoutSeconds) * time.Second
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}

	svc := studio.NewServiceFromRepos(repository.GetGlobalRepositories())
	swept, err := svc.ReconcileStale(ctx, timeout, limit)
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Warnf("[JobQueue] Reconciled %d stale generations (timeout=%s)", swept, timeout)
	}
	return nil
}
