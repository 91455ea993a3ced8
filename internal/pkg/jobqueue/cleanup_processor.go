package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/storage"
)

var (
	storageClient     *storage.Client
	storageClientErr  error
	storageClientOnce sync.Once
)

func getStorageClient() (*storage.Client, error) {
	storageClientOnce.Do(func() {
		cfg, err := storage.LoadConfig()
		if err != nil {
			storageClientErr = err
			return
		}
		storageClient, storageClientErr = storage.NewClient(cfg)
	})
	return storageClient, storageClientErr
}

// processJewelryCleanupJob removes a jewelry upload's objects from S3 and
// then drops the database row. Object keys come from the job payload so the
// job survives the row deletion on retry.
func (q *Queue) processJewelryCleanupJob(ctx context.Context, job *Job) error {
	payload, err := JewelryCleanupJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid jewelry cleanup payload: %w", err)
	}
	if strings.TrimSpace(payload.ObjectKey) == "" {
		return fmt.Errorf("jewelry cleanup payload missing object key")
	}

	client, err := getStorageClient()
	if err != nil {
		return fmt.Errorf("storage client unavailable: %w", err)
	}

	if err := client.Delete(ctx, payload.ObjectKey); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", payload.ObjectKey, err)
	}
	if key := strings.TrimSpace(payload.PreviewKey); key != "" {
		if err := client.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete preview object %s: %w", key, err)
		}
	}

	if payload.JewelryID > 0 {
		repos := repository.GetGlobalRepositories()
		if err := repos.Jewelry.DeleteByID(payload.JewelryID); err != nil {
			// The row may already be gone from a previous attempt.
			log.Warnf("[JobQueue] Jewelry row %d delete: %v", payload.JewelryID, err)
		}
	}

	log.Infof("[JobQueue] Cleaned up jewelry %s (key=%s)", payload.JewelryUUID, payload.ObjectKey)
	return nil
}
