package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/oakbijoux/oakstudio/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue           *Queue
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := env.GetInt("JOBQUEUE_WORKER_COUNT", 3)
		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	interval := time.Duration(env.GetInt("GENERATION_RECONCILE_INTERVAL", 60)) * time.Second
	m.reconcileTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.reconcileWorker(interval)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically enqueues a sweep for generations whose
// workflow callback never arrived.
func (m *Manager) reconcileWorker(interval time.Duration) {
	defer m.wg.Done()
	timeoutSeconds := env.GetInt("GENERATION_TIMEOUT", int(defaultReconcileTimeout.Seconds()))
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s, timeout: %ds)", interval, timeoutSeconds)

	payload := GenerationReconcileJobPayload{
		TimeoutSeconds: timeoutSeconds,
		Limit:          defaultReconcileLimit,
	}

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeGenerationReconcile, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue reconcile job: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
