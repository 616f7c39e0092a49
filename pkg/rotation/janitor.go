package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/credrotate/internal/logging"
	"github.com/systmms/credrotate/pkg/storage"
)

// CleanupJob is one pending old-version removal, held until the version's
// grace period ends.
type CleanupJob struct {
	CredentialID string
	Version      uint32
	Due          time.Time

	// Old carries the material a plugin needs to deactivate the instance
	// at the target service. Nil for storage-only cleanup.
	Old *Credential
}

// Janitor removes superseded credential versions after their grace period.
// Deletion is idempotent at the storage layer, so a job that runs twice (a
// crash between delete and dequeue, say) is harmless.
type Janitor struct {
	store   storage.Provider
	cleaner OldVersionCleaner
	logger  *logging.Logger

	mu   sync.Mutex
	jobs []CleanupJob

	now func() time.Time
}

// NewJanitor creates a janitor. cleaner may be nil for storage-only cleanup.
func NewJanitor(store storage.Provider, cleaner OldVersionCleaner, logger *logging.Logger) *Janitor {
	return &Janitor{
		store:   store,
		cleaner: cleaner,
		logger:  logger.With("janitor"),
		now:     time.Now,
	}
}

// Schedule queues a cleanup job. Safe for concurrent use.
func (j *Janitor) Schedule(job CleanupJob) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs = append(j.jobs, job)
}

// Pending returns the number of queued jobs.
func (j *Janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.jobs)
}

// Sweep runs every due job once. A failed job stays queued for the next
// sweep; the error from the last failure is returned.
func (j *Janitor) Sweep(ctx context.Context) error {
	j.mu.Lock()
	var due, remaining []CleanupJob
	now := j.now()
	for _, job := range j.jobs {
		if job.Due.After(now) {
			remaining = append(remaining, job)
		} else {
			due = append(due, job)
		}
	}
	j.jobs = remaining
	j.mu.Unlock()

	var lastErr error
	for _, job := range due {
		if err := j.run(ctx, job); err != nil {
			j.logger.Warn("cleanup of %s v%d failed, requeueing: %v", job.CredentialID, job.Version, err)
			j.mu.Lock()
			j.jobs = append(j.jobs, job)
			j.mu.Unlock()
			lastErr = err
			continue
		}
		j.logger.Debug("removed %s v%d after grace period", job.CredentialID, job.Version)
	}
	return lastErr
}

func (j *Janitor) run(ctx context.Context, job CleanupJob) error {
	if j.cleaner != nil && job.Old != nil {
		if err := j.cleaner.CleanupOld(ctx, *job.Old); err != nil {
			return err
		}
	}
	return j.store.DeleteVersion(ctx, job.CredentialID, job.Version)
}

// Run sweeps at the given interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("janitor stopped")
			return nil
		case <-ticker.C:
		}
		if err := j.Sweep(ctx); err != nil {
			j.logger.Warn("sweep finished with failures: %v", err)
		}
	}
}
