package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vodhub/vodhub/internal/database"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
)

// Job names registered by the engine
const (
	JobSyncTitles        = "syncIPTVProviderTitles"
	JobMonitor           = "providerTitlesMonitor"
	JobProviderAdded     = "iptvProviderAdded"
	JobProviderEnabled   = "iptvProviderEnabled"
	JobCategoriesChanged = "iptvProviderCategoriesChanged"
)

// Run carries the durable execution context into a job function
type Run struct {
	// LastExecution is the previous successful start, nil on first run
	LastExecution *time.Time

	// StartedAt is the claim timestamp of this run
	StartedAt time.Time
}

// JobFunc is one job body. It returns a human-readable result summary.
type JobFunc func(ctx context.Context, run *Run) (string, error)

type registration struct {
	fn       JobFunc
	interval time.Duration
}

// Engine owns job registration, scheduling and the durable status rows.
// It is the only writer of JobRecord fields.
type Engine struct {
	stores    *database.Stores
	heartbeat time.Duration

	mu   sync.RWMutex
	jobs map[string]registration

	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates a job engine. The heartbeat is how often the scheduler
// inspects timer jobs.
func NewEngine(stores *database.Stores, heartbeat time.Duration) *Engine {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Engine{
		stores:    stores,
		heartbeat: heartbeat,
		jobs:      make(map[string]registration),
	}
}

// Register installs a job. A zero interval registers an event-only job
// that the scheduler never triggers by timer.
func (e *Engine) Register(name string, interval time.Duration, fn JobFunc) error {
	intervalStr := ""
	if interval > 0 {
		intervalStr = interval.String()
	}
	if err := e.stores.Jobs.Ensure(context.Background(), name, intervalStr); err != nil {
		return err
	}

	e.mu.Lock()
	e.jobs[name] = registration{fn: fn, interval: interval}
	e.mu.Unlock()
	return nil
}

// Run executes one job to completion, enforcing the at-most-one contract.
// The returned error mirrors what was recorded on the JobRecord.
func (e *Engine) Run(ctx context.Context, name string) error {
	e.mu.RLock()
	reg, ok := e.jobs[name]
	e.mu.RUnlock()
	if !ok {
		return apperrors.New(apperrors.CodeUnknownJob, fmt.Sprintf("unknown job: %s", name))
	}

	record, err := e.stores.Jobs.Get(ctx, name)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	if err := e.stores.Jobs.TryStart(ctx, name, startedAt); err != nil {
		return err
	}

	ctx = logger.ContextWithJob(ctx, name)
	log := logger.JobLogger().WithJob(name)
	log.Info("job started")

	result, err := reg.fn(ctx, &Run{LastExecution: record.LastExecution, StartedAt: startedAt})

	switch {
	case err == nil:
		if finishErr := e.stores.Jobs.Complete(ctx, name, result, startedAt); finishErr != nil {
			log.Error("failed to record completion", finishErr)
		}
		log.Info("job completed")
	case apperrors.IsCancelled(err):
		// Cancellation must still be recorded; use a fresh context
		if finishErr := e.stores.Jobs.Cancel(context.Background(), name); finishErr != nil {
			log.Error("failed to record cancellation", finishErr)
		}
		log.Warn("job cancelled")
	default:
		if finishErr := e.stores.Jobs.Fail(ctx, name, err.Error()); finishErr != nil {
			log.Error("failed to record failure", finishErr)
		}
		log.Error("job failed", err)
	}
	return err
}

// Trigger runs a job asynchronously. Refusals (already running, unknown)
// are logged, never propagated; callers must not block on job outcomes.
func (e *Engine) Trigger(name string) {
	ctx := e.runContext()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(ctx, name); err != nil && !apperrors.IsCode(err, apperrors.CodeAlreadyRunning) {
			logger.JobLogger().WithJob(name).Error("triggered job failed", err)
		}
	}()
}

func (e *Engine) runContext() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.baseCtx != nil {
		return e.baseCtx
	}
	return context.Background()
}

// Start launches the scheduler heartbeat
func (e *Engine) Start(ctx context.Context) error {
	baseCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.baseCtx = baseCtx
	e.cancel = cancel
	e.mu.Unlock()

	// Jobs left running by a crashed process would block forever
	if reset, err := e.stores.Jobs.ResetStale(ctx); err != nil {
		return err
	} else if reset > 0 {
		logger.AppLogger().Warn("reset stale running jobs from previous process")
	}

	e.cron = cron.New()
	spec := fmt.Sprintf("@every %ds", int(e.heartbeat.Seconds()))
	if _, err := e.cron.AddFunc(spec, e.sweep); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to schedule heartbeat")
	}
	e.cron.Start()
	return nil
}

// sweep triggers every timer job that is due
func (e *Engine) sweep() {
	ctx := e.runContext()
	if ctx.Err() != nil {
		return
	}

	e.mu.RLock()
	names := make([]string, 0, len(e.jobs))
	for name, reg := range e.jobs {
		if reg.interval > 0 {
			names = append(names, name)
		}
	}
	e.mu.RUnlock()

	now := time.Now()
	for _, name := range names {
		record, err := e.stores.Jobs.Get(ctx, name)
		if err != nil {
			logger.JobLogger().WithJob(name).Error("heartbeat could not load job record", err)
			continue
		}
		if record.Status == models.JobStatusRunning || !record.Due(now) {
			continue
		}
		e.Trigger(name)
	}
}

// Stop halts the scheduler and waits for in-flight jobs
func (e *Engine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}
