package pipeline

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"catalog-scraper/pkg/checkpoint"
	"catalog-scraper/pkg/config"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/sitemap"
	"catalog-scraper/pkg/storage"
)

// Status is the control-surface snapshot of the run.
type Status struct {
	Pending             int               `json:"pending"`
	InProgress          int               `json:"in_progress"`
	Completed           int               `json:"completed"`
	Failed              int               `json:"failed"`
	QualityDistribution map[string]int    `json:"quality_distribution,omitempty"`
	Checkpoint          models.Checkpoint `json:"checkpoint"`
}

// Orchestrator drives the acquisition run: it leases batches from the sitemap
// manager, dispatches them to a bounded worker pool, reclaims stale leases,
// and flushes checkpoints on a cadence. A global semaphore caps in-flight
// work independently of pool size so concurrency can be throttled without
// resizing the pool.
type Orchestrator struct {
	mgr         *sitemap.Manager
	worker      *Worker
	checkpoints *checkpoint.Store
	records     storage.RecordStore
	cfg         *config.AppConfig
	globalSem   *semaphore.Weighted
	log         *logrus.Entry

	pauseMu  sync.Mutex
	paused   bool
	resumeCh chan struct{}

	haltOnce sync.Once
	haltErr  error
	haltFn   context.CancelFunc
}

// NewOrchestrator builds the orchestrator. The semaphore weight comes from
// max_requests, falling back to the worker count.
func NewOrchestrator(
	mgr *sitemap.Manager,
	worker *Worker,
	checkpoints *checkpoint.Store,
	records storage.RecordStore,
	cfg *config.AppConfig,
	logger *logrus.Logger,
) *Orchestrator {
	maxInFlight := cfg.MaxRequests
	if maxInFlight <= 0 {
		maxInFlight = cfg.NumWorkers
	}
	return &Orchestrator{
		mgr:         mgr,
		worker:      worker,
		checkpoints: checkpoints,
		records:     records,
		cfg:         cfg,
		globalSem:   semaphore.NewWeighted(int64(maxInFlight)),
		log:         logger.WithField("component", "orchestrator"),
	}
}

// Pause stops new leases from being handed out. In-flight URLs finish
// normally.
func (o *Orchestrator) Pause() {
	o.pauseMu.Lock()
	defer o.pauseMu.Unlock()
	if !o.paused {
		o.paused = true
		o.resumeCh = make(chan struct{})
		o.log.Info("Dispatch paused")
	}
}

// Resume restarts dispatch after a Pause.
func (o *Orchestrator) Resume() {
	o.pauseMu.Lock()
	defer o.pauseMu.Unlock()
	if o.paused {
		o.paused = false
		close(o.resumeCh)
		o.log.Info("Dispatch resumed")
	}
}

// Paused reports whether dispatch is currently paused.
func (o *Orchestrator) Paused() bool {
	o.pauseMu.Lock()
	defer o.pauseMu.Unlock()
	return o.paused
}

// waitIfPaused blocks while paused, waking on resume or cancellation.
func (o *Orchestrator) waitIfPaused(ctx context.Context) {
	o.pauseMu.Lock()
	if !o.paused {
		o.pauseMu.Unlock()
		return
	}
	ch := o.resumeCh
	o.pauseMu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// halt records the first fatal error and cancels the run. Used when the
// storage subsystem fails; the final checkpoint flush still happens so the
// run stays resumable.
func (o *Orchestrator) halt(err error) {
	o.haltOnce.Do(func() {
		o.haltErr = err
		o.log.Errorf("Halting run: %v", err)
		if o.haltFn != nil {
			o.haltFn()
		}
	})
}

// Status reports live counts plus the stored quality distribution.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	counts := o.mgr.Counts()
	st := Status{
		Pending:    counts[models.URLStatusPending],
		InProgress: counts[models.URLStatusInProgress],
		Completed:  counts[models.URLStatusCompleted],
		Failed:     counts[models.URLStatusFailed],
		Checkpoint: o.checkpoints.Snapshot(),
	}
	if o.records != nil {
		dist, err := o.records.QualityDistribution(ctx)
		if err != nil {
			return st, err
		}
		st.QualityDistribution = dist
	}
	return st, nil
}

// Run executes the acquisition until the URL set is drained, the context is
// cancelled, or a storage failure halts the batch. Workers always finish
// their current URL before exiting, and a final checkpoint is flushed on
// every exit path.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.haltFn = cancel

	o.log.Infof("Run starting with %d worker(s)", o.cfg.NumWorkers)
	runStart := time.Now()

	var bgWg sync.WaitGroup

	// Stale lease reaper
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		o.runReaper(runCtx)
	}()

	// Periodic checkpoint flush
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		o.runCheckpointer(runCtx)
	}()

	// Worker pool
	work := make(chan string)
	var poolWg sync.WaitGroup
	for i := 1; i <= o.cfg.NumWorkers; i++ {
		poolWg.Add(1)
		workerLog := o.log.WithField("worker_id", i)
		go func() {
			defer poolWg.Done()
			o.workerLoop(runCtx, work, workerLog)
		}()
	}

	dispatchErr := o.dispatch(runCtx, work)
	close(work)
	poolWg.Wait()
	cancel()
	bgWg.Wait()

	// Final flush so the run is resumable whatever the exit reason was.
	if err := o.checkpoints.Flush(); err != nil {
		o.log.Errorf("Final checkpoint flush failed: %v", err)
	}

	cp := o.checkpoints.Snapshot()
	counts := o.mgr.Counts()
	o.log.WithFields(logrus.Fields{
		"duration":  time.Since(runStart).Round(time.Second),
		"processed": cp.ProcessedCount,
		"success":   cp.SuccessCount,
		"failure":   cp.FailureCount,
		"completed": counts[models.URLStatusCompleted],
		"failed":    counts[models.URLStatusFailed],
		"pending":   counts[models.URLStatusPending],
	}).Info("Run finished")

	if o.haltErr != nil {
		return o.haltErr
	}
	if dispatchErr != nil && !errors.Is(dispatchErr, context.Canceled) {
		return dispatchErr
	}
	return ctx.Err()
}

// dispatch leases batches and feeds the pool until the URL set drains or the
// context ends.
func (o *Orchestrator) dispatch(ctx context.Context, work chan<- string) error {
	batchSize := o.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = o.cfg.NumWorkers
	}

	idleWait := 200 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.waitIfPaused(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := o.mgr.NextBatch(batchSize)
		if err != nil {
			return err
		}

		if len(batch) == 0 {
			if o.mgr.InFlightCount() == 0 {
				o.log.Info("URL set drained, stopping dispatch")
				return nil
			}
			// In-flight URLs may fail back to pending; poll until settled.
			select {
			case <-time.After(idleWait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, rec := range batch {
			select {
			case work <- rec.URL:
			case <-ctx.Done():
				// The lease stays in_progress; the reaper or the next run's
				// startup reclaim returns it to pending.
				return ctx.Err()
			}
		}
	}
}

// workerLoop drains the work channel, holding a global semaphore slot for the
// duration of each URL.
func (o *Orchestrator) workerLoop(ctx context.Context, work <-chan string, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for pageURL := range work {
		if err := o.globalSem.Acquire(ctx, 1); err != nil {
			// Cancelled while waiting for a slot. The lease stays
			// in_progress and is reclaimed at the next startup.
			workerLog.WithField("url", pageURL).Debug("Skipping leased URL on shutdown")
			continue
		}
		o.processOne(ctx, pageURL, workerLog)
		o.globalSem.Release(1)
	}
}

// processOne runs one URL with panic isolation: a panicking extraction marks
// the URL failed instead of taking down the pool.
func (o *Orchestrator) processOne(ctx context.Context, pageURL string, workerLog *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			workerLog.WithFields(logrus.Fields{
				"url":         pageURL,
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in worker")
			o.report(pageURL, models.Outcome{Success: false, Reason: "InternalPanic"})
		}
	}()

	outcome, fatalErr := o.worker.Process(ctx, pageURL)
	o.report(pageURL, outcome)
	if fatalErr != nil {
		o.halt(fatalErr)
	}
}

// report relays the outcome to the sitemap manager and the checkpoint
// counters.
func (o *Orchestrator) report(pageURL string, outcome models.Outcome) {
	if err := o.mgr.Report(pageURL, outcome); err != nil {
		o.log.WithField("url", pageURL).Errorf("Outcome report failed: %v", err)
		return
	}
	o.checkpoints.RecordOutcome(outcome.Success)
}

func (o *Orchestrator) runReaper(ctx context.Context) {
	leaseTimeout := o.cfg.LeaseTimeout
	if leaseTimeout <= 0 {
		leaseTimeout = 5 * time.Minute
	}
	interval := leaseTimeout / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := o.mgr.ReclaimStale(leaseTimeout); n > 0 {
				o.log.Infof("Reaper reclaimed %d stale leases", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) runCheckpointer(ctx context.Context) {
	interval := o.cfg.CheckpointInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := o.checkpoints.Flush(); err != nil {
				o.log.Errorf("Periodic checkpoint flush failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
