// Package poller runs the single cooperative task that drives every pass
// of the engine (spec.md §4.8, §5): refresh A's reference cache, link any
// newly-discoverable projects, then for each linked project correlate
// members, discover/retire pairs, and reconcile existing mappings.
// Grounded on
// pkg/scheduler/scheduler.go's ticker-driven pollLoop/runSchedulingCycle
// shape, with a Redis distributed lock layered on top of the teacher's
// local running-flag fast check so multiple replicas of this process
// never run a pass concurrently.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/appctx"
	"github.com/trackersync/trackersync/internal/discovery"
	"github.com/trackersync/trackersync/internal/members"
	"github.com/trackersync/trackersync/internal/pairing"
	"github.com/trackersync/trackersync/internal/reconcile"
	"github.com/trackersync/trackersync/internal/redis"
	"github.com/trackersync/trackersync/internal/refcache"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

const distributedLockKey = "trackersyncd:poll"

// Config controls pass cadence and the overlap guard.
type Config struct {
	// Interval between passes.
	Interval time.Duration
	// Jitter adds a random [0, Jitter) delay before each ticker-driven pass
	// (the first pass runs immediately) so multiple replicas sharing one
	// interval don't all fire in lockstep.
	Jitter time.Duration
	// DistributedLockTTL bounds how long a replica may hold the Redis
	// pass lock; it must comfortably exceed one pass's worst-case duration.
	DistributedLockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:           60 * time.Second,
		Jitter:             5 * time.Second,
		DistributedLockTTL: 5 * time.Minute,
	}
}

// Status is the process-visible state exposed at GET /poll/status.
type Status struct {
	LastRunAt           time.Time
	LastSuccessAt       time.Time
	ConsecutiveFailures int
	Running             bool
}

// Driver is the poll loop. One Driver per process; Start spawns its loop
// in a goroutine and returns immediately.
type Driver struct {
	refresher  *refcache.Refresher
	linker     *discovery.Discoverer
	projects   repositories.ProjectRepo
	mappings   repositories.MappingRepo
	correlator *members.Correlator
	discoverer *pairing.Discoverer
	reconciler *reconcile.Reconciler

	adapterA adapters.Adapter
	adapterB adapters.Adapter

	publicURLA string
	publicURLB string

	locker *redis.Locker
	config Config
	logger ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}

	mu      sync.RWMutex
	running bool
	status  Status
}

func New(
	refresher *refcache.Refresher,
	linker *discovery.Discoverer,
	projects repositories.ProjectRepo,
	mappings repositories.MappingRepo,
	correlator *members.Correlator,
	discoverer *pairing.Discoverer,
	reconciler *reconcile.Reconciler,
	adapterA, adapterB adapters.Adapter,
	publicURLA, publicURLB string,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Driver {
	if config.Interval <= 0 {
		config = DefaultConfig()
	}
	return &Driver{
		refresher:  refresher,
		linker:     linker,
		projects:   projects,
		mappings:   mappings,
		correlator: correlator,
		discoverer: discoverer,
		reconciler: reconciler,
		adapterA:   adapterA,
		adapterB:   adapterB,
		publicURLA: publicURLA,
		publicURLB: publicURLB,
		locker:     locker,
		config:     config,
		logger:     logger,
		stopCh:     make(chan struct{}),
		stoppedC:   make(chan struct{}),
	}
}

var ErrAlreadyRunning = errors.New("poller already running")

func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	d.logger.WithContext(ctx).Infof("poller: starting, interval=%s jitter=%s", d.config.Interval, d.config.Jitter)
	go d.pollLoop(ctx)
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	select {
	case <-d.stoppedC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Driver) pollLoop(ctx context.Context) {
	defer close(d.stoppedC)

	d.runPass(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if d.config.Jitter > 0 {
				select {
				case <-time.After(randomJitter(d.config.Jitter)):
				case <-d.stopCh:
					return
				}
			}
			d.runPass(ctx)
		}
	}
}

// runPass runs a local fast pre-check, then acquires the distributed
// overlap guard, before doing any work — a prior tick still running (locally
// or on another replica) means this tick is skipped outright, never
// queued (spec.md §4.8).
func (d *Driver) runPass(ctx context.Context) {
	d.mu.Lock()
	if d.status.Running {
		d.mu.Unlock()
		d.logger.WithContext(ctx).Debugf("poller: previous pass still running locally, skipping tick")
		return
	}
	d.status.Running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.status.Running = false
		d.mu.Unlock()
	}()

	var lock *redis.Lock
	if d.locker != nil {
		acquired, err := d.locker.Acquire(ctx, distributedLockKey, d.config.DistributedLockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				d.logger.WithContext(ctx).Debugf("poller: another replica holds the pass lock, skipping tick")
				return
			}
			d.logger.WithContext(ctx).WithError(err).Warnf("poller: failed to acquire distributed lock, skipping tick")
			return
		}
		lock = acquired
		defer lock.Release(ctx)
	}

	ctx, span := tracing.StartSpan(ctx, "poller.Driver.runPass")
	defer span.End()

	// Tag every log line this pass emits with one id, so a slow or failing
	// pass's scattered warnings can be grepped back together.
	ctx = appctx.SetPassID(ctx, uuid.NewString())

	start := time.Now()
	d.mu.Lock()
	d.status.LastRunAt = start
	d.mu.Unlock()

	if err := d.runOnce(ctx); err != nil {
		d.mu.Lock()
		d.status.ConsecutiveFailures++
		d.mu.Unlock()
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"pass_id": appctx.GetPassID(ctx),
		}).Warnf("poller: pass failed after %s", time.Since(start))
		return
	}

	d.mu.Lock()
	d.status.LastSuccessAt = time.Now()
	d.status.ConsecutiveFailures = 0
	d.mu.Unlock()
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"pass_id": appctx.GetPassID(ctx),
	}).Infof("poller: pass completed in %s", time.Since(start))
}

// runOnce is the per-pass pipeline (spec.md §4.8): refresh A's reference
// cache, then per linked project correlate members, discover/retire
// pairs, and reconcile. Each project's errors are isolated and joined
// rather than aborting the rest of the pass (spec.md §7).
func (d *Driver) runOnce(ctx context.Context) error {
	if err := d.refresher.Refresh(ctx); err != nil {
		return errJoinf("refreshing reference cache", err)
	}

	if err := d.linker.Run(ctx); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("poller: project discovery failed, continuing with previously linked projects")
	}

	linked, err := d.projects.ListLinked(ctx)
	if err != nil {
		return errJoinf("listing linked projects", err)
	}

	var errs []error
	for _, lp := range linked {
		if !lp.RemoteProjectB.Linked() {
			continue
		}
		projectCtx := appctx.SetProjectKey(ctx, lp.Project.ExternalAKey)
		if err := d.runProject(projectCtx, lp); err != nil {
			errs = append(errs, err)
			d.logger.WithContext(projectCtx).WithError(err).WithFields(map[string]any{
				"project_id":  lp.Project.ID,
				"project_key": appctx.GetProjectKey(projectCtx),
			}).Warnf("poller: project pass failed, continuing with remaining projects")
			continue
		}
		if err := d.projects.TouchLastSync(ctx, lp.Project.ID); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("poller: failed to touch last_sync_at")
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) runProject(ctx context.Context, lp repositories.LinkedProject) error {
	ctx, span := tracing.StartSpan(ctx, "poller.Driver.runProject")
	defer span.End()

	externalAProjectID := lp.Project.ExternalAID
	externalBProjectID := *lp.RemoteProjectB.ExternalBID

	if err := d.correlator.Run(ctx, d.adapterA, d.adapterB, externalAProjectID, externalBProjectID); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("poller: member correlation failed, continuing")
	}

	if err := d.discoverer.Run(ctx, d.adapterA, d.adapterB, lp.Project.ID, externalAProjectID, externalBProjectID, d.publicURLA, d.publicURLB); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("poller: pair discovery failed, continuing with existing mappings")
	}

	mappings, err := d.mappings.ListByProject(ctx, lp.Project.ID)
	if err != nil {
		return errJoinf("listing mappings", err)
	}

	aHints, bHints, err := d.listHints(ctx, externalAProjectID, externalBProjectID)
	if err != nil {
		return errJoinf("listing issues for hints", err)
	}

	d.reconciler.ReconcileProject(ctx, d.adapterA, d.adapterB, externalAProjectID, externalBProjectID, mappings, aHints, bHints, d.publicURLA, d.publicURLB)
	return nil
}

func (d *Driver) listHints(ctx context.Context, externalAProjectID, externalBProjectID int) (map[int]adapters.IssueView, map[int]adapters.IssueView, error) {
	aRes := d.adapterA.ListIssues(ctx, externalAProjectID)
	if !aRes.IsOk() {
		return nil, nil, errJoinf("listing A issues", adapterFailureErr(aRes))
	}
	aViews, _ := aRes.Value()

	bRes := d.adapterB.ListIssues(ctx, externalBProjectID)
	if !bRes.IsOk() {
		return nil, nil, errJoinf("listing B issues", adapterFailureErr(bRes))
	}
	bViews, _ := bRes.Value()

	aHints := make(map[int]adapters.IssueView, len(aViews))
	for _, v := range aViews {
		aHints[v.ExternalID] = v
	}
	bHints := make(map[int]adapters.IssueView, len(bViews))
	for _, v := range bViews {
		bHints[v.ExternalID] = v
	}
	return aHints, bHints, nil
}

func adapterFailureErr(res adapters.Result[[]adapters.IssueView]) error {
	if res.IsTransient() {
		return res.Err()
	}
	return errors.New(res.Detail())
}

func errJoinf(msg string, err error) error {
	return errors.Join(errors.New(msg), err)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() % int64(max))
}
