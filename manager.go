package exq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func nop() {}

// Manager is the Dispatcher of spec.md §4.2: a single poll loop that
// dequeues jobs from a configured set of queues and hands each one to
// a freshly spawned Worker, bounded by Concurrency in-flight at a
// time. Create one via New.
type Manager struct {
	logger Logger
	gw     gateway
	k      keys
	queues *queueEngine
	stats  *statsEngine
	reg    *registry

	cfg  *Config
	host string

	mu        sync.Mutex
	started   bool
	stopc     chan struct{}
	stoppedc  chan struct{}
	busy      int
	outc      chan outcome
	group     *errgroup.Group
	groupCtx  context.Context
	cancelRun context.CancelFunc

	testManagerStarted func()
	testJobScheduled   func()
	testJobStarted     func()
	testJobSucceeded   func()
	testJobFailed      func()
}

// New creates a Manager from cfg, dialing Redis via go-redis and
// wiring the queue engine, stats engine, and handler registry on top
// of it. A nil cfg uses DefaultConfig.
func New(cfg *Config, options ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	k := newKeys(cfg.Namespace)
	gw := newRedisGateway(rdb)
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}

	m := &Manager{
		logger:             newZapLogger(),
		gw:                 gw,
		k:                  k,
		queues:             newQueueEngine(gw, k),
		stats:              newStatsEngine(gw, k, gometrics.NewRegistry()),
		reg:                newRegistry(),
		cfg:                cfg,
		host:               host,
		testManagerStarted: nop,
		testJobScheduled:   nop,
		testJobStarted:     nop,
		testJobSucceeded:   nop,
		testJobFailed:      nop,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// SetLogger overrides the default zap-backed Logger.
func SetLogger(logger Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// SetGateway overrides the Redis Gateway, primarily for tests that
// want a memoryGateway or a miniredis-backed client.
func SetGateway(gw gateway) ManagerOption {
	return func(m *Manager) {
		m.gw = gw
		m.queues = newQueueEngine(gw, m.k)
		m.stats = newStatsEngine(gw, m.k, gometrics.NewRegistry())
	}
}

// Register binds a Processor to a job class. It is an error to
// register the same class twice.
func (m *Manager) Register(class string, p Processor) error {
	return m.reg.register(class, p)
}

// identity returns a fresh opaque pid for one worker, "<host>:<uuid>"
// (spec.md §9 suggests exactly this shape to disambiguate process
// table entries across restarts).
func (m *Manager) identity() string {
	return m.host + ":" + uuid.NewString()
}

// Start begins the poll loop. It recovers any inflight jobs left by a
// previous crash when ReliableFetch is enabled, then runs until Stop
// or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("exq: manager already started")
	}

	if m.cfg.ReliableFetch {
		if n, err := m.queues.recoverInflight(ctx, m.host); err != nil {
			m.logger.Errorf("exq: inflight recovery failed: %v", err)
		} else if n > 0 {
			m.logger.Printf("exq: recovered %d inflight job(s)", n)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	m.groupCtx = groupCtx
	m.cancelRun = cancel
	m.group = group
	m.outc = make(chan outcome, m.cfg.Concurrency)
	m.stopc = make(chan struct{})
	m.stoppedc = make(chan struct{})
	m.started = true
	m.mu.Unlock()

	m.testManagerStarted()

	go m.loop(runCtx)
	return nil
}

// loop is the single-threaded poll cycle of spec.md §4.2: on each
// iteration it drains completed-worker outcomes, then — if a worker
// slot is free — attempts one dequeue. An empty dequeue or a full
// complement of busy workers sleeps for PollTimeout before the next
// attempt.
func (m *Manager) loop(ctx context.Context) {
	defer close(m.stoppedc)
	for {
		select {
		case <-m.stopc:
			return
		case o := <-m.outc:
			m.handleOutcome(ctx, o)
			continue
		default:
		}

		m.mu.Lock()
		slotFree := m.busy < m.cfg.Concurrency
		m.mu.Unlock()
		if !slotFree {
			m.sleepOrStop(ctx)
			continue
		}

		queueNames, err := m.pollableQueues(ctx)
		if err != nil {
			m.logger.Errorf("exq: listing queues failed: %v", err)
			m.sleepOrStop(ctx)
			continue
		}

		identity := m.identity()
		var job *Job
		if m.cfg.ReliableFetch {
			job, err = m.queues.dequeueReliable(ctx, queueNames, m.host)
		} else {
			job, err = m.queues.dequeue(ctx, queueNames)
		}
		if err != nil {
			m.logger.Errorf("exq: dequeue failed: %v", err)
			m.sleepOrStop(ctx)
			continue
		}
		if job == nil {
			m.sleepOrStop(ctx)
			continue
		}

		m.spawnWorker(ctx, identity, job)
		m.testJobScheduled()
	}
}

// pollableQueues returns the configured queue list minus any that are
// currently paused.
func (m *Manager) pollableQueues(ctx context.Context) ([]string, error) {
	paused, err := m.queues.pausedSet(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.cfg.Queues))
	for _, name := range m.cfg.Queues {
		if !paused[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *Manager) sleepOrStop(ctx context.Context) {
	select {
	case <-time.After(m.cfg.PollTimeout):
	case <-m.stopc:
	case <-ctx.Done():
	}
}

// spawnWorker increments the busy count and runs one worker under the
// errgroup, which never returns an error itself: failures are
// reported through outc, not through the group, so one job's panic
// recovery doesn't cancel its siblings.
func (m *Manager) spawnWorker(ctx context.Context, identity string, job *Job) {
	m.mu.Lock()
	m.busy++
	m.mu.Unlock()

	raw, _ := job.Encode()
	w := newWorker(identity, job, raw, m.reg, m.stats, m.outc, m.logger)
	w.testStarted = m.testJobStarted

	m.group.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				m.outc <- outcome{kind: outcomeFailure, identity: identity, job: job, rawJob: raw, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		w.run(ctx, m.host)
		return nil
	})
}

// handleOutcome records the terminal state of one job, then removes
// its worker from the process table — in that order, so
// record_processed/record_failure always precede remove_process
// (spec.md §5) — and, under ReliableFetch, acknowledges its inflight
// record.
func (m *Manager) handleOutcome(ctx context.Context, o outcome) {
	m.mu.Lock()
	m.busy--
	m.mu.Unlock()

	now := time.Now()
	switch o.kind {
	case outcomeSuccess:
		if err := m.stats.recordProcessed(ctx, now); err != nil {
			m.logger.Errorf("exq: recordProcessed failed: %v", err)
		}
		m.testJobSucceeded()
	case outcomeFailure:
		if err := m.stats.recordFailure(ctx, o.job, o.err.Error(), now); err != nil {
			m.logger.Errorf("exq: recordFailure failed: %v", err)
		}
		m.testJobFailed()
	}

	if err := m.stats.removeProcess(ctx, o.host, o.identity); err != nil && err != ErrNotFound {
		m.logger.Errorf("exq: worker %s failed to deregister: %v", o.identity, err)
	}

	if m.cfg.ReliableFetch {
		if err := m.queues.ackReliable(ctx, m.host, o.rawJob); err != nil {
			m.logger.Errorf("exq: ackReliable failed: %v", err)
		}
	}
}

// Stop is an alias for Close.
func (m *Manager) Stop() error { return m.Close() }

// Close stops the poll loop and waits for in-flight workers to finish,
// honoring cfg.ShutdownTimeout (negative means wait forever). Outcomes
// that workers report after the poll loop has stopped are not recorded.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	close(m.stopc)
	<-m.stoppedc

	done := make(chan error, 1)
	go func() { done <- m.group.Wait() }()

	if m.cfg.ShutdownTimeout < 0 {
		err := <-done
		m.finishClose()
		return err
	}

	select {
	case err := <-done:
		m.finishClose()
		return err
	case <-time.After(m.cfg.ShutdownTimeout):
		m.cancelRun()
		m.finishClose()
		return errors.New("exq: close timed out waiting for workers")
	}
}

func (m *Manager) finishClose() {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
}

// -- Inspection surface (spec.md §6 / SPEC_FULL.md expansion) --

func (m *Manager) Enqueue(ctx context.Context, queue, class string, args []interface{}) (string, error) {
	return m.queues.enqueue(ctx, queue, class, args)
}

func (m *Manager) FindJob(ctx context.Context, queue, jid string) (*Job, int, error) {
	return m.queues.findJob(ctx, queue, jid)
}

func (m *Manager) RemoveJob(ctx context.Context, queue, jid string) (bool, error) {
	return m.queues.removeJob(ctx, queue, jid)
}

func (m *Manager) ListQueues(ctx context.Context) ([]queueInfo, error) {
	return m.queues.listQueues(ctx)
}

func (m *Manager) Pause(ctx context.Context, queue string) error {
	return m.queues.pause(ctx, queue)
}

func (m *Manager) Unpause(ctx context.Context, queue string) error {
	return m.queues.unpause(ctx, queue)
}

func (m *Manager) FindFailed(ctx context.Context, jid string) (*FailedJob, int, error) {
	return m.stats.findFailed(ctx, jid)
}

func (m *Manager) RemoveFailed(ctx context.Context, jid string) error {
	return m.stats.removeFailed(ctx, jid)
}

func (m *Manager) ClearFailed(ctx context.Context) error {
	return m.stats.clearFailed(ctx)
}

func (m *Manager) Busy(ctx context.Context) (int64, error) {
	return m.stats.busy(ctx)
}

func (m *Manager) Processes(ctx context.Context) ([]*ProcessEntry, error) {
	return m.stats.processes(ctx)
}

func (m *Manager) RealtimeStats(ctx context.Context) (processed, failed []bucket, err error) {
	return m.stats.realtimeStats(ctx)
}

// Requeue moves a job currently sitting in the failed list back onto
// its original queue, undoing a failure without replaying history.
func (m *Manager) Requeue(ctx context.Context, jid string) error {
	failed, _, err := m.stats.findFailed(ctx, jid)
	if err != nil {
		return err
	}
	job := &Job{
		JID:        failed.JID,
		Class:      failed.Class,
		Args:       failed.Args,
		Queue:      failed.Queue,
		EnqueuedAt: failed.EnqueuedAt,
	}
	raw, err := job.Encode()
	if err != nil {
		return err
	}
	if err := m.queues.enqueueRaw(ctx, job.Queue, raw); err != nil {
		return err
	}
	return m.stats.removeFailed(ctx, jid)
}
