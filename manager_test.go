package exq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg *Config) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
		cfg.PollTimeout = 5 * time.Millisecond
	}
	m := New(cfg, SetGateway(newMemoryGateway()), SetLogger(newZapLogger()))
	return m
}

func TestManagerProcessesEnqueuedJob(t *testing.T) {
	m := newTestManager(t, nil)
	var mu sync.Mutex
	var ran bool
	require.NoError(t, m.Register("C", func(ctx context.Context, args []interface{}) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	_, err := m.Enqueue(ctx, "default", "C", nil)
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx))
	defer m.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran
	}, time.Second, 5*time.Millisecond)
}

func TestManagerNeverExceedsConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	cfg.PollTimeout = 2 * time.Millisecond
	m := newTestManager(t, cfg)

	var mu sync.Mutex
	inFlight, maxSeen := 0, 0
	release := make(chan struct{})
	require.NoError(t, m.Register("C", func(ctx context.Context, args []interface{}) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := m.Enqueue(ctx, "default", "C", nil)
		require.NoError(t, err)
	}

	require.NoError(t, m.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, m.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestManagerSkipsPausedQueues(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Register("C", func(ctx context.Context, args []interface{}) error {
		return nil
	}))

	ctx := context.Background()
	jid, err := m.Enqueue(ctx, "paused-queue", "C", nil)
	require.NoError(t, err)
	require.NoError(t, m.Pause(ctx, "paused-queue"))
	m.cfg.Queues = []string{"paused-queue"}

	require.NoError(t, m.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Close())

	// The job should still be sitting untouched on its paused queue.
	job, _, err := m.FindJob(ctx, "paused-queue", jid)
	require.NoError(t, err)
	assert.Equal(t, jid, job.JID)
}

func TestManagerRecordsFailureOnHandlerError(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Register("C", func(ctx context.Context, args []interface{}) error {
		return assert.AnError
	}))

	ctx := context.Background()
	jid, err := m.Enqueue(ctx, "default", "C", nil)
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx))
	defer m.Close()

	require.Eventually(t, func() bool {
		_, _, err := m.FindFailed(ctx, jid)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestHandleOutcomeRecordsAndDeregisters(t *testing.T) {
	// handleOutcome both records the outcome and removes the worker's
	// process-table entry. Drive it directly so the result doesn't
	// depend on goroutine scheduling; the order of the two steps is not
	// observed here.
	m := newTestManager(t, nil)
	ctx := context.Background()

	entry := &ProcessEntry{PID: "host:uuid1", Host: "host", Job: &Job{JID: "j1"}, StartedAt: "now"}
	require.NoError(t, m.stats.addProcess(ctx, entry))

	job := &Job{JID: "j1", Class: "C", Queue: "default"}
	m.handleOutcome(ctx, outcome{kind: outcomeSuccess, identity: "host:uuid1", host: "host", job: job})

	val, found, err := m.gw.get(ctx, m.k.statProcessed())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", val)

	busy, err := m.stats.busy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), busy)
}

func TestManagerReliableFetchRecoversInflightOnStart(t *testing.T) {
	gw := newMemoryGateway()
	k := newKeys("exq")
	qe := newQueueEngine(gw, k)
	ctx := context.Background()

	jid, err := qe.enqueue(ctx, "default", "C", nil)
	require.NoError(t, err)
	// Simulate a previous process of this host having claimed the job
	// and crashed before acking it.
	_, err = qe.dequeueReliable(ctx, []string{"default"}, "crashed-host")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ReliableFetch = true
	cfg.PollTimeout = 2 * time.Millisecond
	m := New(cfg, SetGateway(gw))
	m.host = "crashed-host"

	var mu sync.Mutex
	var ran bool
	require.NoError(t, m.Register("C", func(ctx context.Context, args []interface{}) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	}))

	require.NoError(t, m.Start(ctx))
	defer m.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran
	}, time.Second, 5*time.Millisecond)

	_ = jid
}
