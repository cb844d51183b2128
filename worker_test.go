package exq

import (
	"context"
	"errors"
	"testing"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkerDeps() (*registry, *statsEngine, gateway) {
	gw := newMemoryGateway()
	return newRegistry(), newStatsEngine(gw, newKeys("exq"), gometrics.NewRegistry()), gw
}

func TestWorkerSuccessReportsOutcomeButLeavesDeregistrationToManager(t *testing.T) {
	reg, stats, _ := newTestWorkerDeps()
	require.NoError(t, reg.register("C", func(ctx context.Context, args []interface{}) error {
		return nil
	}))

	job := &Job{JID: "j1", Class: "C", Queue: "default"}
	raw, _ := job.Encode()
	outc := make(chan outcome, 1)
	w := newWorker("host:uuid1", job, raw, reg, stats, outc, newZapLogger())

	w.run(context.Background(), "host")

	o := <-outc
	assert.Equal(t, outcomeSuccess, o.kind)
	assert.Equal(t, "j1", o.job.JID)
	assert.Equal(t, "host:uuid1", o.identity)
	assert.Equal(t, "host", o.host)

	// The worker itself must not have deregistered yet: spec.md §5
	// requires record_processed/record_failure to precede
	// remove_process, and only the manager performs that step, after
	// reading this outcome.
	busy, err := stats.busy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), busy)
}

func TestWorkerHandlerErrorReportsFailure(t *testing.T) {
	reg, stats, _ := newTestWorkerDeps()
	wantErr := errors.New("boom")
	require.NoError(t, reg.register("C", func(ctx context.Context, args []interface{}) error {
		return wantErr
	}))

	job := &Job{JID: "j1", Class: "C", Queue: "default"}
	raw, _ := job.Encode()
	outc := make(chan outcome, 1)
	w := newWorker("host:uuid1", job, raw, reg, stats, outc, newZapLogger())

	w.run(context.Background(), "host")

	o := <-outc
	assert.Equal(t, outcomeFailure, o.kind)
	var he *HandlerError
	require.ErrorAs(t, o.err, &he)
	assert.ErrorIs(t, he.Err, wantErr)
}

func TestWorkerClassNotFoundShortcutsWithoutInvokingHandler(t *testing.T) {
	reg, stats, _ := newTestWorkerDeps()
	job := &Job{JID: "j1", Class: "Unregistered", Queue: "default"}
	raw, _ := job.Encode()
	outc := make(chan outcome, 1)
	w := newWorker("host:uuid1", job, raw, reg, stats, outc, newZapLogger())

	w.run(context.Background(), "host")

	o := <-outc
	assert.Equal(t, outcomeFailure, o.kind)
	var cnf *ClassNotFoundError
	require.ErrorAs(t, o.err, &cnf)
	assert.Equal(t, "Unregistered", cnf.Class)
}

func TestWorkerRegistersInProcessTableBeforeReporting(t *testing.T) {
	reg, stats, _ := newTestWorkerDeps()
	started := make(chan struct{})
	require.NoError(t, reg.register("C", func(ctx context.Context, args []interface{}) error {
		busy, err := stats.busy(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), busy)
		close(started)
		return nil
	}))

	job := &Job{JID: "j1", Class: "C", Queue: "default"}
	raw, _ := job.Encode()
	outc := make(chan outcome, 1)
	w := newWorker("host:uuid1", job, raw, reg, stats, outc, newZapLogger())

	w.run(context.Background(), "host")
	<-started
	<-outc
}
