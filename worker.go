package exq

import (
	"context"
	"time"
)

// outcomeKind distinguishes the two messages a worker can report.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeFailure
)

// outcome is what a worker sends back to the manager once it reaches
// the Reporting state (spec.md §4.5). The manager, not the worker,
// removes the process-table entry — after recording the outcome — so
// record_processed/record_failure always precede remove_process
// (spec.md §5).
type outcome struct {
	kind     outcomeKind
	identity string
	host     string
	job      *Job
	rawJob   string
	err      error
}

// worker is a short-lived task parameterized by (job, manager handle).
// It progresses Starting -> Running -> Reporting -> Terminated and
// never touches queue lists directly — the job has already been
// removed from its queue by the manager's dequeue.
type worker struct {
	identity string
	job      *Job
	rawJob   string
	reg      *registry
	stats    *statsEngine
	outc     chan<- outcome
	logger   Logger

	testStarted func()
}

func newWorker(identity string, job *Job, rawJob string, reg *registry, stats *statsEngine, outc chan<- outcome, logger Logger) *worker {
	return &worker{
		identity:    identity,
		job:         job,
		rawJob:      rawJob,
		reg:         reg,
		stats:       stats,
		outc:        outc,
		logger:      logger,
		testStarted: func() {},
	}
}

// run drives the worker through its whole lifecycle and sends exactly
// one outcome to the manager before returning.
func (w *worker) run(ctx context.Context, host string) {
	// Starting -> Running: register in the process table before user
	// code runs (invariant I4).
	entry := &ProcessEntry{
		PID:       w.identity,
		Host:      host,
		Job:       w.job,
		StartedAt: time.Now().Format(time.RFC3339),
	}
	if err := w.stats.addProcess(ctx, entry); err != nil {
		w.logger.Errorf("exq: worker %s failed to register: %v", w.identity, err)
	}

	proc, found := w.reg.lookup(w.job.Class)
	if !found {
		// Running -> Reporting: synthetic failure, no handler invoked.
		w.report(ctx, host, outcomeFailure, &ClassNotFoundError{Class: w.job.Class})
		return
	}

	w.testStarted() // testing hook

	// Running -> Reporting: invoke the handler.
	err := proc(ctx, w.job.Args)
	if err != nil {
		w.report(ctx, host, outcomeFailure, &HandlerError{Class: w.job.Class, Err: err})
		return
	}
	w.report(ctx, host, outcomeSuccess, nil)
}

// report transitions Running/Starting -> Reporting: it hands the
// outcome to the manager, which records it and only then deregisters
// this worker from the process table (Reporting -> Terminated).
func (w *worker) report(ctx context.Context, host string, kind outcomeKind, err error) {
	w.outc <- outcome{kind: kind, identity: w.identity, host: host, job: w.job, rawJob: w.rawJob, err: err}
}
