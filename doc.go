// Package exq is a distributed background job processor that reads and
// writes the same Redis key layout as the Sidekiq/Resque family: jobs
// are JSON records pushed onto per-queue Redis lists, and any
// Sidekiq-ecosystem tool pointed at the same namespace sees the same
// queues, failed list, and process table.
//
// Applications create a Manager with New, register one Processor per
// job class via Register, then call Start. The manager runs a single
// poll loop that dequeues jobs from its configured queues — skipping
// any queue that has been paused — and hands each one to a
// freshly-spawned worker, up to Concurrency in flight at a time. Each
// worker registers itself in the live process table before invoking
// the handler and then reports its outcome to the manager, which
// records the outcome and only then removes the worker's entry, so an
// entry is present before its handler starts and disappears only after
// its outcome has been recorded.
//
// A job whose class has no registered Processor fails immediately
// with a ClassNotFoundError rather than blocking a worker slot. All
// terminal outcomes — success or failure — update the processed/failed
// counters, the rolling 120-second realtime histograms, and, on
// failure, append a record to the failed list.
//
// The manager talks to Redis exclusively through the gateway
// interface, a deliberately small subset of Redis commands (no LLEN,
// no sorted sets) so the wire format stays compatible with readers
// that expect the canonical key layout. A memoryGateway implementation
// of the same interface backs fast unit tests without a Redis server.
//
// Enabling Config.ReliableFetch moves a dequeued job into a
// per-host inflight list via RPOPLPUSH instead of a plain LPOP;
// Manager.Start then recovers any jobs left behind by a crashed
// process of the same host before the poll loop begins.
package exq
