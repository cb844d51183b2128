package exq

import (
	"context"
	"strconv"
	"strings"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// realtimeTTL bounds the cardinality of the *_rt: key families to at
// most 120 entries per side (spec.md §4.4).
const realtimeTTL = 120 * time.Second

// statsEngine maintains counters, realtime buckets, the failed-job
// list, and the live process table (spec.md §4.4). Every operation is
// idempotent at the Redis level, but the counters it drives are not:
// callers must invoke each at-most-once per job outcome.
type statsEngine struct {
	gw gateway
	k  keys

	processedCounter gometrics.Counter
	failedCounter    gometrics.Counter
	busyGauge        gometrics.Gauge
}

func newStatsEngine(gw gateway, k keys, registry gometrics.Registry) *statsEngine {
	if registry == nil {
		registry = gometrics.NewRegistry()
	}
	return &statsEngine{
		gw:               gw,
		k:                k,
		processedCounter: gometrics.GetOrRegisterCounter("exq.processed", registry),
		failedCounter:    gometrics.GetOrRegisterCounter("exq.failed", registry),
		busyGauge:        gometrics.GetOrRegisterGauge("exq.busy", registry),
	}
}

// addProcess registers a worker in the live process table before its
// user code runs (spec.md invariant I4).
func (s *statsEngine) addProcess(ctx context.Context, entry *ProcessEntry) error {
	raw, err := entry.encode()
	if err != nil {
		return err
	}
	if err := s.gw.sadd(ctx, s.k.processes(), raw); err != nil {
		return err
	}
	s.busyGauge.Update(s.busyGauge.Value() + 1)
	return nil
}

// removeProcess finds the first process-table entry matching (pid,
// host) and removes it. Returns ErrNotFound if no such entry exists.
func (s *statsEngine) removeProcess(ctx context.Context, host, pid string) error {
	raws, err := s.gw.smembers(ctx, s.k.processes())
	if err != nil {
		return err
	}
	for _, raw := range raws {
		entry, err := decodeProcessEntry(raw)
		if err != nil {
			continue
		}
		if entry.PID == pid && entry.Host == host {
			if err := s.gw.srem(ctx, s.k.processes(), raw); err != nil {
				return err
			}
			if v := s.busyGauge.Value() - 1; v >= 0 {
				s.busyGauge.Update(v)
			} else {
				s.busyGauge.Update(0)
			}
			return nil
		}
	}
	return ErrNotFound
}

// recordProcessed increments the processed counters: the monotonic
// total, the realtime bucket for now (TTL 120s), and today's daily
// bucket.
func (s *statsEngine) recordProcessed(ctx context.Context, now time.Time) error {
	if _, err := s.gw.incr(ctx, s.k.statProcessed()); err != nil {
		return err
	}
	rtKey := s.k.statProcessedRT(now)
	if _, err := s.gw.incr(ctx, rtKey); err != nil {
		return err
	}
	if err := s.gw.expire(ctx, rtKey, realtimeTTL); err != nil {
		return err
	}
	if _, err := s.gw.incr(ctx, s.k.statProcessedDay(now)); err != nil {
		return err
	}
	s.processedCounter.Inc(1)
	return nil
}

// recordFailure is symmetric with recordProcessed and additionally
// RPUSHes a FailedJob record carrying the original job's identifying
// fields.
func (s *statsEngine) recordFailure(ctx context.Context, job *Job, errMsg string, now time.Time) error {
	if _, err := s.gw.incr(ctx, s.k.statFailed()); err != nil {
		return err
	}
	rtKey := s.k.statFailedRT(now)
	if _, err := s.gw.incr(ctx, rtKey); err != nil {
		return err
	}
	if err := s.gw.expire(ctx, rtKey, realtimeTTL); err != nil {
		return err
	}
	if _, err := s.gw.incr(ctx, s.k.statFailedDay(now)); err != nil {
		return err
	}

	failed := &FailedJob{
		JID:        job.JID,
		Class:      job.Class,
		Args:       job.Args,
		Queue:      job.Queue,
		EnqueuedAt: job.EnqueuedAt,
		FailedAt:   now.Local().Format(time.RFC3339),
		ErrorClass: "GenericError",
		ErrorMsg:   errMsg,
		RetryCount: job.RetryCount,
	}
	raw, err := failed.encode()
	if err != nil {
		return err
	}
	if err := s.gw.rpush(ctx, s.k.failed(), raw); err != nil {
		return err
	}
	s.failedCounter.Inc(1)
	return nil
}

// findFailed scans the failed list for the first entry with a
// matching jid.
func (s *statsEngine) findFailed(ctx context.Context, jid string) (*FailedJob, int, error) {
	raws, err := s.gw.lrange(ctx, s.k.failed(), 0, -1)
	if err != nil {
		return nil, 0, err
	}
	for i, raw := range raws {
		f, err := decodeFailedJob(raw)
		if err != nil {
			continue
		}
		if f.JID == jid {
			return f, i, nil
		}
	}
	return nil, 0, ErrNotFound
}

// removeFailed decrements stat:failed then LREMs the matching entry.
// The counter decrements even if removal later finds no match — this
// matches the wire-compatible reference behavior (spec.md §9) and is
// not "fixed" here.
func (s *statsEngine) removeFailed(ctx context.Context, jid string) error {
	if _, err := s.gw.decr(ctx, s.k.statFailed()); err != nil {
		return err
	}
	raws, err := s.gw.lrange(ctx, s.k.failed(), 0, -1)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		f, err := decodeFailedJob(raw)
		if err != nil {
			continue
		}
		if f.JID == jid {
			_, err := s.gw.lrem(ctx, s.k.failed(), 1, raw)
			return err
		}
	}
	return nil
}

// clearFailed resets the failed counter and empties the failed list.
func (s *statsEngine) clearFailed(ctx context.Context) error {
	if err := s.gw.set(ctx, s.k.statFailed(), "0"); err != nil {
		return err
	}
	return s.gw.del(ctx, s.k.failed())
}

// clearProcesses empties the live process table.
func (s *statsEngine) clearProcesses(ctx context.Context) error {
	return s.gw.del(ctx, s.k.processes())
}

// bucket is one (label, count) pair from a realtime histogram.
type bucket struct {
	Label string
	Count int64
}

// realtimeStats returns the processed and failed realtime histograms.
// KEYS is acceptable here because the TTL bounds cardinality to at
// most 120 entries per side (spec.md §4.4).
func (s *statsEngine) realtimeStats(ctx context.Context) (processed, failed []bucket, err error) {
	processed, err = s.scanRT(ctx, s.k.statProcessedRTGlob(), "stat:processed_rt:")
	if err != nil {
		return nil, nil, err
	}
	failed, err = s.scanRT(ctx, s.k.statFailedRTGlob(), "stat:failed_rt:")
	if err != nil {
		return nil, nil, err
	}
	return processed, failed, nil
}

func (s *statsEngine) scanRT(ctx context.Context, pattern, stripPrefix string) ([]bucket, error) {
	fullKeys, err := s.gw.keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	buckets := make([]bucket, 0, len(fullKeys))
	nsPrefix := s.k.namespace + ":" + stripPrefix
	for _, key := range fullKeys {
		label := strings.TrimPrefix(key, nsPrefix)
		val, found, err := s.gw.get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		n, _ := strconv.ParseInt(val, 10, 64)
		buckets = append(buckets, bucket{Label: label, Count: n})
	}
	return buckets, nil
}

// busy returns SCARD processes.
func (s *statsEngine) busy(ctx context.Context) (int64, error) {
	return s.gw.scard(ctx, s.k.processes())
}

// processes returns SMEMBERS processes, decoded.
func (s *statsEngine) processes(ctx context.Context) ([]*ProcessEntry, error) {
	raws, err := s.gw.smembers(ctx, s.k.processes())
	if err != nil {
		return nil, err
	}
	entries := make([]*ProcessEntry, 0, len(raws))
	for _, raw := range raws {
		entry, err := decodeProcessEntry(raw)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
