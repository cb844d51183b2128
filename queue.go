package exq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// queueEngine implements enqueue, dequeue, peek, and removal on one or
// many named queues (spec.md §4.3). It owns the job-id generator and
// the `queues` set registration.
type queueEngine struct {
	gw gateway
	k  keys
}

func newQueueEngine(gw gateway, k keys) *queueEngine {
	return &queueEngine{gw: gw, k: k}
}

// generateJID returns a 24-hex-char random job identifier, uniform and
// independent across processes (spec.md §4.1).
func generateJID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// enqueue registers the queue and RPUSHes a new job JSON onto it.
func (q *queueEngine) enqueue(ctx context.Context, queue, class string, args []interface{}) (string, error) {
	jid, err := generateJID()
	if err != nil {
		return "", err
	}
	job := &Job{
		JID:        jid,
		Class:      class,
		Args:       args,
		Queue:      queue,
		EnqueuedAt: float64(time.Now().UnixNano()) / 1e9,
	}
	raw, err := job.Encode()
	if err != nil {
		return "", err
	}
	if err := q.enqueueRaw(ctx, queue, raw); err != nil {
		return "", err
	}
	return jid, nil
}

// enqueueRaw RPUSHes a verbatim job JSON record, used by retry/requeue
// paths that already hold an encoded job.
func (q *queueEngine) enqueueRaw(ctx context.Context, queue, raw string) error {
	if err := q.gw.sadd(ctx, q.k.queues(), queue); err != nil {
		return err
	}
	return q.gw.rpush(ctx, q.k.queue(queue), raw)
}

// dequeue attempts LPOP on each queue in the given order, returning the
// first non-empty result. Not atomic across queues: between two LPOPs
// another consumer may drain a later queue. Fairness here is advisory
// only (spec.md §4.3).
func (q *queueEngine) dequeue(ctx context.Context, queues []string) (*Job, error) {
	for _, name := range queues {
		raw, found, err := q.gw.lpop(ctx, q.k.queue(name))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

// dequeueReliable is the opt-in variant of dequeue (SPEC_FULL.md §3)
// that moves the popped record into an inflight list via RPOPLPUSH so
// a crashed worker's job can be recovered on the next Start.
func (q *queueEngine) dequeueReliable(ctx context.Context, queues []string, identity string) (*Job, error) {
	dst := q.k.inflight(identity)
	for _, name := range queues {
		raw, found, err := q.gw.rpoplpush(ctx, q.k.queue(name), dst)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

// ackReliable removes a job's raw record from its owner's inflight
// list once the worker has reported an outcome for it.
func (q *queueEngine) ackReliable(ctx context.Context, identity, raw string) error {
	_, err := q.gw.lrem(ctx, q.k.inflight(identity), 1, raw)
	return err
}

// recoverInflight requeues any jobs left in identity's inflight list
// from a previous crash, called from Manager.Start when reliable fetch
// is enabled.
func (q *queueEngine) recoverInflight(ctx context.Context, identity string) (int, error) {
	key := q.k.inflight(identity)
	raws, err := q.gw.lrange(ctx, key, 0, -1)
	if err != nil {
		return 0, err
	}
	var n int
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		if err := q.enqueueRaw(ctx, job.Queue, raw); err != nil {
			return n, err
		}
		if _, err := q.gw.lrem(ctx, key, 1, raw); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// findJob scans a queue for the first element whose decoded jid
// matches, returning its index within the list.
func (q *queueEngine) findJob(ctx context.Context, queue, jid string) (*Job, int, error) {
	raws, err := q.gw.lrange(ctx, q.k.queue(queue), 0, -1)
	if err != nil {
		return nil, 0, err
	}
	for i, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		if job.JID == jid {
			return job, i, nil
		}
	}
	return nil, 0, ErrNotFound
}

// removeJob scans the queue for the raw JSON of the job with jid (the
// same lookup findJob does), then LREMs it out.
func (q *queueEngine) removeJob(ctx context.Context, queue, jid string) (bool, error) {
	raws, err := q.gw.lrange(ctx, q.k.queue(queue), 0, -1)
	if err != nil {
		return false, err
	}
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		if job.JID == jid {
			n, err := q.gw.lrem(ctx, q.k.queue(queue), 1, raw)
			if err != nil {
				return false, err
			}
			return n > 0, nil
		}
	}
	return false, ErrNotFound
}

// queueInfo describes one known queue for inspection surfaces.
type queueInfo struct {
	Name   string
	Size   int64
	Paused bool
}

// listQueues returns every known queue with its current length and
// paused state.
func (q *queueEngine) listQueues(ctx context.Context) ([]queueInfo, error) {
	active, err := q.gw.smembers(ctx, q.k.queues())
	if err != nil {
		return nil, err
	}
	paused, err := q.gw.smembers(ctx, q.k.pausedQueues())
	if err != nil {
		return nil, err
	}
	pausedSet := make(map[string]bool, len(paused))
	for _, p := range paused {
		pausedSet[p] = true
	}
	all := append(append([]string{}, active...), paused...)
	infos := make([]queueInfo, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, name := range all {
		if seen[name] {
			continue
		}
		seen[name] = true
		size, err := q.gw.lrange(ctx, q.k.queue(name), 0, -1)
		if err != nil {
			return nil, err
		}
		infos = append(infos, queueInfo{Name: name, Size: int64(len(size)), Paused: pausedSet[name]})
	}
	return infos, nil
}

// pause moves a queue name from the active `queues` set to
// `paused_queues` (SPEC_FULL.md §3). The dispatcher excludes paused
// queues from its poll order.
func (q *queueEngine) pause(ctx context.Context, queue string) error {
	moved, err := q.gw.smove(ctx, q.k.queues(), q.k.pausedQueues(), queue)
	if err != nil {
		return err
	}
	if !moved {
		// Queue may never have been registered; pause it anyway so a
		// subsequent enqueue doesn't silently un-pause it.
		return q.gw.sadd(ctx, q.k.pausedQueues(), queue)
	}
	return nil
}

// unpause moves a queue name back from `paused_queues` to `queues`.
func (q *queueEngine) unpause(ctx context.Context, queue string) error {
	moved, err := q.gw.smove(ctx, q.k.pausedQueues(), q.k.queues(), queue)
	if err != nil {
		return err
	}
	if !moved {
		return q.gw.sadd(ctx, q.k.queues(), queue)
	}
	return nil
}

// pausedSet returns the current set of paused queue names.
func (q *queueEngine) pausedSet(ctx context.Context) (map[string]bool, error) {
	paused, err := q.gw.smembers(ctx, q.k.pausedQueues())
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(paused))
	for _, p := range paused {
		out[p] = true
	}
	return out, nil
}
