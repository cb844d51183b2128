package exq

import (
	"strings"
	"time"
)

// defaultNamespace is the Redis key prefix used when none is configured.
const defaultNamespace = "exq"

// keys builds the namespaced Redis keys recognized by this engine
// (spec.md §4.1). All other components go through these so that the
// key layout stays Sidekiq wire-compatible in one place.
type keys struct {
	namespace string
}

func newKeys(namespace string) keys {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return keys{namespace: namespace}
}

func (k keys) join(parts ...string) string {
	return k.namespace + ":" + strings.Join(parts, ":")
}

func (k keys) queues() string       { return k.join("queues") }
func (k keys) pausedQueues() string { return k.join("paused_queues") }
func (k keys) queue(name string) string {
	return k.join("queue", name)
}
func (k keys) inflight(identity string) string {
	return k.join("inflight", identity)
}
func (k keys) failed() string    { return k.join("failed") }
func (k keys) processes() string { return k.join("processes") }

func (k keys) statProcessed() string { return k.join("stat", "processed") }
func (k keys) statFailed() string    { return k.join("stat", "failed") }

func (k keys) statProcessedDay(t time.Time) string {
	return k.join("stat", "processed:"+t.UTC().Format("2006-01-02"))
}
func (k keys) statFailedDay(t time.Time) string {
	return k.join("stat", "failed:"+t.UTC().Format("2006-01-02"))
}
func (k keys) statProcessedRT(t time.Time) string {
	return k.join("stat", "processed_rt:"+realtimeBucket(t))
}
func (k keys) statFailedRT(t time.Time) string {
	return k.join("stat", "failed_rt:"+realtimeBucket(t))
}

// realtimeBucket formats t as the exact "%Y-%m-%d %H:%M:%S %z" bucket
// label required by spec.md §4.4, computed in UTC.
func realtimeBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 -0700")
}

const (
	statProcessedRTPrefix = "stat:processed_rt:"
	statFailedRTPrefix    = "stat:failed_rt:"
)

func (k keys) statProcessedRTGlob() string { return k.join("stat", "processed_rt:*") }
func (k keys) statFailedRTGlob() string    { return k.join("stat", "failed_rt:*") }
