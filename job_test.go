package exq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobEncodeDecodeRoundTrip(t *testing.T) {
	job := &Job{
		JID:        "abc123",
		Class:      "SendEmail",
		Args:       []interface{}{"a@example.com", float64(3)},
		Queue:      "default",
		EnqueuedAt: 1700000000.5,
	}
	raw, err := job.Encode()
	require.NoError(t, err)

	got, err := decodeJob(raw)
	require.NoError(t, err)
	assert.Equal(t, job.JID, got.JID)
	assert.Equal(t, job.Class, got.Class)
	assert.Equal(t, job.Args, got.Args)
	assert.Equal(t, job.Queue, got.Queue)
	assert.Equal(t, job.EnqueuedAt, got.EnqueuedAt)
}

func TestJobOptionalFieldsOmitted(t *testing.T) {
	job := &Job{JID: "x", Class: "C", Queue: "default"}
	raw, err := job.Encode()
	require.NoError(t, err)
	assert.NotContains(t, raw, "failed_at")
	assert.NotContains(t, raw, "error_class")
	assert.NotContains(t, raw, "error_message")
}

func TestDecodeJobMalformed(t *testing.T) {
	_, err := decodeJob("{not json")
	require.Error(t, err)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestProcessEntryRoundTrip(t *testing.T) {
	entry := &ProcessEntry{
		PID:       "host:uuid",
		Host:      "host",
		Job:       &Job{JID: "j1", Class: "C", Queue: "default"},
		StartedAt: "2026-08-03T00:00:00Z",
	}
	raw, err := entry.encode()
	require.NoError(t, err)
	got, err := decodeProcessEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, entry.PID, got.PID)
	assert.Equal(t, entry.Job.JID, got.Job.JID)
}

func TestFailedJobRoundTrip(t *testing.T) {
	f := &FailedJob{
		JID:        "j1",
		Class:      "C",
		Queue:      "default",
		FailedAt:   "2026-08-03T00:00:00Z",
		ErrorClass: "GenericError",
		ErrorMsg:   "boom",
	}
	raw, err := f.encode()
	require.NoError(t, err)
	got, err := decodeFailedJob(raw)
	require.NoError(t, err)
	assert.Equal(t, f.JID, got.JID)
	assert.Equal(t, f.ErrorMsg, got.ErrorMsg)
}
