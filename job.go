package exq

import "encoding/json"

// Job is a single unit of work, persisted as JSON in Redis using the
// field names below so that third-party Sidekiq-ecosystem tools reading
// the same keys continue to work.
type Job struct {
	JID        string        `json:"jid"`
	Class      string        `json:"class"`
	Args       []interface{} `json:"args"`
	Queue      string        `json:"queue"`
	EnqueuedAt float64       `json:"enqueued_at"`
	FailedAt   string        `json:"failed_at,omitempty"`
	ErrorClass string        `json:"error_class,omitempty"`
	ErrorMsg   string        `json:"error_message,omitempty"`
	RetryCount int           `json:"retry_count,omitempty"`
}

// Encode serializes the job to its canonical wire representation.
func (j *Job) Encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeJob parses a job JSON record. A malformed record surfaces as
// DecodeError so callers can skip it without crashing.
func decodeJob(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	return &j, nil
}

// ProcessEntry is one row of the live process table (spec.md §6).
type ProcessEntry struct {
	PID       string `json:"pid"`
	Host      string `json:"host"`
	Job       *Job   `json:"job"`
	StartedAt string `json:"started_at"`
}

func (p *ProcessEntry) encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeProcessEntry(raw string) (*ProcessEntry, error) {
	var p ProcessEntry
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	return &p, nil
}

// FailedJob is a terminal failure record appended to the failed list.
type FailedJob struct {
	JID        string        `json:"jid"`
	Class      string        `json:"class"`
	Args       []interface{} `json:"args"`
	Queue      string        `json:"queue"`
	EnqueuedAt float64       `json:"enqueued_at"`
	FailedAt   string        `json:"failed_at"`
	ErrorClass string        `json:"error_class"`
	ErrorMsg   string        `json:"error_message"`
	RetryCount int           `json:"retry_count,omitempty"`
}

func (f *FailedJob) encode() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFailedJob(raw string) (*FailedJob, error) {
	var f FailedJob
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	return &f, nil
}
