package cluster

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned when a call is made on a client after Close.
var ErrPoolClosed = errors.New("connection pool closed")

// ConfigurationError reports invalid startup input such as an empty worker list.
// It is fatal at construction time.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// TransportError wraps a connection, timeout or decoding failure of one worker call.
type TransportError struct {
	Worker WorkerInfo
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s on worker %s: %v", e.Op, e.Worker, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// JobNotFoundError is returned when no worker answered a job lookup with success.
// Absent counts workers that answered with a non-200 status, Failed counts
// workers that could not be reached.
type JobNotFoundError struct {
	JobID  string
	Absent int
	Failed int
}

func (e *JobNotFoundError) Error() string {
	if e.Failed > 0 {
		return fmt.Sprintf("job %s not found (%d workers reported absence, %d unreachable)", e.JobID, e.Absent, e.Failed)
	}
	return fmt.Sprintf("job %s not found on any worker", e.JobID)
}

// WorkerResponseError carries a non-2xx answer from a worker verbatim.
type WorkerResponseError struct {
	Worker     WorkerInfo
	Op         string
	StatusCode int
	Body       []byte
}

func (e *WorkerResponseError) Error() string {
	return fmt.Sprintf("%s on worker %s: status %d: %s", e.Op, e.Worker, e.StatusCode, e.Body)
}

// IsJobNotFound reports whether err is, or wraps, a *JobNotFoundError.
func IsJobNotFound(err error) bool {
	var nf *JobNotFoundError
	return errors.As(err, &nf)
}
