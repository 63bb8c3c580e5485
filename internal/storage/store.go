package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/dreamware/indexfleet/internal/indexbuild"
)

// ErrJobNotFound is returned when a job id doesn't exist in the store
var ErrJobNotFound = errors.New("job not found")

// ErrJobExists is returned when a job id is created twice
var ErrJobExists = errors.New("job already exists")

// JobState is the lifecycle state of an index build job
type JobState string

const (
	// JobPending means the job was accepted but has not started
	JobPending JobState = "pending"
	// JobRunning means the build is in progress
	JobRunning JobState = "running"
	// JobCompleted means the artifact was written (and uploaded, if requested)
	JobCompleted JobState = "completed"
	// JobFailed means the build stopped with an error
	JobFailed JobState = "failed"
)

// Artifact locates a finished index
type Artifact struct {
	Path   string `json:"path,omitempty"`
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
}

// Job is the status record a worker keeps for one build
type Job struct {
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Timings   *indexbuild.Timings `json:"timings,omitempty"`
	Artifact  *Artifact           `json:"artifact,omitempty"`
	ID        string              `json:"job_id"`
	State     JobState            `json:"status"`
	Error     string              `json:"error,omitempty"`
	// Request is the accepted create_index body with defaults applied.
	Request   []byte              `json:"-"`
}

// JobStore defines the interface for the worker's job table
// All implementations must be thread-safe for concurrent access
type JobStore interface {
	// Create adds a new job
	// Returns ErrJobExists if the id is taken
	Create(job Job) error

	// Get retrieves a job by id
	// Returns ErrJobNotFound if the id doesn't exist
	Get(id string) (Job, error)

	// Update applies fn to the stored job under the store lock
	// Returns ErrJobNotFound if the id doesn't exist
	Update(id string, fn func(*Job)) error

	// List returns every job keyed by id
	List() map[string]Job

	// Stats returns job counts
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	ByState map[JobState]int // Jobs per state
	Jobs    int              // Number of jobs
}

// MemoryStore implements JobStore with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex   // Protects concurrent access
	jobs map[string]Job // Job table
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]Job),
	}
}

// Create stores a copy of job
func (m *MemoryStore) Create(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return ErrJobExists
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = clone(job)
	return nil
}

// Get returns a copy of the job to prevent external modification
func (m *MemoryStore) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[id]
	if !exists {
		return Job{}, ErrJobNotFound
	}
	return clone(job), nil
}

// Update mutates a job in place and stamps UpdatedAt
func (m *MemoryStore) Update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	fn(&job)
	job.ID = id
	job.UpdatedAt = time.Now()
	m.jobs[id] = clone(job)
	return nil
}

// List returns copies of all jobs
func (m *MemoryStore) List() map[string]Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Job, len(m.jobs))
	for id, job := range m.jobs {
		out[id] = clone(job)
	}
	return out
}

// Stats returns job counts per state
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := StoreStats{Jobs: len(m.jobs), ByState: make(map[JobState]int)}
	for _, job := range m.jobs {
		stats.ByState[job.State]++
	}
	return stats
}

// clone deep-copies the pointer and slice fields of job
func clone(job Job) Job {
	if job.Timings != nil {
		t := *job.Timings
		job.Timings = &t
	}
	if job.Artifact != nil {
		a := *job.Artifact
		job.Artifact = &a
	}
	if job.Request != nil {
		job.Request = append([]byte(nil), job.Request...)
	}
	return job
}
