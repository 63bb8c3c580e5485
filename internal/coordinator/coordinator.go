// Package coordinator implements the orchestration layer of the index build service.
// See doc.go for complete package documentation.
package coordinator

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dreamware/indexfleet/internal/cluster"
)

// WorkerClient is the per-worker surface the Coordinator depends on.
// *cluster.WorkerClient is the production implementation.
type WorkerClient interface {
	Worker() cluster.WorkerInfo
	GetJob(ctx context.Context, jobID string) (*cluster.RawResponse, error)
	CreateIndex(ctx context.Context, request json.RawMessage) (*cluster.RawResponse, error)
	GetJobs(ctx context.Context) (map[string]json.RawMessage, error)
	Health(ctx context.Context) error
	Close()
}

// Coordinator fans job lookups out to every worker, dispatches build requests
// round-robin and merges job listings. The worker set is fixed at construction.
//
// Thread Safety:
// All methods are safe for concurrent use. The only shared mutable state is the
// selector cursor and the per-client connection pools.
type Coordinator struct {
	clients  []WorkerClient
	selector *RoundRobin[WorkerClient]
}

// New creates one WorkerClient per worker and a round-robin selector over them.
// An empty or invalid worker list fails with *cluster.ConfigurationError before
// any network call is attempted.
//
// Example:
//
//	workers, _ := cluster.ParseWorkerList("10.0.0.11:6005,10.0.0.12:6005")
//	coord, err := coordinator.New(workers, cluster.ClientOptions{Timeout: 10 * time.Second})
//	if err != nil {
//	    log.Fatalf("coordinator: %v", err)
//	}
//	defer coord.Close()
func New(workers []cluster.WorkerInfo, opts cluster.ClientOptions) (*Coordinator, error) {
	if err := cluster.ValidateWorkers(workers); err != nil {
		return nil, err
	}
	clients := make([]WorkerClient, 0, len(workers))
	for _, w := range workers {
		c, err := cluster.NewWorkerClient(w, opts)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return NewWithClients(clients)
}

// NewWithClients builds a Coordinator over already constructed clients.
// The order of clients is the order used to pick the winner of a lookup.
func NewWithClients(clients []WorkerClient) (*Coordinator, error) {
	selector, err := NewRoundRobin(clients)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		clients:  append([]WorkerClient(nil), clients...),
		selector: selector,
	}, nil
}

// Workers returns the worker descriptors in list order.
func (c *Coordinator) Workers() []cluster.WorkerInfo {
	out := make([]cluster.WorkerInfo, len(c.clients))
	for i, client := range c.clients {
		out[i] = client.Worker()
	}
	return out
}

// Clients returns the worker clients in list order.
func (c *Coordinator) Clients() []WorkerClient {
	return append([]WorkerClient(nil), c.clients...)
}

// lookup is the outcome of one worker's GetJob.
type lookup struct {
	resp *cluster.RawResponse
	err  error
	idx  int
}

// GetJob asks every worker for jobID concurrently and returns the body of the
// first successful answer in worker-list order, independent of arrival order.
//
// Behavior:
//   - All lookups start immediately; each client releases its connection on every path
//   - Transport errors and non-200 answers are logged and skipped, never retried
//   - Once every worker ahead of a success has answered, the remaining lookups are cancelled
//   - No success yields *cluster.JobNotFoundError naming jobID
func (c *Coordinator) GetJob(ctx context.Context, jobID string) (json.RawMessage, error) {
	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := len(c.clients)
	results := make(chan lookup, n)
	for i, client := range c.clients {
		go func(i int, client WorkerClient) {
			resp, err := client.GetJob(lookupCtx, jobID)
			results <- lookup{idx: i, resp: resp, err: err}
		}(i, client)
	}

	done := make([]*lookup, n)
	next, absent, failed := 0, 0, 0
	for received := 0; received < n; received++ {
		r := <-results
		done[r.idx] = &r

		// Fold over the contiguous prefix of finished lookups in list order.
		for next < n && done[next] != nil {
			res := done[next]
			worker := c.clients[next].Worker()
			switch {
			case res.err != nil:
				failed++
				log.Printf("[coordinator] WARN get_job %s: worker %s unreachable: %v", jobID, worker, res.err)
			case !res.resp.OK():
				absent++
				log.Printf("[coordinator] INFO get_job %s: not on worker %s (status %d)", jobID, worker, res.resp.StatusCode)
			case !json.Valid(res.resp.Body):
				failed++
				log.Printf("[coordinator] WARN get_job %s: worker %s returned malformed body", jobID, worker)
			default:
				log.Printf("[coordinator] get_job %s: found on worker %s", jobID, worker)
				return json.RawMessage(res.resp.Body), nil
			}
			next++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &cluster.JobNotFoundError{JobID: jobID, Absent: absent, Failed: failed}
}

// CreateIndex forwards request verbatim to exactly one worker chosen round-robin
// and returns that worker's status and body unmodified. A failure is returned
// as is: there is no retry and no fallback to another worker.
func (c *Coordinator) CreateIndex(ctx context.Context, request json.RawMessage) (*cluster.RawResponse, error) {
	client := c.selector.Next()
	log.Printf("[coordinator] create_index dispatched to worker %s", client.Worker())

	resp, err := client.CreateIndex(ctx, request)
	if err != nil {
		log.Printf("[coordinator] create_index on worker %s failed: %v", client.Worker(), err)
		return nil, err
	}
	log.Printf("[coordinator] create_index response from worker %s (%d): %s", client.Worker(), resp.StatusCode, resp.Body)
	return resp, nil
}

// GetJobs queries every worker in list order and merges the job tables.
//
// Merge policy: last writer wins. A job_id reported by two workers violates the
// one-worker-per-job assumption; the later worker's entry replaces the earlier one
// and the collision is logged. Any single worker error aborts the whole listing.
func (c *Coordinator) GetJobs(ctx context.Context) (map[string]json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)
	owner := make(map[string]cluster.WorkerInfo)

	for _, client := range c.clients {
		jobs, err := client.GetJobs(ctx)
		if err != nil {
			log.Printf("[coordinator] get_jobs aborted at worker %s: %v", client.Worker(), err)
			return nil, err
		}
		worker := client.Worker()
		for id, status := range jobs {
			if prev, ok := owner[id]; ok {
				log.Printf("[coordinator] WARN get_jobs: job %s reported by workers %s and %s, keeping %s", id, prev, worker, worker)
			}
			merged[id] = status
			owner[id] = worker
		}
	}
	log.Printf("[coordinator] get_jobs merged %d jobs from %d workers", len(merged), len(c.clients))
	return merged, nil
}

// Close releases every client's connection pool. It is called once at shutdown.
func (c *Coordinator) Close() {
	for _, client := range c.clients {
		client.Close()
	}
}
