// Package coordinator implements the orchestration layer of the index build
// service: the single component external callers talk to when they want to
// submit an index build, look up a job, or list every job in the fleet.
//
// # Overview
//
// The coordinator owns a fixed, ordered list of worker clients built once at
// startup. It keeps no job metadata of its own. Every question about a job is
// answered by asking the workers, which trades network round trips for a
// coordinator that can be restarted at any time without losing state.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            COORDINATOR              │
//	├─────────────────────────────────────┤
//	│  clients: []WorkerClient (fixed)    │
//	│  selector: RoundRobin[WorkerClient] │
//	├─────────────────────────────────────┤
//	│  GetJob     → broadcast, first 200  │
//	│               in list order         │
//	│  CreateIndex→ selector.Next(), one  │
//	│               worker, no fallback   │
//	│  GetJobs    → sequential, merged,   │
//	│               last writer wins      │
//	└─────────────────────────────────────┘
//
// # Job Lookup
//
// GetJob starts one goroutine per worker. Results are folded in the order the
// workers were configured, not the order they arrive, so when two workers could
// answer, the earlier one always wins. As soon as the winner is certain (every
// worker ahead of it has answered without success) the outstanding lookups are
// cancelled and their connections return to the pool early.
//
// Transport errors are logged with WARN and absences with INFO so an operator can
// tell an unreachable worker from a job that simply is not there. Both are folded
// into the counters of cluster.JobNotFoundError when nothing is found.
//
// # Build Dispatch
//
// CreateIndex advances the round-robin cursor exactly once and forwards the
// request bytes unchanged. A failure is surfaced directly: retrying against
// another worker could start the same build twice.
//
// # Job Listing
//
// GetJobs calls each worker one after another and merges the tables. A job_id
// reported by two workers breaks the one-worker-per-job assumption; the later
// worker's entry is kept and the collision is logged. One failing worker fails
// the whole listing.
//
// # Health Monitoring
//
// HealthMonitor probes every worker's /health endpoint on an interval and keeps
// a per-worker status. It is informational only and does not change dispatch.
//
// # Concurrency Model
//
//   - RoundRobin advances its cursor under a mutex
//   - Each cluster.WorkerClient bounds its own connections
//   - HealthMonitor guards its records with an RWMutex and returns copies
//   - No other state is shared between concurrent calls
package coordinator
