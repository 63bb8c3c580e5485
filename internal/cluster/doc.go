// Package cluster provides the worker-facing half of the index build coordinator:
// worker identity, static worker configuration, the per-worker HTTP client and the
// error taxonomy shared by every layer above it.
//
// # Overview
//
// The coordinator talks to a fixed pool of index-building workers. Each worker is
// identified by a WorkerInfo (host and port) that is read once at startup and never
// changes. For every WorkerInfo the coordinator owns exactly one WorkerClient, a
// connection-pooled handle to that worker's HTTP surface.
//
// # Architecture
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │              │
//	              │ - Fan-out    │
//	              │ - RoundRobin │
//	              │ - Merge      │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Client 1  │ │ Client 2  │ │ Client 3  │
//	│ pool ≤ 10 │ │ pool ≤ 10 │ │ pool ≤ 10 │
//	└─────┬─────┘ └─────┬─────┘ └─────┬─────┘
//	      │              │              │
//	  Worker 1       Worker 2       Worker 3
//
// # Worker HTTP Surface
//
// The client consumes three endpoints on every worker:
//
//	GET  /job/{job_id}   200 + job status JSON, non-200 if absent
//	GET  /jobs           200 + {"job_id": status, ...}
//	POST /create_index   JSON build request, JSON response
//
// plus GET /health for liveness probes.
//
// # Connection Pool
//
// Each WorkerClient bounds its in-flight requests with a counting semaphore sized
// to ClientOptions.MaxConns (10 by default) and configures its http.Transport with
// the same per-host limits. A slot is acquired before a request is issued and is
// released only after the response body has been fully read, on every exit path.
// InUse reports the number of checked-out slots.
//
// # Failure Handling
//
// No method retries. Transport failures (refused connection, timeout, malformed
// body) surface as *TransportError; application-level non-2xx answers during
// dispatch or listing surface as *WorkerResponseError with the worker's status and
// body preserved. GetJob is the exception: it returns the raw status so the caller
// can tell "not here" apart from "unreachable".
//
// # Configuration
//
// Worker lists come from a YAML file:
//
//	workers:
//	  - host: 10.0.0.11
//	    port: 6005
//	  - host: 10.0.0.12
//	    port: 6005
//
// or from a comma separated WORKERS value such as "10.0.0.11:6005,10.0.0.12:6005".
// An empty list, a duplicate entry or an invalid port is a *ConfigurationError.
package cluster
