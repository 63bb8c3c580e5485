// Package storage holds the job table of a worker: the status record of every
// index build the worker has accepted, keyed by job_id.
//
// The table lives in memory and is lost when the worker restarts. The
// coordinator never reads it directly; it only sees the JSON the worker serves
// from GET /job/{job_id} and GET /jobs.
package storage
