// Package main implements the index build coordinator.
//
// The coordinator holds a static list of workers and exposes a single HTTP
// front for them: job lookups fan out to every worker, listings merge every
// worker's table, and new builds go to the next worker in round-robin order.
// It keeps no job state of its own.
//
// Endpoints:
//
//	GET  /job/{id}      job status from whichever worker has it, 404 otherwise
//	GET  /jobs          merged job table of all workers
//	POST /create_index  forward a build request to the next worker
//	GET  /health        liveness
//	GET  /workers       last health probe of every worker
//
// Configuration:
//   - WORKERS_FILE: YAML file with a "workers" list of {host, port}
//   - WORKERS: Comma-separated host:port list, used when WORKERS_FILE is unset
//   - COORDINATOR_ADDR: Listen address (default: ":8080")
//   - WORKER_TIMEOUT: Per-request timeout (default: "10s")
//   - WORKER_MAX_CONNS: Connection pool size per worker (default: 10)
//   - HEALTH_INTERVAL: Worker probe interval (default: "5s")
//
// Example usage:
//
//	WORKERS=10.0.0.11:6005,10.0.0.12:6005 ./coordinator
//	curl localhost:8080/job/3f1c...
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/indexfleet/internal/cluster"
	"github.com/dreamware/indexfleet/internal/coordinator"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// maxRequestBody bounds create_index bodies.
const maxRequestBody = 1 << 20

func main() {
	addr := getenv("COORDINATOR_ADDR", ":8080")

	workers, err := loadWorkers()
	if err != nil {
		logFatal("workers: %v", err)
		return
	}
	opts := cluster.ClientOptions{
		Timeout:  getDuration("WORKER_TIMEOUT", 10*time.Second),
		MaxConns: getInt("WORKER_MAX_CONNS", 10),
	}

	coord, err := coordinator.New(workers, opts)
	if err != nil {
		logFatal("coordinator: %v", err)
		return
	}
	defer coord.Close()

	monitor := coordinator.NewHealthMonitor(getDuration("HEALTH_INTERVAL", 5*time.Second))
	monitor.SetOnUnhealthy(func(w cluster.WorkerInfo) {
		log.Printf("WARN: worker %s is unhealthy; it still receives its round-robin share", w)
	})
	go monitor.Start(context.Background(), coord.Clients())

	srv := newServer(coord, monitor)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("coordinator listening on %s for %d workers", addr, len(workers))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	monitor.Stop()
	log.Println("coordinator stopped")
}

// loadWorkers reads the worker list from WORKERS_FILE or WORKERS.
func loadWorkers() ([]cluster.WorkerInfo, error) {
	if path := os.Getenv("WORKERS_FILE"); path != "" {
		return cluster.LoadWorkers(path)
	}
	if list := os.Getenv("WORKERS"); list != "" {
		return cluster.ParseWorkerList(list)
	}
	return nil, &cluster.ConfigurationError{Reason: "set WORKERS_FILE or WORKERS"}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getDuration parses k as a time.Duration, falling back to def when unset.
// A malformed value is fatal.
func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logFatal("invalid %s %q: want a positive duration", k, v)
		return def
	}
	return d
}

// getInt parses k as a positive integer, falling back to def when unset.
func getInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logFatal("invalid %s %q: want a positive integer", k, v)
		return def
	}
	return n
}

// isTimeout reports whether err came from a deadline rather than a refusal.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
