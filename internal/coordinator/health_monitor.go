// Package coordinator implements the orchestration layer of the index build service.
// This file implements health monitoring for the configured workers.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dreamware/indexfleet/internal/cluster"
)

// Worker health states.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// WorkerHealth tracks the health status of a single worker.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type WorkerHealth struct {
	LastCheck        time.Time          `json:"last_check"`
	LastHealthy      time.Time          `json:"last_healthy"`
	Worker           cluster.WorkerInfo `json:"worker"`
	Status           string             `json:"status"`
	LastError        string             `json:"last_error,omitempty"`
	ConsecutiveFails int                `json:"consecutive_fails"`
}

// HealthMonitor periodically probes every worker's /health endpoint.
// It is observational: the Coordinator keeps dispatching to unhealthy workers,
// since build submission has no fallback. Status is surfaced to operators.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	workers     map[string]*WorkerHealth                        // keyed by worker address
	checkFunc   func(ctx context.Context, c WorkerClient) error // performs one probe
	onUnhealthy func(worker cluster.WorkerInfo)                 // fired on transition to unhealthy
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor that checks every interval.
// Workers are marked unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := NewHealthMonitor(5 * time.Second)
//	go monitor.Start(ctx, coord.Clients())
//	defer monitor.Stop()
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		workers:     make(map[string]*WorkerHealth),
		checkFunc: func(ctx context.Context, c WorkerClient) error {
			return c.Health(ctx)
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a worker becomes unhealthy.
func (h *HealthMonitor) SetOnUnhealthy(callback func(worker cluster.WorkerInfo)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the probe, mainly for tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(ctx context.Context, c WorkerClient) error) {
	h.checkFunc = checkFunc
}

// Start probes clients immediately and then every interval until ctx or the
// monitor is cancelled. It blocks; run it in its own goroutine.
func (h *HealthMonitor) Start(ctx context.Context, clients []WorkerClient) {
	h.wg.Add(1)
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("[health] monitor started with interval %v for %d workers", h.interval, len(clients))

	h.checkAll(ctx, clients)

	for {
		select {
		case <-ticker.C:
			h.checkAll(ctx, clients)
		case <-ctx.Done():
			log.Println("[health] monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			log.Println("[health] monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the monitoring goroutine and waits for it to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Println("[health] monitor stopped")
}

// checkAll probes every worker in parallel so one hung worker cannot delay the rest.
func (h *HealthMonitor) checkAll(ctx context.Context, clients []WorkerClient) {
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c WorkerClient) {
			defer wg.Done()
			h.checkWorker(ctx, c)
		}(c)
	}
	wg.Wait()
}

// checkWorker runs one probe and updates the worker's record.
func (h *HealthMonitor) checkWorker(ctx context.Context, c WorkerClient) {
	worker := c.Worker()
	key := worker.Addr()

	h.mu.Lock()
	health, exists := h.workers[key]
	if !exists {
		health = &WorkerHealth{
			Worker:      worker,
			Status:      HealthUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.workers[key] = health
	}
	h.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err := h.checkFunc(probeCtx, c)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		health.LastError = err.Error()
		log.Printf("[health] check failed for worker %s (attempt %d/%d): %v",
			worker, health.ConsecutiveFails, h.maxFailures, err)

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = HealthUnhealthy
			if previous != HealthUnhealthy && h.onUnhealthy != nil {
				log.Printf("[health] worker %s marked unhealthy after %d failures", worker, health.ConsecutiveFails)
				go h.onUnhealthy(worker)
			}
		}
		return
	}

	if health.Status == HealthUnhealthy {
		log.Printf("[health] worker %s recovered", worker)
	}
	health.Status = HealthHealthy
	health.ConsecutiveFails = 0
	health.LastError = ""
	health.LastHealthy = time.Now()
}

// GetWorkerHealth returns a copy of the record for addr, or nil if unknown.
func (h *HealthMonitor) GetWorkerHealth(addr string) *WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[addr]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllWorkerHealth returns copies of every record keyed by worker address.
func (h *HealthMonitor) GetAllWorkerHealth() map[string]*WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*WorkerHealth, len(h.workers))
	for addr, health := range h.workers {
		cp := *health
		result[addr] = &cp
	}
	return result
}

// IsHealthy reports whether the worker at addr passed its last probes.
func (h *HealthMonitor) IsHealthy(addr string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[addr]
	return exists && health.Status == HealthHealthy
}
