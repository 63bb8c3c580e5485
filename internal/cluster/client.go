package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxConns is the per-worker connection pool capacity.
	DefaultMaxConns = 10
	// DefaultTimeout bounds every worker call.
	DefaultTimeout = 10 * time.Second
)

// errMalformedResponse marks a worker body that is not valid JSON.
var errMalformedResponse = errors.New("malformed JSON response")

// ClientOptions tunes a WorkerClient. Zero values select the defaults.
type ClientOptions struct {
	MaxConns int
	Timeout  time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// RawResponse is an undecoded worker answer. GetJob returns it so callers can
// distinguish "not found here" from a transport failure.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the worker answered 200.
func (r *RawResponse) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// connPool is a counting semaphore over the client's connections.
// Slots are taken before a request is sent and returned after its body is read.
type connPool struct {
	slots  chan struct{}
	inUse  atomic.Int64
	closed atomic.Bool
}

func newConnPool(size int) *connPool {
	return &connPool{slots: make(chan struct{}, size)}
}

func (p *connPool) acquire(ctx context.Context) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	select {
	case p.slots <- struct{}{}:
		p.inUse.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *connPool) release() {
	p.inUse.Add(-1)
	<-p.slots
}

// WorkerClient is a connection-pooled handle to one worker's HTTP surface.
// A WorkerClient is created once per worker and is safe for concurrent use.
type WorkerClient struct {
	worker    WorkerInfo
	baseURL   string
	http      *http.Client
	transport *http.Transport
	pool      *connPool
}

// NewWorkerClient creates the client for worker. It performs no network I/O.
func NewWorkerClient(worker WorkerInfo, opts ClientOptions) (*WorkerClient, error) {
	if err := worker.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = opts.MaxConns
	transport.MaxIdleConnsPerHost = opts.MaxConns

	return &WorkerClient{
		worker:    worker,
		baseURL:   worker.BaseURL(),
		transport: transport,
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		pool: newConnPool(opts.MaxConns),
	}, nil
}

// Worker returns the descriptor this client is bound to.
func (c *WorkerClient) Worker() WorkerInfo {
	return c.worker
}

// InUse returns the number of pooled connections currently checked out.
func (c *WorkerClient) InUse() int {
	return int(c.pool.inUse.Load())
}

// GetJob fetches the status of jobID. A non-200 answer is returned, not treated as an error.
func (c *WorkerClient) GetJob(ctx context.Context, jobID string) (*RawResponse, error) {
	status, body, err := c.do(ctx, "get_job", http.MethodGet, "/job/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	return &RawResponse{StatusCode: status, Body: body}, nil
}

// CreateIndex forwards request verbatim to POST /create_index and returns the
// worker's 2xx status and JSON answer.
func (c *WorkerClient) CreateIndex(ctx context.Context, request json.RawMessage) (*RawResponse, error) {
	log.Printf("[worker %s] create_index request: %s", c.worker, request)
	status, body, err := c.do(ctx, "create_index", http.MethodPost, "/create_index", request)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &WorkerResponseError{Worker: c.worker, Op: "create_index", StatusCode: status, Body: body}
	}
	if !json.Valid(body) {
		return nil, &TransportError{Worker: c.worker, Op: "create_index", Err: errMalformedResponse}
	}
	return &RawResponse{StatusCode: status, Body: body}, nil
}

// GetJobs returns the worker's full job table.
func (c *WorkerClient) GetJobs(ctx context.Context) (map[string]json.RawMessage, error) {
	status, body, err := c.do(ctx, "get_jobs", http.MethodGet, "/jobs", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &WorkerResponseError{Worker: c.worker, Op: "get_jobs", StatusCode: status, Body: body}
	}
	jobs := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, &TransportError{Worker: c.worker, Op: "get_jobs", Err: fmt.Errorf("%w: %v", errMalformedResponse, err)}
	}
	return jobs, nil
}

// Health probes GET /health and returns nil on 200.
func (c *WorkerClient) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, "health", http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &WorkerResponseError{Worker: c.worker, Op: "health", StatusCode: status}
	}
	return nil
}

// Close releases idle pooled connections. Calls after Close fail with ErrPoolClosed.
func (c *WorkerClient) Close() {
	c.pool.closed.Store(true)
	c.transport.CloseIdleConnections()
}

// do issues one request while holding a pool slot. The slot is released after
// the body has been drained, whatever the outcome.
func (c *WorkerClient) do(ctx context.Context, op, method, path string, body []byte) (int, []byte, error) {
	if err := c.pool.acquire(ctx); err != nil {
		return 0, nil, &TransportError{Worker: c.worker, Op: op, Err: err}
	}
	defer c.pool.release()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, &TransportError{Worker: c.worker, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Worker: c.worker, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Worker: c.worker, Op: op, Err: err}
	}
	return resp.StatusCode, data, nil
}
