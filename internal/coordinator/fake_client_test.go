package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/indexfleet/internal/cluster"
)

var errConnRefused = errors.New("connection refused")

// fakeClient is an in-memory WorkerClient with scripted answers.
type fakeClient struct {
	worker cluster.WorkerInfo

	getJob      func(ctx context.Context, jobID string) (*cluster.RawResponse, error)
	createIndex func(ctx context.Context, request json.RawMessage) (*cluster.RawResponse, error)
	getJobs     func(ctx context.Context) (map[string]json.RawMessage, error)
	health      func(ctx context.Context) error

	getJobCalls      atomic.Int64
	createIndexCalls atomic.Int64
	getJobsCalls     atomic.Int64
	closed           atomic.Bool

	mu       sync.Mutex
	received []json.RawMessage
}

func newFake(port int) *fakeClient {
	return &fakeClient{worker: cluster.WorkerInfo{Host: "worker", Port: port}}
}

// respond makes GetJob answer status/body after delay, honoring cancellation.
func (f *fakeClient) respond(status int, body string, delay time.Duration) *fakeClient {
	f.getJob = func(ctx context.Context, _ string) (*cluster.RawResponse, error) {
		select {
		case <-time.After(delay):
			return &cluster.RawResponse{StatusCode: status, Body: []byte(body)}, nil
		case <-ctx.Done():
			return nil, &cluster.TransportError{Worker: f.worker, Op: "get_job", Err: ctx.Err()}
		}
	}
	return f
}

// fail makes GetJob fail with a transport error.
func (f *fakeClient) fail() *fakeClient {
	f.getJob = func(context.Context, string) (*cluster.RawResponse, error) {
		return nil, &cluster.TransportError{Worker: f.worker, Op: "get_job", Err: errConnRefused}
	}
	return f
}

// jobs makes GetJobs answer the given table.
func (f *fakeClient) jobs(table string) *fakeClient {
	f.getJobs = func(context.Context) (map[string]json.RawMessage, error) {
		out := make(map[string]json.RawMessage)
		if err := json.Unmarshal([]byte(table), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return f
}

func (f *fakeClient) Worker() cluster.WorkerInfo { return f.worker }

func (f *fakeClient) GetJob(ctx context.Context, jobID string) (*cluster.RawResponse, error) {
	f.getJobCalls.Add(1)
	if f.getJob == nil {
		return &cluster.RawResponse{StatusCode: http.StatusNotFound}, nil
	}
	return f.getJob(ctx, jobID)
}

func (f *fakeClient) CreateIndex(ctx context.Context, request json.RawMessage) (*cluster.RawResponse, error) {
	f.createIndexCalls.Add(1)
	f.mu.Lock()
	f.received = append(f.received, request)
	f.mu.Unlock()
	if f.createIndex == nil {
		return &cluster.RawResponse{StatusCode: http.StatusAccepted, Body: []byte(`{"status":"accepted"}`)}, nil
	}
	return f.createIndex(ctx, request)
}

func (f *fakeClient) GetJobs(ctx context.Context) (map[string]json.RawMessage, error) {
	f.getJobsCalls.Add(1)
	if f.getJobs == nil {
		return map[string]json.RawMessage{}, nil
	}
	return f.getJobs(ctx)
}

func (f *fakeClient) Health(ctx context.Context) error {
	if f.health == nil {
		return nil
	}
	return f.health(ctx)
}

func (f *fakeClient) Close() { f.closed.Store(true) }

func asClients(fakes ...*fakeClient) []WorkerClient {
	out := make([]WorkerClient, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}
