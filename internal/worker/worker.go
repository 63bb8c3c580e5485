// Package worker runs index builds on a worker host.
//
// A Worker accepts create_index requests, records each as a job and builds it
// in the background: the vector file is fetched from object storage, turned
// into a graph index and, when an output bucket is given, uploaded again.
// Temporary files are released on every path. The API type serves the job
// table over HTTP with gin.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/indexfleet/internal/indexbuild"
	"github.com/dreamware/indexfleet/internal/objectstore"
	"github.com/dreamware/indexfleet/internal/storage"
)

// CreateIndexRequest is the body of POST /create_index.
type CreateIndexRequest struct {
	JobID        string            `json:"job_id,omitempty"`
	Bucket       string            `json:"bucket" binding:"required"`
	ObjectKey    string            `json:"object_key" binding:"required"`
	Dimension    int               `json:"dimension" binding:"required,min=1"`
	IndexParams  indexbuild.Params `json:"index_params"`
	OutputBucket string            `json:"output_bucket,omitempty"`
	OutputKey    string            `json:"output_key,omitempty"`
}

// Worker accepts index build jobs and runs them in the background, recording
// their progress in a job store.
type Worker struct {
	jobs    storage.JobStore
	objects objectstore.Store
	builder indexbuild.Builder
	ctx     context.Context
	cancel  context.CancelFunc
	workDir string
	wg      sync.WaitGroup
}

// NewWorker creates a worker that writes artifacts under workDir.
func NewWorker(jobs storage.JobStore, objects objectstore.Store, builder indexbuild.Builder, workDir string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		jobs:    jobs,
		objects: objects,
		builder: builder,
		workDir: workDir,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit validates req, records a pending job and starts the build. It
// returns the job as first stored.
func (w *Worker) Submit(req CreateIndexRequest) (storage.Job, error) {
	req.IndexParams = req.IndexParams.WithDefaults()
	if err := req.IndexParams.Validate(); err != nil {
		return storage.Job{}, err
	}
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}
	if strings.ContainsAny(req.JobID, `/\`) || req.JobID == "." || req.JobID == ".." {
		return storage.Job{}, fmt.Errorf("invalid job_id %q", req.JobID)
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return storage.Job{}, err
	}
	job := storage.Job{ID: req.JobID, State: storage.JobPending, Request: raw}
	if err := w.jobs.Create(job); err != nil {
		return storage.Job{}, err
	}
	stored, err := w.jobs.Get(req.JobID)
	if err != nil {
		return storage.Job{}, err
	}
	log.Printf("job %s accepted: s3://%s/%s dim=%d", req.JobID, req.Bucket, req.ObjectKey, req.Dimension)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(req)
	}()
	return stored, nil
}

// Close cancels running builds and waits for them to record their outcome.
func (w *Worker) Close() {
	w.cancel()
	w.wg.Wait()
}

// wait blocks until every submitted job has finished.
func (w *Worker) wait() {
	w.wg.Wait()
}

func (w *Worker) run(req CreateIndexRequest) {
	w.setState(req.JobID, func(j *storage.Job) { j.State = storage.JobRunning })

	timings, artifact, err := w.build(req)
	if err != nil {
		log.Printf("job %s failed: %v", req.JobID, err)
		w.setState(req.JobID, func(j *storage.Job) {
			j.State = storage.JobFailed
			j.Error = err.Error()
		})
		return
	}

	log.Printf("job %s completed in %.3fs", req.JobID, timings.TotalTime)
	w.setState(req.JobID, func(j *storage.Job) {
		j.State = storage.JobCompleted
		j.Timings = &timings
		j.Artifact = artifact
	})
}

func (w *Worker) build(req CreateIndexRequest) (indexbuild.Timings, *storage.Artifact, error) {
	ctx := w.ctx

	exists, err := w.objects.Exists(ctx, req.Bucket, req.ObjectKey)
	if err != nil {
		return indexbuild.Timings{}, nil, err
	}
	if !exists {
		return indexbuild.Timings{}, nil, fmt.Errorf("object s3://%s/%s not found", req.Bucket, req.ObjectKey)
	}

	input, err := w.objects.Download(ctx, req.Bucket, req.ObjectKey)
	if err != nil {
		return indexbuild.Timings{}, nil, err
	}
	defer w.objects.Cleanup(input)

	vectors, err := indexbuild.LoadVectors(input, req.Dimension)
	if err != nil {
		return indexbuild.Timings{}, nil, err
	}
	if len(vectors) == 0 {
		return indexbuild.Timings{}, nil, errors.New("vector file is empty")
	}

	output := filepath.Join(w.workDir, req.JobID+".graph")
	timings, err := w.builder.BuildAndWrite(ctx, req.Dimension, vectors, nil, req.IndexParams, output)
	if err != nil {
		os.Remove(output)
		return indexbuild.Timings{}, nil, err
	}

	if req.OutputBucket == "" {
		return timings, &storage.Artifact{Path: output}, nil
	}

	key := req.OutputKey
	if key == "" {
		key = req.JobID + "/index.graph"
	}
	defer w.objects.Cleanup(output)
	if err := w.objects.Upload(ctx, req.OutputBucket, key, output); err != nil {
		return indexbuild.Timings{}, nil, err
	}
	return timings, &storage.Artifact{Bucket: req.OutputBucket, Key: key}, nil
}

func (w *Worker) setState(id string, fn func(*storage.Job)) {
	if err := w.jobs.Update(id, fn); err != nil {
		log.Printf("job %s: update status: %v", id, err)
	}
}
