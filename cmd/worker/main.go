// Package main implements the index build worker.
//
// The worker wires the job runner of internal/worker to S3 object storage and
// serves it over HTTP. Job status is kept in memory and served to the
// coordinator, which fans lookups out across every worker it knows.
//
// Endpoints:
//
//	GET  /job/:id
//	GET  /jobs
//	POST /create_index
//	GET  /health
//	GET  /info
//
// Configuration:
//   - WORKER_LISTEN: Listen address (default: ":8081")
//   - WORKER_WORK_DIR: Directory for downloads and artifacts (default: os.TempDir())
//   - S3_REGION: AWS region (default: from the AWS config chain)
//   - S3_ENDPOINT: S3-compatible endpoint, e.g. a local MinIO (optional)
//   - GIN_MODE: gin mode (default: "release")
//
// Example usage:
//
//	WORKER_LISTEN=:8081 S3_ENDPOINT=http://localhost:9000 ./worker
//
//	curl -X POST localhost:8081/create_index \
//	  -d '{"bucket":"vectors","object_key":"sift/base.fbin","dimension":128}'
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dreamware/indexfleet/internal/indexbuild"
	"github.com/dreamware/indexfleet/internal/objectstore"
	"github.com/dreamware/indexfleet/internal/storage"
	"github.com/dreamware/indexfleet/internal/worker"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

const progressStep = 64 << 20

func main() {
	gin.SetMode(getenv("GIN_MODE", gin.ReleaseMode))
	listen := getenv("WORKER_LISTEN", ":8081")
	workDir := getenv("WORKER_WORK_DIR", os.TempDir())

	objects, err := objectstore.NewFromEnv(context.Background(),
		os.Getenv("S3_REGION"), os.Getenv("S3_ENDPOINT"),
		objectstore.WithTempDir(workDir),
		objectstore.WithProgress(logProgress),
	)
	if err != nil {
		logFatal("object storage: %v", err)
		return
	}

	w := worker.NewWorker(storage.NewMemoryStore(), objects, indexbuild.GraphBuilder{}, workDir)
	router := worker.NewRouter(w)

	s := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("worker listening on %s (work dir %s)", listen, workDir)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	w.Close()
	log.Println("worker stopped")
}

// logProgress logs a download every progressStep bytes and on completion.
func logProgress(p objectstore.Progress) {
	if p.Downloaded != p.Total && p.Downloaded%progressStep != 0 {
		return
	}
	if p.Total > 0 {
		log.Printf("download %s: %d/%d bytes (%.1f%%)", p.Key, p.Downloaded, p.Total,
			100*float64(p.Downloaded)/float64(p.Total))
		return
	}
	log.Printf("download %s: %d bytes", p.Key, p.Downloaded)
}

// getenv returns the environment variable k, or def when it is unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
