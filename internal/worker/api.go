package worker

import (
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dreamware/indexfleet/internal/storage"
)

// API serves a Worker over HTTP.
type API struct {
	worker  *Worker
	started time.Time
}

// NewAPI wraps w.
func NewAPI(w *Worker) *API {
	return &API{worker: w, started: time.Now()}
}

// NewRouter returns a gin engine serving w.
func NewRouter(w *Worker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	NewAPI(w).SetupRoutes(router)
	return router
}

// SetupRoutes registers the worker endpoints on router.
//
//	GET  /job/:id       job status, 404 when unknown
//	GET  /jobs          every job keyed by id
//	POST /create_index  start a build, 202 with the pending job
//	GET  /health        liveness
//	GET  /info          host and job statistics
func (a *API) SetupRoutes(router *gin.Engine) {
	router.GET("/job/:id", a.getJob)
	router.GET("/jobs", a.listJobs)
	router.POST("/create_index", a.createIndex)
	router.GET("/health", a.healthCheck)
	router.GET("/info", a.info)
}

func (a *API) getJob(c *gin.Context) {
	job, err := a.worker.jobs.Get(c.Param("id"))
	if errors.Is(err, storage.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, a.worker.jobs.List())
}

func (a *API) createIndex(c *gin.Context) {
	var req CreateIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := a.worker.Submit(req)
	switch {
	case errors.Is(err, storage.ErrJobExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "job_id": req.JobID})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	Jobs           map[storage.JobState]int `json:"jobs"`
	Hostname       string                   `json:"hostname"`
	Uptime         string                   `json:"uptime"`
	TotalRAM       uint64                   `json:"total_ram"`
	AvailableRAM   uint64                   `json:"available_ram"`
	UsedRAMPercent float64                  `json:"used_ram_percent"`
	CPUPercent     float64                  `json:"cpu_percent"`
	NumCPU         int                      `json:"num_cpu"`
	NumGoroutine   int                      `json:"num_goroutine"`
	TotalJobs      int                      `json:"total_jobs"`
}

func (a *API) info(c *gin.Context) {
	stats := a.worker.jobs.Stats()
	resp := InfoResponse{
		Jobs:         stats.ByState,
		TotalJobs:    stats.Jobs,
		Uptime:       time.Since(a.started).Round(time.Second).String(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	resp.Hostname, _ = os.Hostname()

	// Host figures are best effort; containers may hide them.
	if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
		resp.TotalRAM = vm.Total
		resp.AvailableRAM = vm.Available
		resp.UsedRAMPercent = vm.UsedPercent
	}
	if pct, err := cpu.PercentWithContext(c.Request.Context(), 0, false); err == nil && len(pct) > 0 {
		resp.CPUPercent = pct[0]
	}
	c.JSON(http.StatusOK, resp)
}
