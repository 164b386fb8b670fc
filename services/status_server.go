package services

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"github.com/EasterCompany/dex-sylvr-service/system"
	"github.com/gin-gonic/gin"
)

// StatusServer serves /status, /health and /services for this service
type StatusServer struct {
	startTime     time.Time
	version       string
	healthChecker *HealthChecker

	// Metrics
	transcriptions atomic.Uint64
	syntheses      atomic.Uint64
	chatSessions   atomic.Uint64
	pipelineRuns   atomic.Uint64
	pipelineErrors atomic.Uint64
}

// NewStatusServer creates a new status server
func NewStatusServer(version string, healthChecker *HealthChecker) *StatusServer {
	return &StatusServer{
		startTime:     time.Now(),
		version:       version,
		healthChecker: healthChecker,
	}
}

// Register mounts the status routes.
func (ss *StatusServer) Register(r gin.IRoutes) {
	r.GET("/status", ss.handleStatus)
	r.GET("/health", ss.handleHealth)
	r.GET("/services", ss.handleServices)
}

func (ss *StatusServer) handleStatus(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics := gin.H{
		"transcriptions":  ss.transcriptions.Load(),
		"syntheses":       ss.syntheses.Load(),
		"chat_sessions":   ss.chatSessions.Load(),
		"pipeline_runs":   ss.pipelineRuns.Load(),
		"pipeline_errors": ss.pipelineErrors.Load(),
		"goroutines":      runtime.NumGoroutine(),
		"memory_alloc_mb": float64(m.Alloc) / 1024 / 1024,
		"memory_sys_mb":   float64(m.Sys) / 1024 / 1024,
		"gc_runs":         m.NumGC,
	}
	var host *system.Usage
	if u, err := system.Read(c.Request.Context()); err == nil {
		host = u
	} else {
		logger.Error("reading host usage", err)
	}

	state := "operational"
	if !ss.healthChecker.Healthy() {
		state = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"service":   "dex-sylvr-service",
		"status":    state,
		"version":   ss.version,
		"uptime":    time.Since(ss.startTime).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
		"metrics":   metrics,
		"system":    host,
		"services":  ss.healthChecker.GetAllServices(),
	})
}

// handleHealth is the liveness check for load balancers
func (ss *StatusServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ss *StatusServer) handleServices(c *gin.Context) {
	services := ss.healthChecker.GetAllServices()
	c.JSON(http.StatusOK, gin.H{
		"services": services,
		"count":    len(services),
	})
}

// Metric incrementers (called from handlers)
func (ss *StatusServer) IncrementTranscriptions() {
	ss.transcriptions.Add(1)
}

func (ss *StatusServer) IncrementSyntheses() {
	ss.syntheses.Add(1)
}

func (ss *StatusServer) IncrementChatSessions() {
	ss.chatSessions.Add(1)
}

func (ss *StatusServer) IncrementPipelineRuns(err error) {
	ss.pipelineRuns.Add(1)
	if err != nil {
		ss.pipelineErrors.Add(1)
	}
}
