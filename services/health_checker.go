package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	logger "github.com/EasterCompany/dex-sylvr-service/log"
	"go.uber.org/zap"
)

const (
	StatusOK  = "OK"
	StatusBad = "BAD"
	StatusNA  = "N/A"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// ServiceStatus represents the health status of one dependency
type ServiceStatus struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	LastCheck    time.Time `json:"last_check"`
	ResponseTime int64     `json:"response_time"` // milliseconds
	Endpoint     string    `json:"endpoint"`
	Error        string    `json:"error,omitempty"`
}

type registered struct {
	status *ServiceStatus
	probe  Probe
}

// HealthChecker monitors the dependencies of the service
type HealthChecker struct {
	mu            sync.RWMutex
	services      map[string]*registered
	checkInterval time.Duration
	timeout       time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	log           *zap.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(checkInterval time.Duration) *HealthChecker {
	return &HealthChecker{
		services:      make(map[string]*registered),
		checkInterval: checkInterval,
		timeout:       2 * time.Second,
		stopChan:      make(chan struct{}),
		log:           logger.Named("health"),
	}
}

// RegisterService adds a dependency to monitor. endpoint is informational.
func (hc *HealthChecker) RegisterService(name, endpoint string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.services[name] = &registered{
		status: &ServiceStatus{
			Name:      name,
			Status:    StatusNA,
			Endpoint:  endpoint,
			LastCheck: time.Now(),
		},
		probe: probe,
	}
	hc.log.Info("registered service", zap.String("name", name), zap.String("endpoint", endpoint))
}

// HTTPProbe succeeds when url answers 200.
func HTTPProbe(client *http.Client, url string) Probe {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	}
}

// Start begins monitoring all registered services
func (hc *HealthChecker) Start() {
	go hc.monitorLoop()
	hc.log.Info("service health checker started")
}

// Stop halts the health checker. Safe to call more than once.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() {
		close(hc.stopChan)
		hc.log.Info("service health checker stopped")
	})
}

func (hc *HealthChecker) monitorLoop() {
	hc.CheckAll()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.CheckAll()
		case <-hc.stopChan:
			return
		}
	}
}

// CheckAll probes every registered service concurrently and waits.
func (hc *HealthChecker) CheckAll() {
	hc.mu.RLock()
	probes := make(map[string]Probe, len(hc.services))
	for name, r := range hc.services {
		probes[name] = r.probe
	}
	hc.mu.RUnlock()

	var wg sync.WaitGroup
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hc.checkService(name, probe)
		}()
	}
	wg.Wait()
}

func (hc *HealthChecker) checkService(name string, probe Probe) {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	startTime := time.Now()
	err := probe(ctx)
	responseTime := time.Since(startTime).Milliseconds()

	hc.mu.Lock()
	defer hc.mu.Unlock()

	r, ok := hc.services[name]
	if !ok {
		return
	}
	status := r.status
	status.LastCheck = time.Now()
	status.ResponseTime = responseTime

	if err != nil {
		status.Status = StatusBad
		status.Error = err.Error()
		hc.log.Warn("service offline", zap.String("name", name), zap.Error(err))
		return
	}
	status.Status = StatusOK
	status.Error = ""
	hc.log.Debug("service ok", zap.String("name", name), zap.Int64("ms", responseTime))
}

// GetServiceStatus returns the current status of a service
func (hc *HealthChecker) GetServiceStatus(name string) *ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	if r, ok := hc.services[name]; ok {
		statusCopy := *r.status
		return &statusCopy
	}
	return nil
}

// GetAllServices returns status of all services
func (hc *HealthChecker) GetAllServices() map[string]*ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	servicesCopy := make(map[string]*ServiceStatus, len(hc.services))
	for name, r := range hc.services {
		statusCopy := *r.status
		servicesCopy[name] = &statusCopy
	}
	return servicesCopy
}

// Healthy reports whether no service is BAD.
func (hc *HealthChecker) Healthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	for _, r := range hc.services {
		if r.status.Status == StatusBad {
			return false
		}
	}
	return true
}
