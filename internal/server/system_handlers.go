package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/scheduler"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Failures map[string]string `json:"failures,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status.
type SystemStatusResponse struct {
	Status         string                `json:"status"`
	StartedAt      time.Time             `json:"startedAt"`
	UptimeSeconds  float64               `json:"uptimeSeconds"`
	Goroutines     int                   `json:"goroutines"`
	CPUPercent     float64               `json:"cpuPercent"`
	MemoryPercent  float64               `json:"memoryPercent"`
	Databases      []database.Stats      `json:"databases"`
	Jobs           []scheduler.JobStatus `json:"jobs"`
	CachedResults  int64                 `json:"cachedResults"`
	ArchiveEnabled bool                  `json:"archiveEnabled"`
}

// handleHealth checks every database and answers 503 when any fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy", Service: "portfolio-engine"}
	for _, db := range s.container.Databases() {
		if err := db.HealthCheck(ctx); err != nil {
			if response.Failures == nil {
				response.Failures = make(map[string]string)
			}
			response.Failures[db.Name()] = err.Error()
		}
	}

	status := http.StatusOK
	if len(response.Failures) > 0 {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
		s.log.Warn().Interface("failures", response.Failures).Msg("Health check failed")
	}
	s.writeJSON(w, status, response)
}

// handleSystemStatus reports process, database and job state. Partial
// failures are logged and leave the affected fields empty.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.log.Debug().Msg("Getting system status")

	c := s.container
	cpuPercent, memPercent := s.getSystemStats()
	response := SystemStatusResponse{
		Status:         "healthy",
		StartedAt:      s.started.UTC(),
		UptimeSeconds:  time.Since(s.started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		Databases:      []database.Stats{},
		Jobs:           []scheduler.JobStatus{},
		ArchiveEnabled: c.Archiver != nil,
	}

	for _, db := range c.Databases() {
		stats, err := db.GetStats(r.Context())
		if err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			response.Status = "degraded"
			continue
		}
		response.Databases = append(response.Databases, *stats)
	}

	if c.Scheduler != nil {
		response.Jobs = c.Scheduler.Status()
	}

	if c.ResultCache != nil {
		count, err := c.ResultCache.Count()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to count cached results")
			response.Status = "degraded"
		}
		response.CachedResults = count
	}

	s.writeJSON(w, http.StatusOK, response)
}

// getSystemStats samples CPU over 100ms and reads memory usage.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
