package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/portlight/portlight/internal/database"
)

// SystemHandlers serves health and system status endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	marketDB    *database.DB
	analyticsDB *database.DB
	startedAt   time.Time
}

func NewSystemHandlers(log zerolog.Logger, marketDB, analyticsDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		marketDB:    marketDB,
		analyticsDB: analyticsDB,
		startedAt:   time.Now(),
	}
}

// HealthResponse reports per-database health
type HealthResponse struct {
	Status    string            `json:"status"`
	Databases map[string]string `json:"databases"`
	UptimeSec int64             `json:"uptime_seconds"`
}

// HandleHealth runs a quick integrity check on both databases.
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Databases: make(map[string]string),
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
	}

	status := http.StatusOK
	for _, db := range []*database.DB{h.marketDB, h.analyticsDB} {
		if err := db.QuickCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Str("db", db.Name()).Msg("database health check failed")
			resp.Databases[db.Name()] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Databases[db.Name()] = "ok"
		}
	}

	h.writeJSON(w, status, resp)
}

// HandleHealthDeep additionally runs a full PRAGMA integrity_check on both
// databases. Much slower than /health on large files.
// GET /health/deep
func (h *SystemHandlers) HandleHealthDeep(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Databases: make(map[string]string),
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
	}

	status := http.StatusOK
	for _, db := range []*database.DB{h.marketDB, h.analyticsDB} {
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Str("db", db.Name()).Msg("database integrity check failed")
			resp.Databases[db.Name()] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Databases[db.Name()] = "ok"
		}
	}

	h.writeJSON(w, status, resp)
}

// SystemStatusResponse reports process and host statistics
type SystemStatusResponse struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_seconds"`
	GoVersion   string  `json:"go_version"`
	NumCPU      int     `json:"num_cpu"`
	MarketDB    string  `json:"market_db"`
	AnalyticsDB string  `json:"analytics_db"`
}

// HandleSystemStatus returns process statistics for the dashboard.
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		memPercent = memStat.UsedPercent
	}

	h.writeJSON(w, http.StatusOK, SystemStatusResponse{
		CPUPercent:  cpuAvg,
		MemPercent:  memPercent,
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(time.Since(h.startedAt).Seconds()),
		GoVersion:   runtime.Version(),
		NumCPU:      runtime.NumCPU(),
		MarketDB:    h.marketDB.Path(),
		AnalyticsDB: h.analyticsDB.Path(),
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
