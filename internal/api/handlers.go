package api

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rozsasarpi/gridcast/internal/market"
	"github.com/rozsasarpi/gridcast/internal/scheduler"
)

// writeJSON writes a JSON response, mirroring the teacher's
// internal/server writeJSON helper.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "gridcast",
		"version": s.version,
	})
}

// handleHealth answers a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "gridcast",
		"version": s.version,
	})
}

// handleHealthDetailed reports process-level resource usage via
// gopsutil, in addition to the plain liveness status `/health` reports.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := map[string]interface{}{
		"status": "healthy",
		"go_runtime": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
			"goroutines":     runtime.NumGoroutine(),
		},
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp["cpu_percent"] = percents[0]
	}
	if du, err := disk.Usage(s.dataDir); err == nil {
		resp["disk"] = map[string]interface{}{
			"total_mb":     du.Total / 1024 / 1024,
			"used_mb":      du.Used / 1024 / 1024,
			"used_percent": du.UsedPercent,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleHealthComponent reports the health of one named subsystem:
// "store" or "scheduler".
func (s *Server) handleHealthComponent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	switch name {
	case "store":
		info, err := s.store.Info()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "healthy",
			"total_artifacts": info.TotalArtifacts,
			"total_bytes":     info.TotalBytes,
		})
	case "scheduler":
		if s.scheduler == nil {
			s.writeError(w, http.StatusNotFound, "scheduler not wired")
			return
		}
		running := s.scheduler.Registry.ListByStatus(scheduler.StatusRunning)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "healthy",
			"jobs_running":  len(running),
		})
	default:
		s.writeError(w, http.StatusBadRequest, "unknown component "+name)
	}
}

// handleStorageStatus summarizes the Forecast Store's coverage.
func (s *Server) handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	perProduct := make(map[string]interface{}, len(info.PerProduct))
	for p, cov := range info.PerProduct {
		perProduct[string(p)] = map[string]interface{}{
			"count":  cov.Count,
			"oldest": cov.Oldest,
			"newest": cov.Newest,
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_artifacts": info.TotalArtifacts,
		"total_bytes":     info.TotalBytes,
		"per_product":     perProduct,
	})
}

// handleProducts lists the six supported market products.
func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": market.AllProducts(),
	})
}
