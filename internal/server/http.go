package server

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/pulsemetrics/brand_radar/internal/service"
	"github.com/pulsemetrics/brand_radar/pkg/config"
	"github.com/pulsemetrics/brand_radar/pkg/engine"
)

//go:embed assets/*
var assets embed.FS

// NewHTTPServer wires the analysis API and the embedded dashboard page.
func NewHTTPServer(c *config.ServerConfig, s *service.AnalysisService, logger log.Logger) *http.Server {
	helper := log.NewHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Addr != "" {
		opts = append(opts, http.Address(c.Addr))
	}
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}

	srv := http.NewServer(opts...)

	writeJSON := func(w nethttp.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			helper.Errorf("write response: %v", err)
		}
	}

	srv.HandleFunc("/api/analysis/start", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeJSON(w, nethttp.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var req service.StartRequest
		if r.Body != nil {
			// An empty or absent body means a fresh default run.
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeJSON(w, nethttp.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		if err := s.Start(&req); err != nil {
			if errors.Is(err, engine.ErrAnalysisRunning) {
				writeJSON(w, nethttp.StatusConflict, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, nethttp.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, nethttp.StatusAccepted, map[string]string{"status": "started"})
	})

	srv.HandleFunc("/api/analysis/cancel", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeJSON(w, nethttp.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		s.Cancel()
		writeJSON(w, nethttp.StatusOK, map[string]string{"status": "cancellation requested"})
	})

	srv.HandleFunc("/api/analysis/progress", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, s.Progress())
	})

	srv.HandleFunc("/api/dashboard", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		dashboard, err := s.GetDashboard(r.Context())
		if err != nil {
			helper.Errorf("dashboard query failed: %v", err)
			writeJSON(w, nethttp.StatusInternalServerError, map[string]string{"error": "failed to load dashboard"})
			return
		}
		writeJSON(w, nethttp.StatusOK, dashboard)
	})

	srv.HandleFunc("/api/export", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		export, err := s.Export(r.Context())
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]string{"error": "export failed"})
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="brand_radar_export.json"`)
		writeJSON(w, nethttp.StatusOK, export)
	})

	srv.HandleFunc("/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path == "/" {
			content, _ := assets.ReadFile("assets/index.html")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(content)
			return
		}
		nethttp.NotFound(w, r)
	})

	return srv
}
