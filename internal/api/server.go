// Package api exposes the monitoring core over HTTP. The presentation
// layer only ever issues start/stop/vehicle-selection commands and
// reads live records or dashboard aggregates; it never mutates core
// state directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/fleet.health/internal/httputil"
	"github.com/banshee-data/fleet.health/internal/logstore"
	"github.com/banshee-data/fleet.health/internal/monitor"
	"github.com/banshee-data/fleet.health/internal/report"
	"github.com/banshee-data/fleet.health/internal/units"
	"github.com/banshee-data/fleet.health/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server wires the controller, log store, and reporter to HTTP.
type Server struct {
	ctrl  *monitor.Controller
	store *logstore.Store
	units string

	// runCtx bounds background session runs so process shutdown stops
	// an in-flight session.
	runCtx context.Context
}

// NewServer returns a Server using defaultUnits for dashboard speed
// values and runCtx as the lifetime bound for sessions it launches.
func NewServer(runCtx context.Context, ctrl *monitor.Controller, store *logstore.Store, defaultUnits string) *Server {
	if !units.IsValid(defaultUnits) {
		defaultUnits = units.KPH
	}
	return &Server{ctrl: ctrl, store: store, units: defaultUnits, runCtx: runCtx}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/vehicles", s.listVehicles)
	mux.HandleFunc("/monitor/start", s.startMonitoring)
	mux.HandleFunc("/monitor/stop", s.stopMonitoring)
	mux.HandleFunc("/monitor/status", s.showStatus)
	mux.HandleFunc("/monitor/stream", s.streamRecords)
	mux.HandleFunc("/dashboard/summary", s.showSummary)
	mux.HandleFunc("/dashboard/series", s.showSeries)
	mux.HandleFunc("/version", showVersion)
	return mux
}

func showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := json.NewEncoder(w).Encode(s.ctrl.Vehicles()); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to write vehicles")
	}
}

func (s *Server) startMonitoring(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	vehicle := r.FormValue("vehicle")
	if vehicle == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'vehicle' parameter")
		return
	}

	sessionID, err := s.ctrl.Start(vehicle)
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning):
		httputil.WriteJSONError(w, http.StatusConflict, "A monitoring session is already running; stop it first")
		return
	case errors.Is(err, monitor.ErrUnknownVehicle):
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown vehicle %q", vehicle))
		return
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start session: %v", err))
		return
	}

	// Drive the session to completion in the background; fatal errors
	// land in the controller status for the next poll.
	go func() {
		if err := s.ctrl.Run(s.runCtx); err != nil {
			log.Printf("session %s ended with error: %v", sessionID, err)
		}
	}()

	json.NewEncoder(w).Encode(map[string]string{
		"session_id": sessionID,
		"vehicle_id": vehicle,
	})
}

func (s *Server) stopMonitoring(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	// Stopping an idle controller is a no-op.
	s.ctrl.Stop()
	json.NewEncoder(w).Encode(map[string]string{"status": "stop requested"})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := json.NewEncoder(w).Encode(s.ctrl.Status()); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

// streamRecords serves the live monitoring feed as server-sent events,
// one event per processed reading.
func (s *Server) streamRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	id, ch := s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				log.Printf("failed to marshal notification: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// summaryResponse is the dashboard headline payload. Speed is reported
// in the requested units; rpm needs no conversion.
type summaryResponse struct {
	report.Summary
	Units   string `json:"units"`
	LogPath string `json:"log_path"`
}

func (s *Server) requestedUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q (want one of %s)", u, units.GetValidUnitsString())
	}
	return u, nil
}

func (s *Server) latestLog(w http.ResponseWriter, r *http.Request) *logstore.PersistedLog {
	vehicle := r.URL.Query().Get("vehicle")
	if vehicle == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'vehicle' parameter")
		return nil
	}
	persisted, err := s.store.Latest(vehicle)
	if errors.Is(err, logstore.ErrNoLogs) {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("No logs found for vehicle %q", vehicle))
		return nil
	}
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load log: %v", err))
		return nil
	}
	return persisted
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	targetUnits, err := s.requestedUnits(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	persisted := s.latestLog(w, r)
	if persisted == nil {
		return
	}

	summary := report.Summarize(persisted)
	summary.MeanSpeed = units.ConvertSpeed(summary.MeanSpeed, targetUnits)

	resp := summaryResponse{Summary: summary, Units: targetUnits, LogPath: persisted.Path}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to write summary")
	}
}

type seriesResponse struct {
	VehicleID string         `json:"vehicle_id"`
	Metric    string         `json:"metric"`
	Units     string         `json:"units,omitempty"`
	Points    []report.Point `json:"points"`
}

func (s *Server) showSeries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = report.MetricRPM
	}
	targetUnits, err := s.requestedUnits(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	persisted := s.latestLog(w, r)
	if persisted == nil {
		return
	}

	points, err := report.Series(persisted, metric)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := seriesResponse{VehicleID: persisted.VehicleID, Metric: metric, Points: points}
	if metric == report.MetricSpeed {
		for i := range resp.Points {
			resp.Points[i].Value = units.ConvertSpeed(resp.Points[i].Value, targetUnits)
		}
		resp.Units = targetUnits
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to write series")
	}
}
