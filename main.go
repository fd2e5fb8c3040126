package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fleet.health/internal/api"
	"github.com/banshee-data/fleet.health/internal/causes"
	"github.com/banshee-data/fleet.health/internal/config"
	"github.com/banshee-data/fleet.health/internal/logstore"
	"github.com/banshee-data/fleet.health/internal/model"
	"github.com/banshee-data/fleet.health/internal/monitor"
	"github.com/banshee-data/fleet.health/internal/obd"
	"github.com/banshee-data/fleet.health/internal/units"
	"github.com/banshee-data/fleet.health/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to JSON config file (defaults apply when empty)")
	speedUnits = flag.String("units", units.KPH, "Default speed units for dashboard responses")
)

func main() {
	flag.Parse()

	log.Printf("fleet.health %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	// the telemetry source replays a recorded OBD dataset, either a
	// flat CSV export or a sqlite capture
	var source obd.Source
	var telemetryDB *obd.DB
	switch cfg.GetDatasetKind() {
	case config.DatasetSQLite:
		var err error
		telemetryDB, err = obd.NewDB(cfg.GetDatasetPath())
		if err != nil {
			log.Fatalf("failed to open telemetry database: %v", err)
		}
		defer telemetryDB.Close()
		source, err = obd.NewSQLiteSource(telemetryDB, cfg.GetMaxReadings())
		if err != nil {
			log.Fatalf("failed to load telemetry from database: %v", err)
		}
	default:
		var err error
		source, err = obd.NewCSVSource(cfg.GetDatasetPath(), cfg.GetMaxReadings())
		if err != nil {
			log.Fatalf("failed to load telemetry dataset: %v", err)
		}
	}

	artifact, err := model.Load(cfg.GetModelPath())
	if err != nil {
		log.Fatalf("failed to load breakdown model: %v", err)
	}

	store := logstore.NewStore(cfg.GetLogRoot())
	engine := causes.NewEngine(cfg.Thresholds())
	ctrl := monitor.NewController(source, artifact, engine, store, cfg.DriverMap(),
		monitor.Options{StepInterval: cfg.GetStepInterval()})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes when the telemetry backend
		// is a database (accessible only in dev mode or over Tailscale)
		if telemetryDB != nil {
			telemetryDB.AttachAdminRoutes(mux)
		}

		apiMux := api.NewServer(ctx, ctrl, store, *speedUnits).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// stop any in-flight monitoring session on shutdown so its buffer
	// is flushed before the process exits
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		ctrl.Stop()
		log.Printf("monitor stop requested")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
