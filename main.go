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

	"github.com/banshee-data/occupancy.report/internal/api"
	"github.com/banshee-data/occupancy.report/internal/config"
	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/parking"
	"github.com/banshee-data/occupancy.report/internal/parking/anomaly"
	"github.com/banshee-data/occupancy.report/internal/parking/forecast"
	"github.com/banshee-data/occupancy.report/internal/parking/hub"
	"github.com/banshee-data/occupancy.report/internal/parking/ingest"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "occupancy.db", "Path to the sqlite database")
	configPath = flag.String("config", "", "Path to a tuning config JSON file")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var tuning *config.TuningConfig
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		tuning = loaded
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	registry := parking.NewRegistry()
	zones, err := database.ListZones(false)
	if err != nil {
		log.Fatalf("failed to load zones: %v", err)
	}
	for _, zone := range zones {
		if err := registry.Upsert(zone); err != nil {
			log.Printf("skipping stored zone %s: %v", zone.ZoneCode, err)
		}
	}
	monitoring.Logf("loaded %d zones from %s", len(zones), *dbFile)

	broadcast := hub.NewHub(tuning.GetHubBufferDepth())
	defer broadcast.Close()

	states := parking.NewStateManager(registry, func(change parking.StateChange) {
		broadcast.Publish(hub.Notification{
			Type:      hub.TypeStateUpdate,
			ZoneCode:  change.ZoneCode,
			Payload:   change,
			Timestamp: change.Timestamp,
		})
	})

	pipeline := ingest.NewPipeline(registry, states, ingest.Config{
		MaxSkew:       tuning.GetMaxSkew(),
		MinConfidence: tuning.GetMinConfidence(),
		ReorderWindow: tuning.GetReorderWindow(),
		DedupCapacity: tuning.GetDedupCapacity(),
		DedupTTL:      tuning.GetDedupTTL(),
	}, nil)

	cadence := tuning.GetSnapshotCadence()
	perDay := int(24 * time.Hour / cadence)
	store := series.NewStore(series.Params{
		Capacity:  tuning.GetRetentionDays() * perDay,
		Period:    perDay,
		Alpha:     tuning.GetHWAlpha(),
		Beta:      tuning.GetHWBeta(),
		Gamma:     tuning.GetHWGamma(),
		EMAAlpha:  tuning.GetEMAAlpha(),
		SMAWindow: tuning.GetSMAWindow(),
	})

	detector := &anomaly.Detector{
		LookbackDays: tuning.GetAnomalyLookbackDays(),
		Threshold:    tuning.GetAnomalyThreshold(),
		MinPoints:    tuning.GetAnomalyMinPoints(),
	}

	aggregator := series.NewAggregator(registry, states, store, cadence, nil)
	aggregator.SetPersist(database.RecordSnapshot)
	aggregator.SetOnSnapshot(func(snap parking.OccupancySnapshot, _ parking.SmoothedPoint) {
		zs, ok := store.Peek(snap.ZoneCode)
		if !ok {
			return
		}
		if found := detector.Check(zs.Snapshots(), snap); found != nil {
			monitoring.Logf("anomaly: %s", found)
			broadcast.Publish(hub.Notification{
				Type:      hub.TypeAlert,
				ZoneCode:  found.ZoneCode,
				Payload:   found,
				Timestamp: found.Timestamp,
			})
		}
	})

	engine := forecast.NewEngine(store, tuning.GetForecastMaxHorizon(), tuning.GetForecastZ())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// reorder-buffer flusher
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// periodic occupancy snapshots
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := aggregator.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("aggregator stopped: %v", err)
		}
		log.Print("aggregator routine terminated")
	}()

	// daily retention sweep over the durable event and snapshot history
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Print("retention routine terminated")
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -tuning.GetRetentionDays())
				if n, err := database.PruneEvents(cutoff); err != nil {
					log.Printf("failed to prune events: %v", err)
				} else if n > 0 {
					monitoring.Logf("retention: pruned %d events", n)
				}
				if n, err := database.PruneSnapshots(cutoff); err != nil {
					log.Printf("failed to prune snapshots: %v", err)
				} else if n > 0 {
					monitoring.Logf("retention: pruned %d snapshots", n)
				}
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.ServerConfig{
			Registry: registry,
			States:   states,
			Pipeline: pipeline,
			Store:    store,
			Forecast: engine,
			Anomaly:  detector,
			Hub:      broadcast,
			DB:       database,
		}).ServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
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

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
