package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/artrack/internal/api"
	"github.com/your-org/artrack/internal/api/ws"
	"github.com/your-org/artrack/internal/config"
	"github.com/your-org/artrack/internal/models"
	"github.com/your-org/artrack/internal/observability"
	"github.com/your-org/artrack/internal/queue"
	"github.com/your-org/artrack/internal/registry"
	"github.com/your-org/artrack/internal/storage"
	"github.com/your-org/artrack/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting artrack API service", "port", cfg.Server.Port)

	// Connect to MinIO
	store, err := storage.NewFrameStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Stream catalog
	reg := registry.New()

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Start event consumer to feed the registry and WebSocket clients
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		return dispatchEvent(reg, hub, msg.Data())
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Registry: reg,
		Store:    store,
		Producer: producer,
		Hub:      hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// dispatchEvent routes a worker or ingestor event to the registry and the
// WebSocket hub. The "kind" field discriminates the payload.
func dispatchEvent(reg *registry.Registry, hub *ws.Hub, data []byte) error {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Kind {
	case models.EventKindTracking:
		var evt models.TrackingEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return err
		}

		if err := reg.SetStats(evt.StreamID, models.StreamStats{
			FrameID:      evt.FrameID,
			Outcome:      evt.Outcome,
			ActiveTracks: evt.NumTracked,
			Quality:      evt.Quality,
			UpdatedAt:    evt.Timestamp,
		}); err != nil {
			slog.Debug("stats for unknown stream", "stream_id", evt.StreamID)
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:     "tracking",
			StreamID: evt.StreamID,
			Data: &dto.TrackingEventResponse{
				StreamID:   evt.StreamID,
				FrameID:    evt.FrameID,
				Timestamp:  evt.Timestamp.Format(time.RFC3339Nano),
				Outcome:    evt.Outcome,
				NumTracked: evt.NumTracked,
				NumInliers: evt.NumInliers,
				Quality:    evt.Quality,
				Augmented:  evt.Augmented,
				Points:     evt.Points,
				TrackIDs:   evt.TrackIDs,
				StepMillis: evt.StepMillis,
			},
		})

	case models.EventKindStatus:
		var evt models.StatusEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return err
		}

		if err := reg.SetStatus(evt.StreamID, models.StreamStatus(evt.Status), evt.Error); err != nil {
			slog.Debug("status for unknown stream", "stream_id", evt.StreamID)
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:     "stream_status",
			StreamID: evt.StreamID,
			Status:   evt.Status,
			Error:    evt.Error,
		})

	default:
		slog.Warn("unknown event kind", "kind", head.Kind)
	}

	return nil
}
