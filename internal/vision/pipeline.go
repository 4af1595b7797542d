package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/artrack/internal/config"
	"github.com/your-org/artrack/internal/models"
	"github.com/your-org/artrack/internal/observability"
	"github.com/your-org/artrack/internal/queue"
	"github.com/your-org/artrack/internal/storage"
	"github.com/your-org/artrack/internal/track"
)

// Pipeline drives one frame task through fetch → decode → engine step and
// publishes the tracking event. Each stream owns one engine; the consumer
// routes a stream's frames to a single worker, so an engine is never stepped
// concurrently.
type Pipeline struct {
	detector track.Detector
	flow     track.FlowTracker
	filter   track.InlierFilter

	mu      sync.Mutex
	engines map[uuid.UUID]*track.Engine

	store    *storage.FrameStore
	producer *queue.Producer
	cfg      config.TrackingConfig
}

func NewPipeline(cfg config.TrackingConfig, store *storage.FrameStore, producer *queue.Producer) *Pipeline {
	return &Pipeline{
		detector: NewORBDetector(DefaultORBConfig()),
		flow:     NewPyrLKFlow(),
		filter:   NewHomographyFilter(),
		engines:  make(map[uuid.UUID]*track.Engine),
		store:    store,
		producer: producer,
		cfg:      cfg,
	}
}

// engineConfig maps the service configuration onto the engine policy.
func engineConfig(cfg config.TrackingConfig) track.Config {
	return track.Config{
		MaxFeatures:          cfg.MaxFeatures,
		TargetFeatures:       cfg.TargetFeatures,
		MinFeatures:          cfg.MinFeatures,
		MinQuality:           cfg.MinQuality,
		MaxFlowError:         float32(cfg.MaxFlowError),
		WinSize:              cfg.WindowSize,
		PyrLevels:            cfg.PyramidLevels,
		FilterThreshold:      cfg.FilterThreshold,
		FilterConfidence:     cfg.FilterConfidence,
		GuardRatio:           cfg.GuardRatio,
		MaskRadius:           cfg.MaskRadius,
		MaxBootstrapAttempts: cfg.MaxBootstrapAttempts,
	}
}

// ProcessFrame handles one frame task end to end.
func (p *Pipeline) ProcessFrame(ctx context.Context, task models.FrameTask) error {
	start := time.Now()
	data, err := p.store.GetObject(ctx, task.FrameRef)
	if err != nil {
		return fmt.Errorf("load frame: %w", err)
	}
	observability.StageDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())

	start = time.Now()
	img, err := DecodeGray(data)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	observability.StageDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())

	frame := track.NewFrameAt(img, task.Timestamp)

	start = time.Now()
	engine := p.getEngine(task.StreamID)
	result, err := engine.Step(frame)
	if err != nil {
		_ = img.Close()
		return fmt.Errorf("step stream %s: %w", task.StreamID, err)
	}
	stepDur := time.Since(start)
	observability.StageDuration.WithLabelValues("step").Observe(stepDur.Seconds())

	sid := task.StreamID.String()
	observability.FramesProcessed.WithLabelValues(sid, result.Outcome.String()).Inc()
	observability.ActiveTracks.WithLabelValues(sid).Set(float64(engine.ActiveTracks()))
	observability.TrackingQuality.WithLabelValues(sid).Set(result.Quality)
	if result.Outcome == track.OutcomeReinitialized {
		observability.Reinitializations.WithLabelValues(sid).Inc()
	}
	if result.Augmented > 0 {
		observability.PointsAugmented.WithLabelValues(sid).Add(float64(result.Augmented))
	}

	event := models.TrackingEvent{
		Kind:       models.EventKindTracking,
		StreamID:   task.StreamID,
		FrameID:    task.FrameID,
		Timestamp:  task.Timestamp,
		Outcome:    result.Outcome.String(),
		NumTracked: result.NumTracked,
		NumInliers: result.NumInliers,
		Quality:    result.Quality,
		Augmented:  result.Augmented,
		Points:     packPoints(result.CurrPoints),
		TrackIDs:   result.TrackIDs,
		StepMillis: float64(stepDur.Microseconds()) / 1000.0,
	}
	if err := p.producer.PublishEvent(ctx, sid, event); err != nil {
		slog.Error("publish tracking event", "error", err, "stream_id", sid, "frame_id", task.FrameID)
	}

	// The frame has been consumed; drop its object so the bucket does not
	// accumulate processed frames.
	if err := p.store.DeleteObject(ctx, task.FrameRef); err != nil {
		slog.Warn("delete processed frame", "error", err, "key", task.FrameRef)
	}

	return nil
}

// DropStream discards a stream's engine, releasing its retained frame.
func (p *Pipeline) DropStream(streamID uuid.UUID) {
	p.mu.Lock()
	engine, ok := p.engines[streamID]
	if ok {
		delete(p.engines, streamID)
	}
	p.mu.Unlock()
	if ok {
		engine.Reset()
		observability.ActiveTracks.DeleteLabelValues(streamID.String())
		observability.TrackingQuality.DeleteLabelValues(streamID.String())
	}
}

func (p *Pipeline) getEngine(streamID uuid.UUID) *track.Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.engines[streamID]; ok {
		return e
	}
	e := track.NewEngine(engineConfig(p.cfg), p.detector, p.flow, p.filter)
	p.engines[streamID] = e
	return e
}

func packPoints(pts []track.Point) [][2]float32 {
	if len(pts) == 0 {
		return nil
	}
	out := make([][2]float32, len(pts))
	for i, pt := range pts {
		out[i] = [2]float32{pt.X, pt.Y}
	}
	return out
}
