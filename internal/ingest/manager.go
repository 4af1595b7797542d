package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/artrack/internal/config"
	"github.com/your-org/artrack/internal/models"
	"github.com/your-org/artrack/internal/observability"
	"github.com/your-org/artrack/internal/queue"
	"github.com/your-org/artrack/internal/storage"
)

// StreamCommand represents a start/stop command from the API.
type StreamCommand struct {
	Action   string `json:"action"` // start, stop
	StreamID string `json:"stream_id"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	FPS      int    `json:"fps"`
}

type activeStream struct {
	cancel    context.CancelFunc
	extractor *FFmpegExtractor
	frameSeq  atomic.Uint64
}

// Manager manages video stream ingestion lifecycle.
type Manager struct {
	producer *queue.Producer
	store    *storage.FrameStore
	cfg      config.IngestConfig

	mu      sync.RWMutex
	streams map[string]*activeStream
}

func NewManager(producer *queue.Producer, store *storage.FrameStore, cfg config.IngestConfig) *Manager {
	return &Manager{
		producer: producer,
		store:    store,
		cfg:      cfg,
		streams:  make(map[string]*activeStream),
	}
}

// HandleCommand processes a stream control command.
func (m *Manager) HandleCommand(ctx context.Context, cmd StreamCommand) error {
	switch cmd.Action {
	case "start":
		return m.startStream(ctx, cmd)
	case "stop":
		return m.stopStream(cmd.StreamID)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func (m *Manager) startStream(ctx context.Context, cmd StreamCommand) error {
	m.mu.Lock()
	if _, exists := m.streams[cmd.StreamID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("stream %s already running", cmd.StreamID)
	}
	m.mu.Unlock()

	streamURL := cmd.URL

	// Resolve YouTube URLs
	if cmd.Type == string(models.StreamTypeYouTube) {
		resolved, err := ResolveYouTubeURL(ctx, cmd.URL)
		if err != nil {
			m.publishStatus(cmd.StreamID, models.StreamStatusError, err.Error())
			return fmt.Errorf("resolve youtube url: %w", err)
		}
		streamURL = resolved
		slog.Info("resolved youtube url", "stream_id", cmd.StreamID)
	}

	fps := cmd.FPS
	if fps <= 0 {
		fps = m.cfg.DefaultFPS
	}
	if fps > m.cfg.MaxFPS {
		fps = m.cfg.MaxFPS
	}

	streamCtx, cancel := context.WithCancel(ctx)
	extractor := &FFmpegExtractor{Realtime: cmd.Type == string(models.StreamTypeFile)}

	as := &activeStream{
		cancel:    cancel,
		extractor: extractor,
	}

	m.mu.Lock()
	m.streams[cmd.StreamID] = as
	m.mu.Unlock()

	observability.ActiveStreams.Inc()
	m.publishStatus(cmd.StreamID, models.StreamStatusRunning, "")

	slog.Info("starting stream ingestion", "stream_id", cmd.StreamID, "url", cmd.URL, "fps", fps)

	// Run extraction in a goroutine with retry logic
	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.streams, cmd.StreamID)
			m.mu.Unlock()
			observability.ActiveStreams.Dec()
			slog.Info("stream ingestion stopped", "stream_id", cmd.StreamID)
		}()

		const maxRetries = 3
		currentURL := streamURL

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := time.Duration(1<<uint(attempt)) * time.Second // 2s, 4s, 8s
				slog.Warn("retrying stream extraction",
					"stream_id", cmd.StreamID,
					"attempt", attempt,
					"delay", delay,
				)
				select {
				case <-streamCtx.Done():
					m.publishStatus(cmd.StreamID, models.StreamStatusStopped, "")
					return
				case <-time.After(delay):
				}

				// Re-resolve YouTube URLs (they expire)
				if cmd.Type == string(models.StreamTypeYouTube) {
					resolved, err := ResolveYouTubeURL(streamCtx, cmd.URL)
					if err != nil {
						slog.Warn("youtube re-resolve failed", "stream_id", cmd.StreamID, "error", err)
						continue
					}
					currentURL = resolved
				}

				// Need a fresh extractor for retry
				extractor = &FFmpegExtractor{Realtime: cmd.Type == string(models.StreamTypeFile)}
			}

			err := extractor.StartExtraction(streamCtx, currentURL, fps, m.cfg.FrameWidth, func(frameData []byte) error {
				return m.publishFrame(streamCtx, cmd.StreamID, as, frameData)
			})

			if err == nil || streamCtx.Err() != nil {
				// Clean exit or context cancelled (user stopped stream)
				m.publishStatus(cmd.StreamID, models.StreamStatusStopped, "")
				return
			}

			slog.Error("stream extraction failed",
				"stream_id", cmd.StreamID,
				"attempt", attempt,
				"error", err,
			)
		}

		// All retries exhausted
		m.publishStatus(cmd.StreamID, models.StreamStatusError, "stream failed after retries")
	}()

	return nil
}

// publishFrame uploads a captured frame and queues the tracking task. Frame
// IDs are a per-stream capture sequence so workers can order events.
func (m *Manager) publishFrame(ctx context.Context, streamID string, as *activeStream, frameData []byte) error {
	streamUUID, err := uuid.Parse(streamID)
	if err != nil {
		return fmt.Errorf("parse stream id: %w", err)
	}
	frameID := as.frameSeq.Add(1)

	key := storage.FrameKey(streamID, frameID)
	if err := m.store.PutObject(ctx, key, frameData, "image/jpeg"); err != nil {
		return fmt.Errorf("upload frame: %w", err)
	}

	task := models.FrameTask{
		StreamID:  streamUUID,
		FrameID:   frameID,
		Timestamp: time.Now().UTC(),
		FrameRef:  key,
		Width:     m.cfg.FrameWidth,
		Height:    0, // determined by worker after decode
	}

	if err := m.producer.PublishFrame(ctx, streamID, task); err != nil {
		return fmt.Errorf("publish frame task: %w", err)
	}

	observability.FramesIngested.WithLabelValues(streamID).Inc()
	return nil
}

func (m *Manager) stopStream(streamID string) error {
	m.mu.RLock()
	as, exists := m.streams[streamID]
	m.mu.RUnlock()

	if !exists {
		return nil // Already stopped
	}

	as.extractor.Stop()
	as.cancel()

	slog.Info("stop command sent", "stream_id", streamID)
	return nil
}

func (m *Manager) publishStatus(streamID string, status models.StreamStatus, errMsg string) {
	id, err := uuid.Parse(streamID)
	if err != nil {
		return
	}
	event := models.StatusEvent{
		Kind:      models.EventKindStatus,
		StreamID:  id,
		Status:    string(status),
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
	if err := m.producer.PublishEvent(context.Background(), streamID, event); err != nil {
		slog.Error("publish stream status", "stream_id", streamID, "error", err)
	}
}

// ActiveCount returns the number of currently running streams.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// StopAll stops all running streams.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.stopStream(id)
	}
}

// RunCleanup periodically prunes stale frame objects of active streams.
// Workers delete frames they process; this sweep catches frames left behind
// by crashed workers or redelivery drops.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		ids := make([]string, 0, len(m.streams))
		for id := range m.streams {
			ids = append(ids, id)
		}
		m.mu.RUnlock()

		for _, id := range ids {
			pruned, err := m.store.PruneStream(ctx, id, m.cfg.FrameRetention)
			if err != nil {
				slog.Warn("prune stream frames", "stream_id", id, "error", err)
				continue
			}
			if pruned > 0 {
				slog.Debug("pruned stale frames", "stream_id", id, "count", pruned)
			}
		}
	}
}

// ParseCommand parses a NATS message into a StreamCommand.
func ParseCommand(data []byte) (StreamCommand, error) {
	var cmd StreamCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}
