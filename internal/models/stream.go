package models

import (
	"time"

	"github.com/google/uuid"
)

type StreamType string

const (
	StreamTypeRTSP    StreamType = "rtsp"
	StreamTypeHTTP    StreamType = "http"
	StreamTypeFile    StreamType = "file"
	StreamTypeYouTube StreamType = "youtube"
)

type StreamStatus string

const (
	StreamStatusStopped  StreamStatus = "stopped"
	StreamStatusStarting StreamStatus = "starting"
	StreamStatusRunning  StreamStatus = "running"
	StreamStatusError    StreamStatus = "error"
)

type Stream struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	StreamType   StreamType   `json:"stream_type"`
	FPS          int          `json:"fps"`
	Status       StreamStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// StreamStats is the latest tracking state of a stream, maintained by the API
// from the worker's event feed.
type StreamStats struct {
	FrameID      uint64    `json:"frame_id"`
	Outcome      string    `json:"outcome"`
	ActiveTracks int       `json:"active_tracks"`
	Quality      float64   `json:"quality"`
	UpdatedAt    time.Time `json:"updated_at"`
}
