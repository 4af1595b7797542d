package dto

import "github.com/google/uuid"

// TrackingEventResponse mirrors the worker's per-frame output for WebSocket
// delivery.
type TrackingEventResponse struct {
	StreamID   uuid.UUID    `json:"stream_id"`
	FrameID    uint64       `json:"frame_id"`
	Timestamp  string       `json:"timestamp"`
	Outcome    string       `json:"outcome"`
	NumTracked int          `json:"num_tracked"`
	NumInliers int          `json:"num_inliers"`
	Quality    float64      `json:"quality"`
	Augmented  int          `json:"augmented"`
	Points     [][2]float32 `json:"points,omitempty"`
	TrackIDs   []int64      `json:"track_ids,omitempty"`
	StepMillis float64      `json:"step_millis"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type     string                 `json:"type"` // tracking, stream_status
	StreamID uuid.UUID              `json:"stream_id"`
	Data     *TrackingEventResponse `json:"data,omitempty"`
	Status   string                 `json:"status,omitempty"`
	Error    string                 `json:"error,omitempty"`
}
