package models

import (
	"time"

	"github.com/google/uuid"
)

// FrameTask is the message published to NATS for worker processing.
type FrameTask struct {
	StreamID  uuid.UUID `json:"stream_id"`
	FrameID   uint64    `json:"frame_id"` // capture sequence number, per stream
	Timestamp time.Time `json:"timestamp"`
	FrameRef  string    `json:"frame_ref"` // MinIO object key
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Event kinds carried on the events stream.
const (
	EventKindTracking = "tracking"
	EventKindStatus   = "stream_status"
)

// TrackingEvent is the output of the tracking engine for one frame.
type TrackingEvent struct {
	Kind       string       `json:"kind"`
	StreamID   uuid.UUID    `json:"stream_id"`
	FrameID    uint64       `json:"frame_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Outcome    string       `json:"outcome"` // bootstrapped, continued, reinitialized, no_features
	NumTracked int          `json:"num_tracked"`
	NumInliers int          `json:"num_inliers"`
	Quality    float64      `json:"quality"`
	Augmented  int          `json:"augmented"`
	Points     [][2]float32 `json:"points,omitempty"`
	TrackIDs   []int64      `json:"track_ids,omitempty"`
	StepMillis float64      `json:"step_millis"`
}

// StatusEvent reports an ingest-side stream lifecycle change.
type StatusEvent struct {
	Kind      string    `json:"kind"`
	StreamID  uuid.UUID `json:"stream_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
