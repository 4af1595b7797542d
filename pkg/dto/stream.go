package dto

import "github.com/google/uuid"

type CreateStreamRequest struct {
	Name       string `json:"name" binding:"required"`
	URL        string `json:"url" binding:"required"`
	StreamType string `json:"stream_type" binding:"required,oneof=rtsp http file youtube"`
	FPS        int    `json:"fps"`
}

type StreamResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	StreamType   string    `json:"stream_type"`
	FPS          int       `json:"fps"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

type StreamListResponse struct {
	Streams []StreamResponse `json:"streams"`
	Total   int              `json:"total"`
}

// StreamStatsResponse is the latest tracking state of one stream.
type StreamStatsResponse struct {
	StreamID     uuid.UUID `json:"stream_id"`
	FrameID      uint64    `json:"frame_id"`
	Outcome      string    `json:"outcome"`
	ActiveTracks int       `json:"active_tracks"`
	Quality      float64   `json:"quality"`
	UpdatedAt    string    `json:"updated_at"`
}
