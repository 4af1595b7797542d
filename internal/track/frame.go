package track

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

var frameSeq atomic.Uint64

// Frame is one image's feature snapshot: the grayscale pixel buffer used for
// flow computation plus the keypoints last extracted from it. A Frame owns its
// image exclusively; the engine holds at most one previous Frame at a time.
type Frame struct {
	ID        uint64
	Timestamp time.Time
	Image     Image

	// Features holds the result of the most recent ExtractFeatures call.
	Features []Feature

	// ExtractLatency is the wall-clock duration of that call.
	ExtractLatency time.Duration
}

// NewFrame wraps img in a Frame with a fresh process-unique ID.
func NewFrame(img Image) *Frame {
	return NewFrameAt(img, time.Now())
}

// NewFrameAt is NewFrame with an explicit capture timestamp.
func NewFrameAt(img Image, ts time.Time) *Frame {
	return &Frame{
		ID:        frameSeq.Add(1),
		Timestamp: ts,
		Image:     img,
	}
}

// ExtractFeatures runs the detector on the frame's image and stores the
// result, replacing any features from a previous call. Zero detections leave
// an empty (valid) feature list.
func (f *Frame) ExtractFeatures(det Detector, maxFeatures int, mask *Mask) error {
	if maxFeatures <= 0 {
		return fmt.Errorf("extract features: maxFeatures must be positive, got %d", maxFeatures)
	}

	start := time.Now()
	feats, err := det.Detect(f.Image, maxFeatures, mask)
	if err != nil {
		return fmt.Errorf("extract features: %w", err)
	}

	f.Features = feats
	f.ExtractLatency = time.Since(start)

	slog.Debug("extracted features",
		"frame_id", f.ID,
		"count", len(feats),
		"latency", f.ExtractLatency.String(),
	)
	return nil
}
