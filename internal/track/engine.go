package track

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
)

// Config holds the engine's policy thresholds. Zero fields are replaced with
// the reference values from DefaultConfig.
type Config struct {
	// MaxFeatures is the detection budget for bootstrap and re-initialization.
	MaxFeatures int

	// TargetFeatures is the track count the augmentation pass tops up toward.
	TargetFeatures int

	// MinFeatures is the floor below which tracking is declared lost.
	MinFeatures int

	// MinQuality is the retention ratio below which tracking is declared lost.
	MinQuality float64

	// MaxFlowError is the per-point flow residual ceiling for survivors.
	MaxFlowError float32

	// WinSize and PyrLevels parameterize the sparse optical flow search.
	WinSize   int
	PyrLevels int

	// FilterThreshold and FilterConfidence parameterize the robust two-view
	// inlier filter.
	FilterThreshold  float64
	FilterConfidence float64

	// GuardRatio: a filter result keeping no more than this fraction of its
	// input is discarded and the pre-filter survivors are kept instead.
	GuardRatio float64

	// MaskRadius is the exclusion radius (pixels) around tracked points
	// during augmentation.
	MaskRadius int

	// MaxBootstrapAttempts bounds repeated extraction tries within one step
	// before the step resolves to OutcomeNoFeatures.
	MaxBootstrapAttempts int
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		MaxFeatures:          1000,
		TargetFeatures:       500,
		MinFeatures:          100,
		MinQuality:           0.5,
		MaxFlowError:         30.0,
		WinSize:              21,
		PyrLevels:            3,
		FilterThreshold:      3.0,
		FilterConfidence:     0.99,
		GuardRatio:           0.5,
		MaskRadius:           20,
		MaxBootstrapAttempts: 3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = def.MaxFeatures
	}
	if c.TargetFeatures <= 0 {
		c.TargetFeatures = def.TargetFeatures
	}
	if c.MinFeatures <= 0 {
		c.MinFeatures = def.MinFeatures
	}
	if c.MinQuality <= 0 {
		c.MinQuality = def.MinQuality
	}
	if c.MaxFlowError <= 0 {
		c.MaxFlowError = def.MaxFlowError
	}
	if c.WinSize <= 0 {
		c.WinSize = def.WinSize
	}
	if c.PyrLevels <= 0 {
		c.PyrLevels = def.PyrLevels
	}
	if c.FilterThreshold <= 0 {
		c.FilterThreshold = def.FilterThreshold
	}
	if c.FilterConfidence <= 0 {
		c.FilterConfidence = def.FilterConfidence
	}
	if c.GuardRatio <= 0 {
		c.GuardRatio = def.GuardRatio
	}
	if c.MaskRadius <= 0 {
		c.MaskRadius = def.MaskRadius
	}
	if c.MaxBootstrapAttempts <= 0 {
		c.MaxBootstrapAttempts = def.MaxBootstrapAttempts
	}
	return c
}

// Engine is the per-stream tracking state machine. It owns the track table
// (current positions plus parallel identities), the identity counter and a
// single previous-frame slot.
//
// An Engine is not safe for concurrent use: steps must be submitted one at a
// time, in capture order. Run one Engine per stream.
type Engine struct {
	cfg      Config
	detector Detector
	flow     FlowTracker
	filter   InlierFilter

	prev   *Frame
	points []Point
	ids    []int64
	nextID int64
}

// NewEngine builds an engine around the three capability implementations.
func NewEngine(cfg Config, det Detector, flow FlowTracker, filter InlierFilter) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		detector: det,
		flow:     flow,
		filter:   filter,
	}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ActiveTracks returns the number of tracks currently in the table.
func (e *Engine) ActiveTracks() int { return len(e.points) }

// Reset clears the track table and the previous-frame slot. Identity
// allocation continues from where it left off so identities issued before the
// reset are never reissued after it.
func (e *Engine) Reset() {
	if e.prev != nil {
		releaseImage(e.prev.Image)
		e.prev = nil
	}
	e.points = nil
	e.ids = nil
	slog.Debug("tracking engine reset")
}

// Step consumes the next frame in capture order and returns the tracking
// result for it. On success the engine takes ownership of the frame and
// releases the one it held before; on error ownership stays with the caller
// and the engine's state is unchanged.
func (e *Engine) Step(frame *Frame) (Result, error) {
	if frame == nil || frame.Image == nil {
		return Result{}, errors.New("track: step requires a frame with an image")
	}

	// An empty table covers both the very first frame and a table drained by
	// an earlier zero-detection step.
	if e.prev == nil || len(e.points) == 0 {
		return e.bootstrap(frame)
	}

	prevCount := len(e.points)

	cand, found, residual, err := e.flow.Track(
		e.prev.Image, frame.Image, e.points, e.cfg.WinSize, e.cfg.PyrLevels)
	if err != nil {
		return Result{}, fmt.Errorf("optical flow: %w", err)
	}

	// Survivor set: flow-valid, low-residual, strictly inside the image.
	bounds := frame.Image.Bounds()
	prevPts := make([]Point, 0, prevCount)
	currPts := make([]Point, 0, prevCount)
	ids := make([]int64, 0, prevCount)
	for i := range cand {
		if i >= len(found) || i >= len(residual) || i >= len(e.points) {
			break
		}
		if !found[i] || residual[i] >= e.cfg.MaxFlowError {
			continue
		}
		if !inBounds(cand[i], bounds) {
			continue
		}
		prevPts = append(prevPts, e.points[i])
		currPts = append(currPts, cand[i])
		ids = append(ids, e.ids[i])
	}

	survivors := len(currPts)
	numInliers := survivors

	if survivors >= MinFilterPairs {
		mask, err := e.filter.FilterInliers(prevPts, currPts, e.cfg.FilterThreshold, e.cfg.FilterConfidence)
		if err != nil {
			return Result{}, fmt.Errorf("inlier filter: %w", err)
		}
		kept := 0
		for i := 0; i < survivors && i < len(mask); i++ {
			if mask[i] {
				kept++
			}
		}
		// Sanity guard: a fit that rejects half or more of genuinely tracked
		// points is more likely degenerate than right.
		if float64(kept) > float64(survivors)*e.cfg.GuardRatio {
			n := 0
			for i := 0; i < survivors && i < len(mask); i++ {
				if !mask[i] {
					continue
				}
				prevPts[n] = prevPts[i]
				currPts[n] = currPts[i]
				ids[n] = ids[i]
				n++
			}
			prevPts = prevPts[:n]
			currPts = currPts[:n]
			ids = ids[:n]
			numInliers = n
		} else {
			slog.Debug("inlier filter over-pruned, keeping flow survivors",
				"kept", kept,
				"survivors", survivors,
			)
		}
	}

	quality := RetentionRatio(prevCount, len(currPts))

	if quality < e.cfg.MinQuality || len(currPts) < e.cfg.MinFeatures {
		slog.Info("tracking lost, re-detecting",
			"quality", quality,
			"tracked", len(currPts),
			"previous", prevCount,
		)
		res, err := e.bootstrap(frame)
		if err != nil {
			return Result{}, err
		}
		if res.Outcome == OutcomeBootstrapped {
			res.Outcome = OutcomeReinitialized
		}
		return res, nil
	}

	res := Result{
		Outcome:    OutcomeContinued,
		PrevPoints: prevPts,
		CurrPoints: clonePoints(currPts),
		TrackIDs:   cloneIDs(ids),
		Inliers:    trueFlags(len(currPts)),
		NumTracked: len(currPts),
		NumInliers: numInliers,
		Quality:    quality,
	}

	// Top up toward the target, avoiding the neighborhood of live tracks.
	// The reported quality stays as computed above.
	if len(currPts) < e.cfg.TargetFeatures {
		budget := e.cfg.TargetFeatures - len(currPts)
		mask := &Mask{Centers: currPts, Radius: e.cfg.MaskRadius}
		if err := frame.ExtractFeatures(e.detector, budget, mask); err != nil {
			return Result{}, fmt.Errorf("augmentation: %w", err)
		}
		for _, ft := range frame.Features {
			if len(currPts) >= e.cfg.TargetFeatures {
				break
			}
			currPts = append(currPts, ft.Pt)
			ids = append(ids, e.allocID())
			res.Augmented++
		}
		if res.Augmented > 0 {
			res.CurrPoints = clonePoints(currPts)
			res.TrackIDs = cloneIDs(ids)
			res.Inliers = append(res.Inliers, trueFlags(res.Augmented)...)
			res.NumTracked = len(currPts)
			slog.Debug("augmented tracks",
				"added", res.Augmented,
				"total", len(currPts),
			)
		}
	}

	e.replacePrev(frame)
	e.points = currPts
	e.ids = ids

	return res, nil
}

// bootstrap discards the table and rebuilds it from a fresh detection pass on
// the given frame, issuing new identities for every point. Repeated empty
// extractions resolve to OutcomeNoFeatures after a bounded number of
// attempts instead of recursing.
func (e *Engine) bootstrap(frame *Frame) (Result, error) {
	for attempt := 1; attempt <= e.cfg.MaxBootstrapAttempts; attempt++ {
		if err := frame.ExtractFeatures(e.detector, e.cfg.MaxFeatures, nil); err != nil {
			return Result{}, fmt.Errorf("bootstrap: %w", err)
		}
		if len(frame.Features) > 0 {
			break
		}
		slog.Debug("bootstrap extraction found no features",
			"frame_id", frame.ID,
			"attempt", attempt,
		)
	}

	pts := make([]Point, 0, len(frame.Features))
	ids := make([]int64, 0, len(frame.Features))
	for _, ft := range frame.Features {
		pts = append(pts, ft.Pt)
		ids = append(ids, e.allocID())
	}

	e.replacePrev(frame)
	e.points = pts
	e.ids = ids

	if len(pts) == 0 {
		slog.Warn("no trackable features in frame", "frame_id", frame.ID)
		return Result{Outcome: OutcomeNoFeatures}, nil
	}

	slog.Info("initialized tracking", "tracks", len(pts), "frame_id", frame.ID)

	return Result{
		Outcome:    OutcomeBootstrapped,
		CurrPoints: clonePoints(pts),
		TrackIDs:   cloneIDs(ids),
		Inliers:    trueFlags(len(pts)),
		NumTracked: len(pts),
		NumInliers: len(pts),
		Quality:    1.0,
	}, nil
}

// allocID issues the next track identity. Identities are monotonic per engine
// and never reused, even across Reset.
func (e *Engine) allocID() int64 {
	id := e.nextID
	e.nextID++
	return id
}

// replacePrev swaps the previous-frame slot, releasing the old frame's image.
func (e *Engine) replacePrev(frame *Frame) {
	if e.prev != nil && e.prev != frame {
		releaseImage(e.prev.Image)
	}
	e.prev = frame
}

func releaseImage(img Image) {
	if c, ok := img.(io.Closer); ok {
		_ = c.Close()
	}
}

func inBounds(p Point, b image.Rectangle) bool {
	return p.X >= float32(b.Min.X) && p.X < float32(b.Max.X) &&
		p.Y >= float32(b.Min.Y) && p.Y < float32(b.Max.Y)
}

func clonePoints(pts []Point) []Point {
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

func cloneIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

func trueFlags(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}
