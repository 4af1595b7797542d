package track

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubImage is a bounds-only image; close tracking verifies the engine's
// single-owner frame handling.
type stubImage struct {
	w, h   int
	closed bool
}

func (s *stubImage) Bounds() image.Rectangle { return image.Rect(0, 0, s.w, s.h) }
func (s *stubImage) Close() error            { s.closed = true; return nil }

func newStubImage() *stubImage { return &stubImage{w: 640, h: 480} }

type detectCall struct {
	maxFeatures int
	mask        *Mask
}

type stubDetector struct {
	batches [][]Feature // consumed one per call; last batch repeats
	err     error
	calls   []detectCall
}

func (d *stubDetector) Detect(_ Image, maxFeatures int, mask *Mask) ([]Feature, error) {
	d.calls = append(d.calls, detectCall{maxFeatures: maxFeatures, mask: mask})
	if d.err != nil {
		return nil, d.err
	}
	if len(d.batches) == 0 {
		return nil, nil
	}
	batch := d.batches[0]
	if len(d.batches) > 1 {
		d.batches = d.batches[1:]
	}
	return batch, nil
}

type flowReply struct {
	next     []Point
	found    []bool
	residual []float32
}

type stubFlow struct {
	replies []flowReply
	err     error
	calls   int
}

func (f *stubFlow) Track(_, _ Image, pts []Point, _, _ int) ([]Point, []bool, []float32, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	if len(f.replies) == 0 {
		panic("stubFlow: no reply scripted")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.next, r.found, r.residual, nil
}

type filterCall struct {
	prev, curr []Point
}

type stubFilter struct {
	masks [][]bool
	err   error
	calls []filterCall
}

func (f *stubFilter) FilterInliers(prev, curr []Point, _, _ float64) ([]bool, error) {
	f.calls = append(f.calls, filterCall{prev: prev, curr: curr})
	if f.err != nil {
		return nil, f.err
	}
	mask := f.masks[0]
	if len(f.masks) > 1 {
		f.masks = f.masks[1:]
	}
	return mask, nil
}

// passFlow moves every point one pixel right with a low residual.
func passFlow(n int) flowReply {
	r := flowReply{
		next:     make([]Point, n),
		found:    make([]bool, n),
		residual: make([]float32, n),
	}
	for i := 0; i < n; i++ {
		r.next[i] = Point{X: float32(10 + i%600), Y: float32(10 + i/600)}
		r.found[i] = true
		r.residual[i] = 1.0
	}
	return r
}

func features(n int) []Feature {
	out := make([]Feature, n)
	for i := range out {
		out[i] = Feature{
			Pt:       Point{X: float32(i % 600), Y: float32(i / 600 * 5)},
			Response: 0.5,
			Octave:   0,
		}
	}
	return out
}

func boolMask(n, keep int) []bool {
	out := make([]bool, n)
	for i := 0; i < keep; i++ {
		out[i] = true
	}
	return out
}

func TestEngineBootstrap(t *testing.T) {
	t.Parallel()

	det := &stubDetector{batches: [][]Feature{features(420)}}
	eng := NewEngine(DefaultConfig(), det, &stubFlow{}, &stubFilter{})

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeBootstrapped, res.Outcome)
	assert.Equal(t, 420, res.NumTracked)
	assert.Equal(t, 1.0, res.Quality)
	assert.Len(t, res.CurrPoints, 420)
	assert.Len(t, res.TrackIDs, 420)
	assert.Len(t, res.Inliers, 420)

	seen := make(map[int64]bool)
	for _, id := range res.TrackIDs {
		assert.False(t, seen[id], "identity %d issued twice", id)
		seen[id] = true
	}

	require.Len(t, det.calls, 1)
	assert.Equal(t, 1000, det.calls[0].maxFeatures)
	assert.Nil(t, det.calls[0].mask)
}

func TestEngineHealthyContinuation(t *testing.T) {
	t.Parallel()

	// Bootstrap with 200 tracks; flow keeps 150, the geometric filter keeps
	// 120 of those (80% passes the guard), then augmentation adds 10.
	flow := passFlow(200)
	for i := 150; i < 200; i++ {
		flow.found[i] = false
	}

	det := &stubDetector{batches: [][]Feature{features(200), features(10)}}
	fl := &stubFlow{replies: []flowReply{flow}}
	fi := &stubFilter{masks: [][]bool{boolMask(150, 120)}}
	eng := NewEngine(DefaultConfig(), det, fl, fi)

	_, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeContinued, res.Outcome)
	assert.InDelta(t, 0.6, res.Quality, 1e-9)
	assert.Equal(t, 130, res.NumTracked)
	assert.Equal(t, 120, res.NumInliers)
	assert.Equal(t, 10, res.Augmented)
	assert.Len(t, res.CurrPoints, 130)
	assert.Len(t, res.TrackIDs, 130)
	assert.Len(t, res.Inliers, 130)
	assert.Len(t, res.PrevPoints, 120)

	// Surviving identities carry over index-aligned; augmented ones are new.
	for i := 0; i < 120; i++ {
		assert.Equal(t, int64(i), res.TrackIDs[i])
	}
	for i := 120; i < 130; i++ {
		assert.GreaterOrEqual(t, res.TrackIDs[i], int64(200))
	}

	// The augmentation pass detects with the remaining budget and an
	// exclusion mask around every kept point.
	require.Len(t, det.calls, 2)
	assert.Equal(t, 380, det.calls[1].maxFeatures)
	require.NotNil(t, det.calls[1].mask)
	assert.Len(t, det.calls[1].mask.Centers, 120)
	assert.Equal(t, 20, det.calls[1].mask.Radius)

	assert.Equal(t, 130, eng.ActiveTracks())
}

func TestEngineForcedReinitialization(t *testing.T) {
	t.Parallel()

	// Only 80 of 200 survive: quality 0.4 < 0.5 forces a full re-detection.
	flow := passFlow(200)
	for i := 80; i < 200; i++ {
		flow.found[i] = false
	}

	det := &stubDetector{batches: [][]Feature{features(200), features(300)}}
	fl := &stubFlow{replies: []flowReply{flow}}
	fi := &stubFilter{masks: [][]bool{boolMask(80, 80)}}
	eng := NewEngine(DefaultConfig(), det, fl, fi)

	first, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeReinitialized, res.Outcome)
	assert.Equal(t, 1.0, res.Quality)
	assert.Equal(t, 300, res.NumTracked)

	// No identity from before the re-initialization survives.
	old := make(map[int64]bool)
	for _, id := range first.TrackIDs {
		old[id] = true
	}
	for _, id := range res.TrackIDs {
		assert.False(t, old[id], "identity %d reused after re-initialization", id)
	}
}

func TestEngineGuardRejectsOverPruning(t *testing.T) {
	t.Parallel()

	// The filter keeps only 50 of 150 survivors (33% < 50% guard), so its
	// output is discarded and the flow survivors stand.
	flow := passFlow(200)
	for i := 150; i < 200; i++ {
		flow.found[i] = false
	}

	det := &stubDetector{batches: [][]Feature{features(200), nil}}
	fl := &stubFlow{replies: []flowReply{flow}}
	fi := &stubFilter{masks: [][]bool{boolMask(150, 50)}}
	eng := NewEngine(DefaultConfig(), det, fl, fi)

	_, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeContinued, res.Outcome)
	assert.InDelta(t, 0.75, res.Quality, 1e-9)
	assert.Equal(t, 150, res.NumTracked)
	assert.Equal(t, 150, res.NumInliers)
	assert.Equal(t, 0, res.Augmented)
}

func TestEngineSkipsFilterBelowMinPairs(t *testing.T) {
	t.Parallel()

	// 7 survivors out of 10: below the 8-pair minimum, so the filter must
	// not be invoked at all. The low count then forces re-initialization.
	cfg := DefaultConfig()
	cfg.MinFeatures = 5
	cfg.MinQuality = 0.9

	flow := passFlow(10)
	for i := 7; i < 10; i++ {
		flow.found[i] = false
	}

	det := &stubDetector{batches: [][]Feature{features(10), features(10)}}
	fi := &stubFilter{masks: [][]bool{boolMask(7, 7)}}
	eng := NewEngine(cfg, det, &stubFlow{replies: []flowReply{flow}}, fi)

	_, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)
	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Empty(t, fi.calls)
	assert.Equal(t, OutcomeReinitialized, res.Outcome)
}

func TestEngineSurvivorFiltering(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinFeatures = 1
	cfg.MinQuality = 0.01

	// 10 tracks: index 0 lost by flow, 1 over the residual ceiling, 2 out of
	// bounds; the remaining 7 survive.
	flow := passFlow(10)
	flow.found[0] = false
	flow.residual[1] = 30.0
	flow.next[2] = Point{X: 640, Y: 10}

	det := &stubDetector{batches: [][]Feature{features(10), nil}}
	eng := NewEngine(cfg, det, &stubFlow{replies: []flowReply{flow}}, &stubFilter{})

	_, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)
	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeContinued, res.Outcome)
	assert.Equal(t, 7, res.NumTracked)
	assert.Equal(t, []int64{3, 4, 5, 6, 7, 8, 9}, res.TrackIDs[:7])
	assert.InDelta(t, 0.7, res.Quality, 1e-9)
}

func TestEngineNoFeaturesOutcome(t *testing.T) {
	t.Parallel()

	det := &stubDetector{batches: [][]Feature{nil}}
	eng := NewEngine(DefaultConfig(), det, &stubFlow{}, &stubFilter{})

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoFeatures, res.Outcome)
	assert.Equal(t, 0, res.NumTracked)
	assert.Equal(t, 0.0, res.Quality)
	assert.Equal(t, 0, eng.ActiveTracks())

	// Extraction is retried a bounded number of times, never more.
	assert.Len(t, det.calls, DefaultConfig().MaxBootstrapAttempts)

	// The drained table makes the next step another bootstrap, not an error.
	det.batches = [][]Feature{features(50)}
	res, err = eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBootstrapped, res.Outcome)
	assert.Equal(t, 50, res.NumTracked)
	assert.Equal(t, 1.0, res.Quality)
}

func TestEngineBootstrapRetriesWithinStep(t *testing.T) {
	t.Parallel()

	// Second attempt inside the same step finds features.
	det := &stubDetector{batches: [][]Feature{nil, features(30), nil}}
	eng := NewEngine(DefaultConfig(), det, &stubFlow{}, &stubFilter{})

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeBootstrapped, res.Outcome)
	assert.Equal(t, 30, res.NumTracked)
	assert.Len(t, det.calls, 2)
}

func TestEngineReset(t *testing.T) {
	t.Parallel()

	det := &stubDetector{batches: [][]Feature{features(10), features(10)}}
	eng := NewEngine(DefaultConfig(), det, &stubFlow{}, &stubFilter{})

	img := newStubImage()
	first, err := eng.Step(NewFrame(img))
	require.NoError(t, err)

	eng.Reset()
	assert.Equal(t, 0, eng.ActiveTracks())
	assert.True(t, img.closed, "reset must release the held frame image")

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBootstrapped, res.Outcome)
	assert.Equal(t, 1.0, res.Quality)

	// Identity allocation continues: nothing from before the reset reappears.
	old := make(map[int64]bool)
	for _, id := range first.TrackIDs {
		old[id] = true
	}
	for _, id := range res.TrackIDs {
		assert.False(t, old[id], "identity %d reused after reset", id)
	}
}

func TestEngineReleasesReplacedFrameImage(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinFeatures = 1
	cfg.MinQuality = 0.01
	cfg.TargetFeatures = 10

	det := &stubDetector{batches: [][]Feature{features(10)}}
	eng := NewEngine(cfg, det, &stubFlow{replies: []flowReply{passFlow(10)}}, &stubFilter{masks: [][]bool{boolMask(10, 10)}})

	firstImg := newStubImage()
	_, err := eng.Step(NewFrame(firstImg))
	require.NoError(t, err)
	assert.False(t, firstImg.closed)

	secondImg := newStubImage()
	_, err = eng.Step(NewFrame(secondImg))
	require.NoError(t, err)

	assert.True(t, firstImg.closed, "previous frame image must be released")
	assert.False(t, secondImg.closed)
}

func TestEngineCapabilityErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("malformed buffer")

	t.Run("detector at bootstrap", func(t *testing.T) {
		t.Parallel()
		det := &stubDetector{err: boom}
		eng := NewEngine(DefaultConfig(), det, &stubFlow{}, &stubFilter{})

		_, err := eng.Step(NewFrame(newStubImage()))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("optical flow", func(t *testing.T) {
		t.Parallel()
		det := &stubDetector{batches: [][]Feature{features(10)}}
		eng := NewEngine(DefaultConfig(), det, &stubFlow{err: boom}, &stubFilter{})

		_, err := eng.Step(NewFrame(newStubImage()))
		require.NoError(t, err)
		_, err = eng.Step(NewFrame(newStubImage()))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("inlier filter", func(t *testing.T) {
		t.Parallel()
		det := &stubDetector{batches: [][]Feature{features(10)}}
		fl := &stubFlow{replies: []flowReply{passFlow(10)}}
		eng := NewEngine(DefaultConfig(), det, fl, &stubFilter{err: boom})

		_, err := eng.Step(NewFrame(newStubImage()))
		require.NoError(t, err)
		_, err = eng.Step(NewFrame(newStubImage()))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("nil frame", func(t *testing.T) {
		t.Parallel()
		eng := NewEngine(DefaultConfig(), &stubDetector{}, &stubFlow{}, &stubFilter{})
		_, err := eng.Step(nil)
		assert.Error(t, err)
	})
}

func TestEngineInvariantsOverSequence(t *testing.T) {
	t.Parallel()

	det := &stubDetector{batches: [][]Feature{features(200), features(5)}}
	fl := &stubFlow{}
	fi := &stubFilter{}
	eng := NewEngine(DefaultConfig(), det, fl, fi)

	issued := make(map[int64]int)

	check := func(res Result, step int) {
		assert.Len(t, res.CurrPoints, res.NumTracked, "step %d", step)
		assert.Len(t, res.TrackIDs, res.NumTracked, "step %d", step)
		assert.Len(t, res.Inliers, res.NumTracked, "step %d", step)
		assert.GreaterOrEqual(t, res.Quality, 0.0, "step %d", step)
		assert.LessOrEqual(t, res.Quality, 1.0, "step %d", step)
		assert.LessOrEqual(t, res.NumInliers, res.NumTracked, "step %d", step)

		live := make(map[int64]bool)
		for _, id := range res.TrackIDs {
			assert.False(t, live[id], "step %d: duplicate live identity %d", step, id)
			live[id] = true
		}
	}

	res, err := eng.Step(NewFrame(newStubImage()))
	require.NoError(t, err)
	check(res, 0)
	for _, id := range res.TrackIDs {
		issued[id]++
	}

	for step := 1; step <= 6; step++ {
		n := eng.ActiveTracks()
		reply := passFlow(n)
		// Degrade progressively so re-initialization kicks in mid-sequence.
		lost := n * step / 8
		for i := n - lost; i < n; i++ {
			reply.found[i] = false
		}
		fl.replies = []flowReply{reply}
		fi.masks = [][]bool{boolMask(n-lost, n-lost)}

		res, err := eng.Step(NewFrame(newStubImage()))
		require.NoError(t, err)
		check(res, step)

		if res.Outcome == OutcomeContinued {
			before := len(res.PrevPoints)
			assert.LessOrEqual(t, res.NumInliers, n,
				"step %d: filtering may not grow the set", step)
			assert.LessOrEqual(t, before, n, "step %d", step)
		}

		for i, id := range res.TrackIDs {
			if res.Outcome == OutcomeContinued && i < res.NumTracked-res.Augmented {
				continue // carried over, already counted
			}
			issued[id]++
			assert.Equal(t, 1, issued[id],
				"step %d: identity %d issued more than once", step, id)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	cases := map[Outcome]string{
		OutcomeBootstrapped:  "bootstrapped",
		OutcomeContinued:     "continued",
		OutcomeReinitialized: "reinitialized",
		OutcomeNoFeatures:    "no_features",
		Outcome(99):          "unknown",
	}
	for o, want := range cases {
		assert.Equal(t, want, o.String(), fmt.Sprintf("outcome %d", int(o)))
	}
}
