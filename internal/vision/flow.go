package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/your-org/artrack/internal/track"
)

// PyrLKFlow implements track.FlowTracker with pyramidal Lucas-Kanade sparse
// optical flow.
type PyrLKFlow struct{}

func NewPyrLKFlow() *PyrLKFlow { return &PyrLKFlow{} }

func (*PyrLKFlow) Track(prev, curr track.Image, pts []track.Point, winSize, maxLevel int) ([]track.Point, []bool, []float32, error) {
	pm, err := matOf(prev)
	if err != nil {
		return nil, nil, nil, err
	}
	cm, err := matOf(curr)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(pts) == 0 {
		return nil, nil, nil, nil
	}

	prevPts := pointsToMat(pts)
	defer prevPts.Close()
	currPts := gocv.NewMat()
	defer currPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	residual := gocv.NewMat()
	defer residual.Close()

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, 30, 0.01)
	gocv.CalcOpticalFlowPyrLKWithParams(pm, cm, prevPts, currPts, &status, &residual,
		image.Pt(winSize, winSize), maxLevel, criteria, 0, 1e-4)

	n := len(pts)
	next := make([]track.Point, n)
	found := make([]bool, n)
	res := make([]float32, n)
	for i := 0; i < n; i++ {
		if i < currPts.Rows() {
			next[i] = track.Point{
				X: currPts.GetFloatAt(i, 0),
				Y: currPts.GetFloatAt(i, 1),
			}
		}
		if i < status.Rows() {
			found[i] = status.GetUCharAt(i, 0) == 1
		}
		if i < residual.Rows() {
			res[i] = residual.GetFloatAt(i, 0)
		}
	}
	return next, found, res, nil
}
