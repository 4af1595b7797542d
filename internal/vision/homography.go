package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/your-org/artrack/internal/track"
)

// HomographyFilter implements track.InlierFilter with a RANSAC homography fit
// between the matched point sets. gocv carries no fundamental-matrix binding;
// over the small inter-frame baseline of consecutive video frames a robust
// homography plays the same outlier-rejection role.
type HomographyFilter struct{}

func NewHomographyFilter() *HomographyFilter { return &HomographyFilter{} }

const ransacMaxIters = 2000

func (*HomographyFilter) FilterInliers(prev, curr []track.Point, threshold, confidence float64) ([]bool, error) {
	if len(prev) != len(curr) {
		return nil, fmt.Errorf("inlier filter: mismatched point counts %d vs %d", len(prev), len(curr))
	}

	src := pointsToMat(prev)
	defer src.Close()
	dst := pointsToMat(curr)
	defer dst.Close()
	maskMat := gocv.NewMat()
	defer maskMat.Close()

	h := gocv.FindHomography(src, &dst, gocv.HomographyMethodRANSAC,
		threshold, &maskMat, ransacMaxIters, confidence)
	defer h.Close()

	inliers := make([]bool, len(prev))
	if h.Empty() {
		// Degenerate fit: report no inliers.
		return inliers, nil
	}
	for i := range inliers {
		if i < maskMat.Rows() {
			inliers[i] = maskMat.GetUCharAt(i, 0) != 0
		}
	}
	return inliers, nil
}
