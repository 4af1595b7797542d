// Package track maintains a persistent set of 2D visual landmarks across a
// live image sequence. The Engine decides, frame by frame, whether to keep
// following previously found points, discard them and start over, or top them
// up with freshly detected ones. Keypoint detection, sparse optical flow and
// robust two-view filtering are supplied by the caller through the capability
// interfaces below; gocv-backed implementations live in internal/vision.
package track

import "image"

// Point is a 2D pixel coordinate.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Feature is one detected keypoint: pixel location, opaque descriptor bytes
// from the detector, response strength and scale-space octave.
type Feature struct {
	Pt         Point
	Descriptor []byte
	Response   float32
	Octave     int
}

// Image is the minimal view of a frame's pixel buffer the engine needs.
// Concrete images may additionally implement io.Closer; the engine releases
// an image when it replaces its previous-frame slot.
type Image interface {
	Bounds() image.Rectangle
}

// Mask suppresses detections within Radius pixels of any center.
// A nil *Mask means no exclusion.
type Mask struct {
	Centers []Point
	Radius  int
}

// Detector produces up to maxFeatures keypoints ordered by the detector's
// internal ranking. Returning zero features is not an error.
type Detector interface {
	Detect(img Image, maxFeatures int, mask *Mask) ([]Feature, error)
}

// FlowTracker propagates points from prev to curr via sparse optical flow.
// All three outputs are index-aligned with pts.
type FlowTracker interface {
	Track(prev, curr Image, pts []Point, winSize, maxLevel int) (next []Point, found []bool, residual []float32, err error)
}

// InlierFilter estimates a robust two-view model between matched point sets
// and reports which pairs are inliers. Results are undefined below
// MinFilterPairs pairs; the engine never calls it with fewer.
type InlierFilter interface {
	FilterInliers(prev, curr []Point, threshold, confidence float64) ([]bool, error)
}

// MinFilterPairs is the smallest matched set a two-view model can be
// estimated from.
const MinFilterPairs = 8
