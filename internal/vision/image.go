// Package vision provides the OpenCV-backed implementations of the tracking
// engine's capability contracts (keypoint detection, sparse optical flow,
// robust two-view filtering) plus the per-stream frame processing pipeline.
package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/your-org/artrack/internal/track"
)

// Image wraps a grayscale gocv.Mat and implements track.Image. The engine
// releases it via Close when the frame it belongs to is replaced.
type Image struct {
	mat gocv.Mat
}

// NewImage takes ownership of mat.
func NewImage(mat gocv.Mat) *Image {
	return &Image{mat: mat}
}

// DecodeGray decodes an encoded image (JPEG, PNG) into a grayscale Image.
func DecodeGray(data []byte) (*Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if mat.Empty() {
		_ = mat.Close()
		return nil, fmt.Errorf("decode image: empty frame")
	}
	return &Image{mat: mat}, nil
}

func (im *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, im.mat.Cols(), im.mat.Rows())
}

// Mat exposes the underlying pixel buffer to the capability implementations.
func (im *Image) Mat() gocv.Mat { return im.mat }

func (im *Image) Close() error { return im.mat.Close() }

func matOf(img track.Image) (gocv.Mat, error) {
	im, ok := img.(*Image)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("unsupported image type %T", img)
	}
	return im.mat, nil
}

// pointsToMat packs points into an Nx1 CV_32FC2 matrix, the layout OpenCV's
// sparse routines expect.
func pointsToMat(pts []track.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	for i, p := range pts {
		m.SetFloatAt(i, 0, p.X)
		m.SetFloatAt(i, 1, p.Y)
	}
	return m
}
