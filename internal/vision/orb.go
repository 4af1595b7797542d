package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/your-org/artrack/internal/track"
)

// ORBConfig holds the fixed detector parameters. The feature budget is not
// part of it: that is decided per call by the engine.
type ORBConfig struct {
	ScaleFactor   float32 `yaml:"scale_factor"`
	Levels        int     `yaml:"levels"`
	EdgeThreshold int     `yaml:"edge_threshold"`
	PatchSize     int     `yaml:"patch_size"`
	FastThreshold int     `yaml:"fast_threshold"`
}

// DefaultORBConfig returns the reference detector configuration: an 8-level
// pyramid with Harris-scored corners.
func DefaultORBConfig() ORBConfig {
	return ORBConfig{
		ScaleFactor:   1.2,
		Levels:        8,
		EdgeThreshold: 31,
		PatchSize:     31,
		FastThreshold: 20,
	}
}

// ORBDetector implements track.Detector with OpenCV's ORB.
type ORBDetector struct {
	cfg ORBConfig
}

func NewORBDetector(cfg ORBConfig) *ORBDetector {
	def := DefaultORBConfig()
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = def.ScaleFactor
	}
	if cfg.Levels <= 0 {
		cfg.Levels = def.Levels
	}
	if cfg.EdgeThreshold <= 0 {
		cfg.EdgeThreshold = def.EdgeThreshold
	}
	if cfg.PatchSize <= 0 {
		cfg.PatchSize = def.PatchSize
	}
	if cfg.FastThreshold <= 0 {
		cfg.FastThreshold = def.FastThreshold
	}
	return &ORBDetector{cfg: cfg}
}

// Detect extracts up to maxFeatures keypoints with descriptors. ORB fixes its
// feature budget at construction time, so a detector instance is built per
// call.
func (d *ORBDetector) Detect(img track.Image, maxFeatures int, mask *track.Mask) ([]track.Feature, error) {
	m, err := matOf(img)
	if err != nil {
		return nil, err
	}

	orb := gocv.NewORBWithParams(
		maxFeatures,
		d.cfg.ScaleFactor,
		d.cfg.Levels,
		d.cfg.EdgeThreshold,
		0, // firstLevel
		2, // WTA_K
		gocv.ORBScoreTypeHarris,
		d.cfg.PatchSize,
		d.cfg.FastThreshold,
	)
	defer orb.Close()

	maskMat := gocv.NewMat()
	if mask != nil && len(mask.Centers) > 0 {
		_ = maskMat.Close()
		maskMat = renderExclusionMask(m.Rows(), m.Cols(), mask)
	}
	defer maskMat.Close()

	kps, desc := orb.DetectAndCompute(m, maskMat)
	defer desc.Close()

	feats := make([]track.Feature, 0, len(kps))
	for i, kp := range kps {
		ft := track.Feature{
			Pt:       track.Point{X: float32(kp.X), Y: float32(kp.Y)},
			Response: float32(kp.Response),
			Octave:   kp.Octave,
		}
		if i < desc.Rows() {
			row := desc.RowRange(i, i+1)
			ft.Descriptor = row.ToBytes()
			_ = row.Close()
		}
		feats = append(feats, ft)
	}
	return feats, nil
}

// renderExclusionMask paints the detectable region white and cuts a filled
// circle around every already-tracked point.
func renderExclusionMask(rows, cols int, mask *track.Mask) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
	for _, c := range mask.Centers {
		gocv.Circle(&m, image.Pt(int(c.X), int(c.Y)), mask.Radius, color.RGBA{}, -1)
	}
	return m
}
