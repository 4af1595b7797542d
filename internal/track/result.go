package track

// Outcome names which branch of the step policy produced a Result.
type Outcome int

const (
	// OutcomeBootstrapped: the track table was empty and has been populated
	// from a fresh detection pass.
	OutcomeBootstrapped Outcome = iota

	// OutcomeContinued: existing tracks were propagated (and possibly topped
	// up with new detections).
	OutcomeContinued

	// OutcomeReinitialized: tracking degraded below the policy thresholds;
	// the table was discarded and rebuilt with all-new identities.
	OutcomeReinitialized

	// OutcomeNoFeatures: a bootstrap was required but the image yielded no
	// detectable features. The table is empty; the next step will try again.
	OutcomeNoFeatures
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBootstrapped:
		return "bootstrapped"
	case OutcomeContinued:
		return "continued"
	case OutcomeReinitialized:
		return "reinitialized"
	case OutcomeNoFeatures:
		return "no_features"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single engine step. Consumers must treat it as
// read-only; the slices never alias engine-owned state.
//
// CurrPoints, TrackIDs and Inliers are index-aligned and have NumTracked
// entries. PrevPoints is aligned with the surviving tracks only, so after an
// augmentation pass it is shorter than CurrPoints.
type Result struct {
	Outcome Outcome

	PrevPoints []Point
	CurrPoints []Point
	TrackIDs   []int64
	Inliers    []bool

	NumTracked int
	NumInliers int

	// Quality is the retention ratio for this step, in [0,1]. Bootstrap and
	// re-initialization report 1.0 by definition; OutcomeNoFeatures reports 0.
	Quality float64

	// Augmented is the number of fresh tracks appended by the top-up pass.
	Augmented int
}
