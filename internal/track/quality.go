package track

// RetentionRatio is the fraction of previously tracked points that survived
// one step's flow tracking and filtering. The pipeline can only shrink the
// set, so after <= before holds; the result is clamped to [0,1] regardless.
func RetentionRatio(before, after int) float64 {
	if before <= 0 {
		return 0
	}
	if after <= 0 {
		return 0
	}
	if after >= before {
		return 1
	}
	return float64(after) / float64(before)
}
