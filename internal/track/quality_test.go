package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetentionRatio(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		before, after int
		want          float64
	}{
		{"typical", 200, 120, 0.6},
		{"all retained", 150, 150, 1.0},
		{"none retained", 150, 0, 0.0},
		{"empty before", 0, 0, 0.0},
		{"negative before", -1, 5, 0.0},
		{"after exceeds before is clamped", 100, 120, 1.0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, RetentionRatio(tc.before, tc.after), 1e-9)
		})
	}
}
