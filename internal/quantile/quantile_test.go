package quantile

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []uint64
		pctile float64
		want   float64
	}{
		{
			name:   "empty",
			values: nil,
			pctile: 0.5,
			want:   0,
		},
		{
			name:   "single value",
			values: []uint64{10},
			pctile: 0.99,
			want:   10,
		},
		{
			name:   "median of odd count",
			values: []uint64{30, 10, 20},
			pctile: 0.5,
			want:   20,
		},
		{
			name:   "lower bound",
			values: []uint64{30, 10, 20},
			pctile: 0,
			want:   10,
		},
		{
			name:   "upper bound",
			values: []uint64{30, 10, 20},
			pctile: 1,
			want:   30,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDurations(tt.values).Percentile(tt.pctile)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPercentileDoesNotSortInput(t *testing.T) {
	q := FromDurations([]uint64{3, 1, 2})
	_ = q.Percentile(0.5)
	if q.Xs[0] != 3 || q.Xs[1] != 1 || q.Xs[2] != 2 {
		t.Fatalf("input was reordered: %v", q.Xs)
	}
}

func TestMean(t *testing.T) {
	q := FromDurations([]uint64{10, 20, 30, 40})
	if got := q.Mean(); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
	if got := (Quantile{}).Mean(); got != 0 {
		t.Fatalf("expected 0 for an empty quantile, got %v", got)
	}
}
