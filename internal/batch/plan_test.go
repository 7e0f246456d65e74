package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []Span
	}{
		{
			name: "three prompts in batches of two",
			n:    3,
			size: 2,
			want: []Span{{Number: 1, Start: 0, End: 2}, {Number: 2, Start: 2, End: 3}},
		},
		{
			name: "single batch",
			n:    1,
			size: 30,
			want: []Span{{Number: 1, Start: 0, End: 1}},
		},
		{
			name: "exact multiple",
			n:    60,
			size: 30,
			want: []Span{{Number: 1, Start: 0, End: 30}, {Number: 2, Start: 30, End: 60}},
		},
		{
			name: "one over",
			n:    31,
			size: 30,
			want: []Span{{Number: 1, Start: 0, End: 30}, {Number: 2, Start: 30, End: 31}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.n, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlan_Invalid(t *testing.T) {
	_, err := Plan(3, 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = Plan(3, -1)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = Plan(0, 5)
	assert.ErrorIs(t, err, ErrNoPrompts)
}

func TestPlan_CoversEveryIndexOnce(t *testing.T) {
	for n := 1; n <= 100; n++ {
		for size := 1; size <= 12; size++ {
			spans, err := Plan(n, size)
			require.NoError(t, err)
			require.Len(t, spans, TotalBatches(n, size))
			require.Equal(t, (n+size-1)/size, len(spans))

			next := 0
			for i, s := range spans {
				require.Equal(t, i+1, s.Number)
				require.Equal(t, next, s.Start)
				require.LessOrEqual(t, s.Len(), size)
				require.Greater(t, s.Len(), 0)
				next = s.End
			}
			require.Equal(t, n, next)
		}
	}
}

func TestTotalBatches(t *testing.T) {
	assert.Equal(t, 0, TotalBatches(0, 30))
	assert.Equal(t, 0, TotalBatches(10, 0))
	assert.Equal(t, 4, TotalBatches(100, 30))
}
