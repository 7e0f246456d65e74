package batch

import (
	"errors"
	"fmt"
)

// Plan errors
var (
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
	ErrNoPrompts        = errors.New("no prompts to schedule")
)

// Span is one batch: the half-open prompt index range [Start, End).
type Span struct {
	// Number is the 1-based position of the batch.
	Number int
	Start  int
	End    int
}

// Len returns the number of prompts in the batch.
func (s Span) Len() int {
	return s.End - s.Start
}

// TotalBatches returns ceil(n/size).
func TotalBatches(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Plan splits n prompts into consecutive batches of at most size prompts.
// Batch i covers [(i-1)*size, min(i*size, n)).
func Plan(n, size int) ([]Span, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	if n <= 0 {
		return nil, ErrNoPrompts
	}

	spans := make([]Span, 0, TotalBatches(n, size))
	for start := 0; start < n; start += size {
		spans = append(spans, Span{
			Number: len(spans) + 1,
			Start:  start,
			End:    min(start+size, n),
		})
	}
	return spans, nil
}
