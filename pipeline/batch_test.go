package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatches_ConcatenationReproducesInput(t *testing.T) {
	for _, n := range []int{0, 1, 7, 20, 21, 45, 100} {
		for _, size := range []int{1, 3, 20, 50} {
			t.Run(fmt.Sprintf("n=%d size=%d", n, size), func(t *testing.T) {
				items := make([]int, n)
				for i := range items {
					items[i] = i
				}

				batches := Batches(items, size)

				var joined []int
				for i, batch := range batches {
					assert.NotEmpty(t, batch)
					if i < len(batches)-1 {
						assert.Len(t, batch, size, "only the last batch may be short")
					} else {
						assert.LessOrEqual(t, len(batch), size)
					}
					joined = append(joined, batch...)
				}

				if n == 0 {
					assert.Empty(t, batches)
					return
				}
				assert.Equal(t, items, joined)
			})
		}
	}
}

func TestBatches_DefaultSize(t *testing.T) {
	items := make([]string, 45)
	batches := Batches(items, 0)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[0], DefaultBatchSize)
	assert.Len(t, batches[2], 5)
}

func TestBatches_AppendDoesNotClobberNextBatch(t *testing.T) {
	items := []int{1, 2, 3, 4}
	batches := Batches(items, 2)

	_ = append(batches[0], 99)
	assert.Equal(t, []int{3, 4}, batches[1])
}
