// Package pipeline holds the pieces every generation stage shares: batching,
// the resumable JSONL sink, completion parsing, progress and run metrics, and
// the stage loop that ties them together.
package pipeline

// DefaultBatchSize is the number of records sent to the remote runner at once.
const DefaultBatchSize = 20

// Batches splits items into consecutive groups of size; the last group may be smaller.
// Groups share the backing array of items. A size <= 0 uses DefaultBatchSize.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end:end])
	}
	return batches
}
