package catalog

import "math/rand"

// Shuffle returns a copy of items permuted by a generator seeded with seed.
// The same seed and input always produce the same order.
func Shuffle[T any](items []T, seed int64) []T {
	out := make([]T, len(items))
	copy(out, items)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Limit returns at most n items from the front of items. n <= 0 means no limit.
func Limit[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}

// Select shuffles with seed and then truncates to limit.
func Select[T any](items []T, seed int64, limit int) []T {
	return Limit(Shuffle(items, seed), limit)
}

// Sample picks n distinct items using a generator seeded with seed.
// When n >= len(items) every item is returned in shuffled order.
func Sample[T any](items []T, n int, seed int64) []T {
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(items))
	if n > len(perm) {
		n = len(perm)
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = items[perm[i]]
	}
	return out
}
