package catalog

import (
	"math/rand"
	"time"
)

// WaitFunc returns the pause before a user's next action.
type WaitFunc func(rng *rand.Rand) time.Duration

// Between waits a uniformly random duration in [min, max].
func Between(min, max time.Duration) WaitFunc {
	if max < min {
		min, max = max, min
	}
	return func(rng *rand.Rand) time.Duration {
		if max == min {
			return min
		}
		return min + time.Duration(rng.Int63n(int64(max-min)+1))
	}
}

// Constant always waits d.
func Constant(d time.Duration) WaitFunc {
	return func(*rand.Rand) time.Duration {
		return d
	}
}
