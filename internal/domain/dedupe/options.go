// Package dedupe tracks recorded picks so repeated reports are recognized.
package dedupe

// Option applies a configuration option to the PickIndex.
type Option func(*PickIndex)

// WithCapacity pre-sizes the index for n picks.
func WithCapacity(n int) Option {
	return func(x *PickIndex) {
		if n > 0 {
			x.capacity = n
		}
	}
}
