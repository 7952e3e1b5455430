package dedupe

type options struct {
	capacity int
	initial  []string
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*options)

// WithCapacity preallocates room for n ids.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithSeen seeds the set, typically with the ids already in a checkpoint.
func WithSeen(ids ...string) Option {
	return func(o *options) {
		o.initial = append(o.initial, ids...)
		if len(o.initial) > o.capacity {
			o.capacity = len(o.initial)
		}
	}
}
