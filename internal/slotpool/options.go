package slotpool

type (
	// Option configures a Pool.
	Option func(c *poolOptions)

	poolOptions struct {
		chunkSize int
		maxChunks int
	}
)

// WithChunkSize sets the number of slots allocated per slab, if positive.
// Defaults to DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(c *poolOptions) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithMaxChunks limits the number of slabs, if positive. Exceeding the limit
// is fatal, see Pool.Acquire. Defaults to unlimited.
func WithMaxChunks(n int) Option {
	return func(c *poolOptions) {
		if n >= 0 {
			c.maxChunks = n
		}
	}
}

func resolveOptions(opts []Option) *poolOptions {
	cfg := &poolOptions{
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return cfg
}
