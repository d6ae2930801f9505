package ledger

const defaultShards = 16

type options struct {
	shards int
}

// Option applies a configuration option to the in-memory ledger.
type Option func(*options)

// WithShards sets the number of lock shards. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}
