package entrycache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; some run under a key lock.
type Hooks interface {
	// A persisted frame was deleted instead of restored.
	// reason ∈ {"corrupt", "gen_mismatch", "meta_decode", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	PersistRejected(storageKey string)

	// Provider Set kept failing after retries, or the value could not be encoded.
	PersistError(storageKey string, err error)

	// GenStore errors while allocating or reading a generation.
	GenAllocError(storageKey string, err error)

	// A writer abandoned its generation; waiters were failed.
	WriterFailed(key string, gen uint64, waiters int, cause error)

	// gen was superseded by Recreate while readers were still attached.
	Superseded(key string, gen uint64, readers int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                 {}
func (NopHooks) PersistRejected(string)                  {}
func (NopHooks) PersistError(string, error)              {}
func (NopHooks) GenAllocError(string, error)             {}
func (NopHooks) WriterFailed(string, uint64, int, error) {}
func (NopHooks) Superseded(string, uint64, int)          {}
