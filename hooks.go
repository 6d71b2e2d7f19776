package shelfcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths.
type Hooks interface {
	// An entry was deleted on read because it could not be used.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(key, reason string)

	// Provider returned ok=false on Set (backpressure/admission).
	ProviderSetRejected(key string)

	// A provider call failed. op ∈ {"get", "set", "del", "keys"}.
	BackendError(op, key string, err error)

	// Quota enforcement removed evicted keys from a namespace holding live keys.
	QuotaEvicted(namespace string, live, evicted int)

	// Quota enforcement failed; the write still proceeded.
	QuotaEnforceError(namespace string, err error)

	// A fill skipped its write because the namespace generation moved
	// while the value was being fetched.
	StaleWriteSkipped(key string)

	// GenStore errors (snapshot or bump).
	// count is number of scopes involved.
	GenSnapshotError(count int, err error)
	GenBumpError(scope string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)            {}
func (NopHooks) ProviderSetRejected(string)         {}
func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) QuotaEvicted(string, int, int)      {}
func (NopHooks) QuotaEnforceError(string, error)    {}
func (NopHooks) StaleWriteSkipped(string)           {}
func (NopHooks) GenSnapshotError(int, error)        {}
func (NopHooks) GenBumpError(string, error)         {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) SelfHeal(key, reason string) {
	for _, h := range m {
		h.SelfHeal(key, reason)
	}
}

func (m MultiHooks) ProviderSetRejected(key string) {
	for _, h := range m {
		h.ProviderSetRejected(key)
	}
}

func (m MultiHooks) BackendError(op, key string, err error) {
	for _, h := range m {
		h.BackendError(op, key, err)
	}
}

func (m MultiHooks) QuotaEvicted(ns string, live, evicted int) {
	for _, h := range m {
		h.QuotaEvicted(ns, live, evicted)
	}
}

func (m MultiHooks) QuotaEnforceError(ns string, err error) {
	for _, h := range m {
		h.QuotaEnforceError(ns, err)
	}
}

func (m MultiHooks) StaleWriteSkipped(key string) {
	for _, h := range m {
		h.StaleWriteSkipped(key)
	}
}

func (m MultiHooks) GenSnapshotError(count int, err error) {
	for _, h := range m {
		h.GenSnapshotError(count, err)
	}
}

func (m MultiHooks) GenBumpError(scope string, err error) {
	for _, h := range m {
		h.GenBumpError(scope, err)
	}
}
