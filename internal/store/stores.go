package store

// StoreConfig selects and configures storage backends.
type StoreConfig struct {
	PostgresDSN     string
	SessionsStorage string
	Triggers        []FlowTrigger // standalone trigger rules from config
}

// Stores is the top-level container for all storage backends.
// Durable is nil in standalone mode.
type Stores struct {
	Sessions SessionStore
	Triggers FlowTriggerStore
	Durable  DurableFlowReader
	Close    func() error
}
