package config

// DispatcherConfig tunes the Tool Dispatcher's HTTP binding (C11, spec §6).
type DispatcherConfig struct {
	// ListenAddr is the address the Echo server binds to, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// AllowedWSOrigins lists additional origin patterns permitted to open
	// the optional live event-tail WebSocket (pkg/events) beyond same-origin.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins,omitempty"`
}

// DefaultDispatcherConfig returns the built-in Tool Dispatcher defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{ListenAddr: ":8080"}
}
