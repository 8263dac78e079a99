package config

// MetricsConfig defines configuration for the metrics endpoint.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// NewDefaultMetricsConfig creates default metrics configuration
func NewDefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:    true,
		ListenAddr: ":9090",
	}
}
