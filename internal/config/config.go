package config

// GlobalConfig aggregates all component configurations.
type GlobalConfig struct {
	LogConfig         LogConfig         `json:"log_config" yaml:"log_config"`
	FetcherConfig     FetcherConfig     `json:"fetcher_config" yaml:"fetcher_config"`
	SchedulerConfig   SchedulerConfig   `json:"scheduler_config" yaml:"scheduler_config"`
	HealthCheckConfig HealthCheckConfig `json:"healthcheck_config" yaml:"healthcheck_config"`
	AlertingConfig    AlertingConfig    `json:"alerting_config" yaml:"alerting_config"`
	StorageConfig     StorageConfig     `json:"storage_config" yaml:"storage_config"`
	MetricsConfig     MetricsConfig     `json:"metrics_config" yaml:"metrics_config"`
	ResourceConfig    ResourceConfig    `json:"resource_config" yaml:"resource_config"`
}

// NewDefaultGlobalConfig creates a GlobalConfig with default values for all components.
func NewDefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		LogConfig:         NewDefaultLogConfig(),
		FetcherConfig:     NewDefaultFetcherConfig(),
		SchedulerConfig:   NewDefaultSchedulerConfig(),
		HealthCheckConfig: NewDefaultHealthCheckConfig(),
		AlertingConfig:    NewDefaultAlertingConfig(),
		StorageConfig:     NewDefaultStorageConfig(),
		MetricsConfig:     NewDefaultMetricsConfig(),
		ResourceConfig:    NewDefaultResourceConfig(),
	}
}
