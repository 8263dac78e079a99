package config

// StorageConfig defines configuration for persistence.
type StorageConfig struct {
	SQLiteDBPath     string `json:"sqlite_db_path,omitempty" yaml:"sqlite_db_path,omitempty" validate:"omitempty,sqlitepath"`
	ParquetBasePath  string `json:"parquet_base_path,omitempty" yaml:"parquet_base_path,omitempty"`
	ArtifactBasePath string `json:"artifact_base_path,omitempty" yaml:"artifact_base_path,omitempty"`
}

// NewDefaultStorageConfig creates default storage configuration
func NewDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		SQLiteDBPath:     DefaultSQLiteDBPath,
		ParquetBasePath:  "data/health",
		ArtifactBasePath: "data/artifacts",
	}
}
