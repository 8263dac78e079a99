package config

const (
	DefaultLogFile       = "logs/specwatch.log"
	DefaultLogFormat     = "console"
	DefaultLogLevel      = "info"
	DefaultMaxLogBackups = 3
	DefaultMaxLogSizeMB  = 100

	// DefaultConsecutiveFailureLimit is the number of consecutive poll
	// failures after which a source is auto-paused.
	DefaultConsecutiveFailureLimit = 5

	// DefaultSQLiteDBPath is the default location of the pipeline database.
	DefaultSQLiteDBPath = "data/specwatch.db"
)
