package logger

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"specwatch/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a zerolog logger from the log configuration. Console output
// goes to stderr; file output rotates via lumberjack.
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{consoleWriter(cfg.LogFormat)}

	if cfg.LogFile != "" {
		fileWriter, err := newFileWriter(cfg)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writers = append(writers, fileWriter)
	}

	multiWriter := zerolog.MultiLevelWriter(writers...)
	logger := zerolog.New(multiWriter).
		Level(level).
		With().
		Timestamp().
		Logger()

	zerolog.SetGlobalLevel(level)

	// Route the standard log package through zerolog so third-party output
	// ends up in the same sinks.
	stdlog.SetOutput(logger)
	stdlog.SetFlags(0)

	return logger, nil
}

func consoleWriter(format string) io.Writer {
	if strings.ToLower(format) == "json" {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr}
}

func newFileWriter(cfg config.LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxLogSizeMB,
		MaxBackups: cfg.MaxLogBackups,
		LocalTime:  true,
	}, nil
}
