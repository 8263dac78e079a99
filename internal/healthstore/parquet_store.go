package healthstore

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

// parquetHealthSample is the on-disk schema for one probe result. Timestamps
// are stored as Unix milliseconds, durations as milliseconds.
type parquetHealthSample struct {
	SourceID       string  `parquet:"source_id"`
	Endpoint       string  `parquet:"endpoint"`
	Method         string  `parquet:"method"`
	Path           string  `parquet:"path"`
	StatusCode     int32   `parquet:"status_code"`
	ResponseTimeMs int64   `parquet:"response_time_ms"`
	State          string  `parquet:"state"`
	ProbeError     *string `parquet:"probe_error,optional"`
	CheckedAt      int64   `parquet:"checked_at"`
}

func toParquetSample(s models.EndpointHealthSample) parquetHealthSample {
	record := parquetHealthSample{
		SourceID:       s.SourceID,
		Endpoint:       s.Endpoint,
		Method:         s.Method,
		Path:           s.Path,
		StatusCode:     int32(s.StatusCode),
		ResponseTimeMs: s.ResponseTime.Milliseconds(),
		State:          string(s.State),
		CheckedAt:      s.CheckedAt.UnixMilli(),
	}
	if s.Error != "" {
		errCopy := s.Error
		record.ProbeError = &errCopy
	}
	return record
}

func (p parquetHealthSample) toSample() models.EndpointHealthSample {
	sample := models.EndpointHealthSample{
		SourceID:     p.SourceID,
		Endpoint:     p.Endpoint,
		Method:       p.Method,
		Path:         p.Path,
		StatusCode:   int(p.StatusCode),
		ResponseTime: time.Duration(p.ResponseTimeMs) * time.Millisecond,
		State:        models.HealthState(p.State),
		CheckedAt:    time.UnixMilli(p.CheckedAt).UTC(),
	}
	if p.ProbeError != nil {
		sample.Error = *p.ProbeError
	}
	return sample
}

// ParquetHealthStore retains the endpoint health time series, one Parquet
// file per monitored source. Parquet files cannot be appended in place, so
// each write loads the existing series, appends, and rewrites the file under
// a per-store mutex.
type ParquetHealthStore struct {
	basePath string
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewParquetHealthStore creates a health store rooted at basePath.
func NewParquetHealthStore(basePath string, logger zerolog.Logger) (*ParquetHealthStore, error) {
	if basePath == "" {
		return nil, errorwrapper.NewValidationError("parquet_base_path", basePath, "base path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errorwrapper.WrapError(err, "failed to create health store directory")
	}
	return &ParquetHealthStore{
		basePath: basePath,
		logger:   logger.With().Str("component", "HealthStore").Logger(),
	}, nil
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func (s *ParquetHealthStore) filePath(sourceID string) string {
	return filepath.Join(s.basePath, unsafePathChars.ReplaceAllString(sourceID, "_")+".parquet")
}

// Append persists a batch of probe results. All samples in one batch must
// belong to the same source.
func (s *ParquetHealthStore) Append(ctx context.Context, samples []models.EndpointHealthSample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sourceID := samples[0].SourceID
	for _, sample := range samples {
		if sample.SourceID != sourceID {
			return errorwrapper.WrapError(errorwrapper.ErrInvalidInput, "health sample batch spans multiple sources")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filePath(sourceID)
	existing, err := s.readAll(path)
	if err != nil {
		return err
	}
	for _, sample := range samples {
		existing = append(existing, toParquetSample(sample))
	}
	if err := s.writeAll(path, existing); err != nil {
		return err
	}

	s.logger.Debug().
		Str("source_id", sourceID).
		Int("batch", len(samples)).
		Int("total", len(existing)).
		Msg("Health samples appended")
	return nil
}

// LatestByEndpoint returns the most recent sample per endpoint for sourceID.
// A source with no series yet yields an empty map.
func (s *ParquetHealthStore) LatestByEndpoint(ctx context.Context, sourceID string) (map[string]models.EndpointHealthSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll(s.filePath(sourceID))
	if err != nil {
		return nil, err
	}

	latest := make(map[string]models.EndpointHealthSample)
	for _, record := range records {
		sample := record.toSample()
		if prev, ok := latest[sample.Endpoint]; !ok || sample.CheckedAt.After(prev.CheckedAt) {
			latest[sample.Endpoint] = sample
		}
	}
	return latest, nil
}

func (s *ParquetHealthStore) readAll(path string) ([]parquetHealthSample, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := parquet.ReadFile[parquetHealthSample](path)
	if err != nil {
		return nil, errorwrapper.WrapError(err, "failed to read health series "+path)
	}
	return records, nil
}

func (s *ParquetHealthStore) writeAll(path string, records []parquetHealthSample) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errorwrapper.WrapError(err, "failed to create health series file "+path)
	}

	writer := parquet.NewGenericWriter[parquetHealthSample](file, parquet.Compression(&parquet.Zstd))
	if _, err := writer.Write(records); err != nil {
		_ = writer.Close()
		_ = file.Close()
		return errorwrapper.WrapError(err, "failed to write health samples")
	}
	if err := writer.Close(); err != nil {
		_ = file.Close()
		return errorwrapper.WrapError(err, "failed to finalize health series file")
	}
	return file.Close()
}
