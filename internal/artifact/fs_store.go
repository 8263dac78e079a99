package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
)

// FSStore is a filesystem-backed artifact store. Artifacts are append-only:
// a path is written at most once and never overwritten.
type FSStore struct {
	basePath string
	logger   zerolog.Logger
}

// NewFSStore creates an artifact store rooted at basePath.
func NewFSStore(basePath string, logger zerolog.Logger) (*FSStore, error) {
	if basePath == "" {
		return nil, errorwrapper.NewValidationError("artifact_base_path", basePath, "base path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errorwrapper.WrapError(err, "failed to create artifact directory")
	}
	return &FSStore{
		basePath: basePath,
		logger:   logger.With().Str("component", "ArtifactStore").Logger(),
	}, nil
}

func (s *FSStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean(path)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", errorwrapper.NewValidationError("path", path, "artifact path must be relative and stay under the base directory")
	}
	return filepath.Join(s.basePath, cleaned), nil
}

// Put writes an artifact exactly once. Writing to an existing path fails.
func (s *FSStore) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errorwrapper.WrapError(err, "failed to create artifact subdirectory")
	}

	file, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return errorwrapper.NewError("artifact %s already exists", path)
		}
		return errorwrapper.WrapError(err, "failed to create artifact "+path)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return errorwrapper.WrapError(err, "failed to write artifact "+path)
	}
	if err := file.Close(); err != nil {
		return errorwrapper.WrapError(err, "failed to finalize artifact "+path)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Artifact stored")
	return nil
}

// Get reads an artifact. Missing paths return models.ErrRecordNotFound.
func (s *FSStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrRecordNotFound
		}
		return nil, errorwrapper.WrapError(err, "failed to read artifact "+path)
	}
	return data, nil
}
