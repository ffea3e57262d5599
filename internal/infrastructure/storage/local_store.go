package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
)

// LocalBlobStore implements port.BlobStore on the local filesystem
type LocalBlobStore struct {
	baseDir string
	logger  *zap.Logger
	now     func() time.Time
}

// NewLocalBlobStore creates a blob store rooted at baseDir
func NewLocalBlobStore(baseDir string, logger *zap.Logger) *LocalBlobStore {
	return &LocalBlobStore{
		baseDir: baseDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Store writes content under a fresh key and returns it
func (s *LocalBlobStore) Store(ctx context.Context, content []byte, contentType string) (string, error) {
	ref := objectKey(s.now(), contentType)
	fullPath := s.fullPath(ref)

	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("Blob stored",
		zap.String("ref", ref),
		zap.Int("size", len(content)))

	return ref, nil
}

// Retrieve reads the content stored under ref
func (s *LocalBlobStore) Retrieve(ctx context.Context, ref string) ([]byte, error) {
	fullPath := s.fullPath(ref)

	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		s.logger.Error("Failed to read file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}

	return content, nil
}

func (s *LocalBlobStore) fullPath(ref string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(ref))
}

// validatePath checks that the path is within baseDir
func (s *LocalBlobStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}

	return nil
}

var extensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"text/plain":      ".txt",
}

// objectKey builds "yyyy/mm/<uuid><ext>"
func objectKey(now time.Time, contentType string) string {
	ext := extensions[strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))]
	return fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), ext)
}

var _ port.BlobStore = (*LocalBlobStore)(nil)
