package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// LocalReportStorage implements port.ReportStorage on the local filesystem
type LocalReportStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalReportStorage creates a storage rooted at baseDir
func NewLocalReportStorage(baseDir string, logger *zap.Logger) port.ReportStorage {
	return &LocalReportStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes content to the relative path, creating parent directories
func (s *LocalReportStorage) Save(ctx context.Context, path string, content []byte) error {
	fullPath := s.GetFullPath(path)
	if err := s.validatePath(fullPath); err != nil {
		return err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Write to a sibling temp file first so readers never see a partial workbook
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", tmp),
			zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Debug("Report saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return nil
}

// Read returns the content stored at the relative path
func (s *LocalReportStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath := s.GetFullPath(path)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists checks whether a regular file exists at the relative path
func (s *LocalReportStorage) Exists(ctx context.Context, path string) bool {
	info, err := os.Stat(s.GetFullPath(path))
	return err == nil && !info.IsDir()
}

// GetFullPath joins the sanitized relative path onto the base directory
func (s *LocalReportStorage) GetFullPath(relativePath string) string {
	segments := strings.FieldsFunc(relativePath, func(r rune) bool { return r == '/' || r == '\\' })
	clean := make([]string, 0, len(segments)+1)
	clean = append(clean, s.baseDir)
	for _, seg := range segments {
		if seg = SanitizeName(seg); seg != "" {
			clean = append(clean, seg)
		}
	}
	return filepath.Join(clean...)
}

// SanitizeName returns a filesystem-safe path segment
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	return unsafeSegment.ReplaceAllString(name, "")
}

// validatePath checks that the path stays within baseDir
func (s *LocalReportStorage) validatePath(fullPath string) error {
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
