package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codefix/backend/internal/config"
	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

// FileStore keeps uploaded sources and fixed outputs on local disk, one
// file per task, prefixed with the task id to avoid collisions.
type FileStore struct {
	uploadDir string
	fixedDir  string
	logger    *logger.Logger
}

func NewFileStore(cfg config.StorageConfig, log *logger.Logger) (*FileStore, error) {
	for _, dir := range []string{cfg.UploadDir, cfg.FixedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &FileStore{
		uploadDir: cfg.UploadDir,
		fixedDir:  cfg.FixedDir,
		logger:    log,
	}, nil
}

var _ ports.FileStore = (*FileStore)(nil)

func (f *FileStore) SaveUpload(taskID, fileName string, src io.Reader) (string, int64, error) {
	path := filepath.Join(f.uploadDir, taskID+"_"+filepath.Base(fileName))

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}

	f.logger.Infow("file_upload_saved", "task_id", taskID, "path", path, "size", size)
	return path, size, nil
}

func (f *FileStore) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", path, err)
	}
	return string(data), nil
}

func (f *FileStore) SaveFixed(taskID, fileName, content string) (string, error) {
	path := filepath.Join(f.fixedDir, taskID+"_"+filepath.Base(fileName))

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write fixed file: %w", err)
	}

	f.logger.Infow("file_fixed_saved", "task_id", taskID, "path", path, "size", len(content))
	return path, nil
}
