package storage

import (
	"context"
	"errors"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

// SaveRunner is the final pipeline stage: it persists the optimizer's fixed
// content to the fixed-output area and records the diff summary.
type SaveRunner struct {
	files  ports.FileStore
	logger *logger.Logger
}

func NewSaveRunner(files ports.FileStore, log *logger.Logger) *SaveRunner {
	return &SaveRunner{files: files, logger: log}
}

var _ ports.StageRunner = (*SaveRunner)(nil)

func (r *SaveRunner) Run(ctx context.Context, sc *ports.StageContext) (*ports.StageResult, error) {
	if sc.FixedContent == "" {
		return nil, errors.New("no fixed content to save")
	}

	path, err := r.files.SaveFixed(sc.TaskID, sc.FileName, sc.FixedContent)
	if err != nil {
		return nil, err
	}

	sc.SavedFilePath = path
	sc.DiffStats = DiffStats(sc.OriginalContent, sc.FixedContent)

	r.logger.Infow("save_runner_ok", "task_id", sc.TaskID, "path", path)
	return &ports.StageResult{
		Report: "fixed code saved to " + path,
		Metrics: domain.JSONB{
			"saved_file_path": path,
			"diff_stats":      sc.DiffStats,
		},
	}, nil
}
