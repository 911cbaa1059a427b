package dto

import (
	"path/filepath"
	"strings"

	"github.com/codefix/backend/internal/domain"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type UploadResponse struct {
	TaskID   string `json:"task_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Status   string `json:"status"`
}

type StartReviewRequest struct {
	TaskID string `json:"task_id"`
}

func (r *StartReviewRequest) Validate() []string {
	var errors []string
	if r.TaskID == "" {
		errors = append(errors, "task_id is required")
	}
	return errors
}

type StartReviewResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TaskListResponse struct {
	Tasks  []domain.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// AllowedExtension checks a file name against the configured extension
// whitelist, case-insensitively.
func AllowedExtension(fileName string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}
