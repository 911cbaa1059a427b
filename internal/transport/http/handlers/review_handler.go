package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codefix/backend/internal/config"
	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/core/services"
	"github.com/codefix/backend/internal/infrastructure/logger"
	"github.com/codefix/backend/internal/transport/http/dto"
)

type ReviewHandler struct {
	store        ports.TaskStore
	orchestrator ports.Orchestrator
	files        ports.FileStore
	storageCfg   config.StorageConfig
	logger       *logger.Logger
}

func NewReviewHandler(store ports.TaskStore, orchestrator ports.Orchestrator, files ports.FileStore, storageCfg config.StorageConfig, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{
		store:        store,
		orchestrator: orchestrator,
		files:        files,
		storageCfg:   storageCfg,
		logger:       log,
	}
}

func (h *ReviewHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Warnw("review_upload_no_file", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "file is required",
		})
	}

	if !dto.AllowedExtension(fileHeader.Filename, h.storageCfg.AllowedExtensions) {
		h.logger.Warnw("review_upload_bad_extension", "file_name", fileHeader.Filename)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "unsupported file type, allowed: " + strings.Join(h.storageCfg.AllowedExtensions, ", "),
		})
	}
	if fileHeader.Size > h.storageCfg.MaxFileSize {
		h.logger.Warnw("review_upload_too_large", "file_name", fileHeader.Filename, "size", fileHeader.Size)
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{
			Error: "file exceeds maximum size of " + strconv.FormatInt(h.storageCfg.MaxFileSize, 10) + " bytes",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.logger.Errorw("review_upload_open_failed", "file_name", fileHeader.Filename, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "failed to read uploaded file",
		})
	}
	defer src.Close()

	uploadKey := uuid.New().String()
	path, size, err := h.files.SaveUpload(uploadKey, fileHeader.Filename, src)
	if err != nil {
		h.logger.Errorw("review_upload_save_failed", "file_name", fileHeader.Filename, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "failed to store uploaded file",
		})
	}

	task, err := h.store.Create(c.Context(), ports.CreateTaskInput{
		FileName: fileHeader.Filename,
		FilePath: path,
		FileSize: size,
	})
	if err != nil {
		h.logger.Errorw("review_upload_create_task_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	h.logger.Infow("review_upload_success", "task_id", task.ID, "file_name", fileHeader.Filename, "size", size)
	return c.Status(fiber.StatusCreated).JSON(dto.UploadResponse{
		TaskID:   task.ID,
		FileName: fileHeader.Filename,
		FileSize: size,
		Status:   string(task.Status),
	})
}

func (h *ReviewHandler) Start(c *fiber.Ctx) error {
	var req dto.StartReviewRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("review_start_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	h.logger.Infow("review_start_request", "task_id", req.TaskID)
	if err := h.orchestrator.Start(c.Context(), req.TaskID); err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		if errors.Is(err, services.ErrInvalidState) {
			h.logger.Warnw("review_start_conflict", "task_id", req.TaskID)
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: "task already started or finished",
			})
		}
		h.logger.Errorw("review_start_failed", "task_id", req.TaskID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.StartReviewResponse{
		TaskID:  req.TaskID,
		Status:  "running",
		Message: "review started",
	})
}

func (h *ReviewHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	task, err := h.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		h.logger.Errorw("review_get_task_failed", "task_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(task)
}

func (h *ReviewHandler) ListTasks(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	tasks, err := h.store.List(c.Context(), limit, offset)
	if err != nil {
		h.logger.Errorw("review_list_tasks_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	total, err := h.store.Count(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.TaskListResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *ReviewHandler) DownloadResult(c *fiber.Ctx) error {
	id := c.Params("id")
	task, err := h.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "task not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	if task.Result == nil {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: "task has no result yet",
		})
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="fixed_`+task.FileName+`"`)
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendString(task.Result.FixedContent)
}
