package handler

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"commission-web/internal/config"
	"commission-web/internal/models"
	"commission-web/internal/repository"
	"commission-web/internal/service"
	"commission-web/internal/utils"
	"commission-web/internal/worker"
)

type ImportHandler struct {
	batchRepo    *repository.BatchRepository
	orchestrator *service.ImportOrchestrator
	statements   *service.StatementService
	asynqClient  *asynq.Client
	redis        *redis.Client
	cfg          *config.Config
}

func NewImportHandler(
	batchRepo *repository.BatchRepository,
	orchestrator *service.ImportOrchestrator,
	statements *service.StatementService,
	asynqClient *asynq.Client,
	redisClient *redis.Client,
	cfg *config.Config,
) *ImportHandler {
	return &ImportHandler{
		batchRepo:    batchRepo,
		orchestrator: orchestrator,
		statements:   statements,
		asynqClient:  asynqClient,
		redis:        redisClient,
		cfg:          cfg,
	}
}

// UploadStatement receives a WIFO statement file, parses it into a batch
// and enqueues the validation phase.
func (h *ImportHandler) UploadStatement(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(int)

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File is required", err)
	}

	ext := filepath.Ext(file.Filename)
	if ext != ".xlsx" && ext != ".xls" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Only Excel files (.xlsx, .xls) are allowed", nil)
	}

	if file.Size > int64(h.cfg.UploadMaxSize) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File size exceeds maximum limit", nil)
	}

	filePath := filepath.Join(h.cfg.UploadPath, fmt.Sprintf("%s%s", uuid.New().String(), ext))
	if err := c.SaveFile(file, filePath); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save file", err)
	}

	batch, err := h.orchestrator.ParseFile(filePath, file.Filename, file.Size, userID, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse statement file", err)
	}

	if err := h.enqueueValidate(batch.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to schedule validation", err)
	}

	return utils.SuccessResponse(c, "Statement uploaded", fiber.Map{
		"batch":   batchSummary(batch),
		"preview": recordPreview(batch.Records, 10),
	})
}

// GetBatches lists recent batches, newest first.
func (h *ImportHandler) GetBatches(c *fiber.Ctx) error {
	params := utils.GetPaginationParams(c)

	batches, err := h.batchRepo.FindRecent(params.Limit)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve batches", err)
	}

	summaries := make([]fiber.Map, 0, len(batches))
	for _, b := range batches {
		summaries = append(summaries, batchSummary(b))
	}
	return utils.SuccessResponse(c, "Batches retrieved", summaries)
}

// GetBatchDetail returns one batch including its records and issues.
func (h *ImportHandler) GetBatchDetail(c *fiber.Ctx) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, "Batch retrieved", batch)
}

// ValidateBatch re-enqueues the validation phase for a parsed batch.
func (h *ImportHandler) ValidateBatch(c *fiber.Ctx) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}

	if batch.Status != models.BatchParsing {
		return utils.ErrorResponse(c, fiber.StatusBadRequest,
			fmt.Sprintf("Batch cannot be validated in status %q", batch.Status), nil)
	}

	if err := h.enqueueValidate(batch.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to schedule validation", err)
	}
	return utils.SuccessResponse(c, "Validation scheduled", batchSummary(batch))
}

type runImportRequest struct {
	ChunkSize   int  `json:"chunk_size"`
	Concurrency int  `json:"concurrency"`
	RetryCount  *int `json:"retry_count"`
	StopOnError bool `json:"stop_on_error"`
}

// RunImport enqueues the import phase for a ready batch.
func (h *ImportHandler) RunImport(c *fiber.Ctx) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}

	if !batch.CanImport() {
		return utils.ErrorResponse(c, fiber.StatusBadRequest,
			fmt.Sprintf("Batch is not ready for import (status %q)", batch.Status), nil)
	}

	var req runImportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	opts := service.ImportOptions{
		ChunkSize:   h.cfg.ImportChunkSize,
		Concurrency: h.cfg.ImportConcurrency,
		RetryCount:  h.cfg.ImportRetryCount,
		RetryDelay:  h.cfg.ImportRetryDelay,
		StopOnError: req.StopOnError,
	}
	if req.ChunkSize > 0 {
		opts.ChunkSize = req.ChunkSize
	}
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.RetryCount != nil {
		opts.RetryCount = *req.RetryCount
	}

	if h.asynqClient == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Background job processing is not available", nil)
	}

	task, err := worker.NewRunTask(batch.ID, opts)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to build import task", err)
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Failed to schedule import", err)
	}

	return utils.SuccessResponse(c, "Import scheduled", fiber.Map{
		"batch":   batchSummary(batch),
		"options": opts,
	})
}

// GetProgress reports the batch counters plus the live phase progress
// written by the worker.
func (h *ImportHandler) GetProgress(c *fiber.Ctx) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}

	response := fiber.Map{
		"batch": batchSummary(batch),
	}

	if h.redis != nil {
		key := fmt.Sprintf("import:progress:%s", batch.BatchCode)
		if raw, err := h.redis.Get(c.Context(), key).Result(); err == nil {
			response["progress"] = raw
		}
	}

	return utils.SuccessResponse(c, "Progress retrieved", response)
}

// DownloadErrorReport exports the batch issues as an xlsx file.
func (h *ImportHandler) DownloadErrorReport(c *fiber.Ctx) error {
	batch, err := h.loadBatch(c)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s-issues.xlsx", batch.BatchCode)
	outputPath := filepath.Join(h.cfg.UploadPath, filename)
	if err := h.statements.ExportErrorReport(batch, outputPath); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export error report", err)
	}

	return c.Download(outputPath, filename)
}

func (h *ImportHandler) loadBatch(c *fiber.Ctx) (*models.ImportBatch, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid batch ID", err)
	}
	batch, err := h.batchRepo.FindByID(id)
	if err != nil {
		return nil, utils.ErrorResponse(c, fiber.StatusNotFound, "Batch not found", err)
	}
	return batch, nil
}

func (h *ImportHandler) enqueueValidate(batchID int) error {
	if h.asynqClient == nil {
		return fmt.Errorf("background job processing is not available")
	}
	task, err := worker.NewValidateTask(batchID)
	if err != nil {
		return err
	}
	_, err = h.asynqClient.Enqueue(task)
	return err
}

func batchSummary(b *models.ImportBatch) fiber.Map {
	return fiber.Map{
		"id":               b.ID,
		"batch_code":       b.BatchCode,
		"filename":         b.Filename,
		"status":           b.Status,
		"error_message":    b.ErrorMessage,
		"total_records":    b.TotalRecords,
		"valid_records":    b.ValidRecords,
		"invalid_records":  b.InvalidRecords,
		"warning_records":  b.WarningRecords,
		"imported_records": b.ImportedRecords,
		"failed_records":   b.FailedRecords,
		"skipped_records":  b.SkippedRecords,
		"created_at":       b.CreatedAt,
		"completed_at":     b.CompletedAt,
	}
}

func recordPreview(records []*models.ImportRecord, n int) []*models.ImportRecord {
	if len(records) <= n {
		return records
	}
	return records[:n]
}
