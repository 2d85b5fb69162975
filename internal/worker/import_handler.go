package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"commission-web/internal/config"
	"commission-web/internal/models"
	"commission-web/internal/repository"
	"commission-web/internal/service"
	"commission-web/internal/utils"
)

// progressTTL bounds how long finished progress keys linger in Redis.
const progressTTL = 24 * time.Hour

// ImportTaskHandler runs the background phases of a statement batch. It
// owns a fully wired orchestrator; the HTTP side only enqueues.
type ImportTaskHandler struct {
	redis        *redis.Client
	cfg          *config.Config
	orchestrator *service.ImportOrchestrator
	batchRepo    *repository.BatchRepository
}

func NewImportTaskHandler(db *sqlx.DB, redisClient *redis.Client, cfg *config.Config) *ImportTaskHandler {
	batchRepo := repository.NewBatchRepository(db)

	orchestrator := service.NewImportOrchestrator(
		service.NewStatementService(),
		repository.NewEmployeeRepository(db),
		repository.NewRevenueRepository(db),
		batchRepo,
		repository.NewMappingRepository(db),
		utils.GetLogger(),
	)

	return &ImportTaskHandler{
		redis:        redisClient,
		cfg:          cfg,
		orchestrator: orchestrator,
		batchRepo:    batchRepo,
	}
}

// HandleValidate runs the validation phase. A batch that already moved
// past parsing is skipped without error so a redelivered task is harmless.
func (h *ImportTaskHandler) HandleValidate(ctx context.Context, task *asynq.Task) error {
	var payload ValidatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal validate payload: %w", err)
	}

	log := utils.GetLogger()
	batch, err := h.batchRepo.FindByID(payload.BatchID)
	if err != nil {
		return fmt.Errorf("load batch %d: %w", payload.BatchID, err)
	}

	if batch.Status != models.BatchParsing {
		log.WithField("batch", batch.BatchCode).WithField("status", batch.Status).
			Info("skipping validation, batch already moved on")
		return nil
	}

	err = h.orchestrator.ValidateBatch(batch, func(processed, total int) {
		h.setProgress(ctx, batch.BatchCode, "validate", map[string]interface{}{
			"processed": processed,
			"total":     total,
		})
	})
	if err != nil {
		return fmt.Errorf("validate batch %s: %w", batch.BatchCode, err)
	}

	log.WithField("batch", batch.BatchCode).WithField("status", batch.Status).
		Info("validation task finished")
	return nil
}

// HandleRun runs the import phase with the tuning options carried in the
// task payload.
func (h *ImportTaskHandler) HandleRun(ctx context.Context, task *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal run payload: %w", err)
	}

	log := utils.GetLogger()
	batch, err := h.batchRepo.FindByID(payload.BatchID)
	if err != nil {
		return fmt.Errorf("load batch %d: %w", payload.BatchID, err)
	}

	if !batch.CanImport() {
		log.WithField("batch", batch.BatchCode).WithField("status", batch.Status).
			Info("skipping import, batch is not ready")
		return nil
	}

	err = h.orchestrator.ImportBatch(batch, payload.Options, func(p service.ImportProgress) {
		h.setProgress(ctx, batch.BatchCode, "import", map[string]interface{}{
			"imported":       p.Imported,
			"failed":         p.Failed,
			"remaining":      p.Remaining,
			"chunk_progress": p.ChunkProgress,
		})
	})
	if err != nil {
		return fmt.Errorf("import batch %s: %w", batch.BatchCode, err)
	}

	log.WithField("batch", batch.BatchCode).WithField("status", batch.Status).
		Info("import task finished")
	return nil
}

func (h *ImportTaskHandler) setProgress(ctx context.Context, batchCode, phase string, fields map[string]interface{}) {
	fields["phase"] = phase
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}
	key := fmt.Sprintf("import:progress:%s", batchCode)
	h.redis.Set(ctx, key, string(data), progressTTL)
}
