package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"commission-web/internal/service"
)

const (
	TaskImportValidate = "import:validate"
	TaskImportRun      = "import:run"
)

type ValidatePayload struct {
	BatchID int `json:"batch_id"`
}

type RunPayload struct {
	BatchID int                   `json:"batch_id"`
	Options service.ImportOptions `json:"options"`
}

// NewValidateTask enqueues the validation phase for a parsed batch.
func NewValidateTask(batchID int) (*asynq.Task, error) {
	payload, err := json.Marshal(ValidatePayload{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportValidate, payload), nil
}

// NewRunTask enqueues the import phase for a validated batch.
func NewRunTask(batchID int, opts service.ImportOptions) (*asynq.Task, error) {
	payload, err := json.Marshal(RunPayload{BatchID: batchID, Options: opts})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportRun, payload), nil
}
