package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"commission-web/internal/models"
)

// recordInsertChunk keeps the named bulk insert well below the MySQL
// placeholder limit.
const recordInsertChunk = 1000

type BatchRepository struct {
	db *sqlx.DB
}

func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// importRecordRow is the persistence shape of an ImportRecord. Raw cell
// values and the issue list are stored as JSON columns; everything the
// pipeline filters or joins on has its own column.
type importRecordRow struct {
	ID             string       `db:"id"`
	BatchID        int          `db:"batch_id"`
	RowNumber      int          `db:"row_number"`
	RawValues      string       `db:"raw_values"`
	EntryDate      *time.Time   `db:"entry_date"`
	ContractNumber string       `db:"contract_number"`
	ContractID     string       `db:"contract_id"`
	CategoryCode   string       `db:"category_code"`
	ProvisionCode  string       `db:"provision_code"`
	AgentName      string       `db:"agent_name"`
	CustomerFirst  string       `db:"customer_first_name"`
	CustomerLast   string       `db:"customer_last_name"`
	Tariff         string       `db:"tariff"`
	Company        string       `db:"company"`
	GrossAmount    *float64     `db:"gross_amount"`
	StornoReserve  *float64     `db:"storno_reserve"`
	RiskBuffer     *float64     `db:"risk_buffer"`
	NetAmount      *float64     `db:"net_amount"`
	Status         string       `db:"status"`
	Issues         string       `db:"issues"`
	EmployeeID     *int         `db:"employee_id"`
	EmployeeName   string       `db:"employee_name"`
	Category       string       `db:"category"`
	ProvisionType  string       `db:"provision_type"`
	ImportAttempts int          `db:"import_attempts"`
	CreatedAt      sql.NullTime `db:"created_at"`
	UpdatedAt      sql.NullTime `db:"updated_at"`
}

func toRecordRow(rec *models.ImportRecord) (importRecordRow, error) {
	raw, err := json.Marshal(rec.RawValues)
	if err != nil {
		return importRecordRow{}, fmt.Errorf("marshal raw values of record %s: %w", rec.ID, err)
	}
	issues, err := json.Marshal(rec.Issues)
	if err != nil {
		return importRecordRow{}, fmt.Errorf("marshal issues of record %s: %w", rec.ID, err)
	}

	return importRecordRow{
		ID:             rec.ID,
		BatchID:        rec.BatchID,
		RowNumber:      rec.RowNumber,
		RawValues:      string(raw),
		EntryDate:      rec.EntryDate,
		ContractNumber: rec.ContractNumber,
		ContractID:     rec.ContractID,
		CategoryCode:   rec.CategoryCode,
		ProvisionCode:  rec.ProvisionCode,
		AgentName:      rec.AgentName,
		CustomerFirst:  rec.CustomerFirstName,
		CustomerLast:   rec.CustomerLastName,
		Tariff:         rec.Tariff,
		Company:        rec.Company,
		GrossAmount:    rec.GrossAmount,
		StornoReserve:  rec.StornoReserve,
		RiskBuffer:     rec.RiskBuffer,
		NetAmount:      rec.NetAmount,
		Status:         string(rec.Status),
		Issues:         string(issues),
		EmployeeID:     rec.EmployeeID,
		EmployeeName:   rec.EmployeeName,
		Category:       rec.Category,
		ProvisionType:  rec.ProvisionType,
		ImportAttempts: rec.ImportAttempts,
	}, nil
}

func fromRecordRow(row importRecordRow) (*models.ImportRecord, error) {
	rec := &models.ImportRecord{
		ID:                row.ID,
		BatchID:           row.BatchID,
		RowNumber:         row.RowNumber,
		EntryDate:         row.EntryDate,
		ContractNumber:    row.ContractNumber,
		ContractID:        row.ContractID,
		CategoryCode:      row.CategoryCode,
		ProvisionCode:     row.ProvisionCode,
		AgentName:         row.AgentName,
		CustomerFirstName: row.CustomerFirst,
		CustomerLastName:  row.CustomerLast,
		Tariff:            row.Tariff,
		Company:           row.Company,
		GrossAmount:       row.GrossAmount,
		StornoReserve:     row.StornoReserve,
		RiskBuffer:        row.RiskBuffer,
		NetAmount:         row.NetAmount,
		Status:            models.RecordStatus(row.Status),
		EmployeeID:        row.EmployeeID,
		EmployeeName:      row.EmployeeName,
		Category:          row.Category,
		ProvisionType:     row.ProvisionType,
		ImportAttempts:    row.ImportAttempts,
	}
	if row.RawValues != "" {
		if err := json.Unmarshal([]byte(row.RawValues), &rec.RawValues); err != nil {
			return nil, fmt.Errorf("unmarshal raw values of record %s: %w", row.ID, err)
		}
	}
	if row.Issues != "" {
		if err := json.Unmarshal([]byte(row.Issues), &rec.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues of record %s: %w", row.ID, err)
		}
	}
	return rec, nil
}

// Save writes the batch header and, when records are attached, replaces
// the record rows in the same transaction. Saving a header-only batch
// leaves existing record rows untouched.
func (r *BatchRepository) Save(batch *models.ImportBatch) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if batch.ID == 0 {
		query := `INSERT INTO import_batches (batch_code, user_id, filename, file_size,
		          status, error_message, total_records, valid_records, invalid_records,
		          warning_records, imported_records, failed_records, skipped_records,
		          started_at, completed_at, created_at, updated_at)
		          VALUES (:batch_code, :user_id, :filename, :file_size,
		          :status, :error_message, :total_records, :valid_records, :invalid_records,
		          :warning_records, :imported_records, :failed_records, :skipped_records,
		          :started_at, :completed_at, :created_at, :updated_at)`
		result, err := tx.NamedExec(query, batch)
		if err != nil {
			return err
		}
		id, _ := result.LastInsertId()
		batch.ID = int(id)
		for _, rec := range batch.Records {
			rec.BatchID = batch.ID
		}
	} else {
		query := `UPDATE import_batches SET status = :status, error_message = :error_message,
		          total_records = :total_records, valid_records = :valid_records,
		          invalid_records = :invalid_records, warning_records = :warning_records,
		          imported_records = :imported_records, failed_records = :failed_records,
		          skipped_records = :skipped_records, started_at = :started_at,
		          completed_at = :completed_at, updated_at = :updated_at
		          WHERE id = :id`
		if _, err := tx.NamedExec(query, batch); err != nil {
			return err
		}
	}

	if len(batch.Records) > 0 {
		if err := r.replaceRecords(tx, batch); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *BatchRepository) replaceRecords(tx *sqlx.Tx, batch *models.ImportBatch) error {
	if _, err := tx.Exec("DELETE FROM import_records WHERE batch_id = ?", batch.ID); err != nil {
		return err
	}

	rows := make([]importRecordRow, 0, len(batch.Records))
	for _, rec := range batch.Records {
		row, err := toRecordRow(rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	// row_number is reserved in MySQL 8 and must be quoted.
	query := "INSERT INTO import_records (id, batch_id, `row_number`, raw_values, entry_date," + `
	          contract_number, contract_id, category_code, provision_code, agent_name,
	          customer_first_name, customer_last_name, tariff, company,
	          gross_amount, storno_reserve, risk_buffer, net_amount,
	          status, issues, employee_id, employee_name, category, provision_type,
	          import_attempts)
	          VALUES (:id, :batch_id, :row_number, :raw_values, :entry_date,
	          :contract_number, :contract_id, :category_code, :provision_code, :agent_name,
	          :customer_first_name, :customer_last_name, :tariff, :company,
	          :gross_amount, :storno_reserve, :risk_buffer, :net_amount,
	          :status, :issues, :employee_id, :employee_name, :category, :provision_type,
	          :import_attempts)`

	for start := 0; start < len(rows); start += recordInsertChunk {
		end := start + recordInsertChunk
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.NamedExec(query, rows[start:end]); err != nil {
			return fmt.Errorf("insert records %d-%d: %w", start+1, end, err)
		}
	}
	return nil
}

// FindRecent lists batch headers newest first, without their records.
func (r *BatchRepository) FindRecent(limit int) ([]*models.ImportBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	var batches []*models.ImportBatch
	query := "SELECT * FROM import_batches ORDER BY created_at DESC, id DESC LIMIT ?"
	err := r.db.Select(&batches, query, limit)
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// FindByID loads one batch including all of its records.
func (r *BatchRepository) FindByID(id int) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	query := "SELECT * FROM import_batches WHERE id = ? LIMIT 1"
	if err := r.db.Get(&batch, query, id); err != nil {
		return nil, err
	}

	var rows []importRecordRow
	recordQuery := "SELECT * FROM import_records WHERE batch_id = ? ORDER BY `row_number`"
	if err := r.db.Select(&rows, recordQuery, id); err != nil {
		return nil, err
	}

	records := make([]*models.ImportRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRecordRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	batch.Records = records
	return &batch, nil
}

// FindByCode loads a batch by its human-facing code.
func (r *BatchRepository) FindByCode(code string) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	query := "SELECT * FROM import_batches WHERE batch_code = ? LIMIT 1"
	if err := r.db.Get(&batch, query, code); err != nil {
		return nil, err
	}
	return r.FindByID(batch.ID)
}
