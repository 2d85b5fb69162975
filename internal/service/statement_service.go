package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"commission-web/internal/models"
)

// StatementService reads WIFO commission statements (xlsx) into raw rows
// and writes validation error reports. It implements the FileParser port
// of the orchestrator; everything format-specific lives here.
type StatementService struct{}

func NewStatementService() *StatementService {
	return &StatementService{}
}

// Column keys of a WIFO statement. Header matching is tolerant because
// the clearinghouse renames columns between statement versions.
const (
	colDate       = "date"
	colContract   = "contract"
	colContractID = "contract_id"
	colCategory   = "category"
	colProvision  = "provision"
	colAgent      = "agent"
	colFirstName  = "first_name"
	colLastName   = "last_name"
	colTariff     = "tariff"
	colCompany    = "company"
	colGross      = "gross"
	colStorno     = "storno"
	colRiskBuffer = "risk_buffer"
	colNet        = "net"
)

// Parse reads the first sheet of a statement file into raw rows. Cells
// the parser cannot interpret become ParseIssues on the row instead of
// aborting the whole file.
func (s *StatementService) Parse(filePath string, onProgress func(done, total int)) ([]models.StatementRow, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in statement file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	headerIdx, columns := locateHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no WIFO header row found (expected Vermittler and Vertrag columns)")
	}
	if len(rows) <= headerIdx+1 {
		return nil, fmt.Errorf("statement contains no data rows")
	}

	data := rows[headerIdx+1:]
	out := make([]models.StatementRow, 0, len(data))

	for i, row := range data {
		if isEmptyRow(row) {
			continue
		}
		out = append(out, s.parseRow(row, headerIdx+i+2, columns))

		if onProgress != nil && (i+1)%100 == 0 {
			onProgress(i+1, len(data))
		}
	}
	if onProgress != nil {
		onProgress(len(data), len(data))
	}

	return out, nil
}

func (s *StatementService) parseRow(row []string, rowNumber int, columns map[string]int) models.StatementRow {
	raw := make([]string, len(row))
	copy(raw, row)

	sr := models.StatementRow{
		RowNumber:         rowNumber,
		RawValues:         raw,
		ContractNumber:    cellValue(row, columns, colContract),
		ContractID:        cellValue(row, columns, colContractID),
		CategoryCode:      cellValue(row, columns, colCategory),
		ProvisionCode:     cellValue(row, columns, colProvision),
		AgentName:         cellValue(row, columns, colAgent),
		CustomerFirstName: cellValue(row, columns, colFirstName),
		CustomerLastName:  cellValue(row, columns, colLastName),
		Tariff:            cellValue(row, columns, colTariff),
		Company:           cellValue(row, columns, colCompany),
	}
	// Many statements only carry the Vertrag reference; use it as the
	// contract id for intra-file duplicate grouping too.
	if sr.ContractID == "" {
		sr.ContractID = sr.ContractNumber
	}

	if v := cellValue(row, columns, colDate); v != "" {
		if t, err := parseStatementDate(v); err == nil {
			sr.EntryDate = &t
		} else {
			sr.ParseIssues = append(sr.ParseIssues, models.ValidationIssue{
				Code:    "invalid_date",
				Field:   "entry_date",
				Message: fmt.Sprintf("cannot parse date %q", v),
			})
		}
	}

	numeric := []struct {
		key    string
		field  string
		target **float64
	}{
		{colGross, "gross_amount", &sr.GrossAmount},
		{colStorno, "storno_reserve", &sr.StornoReserve},
		{colRiskBuffer, "risk_buffer", &sr.RiskBuffer},
		{colNet, "net_amount", &sr.NetAmount},
	}
	for _, n := range numeric {
		v := cellValue(row, columns, n.key)
		if v == "" {
			continue
		}
		if amount, err := parseStatementAmount(v); err == nil {
			*n.target = &amount
		} else {
			sr.ParseIssues = append(sr.ParseIssues, models.ValidationIssue{
				Code:    "invalid_amount",
				Field:   n.field,
				Message: fmt.Sprintf("cannot parse amount %q", v),
			})
		}
	}

	return sr
}

// locateHeader scans the leading rows for the WIFO header and maps each
// known column name to its index.
func locateHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		columns := mapColumns(rows[i])
		_, hasAgent := columns[colAgent]
		_, hasContract := columns[colContract]
		if hasAgent && hasContract {
			return i, columns
		}
	}
	return -1, nil
}

func mapColumns(header []string) map[string]int {
	columns := make(map[string]int)
	assign := func(key string, idx int) {
		if _, taken := columns[key]; !taken {
			columns[key] = idx
		}
	}

	for idx, cell := range header {
		h := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case h == "":
		case strings.Contains(h, "datum"):
			assign(colDate, idx)
		case strings.Contains(h, "vertrags-id"), strings.Contains(h, "vertragsid"):
			assign(colContractID, idx)
		case strings.Contains(h, "vertrag"):
			assign(colContract, idx)
		case strings.Contains(h, "sparte"):
			assign(colCategory, idx)
		case strings.Contains(h, "provisionsart"):
			assign(colProvision, idx)
		case strings.Contains(h, "vermittler"):
			assign(colAgent, idx)
		case strings.Contains(h, "vorname"):
			assign(colFirstName, idx)
		case strings.Contains(h, "nachname"), strings.Contains(h, "kunde"):
			assign(colLastName, idx)
		case strings.Contains(h, "tarif"):
			assign(colTariff, idx)
		case strings.Contains(h, "gesellschaft"):
			assign(colCompany, idx)
		case strings.Contains(h, "bewertung"), strings.Contains(h, "brutto"):
			assign(colGross, idx)
		case strings.Contains(h, "storno"):
			assign(colStorno, idx)
		case h == "rb", strings.Contains(h, "risiko"):
			assign(colRiskBuffer, idx)
		case strings.Contains(h, "netto"):
			assign(colNet, idx)
		}
	}
	return columns
}

func cellValue(row []string, columns map[string]int, key string) string {
	idx, ok := columns[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

var statementDateLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"02.01.06",
	"01-02-06", // excelize default rendering of date cells
	"1/2/06 15:04",
}

func parseStatementDate(value string) (time.Time, error) {
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format %q", value)
}

// parseStatementAmount accepts German decimals ("1.234,56") as well as
// plain floats.
func parseStatementAmount(value string) (float64, error) {
	v := strings.TrimSpace(value)
	v = strings.TrimSuffix(v, "€")
	v = strings.TrimSpace(v)

	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ".", "")
		v = strings.ReplaceAll(v, ",", ".")
	}
	return strconv.ParseFloat(v, 64)
}

// ExportErrorReport writes every validation issue of a batch to an xlsx
// file for operator correction.
func (s *StatementService) ExportErrorReport(batch *models.ImportBatch, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Validation Issues"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Row", "Vertrag", "Vermittler", "Record Status", "Severity", "Code", "Field", "Message"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle)

	rowIdx := 2
	for _, rec := range batch.Records {
		for _, issue := range rec.Issues {
			values := []interface{}{
				rec.RowNumber,
				rec.ContractNumber,
				rec.AgentName,
				string(rec.Status),
				string(issue.Severity),
				issue.Code,
				issue.Field,
				issue.Message,
			}
			for col, value := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
				f.SetCellValue(sheetName, cell, value)
			}
			rowIdx++
		}
	}

	return f.SaveAs(outputPath)
}
