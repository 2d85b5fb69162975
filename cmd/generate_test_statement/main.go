package main

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Generates a sample WIFO commission statement for manual upload testing.
func main() {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Provisionsabrechnung"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		fmt.Printf("Error creating sheet: %v\n", err)
		return
	}

	headers := []string{
		"Datum", "Vertrag", "Vertrags-ID", "Sparte", "Provisionsart",
		"Vermittler", "Kunde Vorname", "Kunde Nachname", "Tarif",
		"Gesellschaft", "Bewertung", "Stornoreserve", "RB", "Netto",
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%s1", getColumnName(i))
		f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	f.SetCellStyle(sheetName, "A1", fmt.Sprintf("%s1", getColumnName(len(headers)-1)), headerStyle)

	// Mixed test rows: clean lines, a fuzzy agent spelling, a missing net
	// amount, an unknown Sparte code and a repeated line.
	testData := [][]interface{}{
		{"15.01.2025", "V-2025-001", "C-1001", "LV", "AP", "Schmidt, Anna", "Max", "Mustermann", "Komfort LV", "Allianz", "1.250,00", "125,00", "62,50", "1.062,50"},
		{"15.01.2025", "V-2025-002", "C-1002", "KV", "BP", "Thomas Weber", "Erika", "Musterfrau", "KV Premium", "Debeka", "480,00", "0,00", "0,00", "480,00"},
		{"16.01.2025", "V-2025-003", "C-1003", "SHU", "AP", "Tomas Webber", "Hans", "Meier", "Hausrat Plus", "HUK", "320,00", "32,00", "16,00", "272,00"},
		{"16.01.2025", "V-2025-004", "C-1004", "KFZ", "VP", "Müller, Jonas", "Lisa", "Schulz", "Kfz Kasko", "HUK", "150,00", "", "", ""},
		{"17.01.2025", "V-2025-005", "C-1005", "XYZ", "AP", "Schmidt, Anna", "Peter", "Lang", "Unbekannt", "Generali", "200,00", "20,00", "10,00", "170,00"},
		{"15.01.2025", "V-2025-001", "C-1001", "LV", "AP", "Schmidt, Anna", "Max", "Mustermann", "Komfort LV", "Allianz", "1.250,00", "125,00", "62,50", "1.062,50"},
	}

	for rowIdx, rowData := range testData {
		row := rowIdx + 2
		for colIdx, value := range rowData {
			cell := fmt.Sprintf("%s%d", getColumnName(colIdx), row)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "C", 14)
	f.SetColWidth(sheetName, "F", "F", 20)
	f.SetColWidth(sheetName, "I", "J", 16)

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	outputPath := filepath.Join("storage", "uploads", "test_statement.xlsx")
	if err := f.SaveAs(outputPath); err != nil {
		fmt.Printf("Error saving file: %v\n", err)
		return
	}

	fmt.Printf("Test statement created: %s (%d rows)\n", outputPath, len(testData))
}

func getColumnName(index int) string {
	result := ""
	for index >= 0 {
		result = string(rune('A'+(index%26))) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}
