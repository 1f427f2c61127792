package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const billSheet = "Bill"

var billHeader = []string{"Date", "Description", "Amount"}

// XLSX writes the bill lines to a single-sheet workbook with a total row.
// Amounts are numeric cells so the sheet can be summed again.
func XLSX(b *Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(billSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(billSheet); err == nil {
		f.SetActiveSheet(index)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("create amount style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("create total style: %w", err)
	}

	if err := f.SetSheetRow(billSheet, "A1", &billHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(billSheet, "A1", "C1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(billSheet, "A", "A", 14); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(billSheet, "B", "B", 40); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(billSheet, "C", "C", 16); err != nil {
		return nil, err
	}

	row := 2
	for _, l := range b.Lines {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		amount, _ := l.Amount.Float64()
		values := []interface{}{l.Date.Format("2006-01-02"), l.Description, amount}
		if err := f.SetSheetRow(billSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		amountCell, _ := excelize.CoordinatesToCellName(3, row)
		if err := f.SetCellStyle(billSheet, amountCell, amountCell, amountStyle); err != nil {
			return nil, err
		}
		row++
	}

	total, _ := b.Total.Float64()
	labelCell, _ := excelize.CoordinatesToCellName(2, row)
	totalCell, _ := excelize.CoordinatesToCellName(3, row)
	if err := f.SetCellValue(billSheet, labelCell, "TOTAL AMOUNT"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(billSheet, totalCell, total); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(billSheet, labelCell, totalCell, totalStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
