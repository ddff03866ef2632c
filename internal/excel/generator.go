package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sunfin/quote-engine/internal/model"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the penalty statistics report as a workbook with a
// summary block and a per-violation-type breakdown table.
func (g *Generator) Generate(stats model.PenaltyStatistics) ([]byte, error) {
	file := excelize.NewFile()

	sheet := "Penalty statistics"
	file.SetSheetName("Sheet1", sheet)

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Period start")
	set("B1", formatDate(stats.PeriodStart))
	set("A2", "Period end")
	set("B2", formatDate(stats.PeriodEnd))
	set("A3", "Penalties applied")
	set("B3", stats.TotalCount)
	set("A4", "Total amount")
	set("B4", stats.TotalAmount.StringFixed(2))
	set("A5", "Disputed")
	set("B5", stats.DisputedCount)
	set("A6", "Waived")
	set("B6", stats.WaivedCount)

	tableRow := 8
	set(fmt.Sprintf("A%d", tableRow), "Violation type")
	set(fmt.Sprintf("B%d", tableRow), "Count")
	set(fmt.Sprintf("C%d", tableRow), "Total amount")

	for i, typeStat := range stats.ByType {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), typeLabel(typeStat.Type))
		set(fmt.Sprintf("B%d", row), typeStat.Count)
		set(fmt.Sprintf("C%d", row), typeStat.TotalAmount.StringFixed(2))
	}

	_ = file.SetColWidth(sheet, "A", "A", 28)
	_ = file.SetColWidth(sheet, "B", "B", 14)
	_ = file.SetColWidth(sheet, "C", "C", 16)

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func typeLabel(t model.PenaltyType) string {
	switch t {
	case model.PenaltyTypeLateInstallation:
		return "Late installation"
	case model.PenaltyTypeQualityIssue:
		return "Quality issue"
	case model.PenaltyTypeCommunicationFailure:
		return "Communication failure"
	case model.PenaltyTypeCancellation:
		return "Cancellation"
	default:
		return string(t)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
