package statistics

import (
	"bytes"
	"fmt"

	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Daily statistics"

var exportHeader = []any{
	"Date", "Total revenue", "Total net income", "Entries", "Average revenue", "Average net income",
}

// BuildWorkbook writes rows, in the given order, to a single-sheet workbook.
func BuildWorkbook(rows []models.DailyStatistics) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		values := []any{
			r.Date,
			r.TotalRevenue.InexactFloat64(),
			r.TotalNetIncome.InexactFloat64(),
			r.VehicleCount,
			r.AverageRevenue.InexactFloat64(),
			r.AverageNetIncome.InexactFloat64(),
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			f.Close()
			return nil, err
		}
	}
	_ = f.SetColWidth(exportSheet, "A", "F", 18)
	return f, nil
}

// -------------------------------------------------
// GET /api/statistics/export?from=2024-01-01&to=2024-01-31
// -------------------------------------------------
func ExportHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := rangeFromQuery(c)
		if err != nil {
			return err
		}

		rows, err := svc.GetByDateRange(c.UserContext(), from, to)
		if err != nil {
			return err
		}

		f, err := BuildWorkbook(rows)
		if err != nil {
			return err
		}
		defer f.Close()

		var buf bytes.Buffer
		if err := f.Write(&buf); err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="statistics_%s_%s.xlsx"`, from, to))
		return c.Send(buf.Bytes())
	}
}
