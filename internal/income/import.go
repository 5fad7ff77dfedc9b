package income

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"fleet-backend/internal/audit"
	"fleet-backend/internal/auth"
	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"
	"fleet-backend/internal/vehicle"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Accepted spellings of a day in uploaded sheets.
var importDateLayouts = []string{dates.Layout, "02.01.2006", "02/01/2006"}

// ImportRow is one parsed sheet line: date | plate | revenue | cost | note.
type ImportRow struct {
	Line        int
	Date        string
	PlateNumber string
	Revenue     decimal.Decimal
	Cost        decimal.Decimal
	Note        string
}

type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type ImportResponse struct {
	Imported          int        `json:"imported"`
	Created           int        `json:"created"`
	Updated           int        `json:"updated"`
	Rejected          []RowError `json:"rejected"`
	RecalculatedDates []string   `json:"recalculated_dates"`
}

// ReadWorkbook returns the rows of the first sheet.
func ReadWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// ParseRows converts raw sheet rows. A leading header row is skipped and
// blank lines are ignored; line numbers are 1-based sheet rows.
func ParseRows(rows [][]string) ([]ImportRow, []RowError) {
	parsed := make([]ImportRow, 0, len(rows))
	rejected := make([]RowError, 0)

	for i, row := range rows {
		line := i + 1
		if isBlank(row) {
			continue
		}
		if i == 0 && isHeader(row) {
			continue
		}

		r, err := parseRow(line, row)
		if err != nil {
			rejected = append(rejected, RowError{Line: line, Message: err.Error()})
			continue
		}
		parsed = append(parsed, r)
	}
	return parsed, rejected
}

func parseRow(line int, row []string) (ImportRow, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	date, err := parseImportDate(cell(0))
	if err != nil {
		return ImportRow{}, err
	}
	plate := vehicle.NormalizePlate(cell(1))
	if plate == "" {
		return ImportRow{}, fmt.Errorf("plate number is empty")
	}
	revenue, err := parseImportAmount(cell(2))
	if err != nil {
		return ImportRow{}, fmt.Errorf("revenue: %w", err)
	}
	cost, err := parseImportAmount(cell(3))
	if err != nil {
		return ImportRow{}, fmt.Errorf("cost: %w", err)
	}

	return ImportRow{
		Line:        line,
		Date:        date,
		PlateNumber: plate,
		Revenue:     revenue,
		Cost:        cost,
		Note:        cell(4),
	}, nil
}

func parseImportDate(s string) (string, error) {
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dates.Format(t), nil
		}
	}
	return "", fmt.Errorf("date %q is not recognised", s)
}

// parseImportAmount accepts "1234.5" and "1234,5"; an empty cell is zero.
func parseImportAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("cannot be negative")
	}
	return d, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isHeader(row []string) bool {
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return strings.Contains(first, "date") || strings.Contains(first, "tarih")
}

// -------------------------------------------------
// POST /api/incomes/import (multipart, field "file", .xlsx)
// -------------------------------------------------
func ImportIncomesHandler(db *gorm.DB, stats Recalculator, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "File upload missing")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Only .xlsx files are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not open upload")
		}
		defer file.Close()

		rows, err := ReadWorkbook(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Could not read Excel file")
		}

		parsed, rejected := ParseRows(rows)
		ctx := c.UserContext()

		var vehicles []models.Vehicle
		if err := db.WithContext(ctx).Find(&vehicles).Error; err != nil {
			return err
		}
		byPlate := make(map[string]uint, len(vehicles))
		for _, v := range vehicles {
			byPlate[vehicle.NormalizePlate(v.PlateNumber)] = v.ID
		}

		actor, _ := auth.CurrentActor(c)
		resp := ImportResponse{Rejected: rejected}
		touched := map[string]struct{}{}

		for _, r := range parsed {
			vehicleID, ok := byPlate[r.PlateNumber]
			if !ok {
				resp.Rejected = append(resp.Rejected, RowError{Line: r.Line, Message: fmt.Sprintf("unknown plate %s", r.PlateNumber)})
				continue
			}

			_, created, err := Save(ctx, db, Entry{
				Date:      r.Date,
				VehicleID: vehicleID,
				Revenue:   r.Revenue,
				Cost:      r.Cost,
				Note:      r.Note,
				CreatedBy: actor.ID,
			})
			if err != nil {
				var fe *fiber.Error
				if errors.As(err, &fe) {
					resp.Rejected = append(resp.Rejected, RowError{Line: r.Line, Message: fe.Message})
					continue
				}
				return err
			}

			resp.Imported++
			if created {
				resp.Created++
			} else {
				resp.Updated++
			}
			touched[r.Date] = struct{}{}
		}

		resp.RecalculatedDates = make([]string, 0, len(touched))
		for d := range touched {
			resp.RecalculatedDates = append(resp.RecalculatedDates, d)
		}
		slices.Sort(resp.RecalculatedDates)
		for _, d := range resp.RecalculatedDates {
			if _, err := stats.CalculateAndUpdate(ctx, d); err != nil {
				return err
			}
		}

		if resp.Imported > 0 {
			rec.Record(c, audit.LogOptions{
				EntityType:  "income",
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Income import: %d rows from %s", resp.Imported, fileHeader.Filename),
				After:       resp,
			})
		}

		return c.JSON(resp)
	}
}
