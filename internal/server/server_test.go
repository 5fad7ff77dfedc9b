package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleet-backend/internal/config"
	"fleet-backend/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type testClient struct {
	t   *testing.T
	app *fiber.App
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	db, err := database.NewTest()
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:   "0123456789abcdef0123456789abcdef",
		TokenTTL:    time.Hour,
		CORSOrigins: "http://localhost:5173",
	}
	log := zap.NewNop()
	app := New(cfg, db, NewStatisticsService(db, log), log)
	return &testClient{t: t, app: app}
}

func (tc *testClient) do(method, path, token string, body any, out any) int {
	tc.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(tc.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return tc.send(req, out)
}

func (tc *testClient) send(req *http.Request, out any) int {
	tc.t.Helper()
	resp, err := tc.app.Test(req, -1)
	require.NoError(tc.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(tc.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (tc *testClient) login(email, password string) string {
	tc.t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := tc.do("POST", "/api/auth/login", "", map[string]string{"email": email, "password": password}, &resp)
	require.Equal(tc.t, fiber.StatusOK, status)
	require.NotEmpty(tc.t, resp.Token)
	return resp.Token
}

type idResponse struct {
	ID uint `json:"id"`
}

type dailyResponse struct {
	Date             string  `json:"date"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalNetIncome   float64 `json:"total_net_income"`
	VehicleCount     int     `json:"vehicle_count"`
	AverageRevenue   float64 `json:"average_revenue"`
	AverageNetIncome float64 `json:"average_net_income"`
}

func setupFleet(t *testing.T) (*testClient, string, []uint) {
	t.Helper()
	tc := newTestClient(t)

	status := tc.do("POST", "/api/auth/register-admin", "", map[string]string{
		"name": "Admin", "email": "admin@example.com", "password": "supersecret",
	}, nil)
	require.Equal(t, fiber.StatusCreated, status)

	token := tc.login("admin@example.com", "supersecret")

	ids := make([]uint, 0, 3)
	for _, plate := range []string{"34 ABC 01", "34 abc 02", "34 ABC 03"} {
		var v idResponse
		status := tc.do("POST", "/api/vehicles", token, map[string]string{"plate_number": plate}, &v)
		require.Equal(t, fiber.StatusCreated, status)
		ids = append(ids, v.ID)
	}
	return tc, token, ids
}

func TestRegisterAdminOnlyOnce(t *testing.T) {
	tc, _, _ := setupFleet(t)

	status := tc.do("POST", "/api/auth/register-admin", "", map[string]string{
		"name": "Other", "email": "other@example.com", "password": "supersecret",
	}, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestIncomeUpdatesDailyStatistics(t *testing.T) {
	tc, token, ids := setupFleet(t)

	var saved struct {
		Created    bool          `json:"created"`
		Statistics dailyResponse `json:"statistics"`
	}
	status := tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-01-01", "vehicle_id": ids[0], "revenue": 100, "cost": 30,
	}, &saved)
	require.Equal(t, fiber.StatusCreated, status)
	assert.True(t, saved.Created)
	assert.Equal(t, 1, saved.Statistics.VehicleCount)
	assert.Equal(t, 33.3, saved.Statistics.AverageRevenue)

	status = tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-01-01", "vehicle_id": ids[1], "revenue": 50, "cost": 10,
	}, &saved)
	require.Equal(t, fiber.StatusCreated, status)

	var day dailyResponse
	status = tc.do("GET", "/api/statistics/daily/2024-01-01", token, nil, &day)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 150.0, day.TotalRevenue)
	assert.Equal(t, 110.0, day.TotalNetIncome)
	assert.Equal(t, 2, day.VehicleCount)
	assert.Equal(t, 50.0, day.AverageRevenue)
	assert.Equal(t, 36.6, day.AverageNetIncome)

	// same vehicle and day overwrites
	status = tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-01-01", "vehicle_id": ids[0], "revenue": 130, "cost": 30,
	}, &saved)
	require.Equal(t, fiber.StatusOK, status)
	assert.False(t, saved.Created)
	assert.Equal(t, 180.0, saved.Statistics.TotalRevenue)
	assert.Equal(t, 2, saved.Statistics.VehicleCount)

	status = tc.do("GET", "/api/statistics/daily/2030-01-01", token, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestIncomeValidation(t *testing.T) {
	tc, token, ids := setupFleet(t)

	status := tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "01-01-2024", "vehicle_id": ids[0], "revenue": 100,
	}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-01-01", "vehicle_id": ids[0], "revenue": -5,
	}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-01-01", "vehicle_id": 999, "revenue": 5,
	}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestDeleteIncomeRecomputes(t *testing.T) {
	tc, token, ids := setupFleet(t)

	var saved struct {
		Income idResponse `json:"income"`
	}
	require.Equal(t, fiber.StatusCreated, tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-02-10", "vehicle_id": ids[2], "revenue": 90, "cost": 0,
	}, &saved))

	assert.Equal(t, fiber.StatusConflict, tc.do("DELETE", "/api/vehicles/"+itoa(ids[2]), token, nil, nil))
	assert.Equal(t, fiber.StatusNoContent, tc.do("DELETE", "/api/incomes/"+itoa(saved.Income.ID), token, nil, nil))

	var day dailyResponse
	require.Equal(t, fiber.StatusOK, tc.do("GET", "/api/statistics/daily/2024-02-10", token, nil, &day))
	assert.Equal(t, 0, day.VehicleCount)
	assert.Equal(t, 0.0, day.TotalRevenue)

	assert.Equal(t, fiber.StatusNoContent, tc.do("DELETE", "/api/vehicles/"+itoa(ids[2]), token, nil, nil))
}

func TestBatchRangeAndMonthly(t *testing.T) {
	tc, token, ids := setupFleet(t)

	require.Equal(t, fiber.StatusCreated, tc.do("POST", "/api/incomes", token, map[string]any{
		"date": "2024-01-02", "vehicle_id": ids[0], "revenue": 60, "cost": 0,
	}, nil))

	var batch struct {
		Processed int `json:"processed"`
	}
	status := tc.do("POST", "/api/statistics/recalculate", token, map[string]string{
		"start_date": "2024-01-01", "end_date": "2024-01-03",
	}, &batch)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 3, batch.Processed)

	status = tc.do("POST", "/api/statistics/recalculate", token, map[string]string{
		"start_date": "2024-01-03", "end_date": "2024-01-01",
	}, &batch)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 0, batch.Processed)

	status = tc.do("POST", "/api/statistics/recalculate", token, map[string]string{
		"start_date": "2024-01-01", "end_date": "2026-01-01",
	}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	var rows []dailyResponse
	require.Equal(t, fiber.StatusOK, tc.do("GET", "/api/statistics?from=2024-01-01&to=2024-01-03", token, nil, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-01-03", rows[0].Date)
	assert.Equal(t, "2024-01-01", rows[2].Date)
	assert.Equal(t, 20.0, rows[1].AverageRevenue)

	var month struct {
		Days                int             `json:"days"`
		TotalRevenue        float64         `json:"total_revenue"`
		AverageDailyRevenue float64         `json:"average_daily_revenue"`
		Daily               []dailyResponse `json:"daily"`
	}
	require.Equal(t, fiber.StatusOK, tc.do("GET", "/api/statistics/monthly?year=2024&month=1", token, nil, &month))
	assert.Equal(t, 3, month.Days)
	assert.Equal(t, 60.0, month.TotalRevenue)
	assert.Equal(t, 20.0, month.AverageDailyRevenue)
	require.Len(t, month.Daily, 3)
	assert.Equal(t, "2024-01-01", month.Daily[0].Date)

	assert.Equal(t, fiber.StatusBadRequest, tc.do("GET", "/api/statistics/monthly?year=2024&month=13", token, nil, nil))
}

func TestOperatorPermissionsAndSessions(t *testing.T) {
	tc, adminToken, ids := setupFleet(t)

	var created idResponse
	require.Equal(t, fiber.StatusCreated, tc.do("POST", "/api/users", adminToken, map[string]string{
		"name": "Operator", "email": "ops@example.com", "password": "operator-pass", "role": "operator",
	}, &created))

	opToken := tc.login("ops@example.com", "operator-pass")

	assert.Equal(t, fiber.StatusCreated, tc.do("POST", "/api/incomes", opToken, map[string]any{
		"date": "2024-03-01", "vehicle_id": ids[0], "revenue": 10,
	}, nil))
	assert.Equal(t, fiber.StatusForbidden, tc.do("POST", "/api/vehicles", opToken, map[string]string{"plate_number": "01 X 1"}, nil))
	assert.Equal(t, fiber.StatusForbidden, tc.do("POST", "/api/statistics/daily/2024-03-01/recalculate", opToken, nil, nil))
	assert.Equal(t, fiber.StatusForbidden, tc.do("GET", "/api/audit-logs", opToken, nil, nil))

	// deactivation ends the operator's session
	require.Equal(t, fiber.StatusOK, tc.do("PUT", "/api/users/"+itoa(created.ID), adminToken, map[string]any{"active": false}, nil))
	assert.Equal(t, fiber.StatusUnauthorized, tc.do("GET", "/api/auth/me", opToken, nil, nil))
	assert.Equal(t, fiber.StatusForbidden, tc.do("POST", "/api/auth/login", "", map[string]string{
		"email": "ops@example.com", "password": "operator-pass",
	}, nil))

	var logs []struct {
		EntityType string `json:"entity_type"`
	}
	require.Equal(t, fiber.StatusOK, tc.do("GET", "/api/audit-logs?entity_type=user", adminToken, nil, &logs))
	assert.Len(t, logs, 2)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	tc, token, _ := setupFleet(t)

	assert.Equal(t, fiber.StatusOK, tc.do("GET", "/api/auth/me", token, nil, nil))
	assert.Equal(t, fiber.StatusNoContent, tc.do("POST", "/api/auth/logout", token, nil, nil))
	assert.Equal(t, fiber.StatusUnauthorized, tc.do("GET", "/api/auth/me", token, nil, nil))

	fresh := tc.login("admin@example.com", "supersecret")
	assert.Equal(t, fiber.StatusOK, tc.do("GET", "/api/auth/me", fresh, nil, nil))
}

func TestCannotDeleteSelf(t *testing.T) {
	tc, token, _ := setupFleet(t)

	var me idResponse
	require.Equal(t, fiber.StatusOK, tc.do("GET", "/api/auth/me", token, nil, &me))
	assert.Equal(t, fiber.StatusBadRequest, tc.do("DELETE", "/api/users/"+itoa(me.ID), token, nil, nil))
}

func TestImportAndExport(t *testing.T) {
	tc, token, _ := setupFleet(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Plate", "Revenue", "Cost", "Note"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2024-04-01", "34 abc 01", 300, 50, ""}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"2024-04-01", "34 ABC 02", 150, 0, ""}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"2024-04-01", "99 ZZZ 99", 10, 0, ""}))
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "incomes.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/incomes/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	var imported struct {
		Imported          int      `json:"imported"`
		RecalculatedDates []string `json:"recalculated_dates"`
		Rejected          []struct {
			Line int `json:"line"`
		} `json:"rejected"`
	}
	require.Equal(t, fiber.StatusOK, tc.send(req, &imported))
	assert.Equal(t, 2, imported.Imported)
	assert.Equal(t, []string{"2024-04-01"}, imported.RecalculatedDates)
	require.Len(t, imported.Rejected, 1)
	assert.Equal(t, 4, imported.Rejected[0].Line)

	var day dailyResponse
	require.Equal(t, fiber.StatusOK, tc.do("GET", "/api/statistics/daily/2024-04-01", token, nil, &day))
	assert.Equal(t, 450.0, day.TotalRevenue)
	assert.Equal(t, 150.0, day.AverageRevenue)

	req = httptest.NewRequest("GET", "/api/statistics/export?from=2024-04-01&to=2024-04-01", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := tc.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer out.Close()
	rows, err := out.GetRows("Daily statistics")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "450", rows[1][1])
}

func itoa(id uint) string {
	return fmt.Sprint(id)
}
