package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/sheet"
	"bitbucket.org/mmdatafocus/itc_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a := &app{
		cfg: &config.ReconConfig{
			FiscalYearStartMonth: time.April,
			GstnSheet:            "GSTN",
			BooksSheet:           "BOOKS",
			HeaderRow:            1,
			KeyNormalizer:        "strip_alpha",
		},
		logger: logger,
	}
	a.runner.Store(&workflow.Runner{Logger: logger})
	return a
}

func uploadWorkbook(t *testing.T, booksHeader []interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	_, err := f.NewSheet("GSTN")
	require.NoError(t, err)
	_, err = f.NewSheet("BOOKS")
	require.NoError(t, err)

	header := []interface{}{"GSTN", "Invoice Number", "Invoice Date", "Taxable"}
	require.NoError(t, f.SetSheetRow("GSTN", "A1", &header))
	require.NoError(t, f.SetSheetRow("BOOKS", "A1", &booksHeader))

	rows := [][]interface{}{
		{"27AAAAA0000A1Z5", "INV001A", "2024-05-10", 1000},
		{"27AAAAA0000A1Z5", "INV009", "2023-12-01", 50},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, f.SetSheetRow("GSTN", cell, &row))
	}
	books := []interface{}{"27AAAAA0000A1Z5", "inv001a", "2024-05-10", 1000}
	require.NoError(t, f.SetSheetRow("BOOKS", "A2", &books))

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func multipartRequest(t *testing.T, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "ITC MATCH.xlsx")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/reconcile", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Correlation-Id", "cid-42")
	return req
}

var booksHeader = []interface{}{"GSTN", "Invoice Number", "Invoice Date", "Taxable"}

func TestReconcileEndpoint_ReturnsWorkbook(t *testing.T) {
	a := testApp(t)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, multipartRequest(t, uploadWorkbook(t, booksHeader), map[string]string{"cutoff": "2024-04-01"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cid-42", rec.Header().Get("X-Correlation-Id"))
	assert.NotEmpty(t, rec.Header().Get("X-Run-Id"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ITC MATCH_RESULT.xlsx")

	wb, err := sheet.OpenReader(rec.Body)
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"MATCHED", "PREV_FY_ITC"}, wb.SheetNames())

	matched, err := wb.ReadTable("MATCHED", sheet.ReadOptions{HeaderRow: 1})
	require.NoError(t, err)
	assert.Equal(t, "10/05/2024", matched.Value(0, "Invoice Date"))
}

func TestReconcileEndpoint_JSONSummary(t *testing.T) {
	a := testApp(t)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, multipartRequest(t, uploadWorkbook(t, booksHeader), map[string]string{"cutoff": "2024-04-01", "format": "json"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Cutoff  string         `json:"cutoff"`
		Sheets  map[string]int `json:"sheets"`
		Summary struct {
			Matched int `json:"matched"`
			PrevFy  int `json:"prev_fy"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-04-01", resp.Cutoff)
	assert.Equal(t, 1, resp.Summary.Matched)
	assert.Equal(t, 1, resp.Summary.PrevFy)
	assert.Equal(t, map[string]int{"MATCHED": 1, "PREV_FY_ITC": 1}, resp.Sheets)
}

func TestReconcileEndpoint_MissingKeyColumnIs422(t *testing.T) {
	a := testApp(t)
	rec := httptest.NewRecorder()
	bad := []interface{}{"GSTN", "Inv No", "Invoice Date", "Taxable"}
	a.router().ServeHTTP(rec, multipartRequest(t, uploadWorkbook(t, bad), nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReconcileEndpoint_Validation(t *testing.T) {
	a := testApp(t)

	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, multipartRequest(t, uploadWorkbook(t, booksHeader), map[string]string{"cutoff": "01/04/2024"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	a.router().ServeHTTP(rec, multipartRequest(t, uploadWorkbook(t, booksHeader), map[string]string{"gstn_sheet": "GSTR2B"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReconcileEndpoint_NotReady(t *testing.T) {
	a := testApp(t)
	a.runner.Store(nil)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, multipartRequest(t, uploadWorkbook(t, booksHeader), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	a := testApp(t)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
