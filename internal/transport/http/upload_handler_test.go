package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"classpulse/internal/config"
	apierrors "classpulse/internal/errors"
	"classpulse/internal/ingest"
	"classpulse/internal/services"
	"classpulse/internal/store"
	"classpulse/pkg/contracts/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type testServer struct {
	router  chi.Router
	uploads *services.UploadService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := testLogger()

	st, err := store.New(logger, t.TempDir(), store.DefaultHistoryCap)
	require.NoError(t, err)
	uploads := services.NewUploadService(ingest.NewEngine(logger, ingest.DefaultConfig()), st, logger)

	summaries, err := services.NewSummaryService(context.Background(), config.SummaryConfig{}, logger)
	require.NoError(t, err)

	handler := NewUploadHandler(uploads, summaries, logger, apierrors.NewErrorHandler(logger), 10<<20)

	router := chi.NewRouter()
	router.Mount("/api/uploads", handler.Routes())

	return &testServer{router: router, uploads: uploads}
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "Current")
	require.NoError(t, f.SetSheetRow("Current", "A1", &[]interface{}{"Name", "Math", "Science"}))
	require.NoError(t, f.SetSheetRow("Current", "A2", &[]interface{}{"Alice", 90, 80}))
	require.NoError(t, f.SetSheetRow("Current", "A3", &[]interface{}{"Bob", 70, 65}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func multipartUpload(t *testing.T, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if file != nil {
		part, err := mw.CreateFormFile("file", "scores.xlsx")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func defaultFields() map[string]string {
	return map[string]string{
		"teacher":    "Ms. Rivera",
		"class_name": "7B",
		"subject":    "All",
		"exam_name":  "Midterm",
	}
}

func (ts *testServer) seedUpload(t *testing.T) *domain.UploadPayload {
	t.Helper()
	payload, err := ts.uploads.Ingest(context.Background(), bytes.NewReader(workbookBytes(t)), domain.ExamOptions{
		Teacher:   "Ms. Rivera",
		ClassName: "7B",
		Subject:   "All",
		ExamName:  "Midterm",
	})
	require.NoError(t, err)
	return payload
}

func TestCreateUpload(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, workbookBytes(t), defaultFields()))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var payload domain.UploadPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload.Meta.ID)
	assert.Equal(t, "scores.xlsx", payload.Meta.FileName)
	assert.Equal(t, []string{"Math", "Science"}, payload.Meta.Subjects)
	assert.Len(t, payload.Records, 2)
}

func TestCreateUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, nil, defaultFields()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCreateUpload_MissingTeacher(t *testing.T) {
	ts := newTestServer(t)

	fields := defaultFields()
	delete(fields, "teacher")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, workbookBytes(t), fields))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUpload_InvalidMarks(t *testing.T) {
	ts := newTestServer(t)

	fields := defaultFields()
	fields["total_marks"] = "one hundred"
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, workbookBytes(t), fields))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUpload_NotAWorkbook(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, []byte("plain text"), defaultFields()))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/ingestion", problem["type"])
}

func TestListUploads(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUpload(t)
	ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Uploads []domain.UploadMeta `json:"uploads"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Uploads, 2)
}

func TestGetUpload(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+seeded.Meta.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var payload domain.UploadPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, seeded.Meta.ID, payload.Meta.ID)
}

func TestGetUpload_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestDeleteUpload(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+seeded.Meta.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+seeded.Meta.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportUpload_CSV(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+seeded.Meta.ID+"/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "7B-Midterm-report.csv")
	assert.Contains(t, rec.Body.String(), "Student,Math,Science,Total,Change")
}

func TestExportUpload_XLSX(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+seeded.Meta.ID+"/export?format=xlsx", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExportUpload_UnsupportedFormat(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+seeded.Meta.ID+"/export?format=pdf", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarizeUpload_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	seeded := ts.seedUpload(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/"+seeded.Meta.ID+"/summary", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/service-unavailable", problem["type"])
}

func TestSummarizeUpload_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/missing/summary", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	handler := NewHealthHandler("1.2.3", false, testLogger())

	rec := httptest.NewRecorder()
	handler.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "1.2.3", resp["version"])
	assert.Equal(t, false, resp["summary_enabled"])
}
