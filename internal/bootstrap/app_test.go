package bootstrap

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelpharm-backend/internal/shared/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:             "dev",
		ObjectStoreType: "local",
		LocalStoreDir:   t.TempDir(),
		CORSAllowOrigin: []string{"http://localhost:3000"},
		OCREngines:      []string{"pattern"},
		OCRTimeout:      5 * time.Second,
		LockTTL:         time.Minute,
		OTelServiceName: "pixelpharm-test",
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := Build(testConfig(t))
	require.NoError(t, err)
	app.ProcessingService.Go = func(f func()) { f() }
	t.Cleanup(app.Close)
	return app
}

func doJSON(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", "lab-user")
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	return resp
}

func uploadFile(t *testing.T, app *App, name, content, uploadType string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("uploadType", uploadType))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Guest-Id", "lab-user")
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestBuildWiresMemoryBackends(t *testing.T) {
	app := newTestApp(t)

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Queue)
	assert.Nil(t, app.Presigner)
	assert.NotNil(t, app.Locker)
	assert.NotNil(t, app.Processor)
	assert.NotNil(t, app.ProcessingService.Extractor)
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = "production"
	_, err := Build(cfg)
	require.Error(t, err)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		app.Router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestProtectedRoutesNeedIdentity(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestUploadProcessAndQueryBiomarkers(t *testing.T) {
	app := newTestApp(t)

	uploaded := uploadFile(t, app, "panel.txt",
		"Glucose 105 mg/dL 70-99 H\nSodium 140 135-145 mmol/L\n", "blood_test")
	uploadID, _ := uploaded["uploadId"].(string)
	require.NotEmpty(t, uploadID)
	assert.Equal(t, "uploaded", uploaded["status"])

	resp := doJSON(t, app, http.MethodPost, "/api/v1/uploads/"+uploadID+"/process", nil)
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	resp = doJSON(t, app, http.MethodGet, "/api/v1/uploads/"+uploadID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var upload map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &upload))
	assert.Equal(t, "completed", upload["status"])

	resp = doJSON(t, app, http.MethodGet, "/api/v1/uploads/"+uploadID+"/processing", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var attempts struct {
		Items []struct {
			Engine string `json:"engine"`
			Status string `json:"status"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &attempts))
	require.Len(t, attempts.Items, 1)
	assert.Equal(t, "pattern", attempts.Items[0].Engine)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/biomarkers", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var latest struct {
		Items []struct {
			Name       string   `json:"name"`
			Value      *float64 `json:"value"`
			Status     string   `json:"status"`
			IsAbnormal bool     `json:"isAbnormal"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &latest))
	require.Len(t, latest.Items, 2)
	byName := map[string]bool{}
	for _, item := range latest.Items {
		byName[item.Name] = item.IsAbnormal
	}
	assert.True(t, byName["Glucose"])
	assert.False(t, byName["Sodium"])

	resp = doJSON(t, app, http.MethodGet, "/api/v1/blood-tests", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var results struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &results))
	require.Len(t, results.Items, 1)
	assert.Equal(t, uploadID, results.Items[0]["uploadId"])
}

func TestInsightsWithoutLLMKey(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/insights", map[string]string{"kind": "health_insight"})
	assert.Equal(t, http.StatusConflict, resp.Code, "no biomarker data yet")

	up := uploadFile(t, app, "panel.txt", "Glucose 90 mg/dL 70-99\n", "blood_test")
	resp = doJSON(t, app, http.MethodPost, "/api/v1/uploads/"+up["uploadId"].(string)+"/process", nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	resp = doJSON(t, app, http.MethodPost, "/api/v1/insights", map[string]string{"kind": "health_insight"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code, resp.Body.String())
}

func TestProcessByKeyRejectsForeignKey(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/process", map[string]string{
		"s3Key":    "uploads/someone-else/abc/panel.pdf",
		"fileName": "panel.pdf",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code, resp.Body.String())
}
