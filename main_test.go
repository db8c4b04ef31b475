package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"trackapi/internal/models/clconfig"
	"trackapi/internal/models/clserver"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============= Setup =============

func setupTestConfig(t *testing.T) *clconfig.Config {
	return &clconfig.Config{
		Database: clconfig.DatabaseConfig{
			Db:   "sqlite",
			Path: filepath.Join(t.TempDir(), "trackapi.db"),
		},
		Logger: clconfig.LoggerConfig{Level: "error"},
		Cors:   clconfig.CorsConfig{Origins: []string{"https://shop.example"}},
	}
}

func setupTestRouter(t *testing.T, config *clconfig.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ta, err := clserver.Init(context.Background(), config, "test", "test")
	require.NoError(t, err)
	t.Cleanup(ta.Close)

	r := newServer(config)
	require.NoError(t, setRoutes(r, ta))
	return r
}

func doRequest(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ============= Routes =============

func TestHealthAndRoot(t *testing.T) {
	r := setupTestRouter(t, setupTestConfig(t))

	w := doRequest(r, http.MethodGet, "/_health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Ok     bool    `json:"ok"`
		Uptime float64 `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.True(t, health.Ok)
	assert.GreaterOrEqual(t, health.Uptime, 0.0)

	w = doRequest(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"message":"trackapi up"}`, w.Body.String())
}

func TestNotFound(t *testing.T) {
	r := setupTestRouter(t, setupTestConfig(t))

	w := doRequest(r, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestLogIPRoutes(t *testing.T) {
	r := setupTestRouter(t, setupTestConfig(t))

	w := doRequest(r, http.MethodPost, "/log-ip", `{"page":"/home"}`, map[string]string{
		"X-Forwarded-For": "203.0.113.9",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, path := range []string{"/log-ip/recent", "/log-ip", "/ip-logs"} {
		w = doRequest(r, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		var resp struct {
			Count int `json:"count"`
			Rows  []struct {
				ServerDetectedIP string `json:"serverDetectedIp"`
				Page             string `json:"page"`
			} `json:"rows"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count, path)
		assert.Equal(t, "203.0.113.9", resp.Rows[0].ServerDetectedIP)
		assert.Equal(t, "/home", resp.Rows[0].Page)
	}
}

func TestPaymentClickRoutes(t *testing.T) {
	r := setupTestRouter(t, setupTestConfig(t))

	w := doRequest(r, http.MethodPost, "/metrics/payment-click", `{"orderId":"A1","sessionId":"s1"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"ok":true,"clicks":1}`, w.Body.String())

	w = doRequest(r, http.MethodPost, "/metrics/payment-click", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/metrics/payment-click/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"windowDays":14`)

	w = doRequest(r, http.MethodGet, "/metrics/payment-clicks?orderId=A1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = doRequest(r, http.MethodGet, "/metrics/payment-click/realtime", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := setupTestRouter(t, setupTestConfig(t))

	w := doRequest(r, http.MethodOptions, "/log-ip", "", map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = doRequest(r, http.MethodGet, "/", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitOnWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	config := setupTestConfig(t)
	config.Redis.Addr = mr.Addr()
	config.RateLimit = clconfig.RateLimitConfig{Enabled: true, Period: "1m", Limit: 2}
	r := setupTestRouter(t, config)

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, doRequest(r, http.MethodPost, "/log-ip", `{}`, nil).Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	// des en-têtes forgés ne donnent pas un nouveau quota
	w := doRequest(r, http.MethodPost, "/metrics/payment-click", `{"orderId":"A1"}`, map[string]string{
		"CF-Connecting-IP": "1.1.1.9",
		"X-Forwarded-For":  "9.9.9.9",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// les lectures ne sont pas limitées
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/log-ip/recent", "", nil).Code)
	}
}
