package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewWithWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "json")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Expected warn message in output")
	}
}

func TestNewWithWriterBadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty", "json")

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	if strings.Contains(buf.String(), `"debug"`) {
		t.Error("Debug should be filtered at default info level")
	}
	if !strings.Contains(buf.String(), "info") {
		t.Error("Expected info message")
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/ping/:id", func(c *gin.Context) {
		c.Set("user_id", uint(7))
		c.JSON(http.StatusTeapot, gin.H{})
	})

	req, _ := http.NewRequest("GET", "/ping/1", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Header().Get(HeaderRequestID) != "req-123" {
		t.Errorf("Expected request id to be echoed, got %q", resp.Header().Get(HeaderRequestID))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected a single JSON log line: %v (%s)", err, buf.String())
	}
	if entry["path"] != "/ping/:id" {
		t.Errorf("Expected route path, got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("Expected status 418, got %v", entry["status"])
	}
	if entry["level"] != "warn" {
		t.Errorf("Expected warn level for 4xx, got %v", entry["level"])
	}
	if entry["user_id"] != float64(7) {
		t.Errorf("Expected user_id 7, got %v", entry["user_id"])
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	req, _ := http.NewRequest("GET", "/boom", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.Code)
	}
	if !strings.Contains(buf.String(), "recovered from panic") {
		t.Error("Expected panic to be logged")
	}
}
