package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Invalid("title", "too short"), http.StatusUnprocessableEntity},
		{NotFound("Complaint"), http.StatusNotFound},
		{Forbidden("Staff access required"), http.StatusForbidden},
		{Conflict("Complaint was modified concurrently"), http.StatusConflict},
		{&CollaboratorError{Collaborator: "file store", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", NotFound("User")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFromDB(t *testing.T) {
	if FromDB(nil, "User") != nil {
		t.Error("Expected nil for nil error")
	}
	if err := FromDB(gorm.ErrRecordNotFound, "User"); err.Error() != "User not found" {
		t.Errorf("Expected not found mapping, got %v", err)
	}
	if Status(FromDB(gorm.ErrDuplicatedKey, "University")) != http.StatusConflict {
		t.Error("Expected duplicate key to map to conflict")
	}
	other := errors.New("disk full")
	if FromDB(other, "User") != other {
		t.Error("Expected unknown errors to pass through")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validation("Validation failed", map[string]string{"title": "too short", "category": "unknown"})
	want := "Validation failed (category: unknown; title: too short)"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

type bindTarget struct {
	FullName string `json:"full_name" binding:"required"`
	Rating   int    `json:"rating" binding:"gte=1,lte=5"`
}

func TestWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/bind", func(c *gin.Context) {
		var req bindTarget
		if err := c.ShouldBindJSON(&req); err != nil {
			Write(c, zerolog.Nop(), FromBinding(err))
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/internal", func(c *gin.Context) {
		Write(c, zerolog.Nop(), errors.New("connection refused to 10.0.0.5"))
	})

	req, _ := http.NewRequest("POST", "/bind", strings.NewReader(`{"rating": 9}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", resp.Code)
	}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Fields["full_name"] != "is required" {
		t.Errorf("Expected full_name to be required, got %v", body.Fields)
	}
	if body.Fields["rating"] == "" {
		t.Errorf("Expected rating field error, got %v", body.Fields)
	}

	req, _ = http.NewRequest("GET", "/internal", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "10.0.0.5") {
		t.Error("Internal error details must not leak")
	}
}
