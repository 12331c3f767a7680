package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/complaints"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/database"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/files"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/notify"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/outbox"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/seed"
)

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
	queue  *outbox.MemoryQueue
}

// setupFullServer builds the router the way cmd/uniresolve-server does, on
// a seeded in-memory database.
func setupFullServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if _, err := seed.Demo(context.Background(), db, zerolog.Nop()); err != nil {
		t.Fatalf("Failed to seed demo data: %v", err)
	}
	store, err := files.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	queue := outbox.NewMemoryQueue(100)
	router := NewRouter(Deps{
		DB:         db,
		Tokens:     auth.NewTokenManager("test-secret", time.Hour),
		Store:      store,
		Dispatcher: notify.NewDispatcher(db, queue, "http://localhost:8080", zerolog.Nop()),
		Logger:     zerolog.Nop(),
	})
	return &testServer{db: db, router: router, queue: queue}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) string {
	w := s.do("POST", "/api/v1/auth/login", "", auth.LoginRequest{Username: username, Password: password})
	if w.Code != http.StatusOK {
		t.Fatalf("Login as %s failed: %d %s", username, w.Code, w.Body.String())
	}
	var resp auth.AuthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Token
}

func (s *testServer) unread(t *testing.T, token string) int64 {
	w := s.do("GET", "/api/v1/notifications/unread-count", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Unread count failed: %d", w.Code)
	}
	var resp map[string]int64
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp["unread"]
}

func TestHealthAndDocs(t *testing.T) {
	s := setupFullServer(t)

	w := s.do("GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}

	w = s.do("GET", "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected swagger document, got %d", w.Code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Swagger document is not JSON: %v", err)
	}
	if doc["basePath"] != "/api/v1" {
		t.Errorf("Unexpected basePath %v", doc["basePath"])
	}
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	s := setupFullServer(t)

	w := s.do("GET", "/api/v1/universities/public", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var unis []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &unis)
	if len(unis) != 1 || unis[0]["code"] != "DEMO" {
		t.Errorf("Expected the demo university, got %v", unis)
	}

	for _, path := range []string{"/api/v1/complaints", "/api/v1/admin/users", "/api/v1/analytics/dashboard", "/api/v1/export/complaints", "/api/v1/notifications"} {
		if w := s.do("GET", path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401 without a token, got %d", path, w.Code)
		}
	}

	student := s.login(t, "student", seed.StudentPassword)
	if w := s.do("GET", "/api/v1/analytics/dashboard", student, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a student on analytics, got %d", w.Code)
	}
	if w := s.do("GET", "/api/v1/admin/users", student, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a student on admin, got %d", w.Code)
	}
}

func TestValidationErrorsUseJSONNames(t *testing.T) {
	s := setupFullServer(t)
	student := s.login(t, "student", seed.StudentPassword)

	w := s.do("POST", "/api/v1/complaints", student, map[string]interface{}{"title": "Hi"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if _, ok := resp.Fields["description"]; !ok {
		t.Errorf("Expected a description field error, got %v", resp.Fields)
	}
}

// TestDemoScenario follows one complaint through the demo university: filing
// notifies tenant staff, resolving notifies the student, and another university
// cannot see it.
func TestDemoScenario(t *testing.T) {
	s := setupFullServer(t)
	student := s.login(t, "student", seed.StudentPassword)
	staff := s.login(t, "staff", seed.StaffPassword)
	admin := s.login(t, "admin", seed.AdminPassword)

	w := s.do("POST", "/api/v1/complaints", student, map[string]interface{}{
		"title":       "Broken heater",
		"description": "The heater in room 101 has been broken for a week",
		"category":    "facilities",
		"priority":    "high",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created complaints.ComplaintResponse
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.Status != "submitted" || created.DueDate == "" {
		t.Errorf("Unexpected new complaint: %+v", created)
	}

	var history []complaints.ActivityResponse
	w = s.do("GET", fmt.Sprintf("/api/v1/complaints/%d/activities", created.ID), student, nil)
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 1 || history[0].Action != string(models.ActionComplaintCreated) {
		t.Errorf("Expected a single creation entry, got %+v", history)
	}

	if n := s.unread(t, admin); n != 0 {
		t.Errorf("Expected no notification for the platform super admin, got %d", n)
	}
	if n := s.unread(t, staff); n != 1 {
		t.Errorf("Expected 1 notification for staff, got %d", n)
	}
	if n := s.unread(t, student); n != 0 {
		t.Errorf("Expected no notification for the complainant, got %d", n)
	}

	w = s.do("POST", fmt.Sprintf("/api/v1/complaints/%d/status", created.ID), staff, map[string]interface{}{
		"status":     "resolved",
		"resolution": "Heater replaced",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resolved complaints.ComplaintResponse
	json.Unmarshal(w.Body.Bytes(), &resolved)
	if resolved.ResolvedAt == "" || resolved.ResolvedByID == nil {
		t.Errorf("Expected resolved_at and resolved_by_id, got %+v", resolved)
	}
	if n := s.unread(t, student); n != 1 {
		t.Errorf("Expected 1 notification for the student, got %d", n)
	}

	w = s.do("GET", fmt.Sprintf("/api/v1/complaints/%d/activities", created.ID), student, nil)
	json.Unmarshal(w.Body.Bytes(), &history)
	found := false
	for _, a := range history {
		if a.Action == string(models.ActionStatusChanged) && a.OldValue != nil && *a.OldValue == "submitted" &&
			a.NewValue != nil && *a.NewValue == "resolved" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a submitted -> resolved entry, got %+v", history)
	}

	if s.queue.Len() == 0 {
		t.Error("Expected notification emails to be queued")
	}

	// Another university's admin
	other := models.University{Name: "Other University", Code: "OTH", Domain: "other.edu"}
	s.db.Create(&other)
	hash, _ := auth.HashPassword("password123")
	s.db.Create(&models.User{Email: "admin@other.edu", Username: "otheradmin", FullName: "Other Admin",
		PasswordHash: hash, Role: models.RoleAdmin, UniversityID: other.ID})
	outsider := s.login(t, "otheradmin", "password123")

	if w := s.do("GET", fmt.Sprintf("/api/v1/complaints/%d", created.ID), outsider, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 across universities, got %d", w.Code)
	}
	w = s.do("GET", "/api/v1/export/complaints", outsider, nil)
	var exported []complaints.ComplaintResponse
	json.Unmarshal(w.Body.Bytes(), &exported)
	if len(exported) != 0 {
		t.Errorf("Expected an empty export for another university, got %d rows", len(exported))
	}

	w = s.do("GET", "/api/v1/analytics/dashboard", staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var dash map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &dash)
	if dash["total_complaints"] != float64(1) || dash["resolved_complaints"] != float64(1) {
		t.Errorf("Unexpected dashboard: %v", dash)
	}
}
