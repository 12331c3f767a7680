package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/database"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

const testSecret = "test-secret"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db, NewTokenManager(testSecret, 30*time.Minute), zerolog.Nop())
	auth := r.Group("/auth")
	handler.RegisterRoutes(auth)
	return r
}

func createTestUniversity(t *testing.T, db *gorm.DB) models.University {
	uni := models.University{Name: "Demo University", Code: "DEMO", Domain: "demo.edu"}
	if err := db.Create(&uni).Error; err != nil {
		t.Fatalf("Failed to create university: %v", err)
	}
	return uni
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func registerBody(uniID uint) RegisterRequest {
	return RegisterRequest{
		Email:        "test@demo.edu",
		Username:     "tester",
		FullName:     "Test User",
		Password:     "password123",
		UniversityID: uniID,
	}
}

func TestPasswordHashing(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == password {
		t.Error("Hash should not equal plain password")
	}

	if !CheckPassword(password, hash) {
		t.Error("CheckPassword should return true for correct password")
	}

	if CheckPassword("wrongpassword", hash) {
		t.Error("CheckPassword should return false for incorrect password")
	}
}

func TestJWTToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	user := &models.User{ID: 1, Email: "test@demo.edu", Role: models.RoleStaff, UniversityID: 3}

	token, err := tm.Generate(user)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := tm.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("Expected UserID 1, got %d", claims.UserID)
	}
	if claims.Role != "staff" {
		t.Errorf("Expected role staff, got %s", claims.Role)
	}
	if claims.UniversityID != 3 {
		t.Errorf("Expected UniversityID 3, got %d", claims.UniversityID)
	}
}

func TestExpiredToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := tm.Generate(&models.User{ID: 1})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	tm.now = time.Now
	if _, err := tm.Validate(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestInvalidToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	if _, err := tm.Validate("invalid-token"); err == nil {
		t.Error("Expected error for invalid token")
	}

	other := NewTokenManager("another-secret", time.Hour)
	token, _ := other.Generate(&models.User{ID: 1})
	if _, err := tm.Validate(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	resp := postJSON(router, "/auth/register", registerBody(uni.ID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Token == "" {
		t.Error("Expected token in response")
	}
	if response.User.Role != "student" {
		t.Errorf("Expected self-registered role student, got %s", response.User.Role)
	}
	if response.User.UniversityID != uni.ID {
		t.Errorf("Expected university %d, got %d", uni.ID, response.User.UniversityID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	postJSON(router, "/auth/register", registerBody(uni.ID))

	body := registerBody(uni.ID)
	body.Username = "someone-else"
	resp := postJSON(router, "/auth/register", body)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}

	body = registerBody(uni.ID)
	body.Email = "other@demo.edu"
	resp = postJSON(router, "/auth/register", body)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate username, got %d", resp.Code)
	}
}

func TestRegisterUnknownUniversity(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := postJSON(router, "/auth/register", registerBody(42))

	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", resp.Code)
	}
}

func TestRegisterForeignDepartment(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)
	other := models.University{Name: "Other", Code: "OTH", Domain: "other.edu"}
	db.Create(&other)
	dept := models.Department{UniversityID: other.ID, Name: "Law", Code: "LAW"}
	db.Create(&dept)

	body := registerBody(uni.ID)
	body.DepartmentID = &dept.ID
	resp := postJSON(router, "/auth/register", body)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", resp.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	body := registerBody(uni.ID)
	body.Password = "short"
	resp := postJSON(router, "/auth/register", body)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", resp.Code)
	}
}

func TestLogin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	postJSON(router, "/auth/register", registerBody(uni.ID))

	for _, login := range []string{"tester", "test@demo.edu"} {
		resp := postJSON(router, "/auth/login", LoginRequest{Username: login, Password: "password123"})

		if resp.Code != http.StatusOK {
			t.Errorf("Expected status 200 for %s, got %d: %s", login, resp.Code, resp.Body.String())
			continue
		}

		var response AuthResponse
		json.Unmarshal(resp.Body.Bytes(), &response)

		if response.Token == "" {
			t.Error("Expected token in response")
		}
		if response.User.LastLoginAt == "" {
			t.Error("Expected last_login_at to be set")
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	postJSON(router, "/auth/register", registerBody(uni.ID))

	resp := postJSON(router, "/auth/login", LoginRequest{Username: "tester", Password: "wrongpassword"})

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	postJSON(router, "/auth/register", registerBody(uni.ID))
	db.Model(&models.User{}).Where("username = ?", "tester").Update("is_active", false)

	resp := postJSON(router, "/auth/login", LoginRequest{Username: "tester", Password: "password123"})

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func TestMe(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	uni := createTestUniversity(t, db)

	resp := postJSON(router, "/auth/register", registerBody(uni.ID))

	var authResponse AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &authResponse)

	db.Create(&models.Complaint{
		Title: "Noise", Description: "Loud construction at night", Category: models.CategoryHousing,
		Priority: models.PriorityLow, Status: models.StatusResolved,
		ComplainantID: authResponse.User.ID, UniversityID: uni.ID, Version: 1,
	})
	db.Create(&models.Complaint{
		Title: "Wifi", Description: "Wifi is down in the library", Category: models.CategoryTechnology,
		Priority: models.PriorityMedium, Status: models.StatusSubmitted,
		ComplainantID: authResponse.User.ID, UniversityID: uni.ID, Version: 1,
	})

	req, _ := http.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+authResponse.Token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var me MeResponse
	json.Unmarshal(resp.Body.Bytes(), &me)

	if me.Email != "test@demo.edu" {
		t.Errorf("Expected email test@demo.edu, got %s", me.Email)
	}
	if me.TotalComplaints != 2 || me.ResolvedComplaints != 1 {
		t.Errorf("Expected 2 total / 1 resolved, got %d / %d", me.TotalComplaints, me.ResolvedComplaints)
	}
}

func TestMeWithoutAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	req, _ := http.NewRequest("GET", "/auth/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	db := setupTestDB(t)
	uni := createTestUniversity(t, db)
	tm := NewTokenManager(testSecret, time.Hour)

	student := models.User{Email: "s@demo.edu", Username: "s", FullName: "S", UniversityID: uni.ID}
	staff := models.User{Email: "t@demo.edu", Username: "t", FullName: "T", Role: models.RoleStaff, UniversityID: uni.ID}
	db.Create(&student)
	db.Create(&staff)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/staff", AuthMiddleware(tm, db), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/admin", AuthMiddleware(tm, db), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(path string, user *models.User) int {
		token, _ := tm.Generate(user)
		req, _ := http.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := call("/staff", &student); code != http.StatusForbidden {
		t.Errorf("Expected student to be forbidden from staff route, got %d", code)
	}
	if code := call("/staff", &staff); code != http.StatusNoContent {
		t.Errorf("Expected staff to pass staff route, got %d", code)
	}
	if code := call("/admin", &staff); code != http.StatusForbidden {
		t.Errorf("Expected staff to be forbidden from admin route, got %d", code)
	}

	// Role comes from the database, not the token
	db.Model(&staff).Update("role", models.RoleAdmin)
	if code := call("/admin", &staff); code != http.StatusNoContent {
		t.Errorf("Expected promoted user to pass admin route, got %d", code)
	}

	db.Model(&staff).Update("is_active", false)
	if code := call("/staff", &staff); code != http.StatusForbidden {
		t.Errorf("Expected disabled user to be rejected, got %d", code)
	}
}
