package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/complaints"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/database"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/files"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

type fixture struct {
	db      *gorm.DB
	svc     *complaints.Service
	router  *gin.Engine
	tokens  *auth.TokenManager
	uni     models.University
	other   models.University
	student models.User
	staff   models.User
	outside models.User
}

func setup(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	store, err := files.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{db: db, tokens: auth.NewTokenManager("test-secret", time.Hour)}
	f.svc = complaints.NewService(db, nil, store, zerolog.Nop())

	f.uni = models.University{Name: "Demo University", Code: "DEMO", Domain: "demo.edu"}
	f.other = models.University{Name: "Other University", Code: "OTH", Domain: "other.edu"}
	require.NoError(t, db.Create(&f.uni).Error)
	require.NoError(t, db.Create(&f.other).Error)

	mk := func(name string, role models.Role, uni uint) models.User {
		u := models.User{Email: name + "@example.edu", Username: name, FullName: name, Role: role, UniversityID: uni}
		require.NoError(t, db.Create(&u).Error)
		return u
	}
	f.student = mk("student", models.RoleStudent, f.uni.ID)
	f.staff = mk("staff", models.RoleStaff, f.uni.ID)
	f.outside = mk("outside", models.RoleStudent, f.other.ID)

	f.router = gin.New()
	NewHandler(f.svc, zerolog.Nop()).RegisterRoutes(f.router.Group("/api/v1", auth.AuthMiddleware(f.tokens, db)))
	return f
}

func (f *fixture) file(t *testing.T, actor *models.User, title string, category models.Category) *models.Complaint {
	c, err := f.svc.Create(context.Background(), actor, complaints.CreateInput{
		Title:       title,
		Description: "Something needs attention on campus",
		Category:    category,
		Priority:    models.PriorityMedium,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) get(t *testing.T, user *models.User, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/api/v1"+path, nil)
	token, err := f.tokens.Generate(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestCollectPagesThroughEverything(t *testing.T) {
	f := setup(t)
	due := time.Now().Add(-time.Hour)
	rows := make([]models.Complaint, 105)
	for i := range rows {
		rows[i] = models.Complaint{
			Title:         fmt.Sprintf("Complaint %03d", i),
			Description:   "Bulk complaint",
			Category:      models.CategoryAcademic,
			Status:        models.StatusSubmitted,
			ComplainantID: f.student.ID,
			UniversityID:  f.uni.ID,
			DueDate:       &due,
		}
	}
	require.NoError(t, f.db.CreateInBatches(rows, 50).Error)

	got, truncated, err := Collect(context.Background(), f.svc, &f.staff, complaints.ListFilter{}, time.Now())
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, got, 105)
	assert.True(t, got[0].IsOverdue)

	got, _, err = Collect(context.Background(), f.svc, &f.outside, complaints.ListFilter{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExportJSON(t *testing.T) {
	f := setup(t)
	f.file(t, &f.student, "Broken heater", models.CategoryFacilities)
	f.file(t, &f.student, "Unfair grading", models.CategoryAcademic)
	f.file(t, &f.outside, "Leaking roof", models.CategoryFacilities)

	resp := f.get(t, &f.staff, "/export/complaints")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var rows []complaints.ComplaintResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, f.uni.ID, r.UniversityID)
	}

	resp = f.get(t, &f.staff, "/export/complaints?category=academic&download=true")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "attachment; filename=complaints-export.json", resp.Header().Get("Content-Disposition"))
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Unfair grading", rows[0].Title)
}

func TestExportCSV(t *testing.T) {
	f := setup(t)
	c := f.file(t, &f.student, "Broken heater, room 101", models.CategoryFacilities)

	resp := f.get(t, &f.student, "/export/complaints?format=csv")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header().Get("Content-Type"))

	records, err := csv.NewReader(bytes.NewReader(resp.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, fmt.Sprint(c.ID), records[1][0])
	assert.Equal(t, "Broken heater, room 101", records[1][1])
	assert.Equal(t, "submitted", records[1][4])
	assert.Equal(t, fmt.Sprint(f.student.ID), records[1][7])
}

func TestExportRejectsBadInput(t *testing.T) {
	f := setup(t)

	resp := f.get(t, &f.staff, "/export/complaints?format=xml")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = f.get(t, &f.staff, "/export/complaints?status=lost")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = f.get(t, &f.staff, "/export/complaints?from=yesterday")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
