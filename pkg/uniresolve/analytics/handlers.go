package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// Handler serves analytics endpoints
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// DepartmentsResponse wraps department performance rows
type DepartmentsResponse struct {
	UniversityID uint              `json:"university_id"`
	Data         []DepartmentStats `json:"data"`
}

// tenant resolves which university the request reads. Only a super admin may
// pick another university with ?university_id=.
func (h *Handler) tenant(c *gin.Context, actor *models.User) (uint, bool) {
	universityID := actor.UniversityID
	if raw := c.Query("university_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			apperr.Write(c, h.logger, apperr.Invalid("university_id", "must be a positive integer"))
			return 0, false
		}
		universityID = uint(v)
	}
	if !access.CanViewTenant(actor, universityID) {
		apperr.Write(c, h.logger, apperr.Forbidden("Analytics are not available for this university"))
		return 0, false
	}
	return universityID, true
}

func filterFromQuery(c *gin.Context) (Filter, error) {
	var f Filter
	if raw := c.Query("department_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return f, apperr.Invalid("department_id", "must be a positive integer")
		}
		id := uint(v)
		f.DepartmentID = &id
	}
	var err error
	if f.From, err = queryDate(c, "from", false); err != nil {
		return f, err
	}
	if f.To, err = queryDate(c, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

func queryDate(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, apperr.Invalid(name, "must be YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// Dashboard returns headline statistics
// @Summary Complaint dashboard
// @Tags analytics
// @Produce json
// @Param university_id query int false "University ID (super admin only)"
// @Param department_id query int false "Department ID"
// @Param from query string false "Created on or after (YYYY-MM-DD)"
// @Param to query string false "Created on or before (YYYY-MM-DD)"
// @Success 200 {object} Dashboard
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /analytics/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	universityID, ok := h.tenant(c, actor)
	if !ok {
		return
	}
	filter, err := filterFromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	d, err := h.svc.Dashboard(c.Request.Context(), universityID, filter)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Trends returns monthly complaint counts
// @Summary Monthly trends
// @Tags analytics
// @Produce json
// @Param university_id query int false "University ID (super admin only)"
// @Param months query int false "Window length in months (1-24, default 6)"
// @Success 200 {array} MonthlyTrend
// @Failure 422 {object} map[string]interface{} "Validation error"
// @Security BearerAuth
// @Router /analytics/trends [get]
func (h *Handler) Trends(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	universityID, ok := h.tenant(c, actor)
	if !ok {
		return
	}
	months, err := strconv.Atoi(c.DefaultQuery("months", strconv.Itoa(DefaultMonths)))
	if err != nil {
		apperr.Write(c, h.logger, apperr.Invalid("months", "must be an integer"))
		return
	}

	trends, err := h.svc.MonthlyTrends(c.Request.Context(), universityID, months)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trends)
}

// Departments returns per-department performance
// @Summary Department performance
// @Tags analytics
// @Produce json
// @Param university_id query int false "University ID (super admin only)"
// @Success 200 {object} DepartmentsResponse
// @Security BearerAuth
// @Router /analytics/departments [get]
func (h *Handler) Departments(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	universityID, ok := h.tenant(c, actor)
	if !ok {
		return
	}

	rows, err := h.svc.DepartmentPerformance(c.Request.Context(), universityID)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, DepartmentsResponse{UniversityID: universityID, Data: rows})
}

// RegisterRoutes registers analytics routes. Callers must be staff or above.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	analytics := rg.Group("/analytics", auth.RequireStaff())
	{
		analytics.GET("/dashboard", h.Dashboard)
		analytics.GET("/trends", h.Trends)
		analytics.GET("/departments", h.Departments)
	}
}
