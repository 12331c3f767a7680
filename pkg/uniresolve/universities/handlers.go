package universities

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// Handler handles university and department requests
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHandler creates a new universities handler
func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// UniversityResponse represents a university in API responses
type UniversityResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Domain    string `json:"domain"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Timezone  string `json:"timezone"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// PublicUniversity is the sign-up view of a university
type PublicUniversity struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Domain string `json:"domain"`
}

// DepartmentResponse represents a department in API responses
type DepartmentResponse struct {
	ID           uint   `json:"id"`
	UniversityID uint   `json:"university_id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	Description  string `json:"description,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	HeadID       *uint  `json:"head_id,omitempty"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
}

func toResponse(u models.University) UniversityResponse {
	return UniversityResponse{
		ID:        u.ID,
		Name:      u.Name,
		Code:      u.Code,
		Domain:    u.Domain,
		Address:   u.Address,
		Phone:     u.Phone,
		Email:     u.Email,
		Timezone:  u.Timezone,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func toDepartmentResponse(d models.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:           d.ID,
		UniversityID: d.UniversityID,
		Name:         d.Name,
		Code:         d.Code,
		Description:  d.Description,
		Email:        d.Email,
		Phone:        d.Phone,
		HeadID:       d.HeadID,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func pathID(c *gin.Context, name, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label + " ID"})
		return 0, false
	}
	return uint(id), true
}

// ListPublic returns active universities for the sign-up form
// @Summary List universities open for registration
// @Tags universities
// @Produce json
// @Success 200 {array} PublicUniversity
// @Router /universities/public [get]
func (h *Handler) ListPublic(c *gin.Context) {
	items, err := h.svc.ListPublic(c.Request.Context())
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	resp := make([]PublicUniversity, len(items))
	for i, u := range items {
		resp[i] = PublicUniversity{ID: u.ID, Name: u.Name, Code: u.Code, Domain: u.Domain}
	}
	c.JSON(http.StatusOK, resp)
}

// List returns the universities visible to the caller
// @Summary List universities
// @Description Super admins see every university, everyone else their own
// @Tags universities
// @Produce json
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} pagination.Page[UniversityResponse]
// @Security BearerAuth
// @Router /universities [get]
func (h *Handler) List(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	params, err := pagination.FromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	page, err := h.svc.List(c.Request.Context(), actor, params)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pagination.Map(page, toResponse))
}

// Create registers a new university (super admin only)
// @Summary Create a university
// @Tags universities
// @Accept json
// @Produce json
// @Param request body CreateInput true "University details"
// @Success 201 {object} UniversityResponse
// @Failure 409 {object} map[string]string "Code already taken"
// @Failure 422 {object} map[string]interface{} "Validation error"
// @Security BearerAuth
// @Router /universities [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	u, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(*u))
}

// Get returns a university
// @Summary Get a university
// @Tags universities
// @Produce json
// @Param id path int true "University ID"
// @Success 200 {object} UniversityResponse
// @Failure 404 {object} map[string]string "University not found"
// @Security BearerAuth
// @Router /universities/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := pathID(c, "id", "university")
	if !ok {
		return
	}

	u, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*u))
}

// Update changes a university (its admins or a super admin)
// @Summary Update a university
// @Tags universities
// @Accept json
// @Produce json
// @Param id path int true "University ID"
// @Param request body UpdateInput true "Fields to change"
// @Success 200 {object} UniversityResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /universities/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := pathID(c, "id", "university")
	if !ok {
		return
	}
	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	u, err := h.svc.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*u))
}

// ListDepartments returns a university's departments
// @Summary List departments
// @Tags universities
// @Produce json
// @Param id path int true "University ID"
// @Param active_only query bool false "Only active departments"
// @Success 200 {array} DepartmentResponse
// @Security BearerAuth
// @Router /universities/{id}/departments [get]
func (h *Handler) ListDepartments(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := pathID(c, "id", "university")
	if !ok {
		return
	}

	depts, err := h.svc.ListDepartments(c.Request.Context(), actor, id, c.Query("active_only") == "true")
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	resp := make([]DepartmentResponse, len(depts))
	for i, d := range depts {
		resp[i] = toDepartmentResponse(d)
	}
	c.JSON(http.StatusOK, resp)
}

// CreateDepartment adds a department to a university
// @Summary Create a department
// @Tags universities
// @Accept json
// @Produce json
// @Param id path int true "University ID"
// @Param request body DepartmentInput true "Department details"
// @Success 201 {object} DepartmentResponse
// @Failure 409 {object} map[string]string "Code already taken"
// @Security BearerAuth
// @Router /universities/{id}/departments [post]
func (h *Handler) CreateDepartment(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := pathID(c, "id", "university")
	if !ok {
		return
	}
	var req DepartmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	d, err := h.svc.CreateDepartment(c.Request.Context(), actor, id, req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toDepartmentResponse(*d))
}

// UpdateDepartment changes a department
// @Summary Update a department
// @Tags universities
// @Accept json
// @Produce json
// @Param id path int true "University ID"
// @Param deptId path int true "Department ID"
// @Param request body DepartmentUpdate true "Fields to change"
// @Success 200 {object} DepartmentResponse
// @Failure 404 {object} map[string]string "Department not found"
// @Security BearerAuth
// @Router /universities/{id}/departments/{deptId} [put]
func (h *Handler) UpdateDepartment(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := pathID(c, "id", "university")
	if !ok {
		return
	}
	deptID, ok := pathID(c, "deptId", "department")
	if !ok {
		return
	}
	var req DepartmentUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	d, err := h.svc.UpdateDepartment(c.Request.Context(), actor, id, deptID, req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toDepartmentResponse(*d))
}

// RegisterPublicRoutes registers routes that need no token
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/universities/public", h.ListPublic)
}

// RegisterRoutes registers authenticated university routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	universities := rg.Group("/universities")
	{
		universities.GET("", h.List)
		universities.POST("", auth.RequireSuperAdmin(), h.Create)
		universities.GET("/:id", h.Get)
		universities.PUT("/:id", h.Update)
		universities.GET("/:id/departments", h.ListDepartments)
		universities.POST("/:id/departments", h.CreateDepartment)
		universities.PUT("/:id/departments/:deptId", h.UpdateDepartment)
	}
}
