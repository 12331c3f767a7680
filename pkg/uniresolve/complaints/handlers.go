package complaints

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

const timeFormat = "2006-01-02T15:04:05Z"

// Handler handles complaint-related requests
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHandler creates a new complaints handler
func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// ComplaintResponse represents a complaint in API responses
type ComplaintResponse struct {
	ID                 uint     `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Priority           string   `json:"priority"`
	Status             string   `json:"status"`
	ComplainantID      *uint    `json:"complainant_id,omitempty"`
	ComplainantName    string   `json:"complainant_name,omitempty"`
	UniversityID       uint     `json:"university_id"`
	DepartmentID       *uint    `json:"department_id,omitempty"`
	IsAnonymous        bool     `json:"is_anonymous"`
	IncidentDate       string   `json:"incident_date,omitempty"`
	Location           string   `json:"location,omitempty"`
	Witnesses          []string `json:"witnesses"`
	Resolution         string   `json:"resolution,omitempty"`
	ResolvedAt         string   `json:"resolved_at,omitempty"`
	ResolvedByID       *uint    `json:"resolved_by_id,omitempty"`
	DueDate            string   `json:"due_date,omitempty"`
	IsOverdue          bool     `json:"is_overdue"`
	SatisfactionRating *int     `json:"satisfaction_rating,omitempty"`
	Feedback           string   `json:"feedback,omitempty"`
	AssignedUserIDs    []uint   `json:"assigned_user_ids"`
	Version            uint     `json:"version"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

// MessageResponse represents a message in API responses
type MessageResponse struct {
	ID          uint   `json:"id"`
	ComplaintID uint   `json:"complaint_id"`
	SenderID    uint   `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	Content     string `json:"content"`
	IsInternal  bool   `json:"is_internal"`
	CreatedAt   string `json:"created_at"`
}

// AttachmentResponse represents an attachment in API responses
type AttachmentResponse struct {
	ID               uint   `json:"id"`
	ComplaintID      uint   `json:"complaint_id"`
	UploadedByID     uint   `json:"uploaded_by_id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`
	MimeType         string `json:"mime_type"`
	CreatedAt        string `json:"created_at"`
}

// ActivityResponse represents an audit entry in API responses
type ActivityResponse struct {
	ID          uint    `json:"id"`
	UserID      uint    `json:"user_id"`
	Action      string  `json:"action"`
	Description string  `json:"description"`
	OldValue    *string `json:"old_value,omitempty"`
	NewValue    *string `json:"new_value,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// AssignRequest replaces the assignee set
type AssignRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeFormat)
}

// ToResponse renders complaint for viewer, hiding the complainant of
// anonymous complaints from viewers who may not see it.
func ToResponse(viewer *models.User, complaint *models.Complaint, now time.Time) ComplaintResponse {
	resp := ComplaintResponse{
		ID:                 complaint.ID,
		Title:              complaint.Title,
		Description:        complaint.Description,
		Category:           string(complaint.Category),
		Priority:           string(complaint.Priority),
		Status:             string(complaint.Status),
		UniversityID:       complaint.UniversityID,
		DepartmentID:       complaint.DepartmentID,
		IsAnonymous:        complaint.IsAnonymous,
		IncidentDate:       formatTime(complaint.IncidentDate),
		Location:           complaint.Location,
		Witnesses:          []string(complaint.Witnesses),
		Resolution:         complaint.Resolution,
		ResolvedAt:         formatTime(complaint.ResolvedAt),
		ResolvedByID:       complaint.ResolvedByID,
		DueDate:            formatTime(complaint.DueDate),
		SatisfactionRating: complaint.SatisfactionRating,
		Feedback:           complaint.Feedback,
		AssignedUserIDs:    complaint.AssignedUserIDs(),
		Version:            complaint.Version,
		CreatedAt:          complaint.CreatedAt.Format(timeFormat),
		UpdatedAt:          complaint.UpdatedAt.Format(timeFormat),
	}
	if resp.Witnesses == nil {
		resp.Witnesses = []string{}
	}
	if complaint.DueDate != nil && complaint.DueDate.Before(now) && !complaint.Status.IsTerminal() {
		resp.IsOverdue = true
	}
	if access.CanSeeIdentity(viewer, complaint) {
		id := complaint.ComplainantID
		resp.ComplainantID = &id
		resp.ComplainantName = complaint.Complainant.FullName
	}
	return resp
}

func messageToResponse(m models.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		ComplaintID: m.ComplaintID,
		SenderID:    m.SenderID,
		SenderName:  m.Sender.FullName,
		Content:     m.Content,
		IsInternal:  m.IsInternal,
		CreatedAt:   m.CreatedAt.Format(timeFormat),
	}
}

func attachmentToResponse(a models.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:               a.ID,
		ComplaintID:      a.ComplaintID,
		UploadedByID:     a.UploadedByID,
		Filename:         a.Filename,
		OriginalFilename: a.OriginalFilename,
		FileSize:         a.FileSize,
		MimeType:         a.MimeType,
		CreatedAt:        a.CreatedAt.Format(timeFormat),
	}
}

func activityToResponse(a models.Activity) ActivityResponse {
	return ActivityResponse{
		ID:          a.ID,
		UserID:      a.UserID,
		Action:      string(a.Action),
		Description: a.Description,
		OldValue:    a.OldValue,
		NewValue:    a.NewValue,
		CreatedAt:   a.CreatedAt.Format(timeFormat),
	}
}

// complaintID parses the :id path parameter
func complaintID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid complaint ID"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) respond(c *gin.Context, status int, actor *models.User, complaint *models.Complaint, err error) {
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(status, ToResponse(actor, complaint, h.svc.now()))
}

// Create handles filing a new complaint
// @Summary File a complaint
// @Tags complaints
// @Accept json
// @Produce json
// @Param request body CreateInput true "Complaint details"
// @Success 201 {object} ComplaintResponse
// @Failure 422 {object} map[string]interface{} "Validation error"
// @Security BearerAuth
// @Router /complaints [post]
func (h *Handler) Create(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)

	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	complaint, err := h.svc.Create(c.Request.Context(), actor, req)
	h.respond(c, http.StatusCreated, actor, complaint, err)
}

// List returns complaints visible to the current user
// @Summary List complaints
// @Tags complaints
// @Produce json
// @Param status query string false "Status"
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Param department_id query int false "Department ID"
// @Param assignee_id query int false "Assigned user ID"
// @Param university_id query int false "University ID (super admin only)"
// @Param from query string false "Created on or after (YYYY-MM-DD or RFC3339)"
// @Param to query string false "Created on or before (YYYY-MM-DD or RFC3339)"
// @Param q query string false "Search title and description"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} pagination.Page[ComplaintResponse]
// @Security BearerAuth
// @Router /complaints [get]
func (h *Handler) List(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)

	params, err := pagination.FromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	filter, err := FilterFromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	page, err := h.svc.List(c.Request.Context(), actor, filter, params)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	now := h.svc.now()
	c.JSON(http.StatusOK, pagination.Map(page, func(m models.Complaint) ComplaintResponse {
		return ToResponse(actor, &m, now)
	}))
}

// FilterFromQuery reads complaint list filters from the query string.
func FilterFromQuery(c *gin.Context) (ListFilter, error) {
	filter := ListFilter{
		Status:   models.ComplaintStatus(c.Query("status")),
		Category: models.Category(c.Query("category")),
		Priority: models.Priority(c.Query("priority")),
		Search:   c.Query("q"),
	}

	var err error
	if filter.UniversityID, err = optionalUint(c, "university_id"); err != nil {
		return filter, err
	}
	if filter.DepartmentID, err = optionalUint(c, "department_id"); err != nil {
		return filter, err
	}
	if filter.AssigneeID, err = optionalUint(c, "assignee_id"); err != nil {
		return filter, err
	}
	if filter.From, err = optionalTime(c, "from", false); err != nil {
		return filter, err
	}
	if filter.To, err = optionalTime(c, "to", true); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalUint(c *gin.Context, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, apperr.Invalid(name, "must be a positive integer")
	}
	id := uint(v)
	return &id, nil
}

// optionalTime accepts a date or an RFC3339 timestamp. A bare date used as
// an upper bound covers the whole day.
func optionalTime(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, apperr.Invalid(name, "must be YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// Get returns a single complaint
// @Summary Get a complaint
// @Tags complaints
// @Produce json
// @Param id path int true "Complaint ID"
// @Success 200 {object} ComplaintResponse
// @Failure 403 {object} map[string]string "Access denied"
// @Failure 404 {object} map[string]string "Complaint not found"
// @Security BearerAuth
// @Router /complaints/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	complaint, err := h.svc.Get(c.Request.Context(), actor, id)
	h.respond(c, http.StatusOK, actor, complaint, err)
}

// Update edits complaint fields
// @Summary Update a complaint
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path int true "Complaint ID"
// @Param request body UpdateInput true "Fields to change"
// @Success 200 {object} ComplaintResponse
// @Failure 403 {object} map[string]string "Complaint can no longer be modified"
// @Failure 409 {object} map[string]string "Version conflict"
// @Security BearerAuth
// @Router /complaints/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	complaint, err := h.svc.Update(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, actor, complaint, err)
}

// ChangeStatus moves a complaint to a new status
// @Summary Change complaint status
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path int true "Complaint ID"
// @Param request body StatusInput true "New status"
// @Success 200 {object} ComplaintResponse
// @Failure 403 {object} map[string]string "Not allowed"
// @Failure 409 {object} map[string]string "Version conflict"
// @Security BearerAuth
// @Router /complaints/{id}/status [post]
func (h *Handler) ChangeStatus(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	var req StatusInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	complaint, err := h.svc.ChangeStatus(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, actor, complaint, err)
}

// Assign replaces the assigned users of a complaint
// @Summary Assign a complaint
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path int true "Complaint ID"
// @Param request body AssignRequest true "User IDs, empty to unassign"
// @Success 200 {object} ComplaintResponse
// @Failure 403 {object} map[string]string "Staff only"
// @Failure 422 {object} map[string]interface{} "Invalid assignees"
// @Security BearerAuth
// @Router /complaints/{id}/assign [post]
func (h *Handler) Assign(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	complaint, err := h.svc.Assign(c.Request.Context(), actor, id, req.UserIDs)
	h.respond(c, http.StatusOK, actor, complaint, err)
}

// Rate stores the complainant's satisfaction rating
// @Summary Rate a complaint
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path int true "Complaint ID"
// @Param request body RatingInput true "Rating from 1 to 5"
// @Success 200 {object} ComplaintResponse
// @Failure 403 {object} map[string]string "Only the complainant can rate"
// @Security BearerAuth
// @Router /complaints/{id}/rating [post]
func (h *Handler) Rate(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	var req RatingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	complaint, err := h.svc.Rate(c.Request.Context(), actor, id, req)
	h.respond(c, http.StatusOK, actor, complaint, err)
}

// ListMessages returns the conversation on a complaint
// @Summary List messages
// @Tags complaints
// @Produce json
// @Param id path int true "Complaint ID"
// @Param include_internal query bool false "Include internal notes (staff only)"
// @Success 200 {array} MessageResponse
// @Security BearerAuth
// @Router /complaints/{id}/messages [get]
func (h *Handler) ListMessages(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	includeInternal := c.DefaultQuery("include_internal", "true") == "true"
	messages, err := h.svc.ListMessages(c.Request.Context(), actor, id, includeInternal)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	resp := make([]MessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = messageToResponse(m)
	}
	c.JSON(http.StatusOK, resp)
}

// AddMessage posts a message on a complaint
// @Summary Add a message
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path int true "Complaint ID"
// @Param request body MessageInput true "Message"
// @Success 201 {object} MessageResponse
// @Failure 403 {object} map[string]string "Only staff can post internal messages"
// @Security BearerAuth
// @Router /complaints/{id}/messages [post]
func (h *Handler) AddMessage(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	var req MessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, h.logger, apperr.FromBinding(err))
		return
	}

	msg, err := h.svc.AddMessage(c.Request.Context(), actor, id, req)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, messageToResponse(*msg))
}

// ListAttachments returns the files attached to a complaint
// @Summary List attachments
// @Tags complaints
// @Produce json
// @Param id path int true "Complaint ID"
// @Success 200 {array} AttachmentResponse
// @Security BearerAuth
// @Router /complaints/{id}/attachments [get]
func (h *Handler) ListAttachments(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	atts, err := h.svc.ListAttachments(c.Request.Context(), actor, id)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	resp := make([]AttachmentResponse, len(atts))
	for i, a := range atts {
		resp[i] = attachmentToResponse(a)
	}
	c.JSON(http.StatusOK, resp)
}

// Upload attaches a file to a complaint
// @Summary Upload an attachment
// @Tags complaints
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Complaint ID"
// @Param file formData file true "pdf, jpg, jpeg, png, doc, docx or txt, at most 10MB"
// @Success 201 {object} AttachmentResponse
// @Failure 422 {object} map[string]interface{} "Invalid file"
// @Failure 502 {object} map[string]string "File storage unavailable"
// @Security BearerAuth
// @Router /complaints/{id}/attachments [post]
func (h *Handler) Upload(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		apperr.Write(c, h.logger, apperr.Invalid("file", "no file selected"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		apperr.Write(c, h.logger, apperr.Invalid("file", "could not be read"))
		return
	}
	defer f.Close()

	att, err := h.svc.AddAttachment(c.Request.Context(), actor, id, Upload{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, attachmentToResponse(*att))
}

// Download streams an attachment
// @Summary Download an attachment
// @Tags complaints
// @Produce octet-stream
// @Param id path int true "Complaint ID"
// @Param attId path int true "Attachment ID"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string "Attachment not found"
// @Security BearerAuth
// @Router /complaints/{id}/attachments/{attId}/download [get]
func (h *Handler) Download(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}
	attID, err := strconv.ParseUint(c.Param("attId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid attachment ID"})
		return
	}

	att, rc, err := h.svc.OpenAttachment(c.Request.Context(), actor, id, uint(attID))
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	defer rc.Close()

	contentType := att.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.FileSize, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", att.OriginalFilename),
	})
}

// Activities returns the audit history of a complaint
// @Summary Complaint history
// @Tags complaints
// @Produce json
// @Param id path int true "Complaint ID"
// @Success 200 {array} ActivityResponse
// @Security BearerAuth
// @Router /complaints/{id}/activities [get]
func (h *Handler) Activities(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)
	id, ok := complaintID(c, "id")
	if !ok {
		return
	}

	rows, err := h.svc.Activities(c.Request.Context(), actor, id)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	resp := make([]ActivityResponse, len(rows))
	for i, a := range rows {
		resp[i] = activityToResponse(a)
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers complaint routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	complaints := rg.Group("/complaints")
	{
		complaints.POST("", h.Create)
		complaints.GET("", h.List)
		complaints.GET("/:id", h.Get)
		complaints.PUT("/:id", h.Update)
		complaints.POST("/:id/status", h.ChangeStatus)
		complaints.POST("/:id/assign", h.Assign)
		complaints.POST("/:id/rating", h.Rate)
		complaints.GET("/:id/messages", h.ListMessages)
		complaints.POST("/:id/messages", h.AddMessage)
		complaints.GET("/:id/attachments", h.ListAttachments)
		complaints.POST("/:id/attachments", h.Upload)
		complaints.GET("/:id/attachments/:attId/download", h.Download)
		complaints.GET("/:id/activities", h.Activities)
	}
}
