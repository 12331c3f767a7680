package notify

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// Handler serves the current user's notifications
type Handler struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewHandler creates a new notifications handler
func NewHandler(db *gorm.DB, logger zerolog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

// NotificationResponse represents a notification in API responses
type NotificationResponse struct {
	ID          uint   `json:"id"`
	ComplaintID *uint  `json:"complaint_id,omitempty"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"notification_type"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

func toResponse(n models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		ComplaintID: n.ComplaintID,
		Title:       n.Title,
		Message:     n.Message,
		Type:        string(n.Type),
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// List returns the current user's notifications, newest first
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Param unread_only query bool false "Only unread notifications"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} pagination.Page[NotificationResponse]
// @Security BearerAuth
// @Router /notifications [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	params, err := pagination.FromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	query := h.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if c.Query("unread_only") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC, id DESC").Scopes(params.Scope).Find(&rows).Error; err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	items := make([]NotificationResponse, len(rows))
	for i, n := range rows {
		items[i] = toResponse(n)
	}
	c.JSON(http.StatusOK, pagination.NewPage(items, total, params))
}

// UnreadCount returns the number of unread notifications
// @Summary Count unread notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Security BearerAuth
// @Router /notifications/unread-count [get]
func (h *Handler) UnreadCount(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var count int64
	if err := h.db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error; err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkRead marks one of the current user's notifications as read
// @Summary Mark notification read
// @Tags notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} NotificationResponse
// @Failure 404 {object} map[string]string "Notification not found"
// @Security BearerAuth
// @Router /notifications/{id}/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	// Other users' notifications are reported as missing
	var n models.Notification
	if err := h.db.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		apperr.Write(c, h.logger, apperr.FromDB(err, "Notification"))
		return
	}

	if !n.IsRead {
		if err := h.db.Model(&n).Update("is_read", true).Error; err != nil {
			apperr.Write(c, h.logger, err)
			return
		}
	}
	c.JSON(http.StatusOK, toResponse(n))
}

// MarkAllRead marks every unread notification of the current user as read
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Security BearerAuth
// @Router /notifications/read-all [post]
func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	result := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		apperr.Write(c, h.logger, result.Error)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": result.RowsAffected})
}

// RegisterRoutes registers notification routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.List)
	rg.GET("/notifications/unread-count", h.UnreadCount)
	rg.POST("/notifications/read-all", h.MarkAllRead)
	rg.POST("/notifications/:id/read", h.MarkRead)
}
