package export

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/complaints"
)

// Handler handles export requests
type Handler struct {
	svc    *complaints.Service
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler creates a new export handler
func NewHandler(svc *complaints.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, now: time.Now}
}

// Export downloads the complaints the caller can list
// @Summary Export complaints
// @Description Accepts the same filters as GET /complaints. Anonymous complainants stay hidden from viewers who may not see them.
// @Tags export
// @Produce json,text/csv
// @Param format query string false "json (default) or csv"
// @Param status query string false "Status"
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Param department_id query int false "Department ID"
// @Param university_id query int false "University ID (super admin only)"
// @Param from query string false "Created on or after (YYYY-MM-DD)"
// @Param to query string false "Created on or before (YYYY-MM-DD)"
// @Param download query bool false "Send as attachment"
// @Success 200 {array} complaints.ComplaintResponse
// @Security BearerAuth
// @Router /export/complaints [get]
func (h *Handler) Export(c *gin.Context) {
	actor, _ := auth.CurrentUser(c)

	format := c.DefaultQuery("format", FormatJSON)
	if format != FormatJSON && format != FormatCSV {
		apperr.Write(c, h.logger, apperr.Invalid("format", "must be json or csv"))
		return
	}
	filter, err := complaints.FilterFromQuery(c)
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}

	rows, truncated, err := Collect(c.Request.Context(), h.svc, actor, filter, h.now())
	if err != nil {
		apperr.Write(c, h.logger, err)
		return
	}
	if truncated {
		h.logger.Warn().Uint("user_id", actor.ID).Int("limit", MaxRows).Msg("complaint export truncated")
		c.Header("X-Export-Truncated", "true")
	}

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=complaints-export."+format)
	}

	if format == FormatJSON {
		c.JSON(http.StatusOK, rows)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := WriteCSV(c.Writer, rows); err != nil {
		h.logger.Error().Err(err).Msg("failed to write csv export")
	}
}

// RegisterRoutes registers export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/export/complaints", h.Export)
}
