package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint-server/src/services"
)

// AuditHandler serves the audit log query surface
type AuditHandler struct {
	auditService *services.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (ah *AuditHandler) queryOptions(c *gin.Context) services.QueryOptions {
	return services.QueryOptions{
		Limit:  intQuery(c, "limit", 50),
		Cursor: c.Query("cursor"),
	}
}

func (ah *AuditHandler) respond(c *gin.Context, page *services.AuditPage, err error) {
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "server_error",
			"message": "Failed to query audit log",
		})
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleByAdmin handles GET /api/audit/by-admin/:id
func (ah *AuditHandler) HandleByAdmin(c *gin.Context) {
	page, err := ah.auditService.ByAdmin(c.Request.Context(), c.Param("id"), ah.queryOptions(c))
	ah.respond(c, page, err)
}

// HandleByAction handles GET /api/audit/by-action/:action
func (ah *AuditHandler) HandleByAction(c *gin.Context) {
	page, err := ah.auditService.ByAction(c.Request.Context(), c.Param("action"), ah.queryOptions(c))
	ah.respond(c, page, err)
}

// HandleByDate handles GET /api/audit/by-date/:date (yyyy-mm-dd, UTC)
func (ah *AuditHandler) HandleByDate(c *gin.Context) {
	page, err := ah.auditService.ByDate(c.Request.Context(), c.Param("date"), ah.queryOptions(c))
	ah.respond(c, page, err)
}

// HandleCritical handles GET /api/audit/critical
func (ah *AuditHandler) HandleCritical(c *gin.Context) {
	page, err := ah.auditService.Critical(c.Request.Context(), ah.queryOptions(c))
	ah.respond(c, page, err)
}
