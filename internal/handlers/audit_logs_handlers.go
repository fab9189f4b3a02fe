package handlers

import (
	"net/http"

	"orderbridge/internal/common"
	"orderbridge/internal/models"
	"orderbridge/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AuditLogsHandlers handles audit logs related HTTP requests
type AuditLogsHandlers struct {
	auditLogsService services.AuditLogsService
}

// NewAuditLogsHandlers creates a new audit logs handlers instance
func NewAuditLogsHandlers(auditLogsService services.AuditLogsService) *AuditLogsHandlers {
	return &AuditLogsHandlers{
		auditLogsService: auditLogsService,
	}
}

// ListAuditLogs godoc
// @Summary Audit trail with filtering and pagination
// @Tags audit
// @Produce json
// @Param entity_type query string false "order or mapping_config"
// @Param entity_id query string false "Entity ID"
// @Param action query string false "Action"
// @Param user_id query string false "Actor"
// @Success 200 {object} map[string]interface{}
// @Router /audit-logs [get]
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	filters := &models.AuditLogFilters{}
	if entityType := c.QueryParam("entity_type"); entityType != "" {
		filters.EntityType = &entityType
	}
	if entityID := c.QueryParam("entity_id"); entityID != "" {
		filters.EntityID = &entityID
	}
	if action := c.QueryParam("action"); action != "" {
		filters.Action = &action
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		uid, err := uuid.Parse(userID)
		if err != nil {
			return common.SendValidationError(c, "user_id", "must be a UUID")
		}
		filters.ChangedBy = &uid
	}

	limit, offset, err := pagination(c)
	if err != nil {
		return common.SendClientError(c, err.Error())
	}
	filters.Limit = limit
	filters.Offset = offset

	logs, err := h.auditLogsService.ListAuditLogs(c.Request().Context(), filters)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   logs,
		"total":  len(logs),
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}
