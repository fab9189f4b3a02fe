package handlers

import (
	"errors"
	"net/http"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/jobs"
	"orderbridge/internal/models"
	"orderbridge/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
)

// TaskEnqueuer is the part of *asynq.Client the handlers use
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// LedgerHandlers serves ledger introspection, preview and reconciliation triggers
type LedgerHandlers struct {
	mappings services.MappingService
	sync     jobs.SyncRunner
	queue    TaskEnqueuer
}

func NewLedgerHandlers(mappings services.MappingService, sync jobs.SyncRunner, queue TaskEnqueuer) *LedgerHandlers {
	return &LedgerHandlers{mappings: mappings, sync: sync, queue: queue}
}

// ListTables godoc
// @Summary Tables of the configured ledger schema
// @Tags ledger
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /ledger/tables [get]
func (h *LedgerHandlers) ListTables(c echo.Context) error {
	tables, err := h.mappings.ListExternalTables(c.Request().Context())
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tables": tables})
}

// ListColumns godoc
// @Summary Columns of one ledger table
// @Tags ledger
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {object} map[string]interface{}
// @Router /ledger/tables/{table}/columns [get]
func (h *LedgerHandlers) ListColumns(c echo.Context) error {
	table := c.Param("table")
	columns, err := h.mappings.ListExternalColumns(c.Request().Context(), table)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"table": table, "columns": columns})
}

// Preview godoc
// @Summary Sample rows through a mapping, with derived line amounts
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body models.PreviewRequest true "Preview"
// @Success 200 {object} models.PreviewResult
// @Router /ledger/preview [post]
func (h *LedgerHandlers) Preview(c echo.Context) error {
	var req models.PreviewRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	result, err := h.mappings.PreviewMappedRows(c.Request().Context(), req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Sync godoc
// @Summary Link ledger delivery notes and invoices to orders
// @Description With async=true the run is queued and 202 is returned.
// @Tags ledger
// @Produce json
// @Param async query bool false "Queue the run"
// @Success 200 {object} models.SyncResult
// @Success 202 {object} map[string]string
// @Router /ledger/sync [post]
func (h *LedgerHandlers) Sync(c echo.Context) error {
	if c.QueryParam("async") != "true" {
		return c.JSON(http.StatusOK, h.sync.Run(c.Request().Context()))
	}

	var requestedBy *uuid.UUID
	if actor, ok := actorFrom(c); ok {
		id := actor.UserID
		requestedBy = &id
	}
	task, err := jobs.NewLedgerSyncTask(requestedBy, time.Now())
	if err != nil {
		return common.SendServerError(c, "Failed to create sync task")
	}

	info, err := h.queue.Enqueue(task)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("VALIDATION_CONFLICT", "A sync run is already queued", nil))
	}
	if err != nil {
		return common.SendServerError(c, "Failed to enqueue sync task")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Sync queued",
		"task_id": info.ID,
		"queue":   info.Queue,
	})
}
