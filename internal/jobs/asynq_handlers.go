package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task type definitions
const (
	TypeLedgerSync = "ledger:sync"
)

// LedgerSyncPayload defines the payload for queued reconciliation runs
type LedgerSyncPayload struct {
	RequestedBy *uuid.UUID `json:"requested_by,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
}

// NewLedgerSyncTask creates a queued reconciliation run. Only one may be pending
// at a time and a failed run is not retried.
func NewLedgerSyncTask(requestedBy *uuid.UUID, at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerSyncPayload{RequestedBy: requestedBy, RequestedAt: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLedgerSync, data,
		asynq.Queue("critical"),
		asynq.MaxRetry(0),
		asynq.Unique(10*time.Minute),
	), nil
}

// SyncRunner runs one reconciliation pass
type SyncRunner interface {
	Run(ctx context.Context) *models.SyncResult
}

// TaskHandlers serves queued tasks
type TaskHandlers struct {
	sync SyncRunner
	log  *zap.Logger
}

func NewTaskHandlers(sync SyncRunner, log *zap.Logger) *TaskHandlers {
	return &TaskHandlers{sync: sync, log: log.Named("tasks")}
}

// Register wires every handler on mux
func (h *TaskHandlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeLedgerSync, h.LedgerSyncHandler)
}

// LedgerSyncHandler handles ledger:sync tasks. A run that linked nothing and
// failed everywhere is reported as an error, never retried; the caller
// enqueues again.
func (h *TaskHandlers) LedgerSyncHandler(ctx context.Context, t *asynq.Task) error {
	var payload LedgerSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal sync payload: %w: %w", err, asynq.SkipRetry)
	}

	fields := []zap.Field{zap.Time("requested_at", payload.RequestedAt)}
	if payload.RequestedBy != nil {
		fields = append(fields, zap.String("requested_by", payload.RequestedBy.String()))
	}
	h.log.Info("starting queued ledger sync", fields...)

	result := h.sync.Run(ctx)
	if result.Status == models.SyncStatusFailed {
		failure := common.NewError(common.KindPartialFailure, "ledger sync",
			fmt.Sprintf("no order linked, %d errors", len(result.Errors)), errors.New(strings.Join(result.Errors, "; ")))
		return fmt.Errorf("%w: %w", failure, asynq.SkipRetry)
	}
	return nil
}
