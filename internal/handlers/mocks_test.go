package handlers

import (
	"context"

	"orderbridge/internal/common"
	"orderbridge/internal/jobs/background"
	"orderbridge/internal/models"
	"orderbridge/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
)

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) CreateOrder(ctx context.Context, actor common.Actor, req services.CreateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) GetOrder(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) ListOrders(ctx context.Context, actor common.Actor, filter *models.OrderFilter) ([]*models.Order, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *mockOrderService) ReplaceItems(ctx context.Context, actor common.Actor, id uuid.UUID, items []services.OrderItemInput) (*models.Order, error) {
	args := m.Called(ctx, actor, id, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) ChangeStatus(ctx context.Context, actor common.Actor, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	args := m.Called(ctx, actor, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) ExportOrder(ctx context.Context, actor common.Actor, id uuid.UUID) (*models.ExportResult, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExportResult), args.Error(1)
}

func (m *mockOrderService) ShipOrder(ctx context.Context, actor common.Actor, id uuid.UUID, lines []models.ShipmentLine) (*models.Order, error) {
	args := m.Called(ctx, actor, id, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) DeleteOrder(ctx context.Context, actor common.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *mockOrderService) SetEditing(ctx context.Context, actor common.Actor, id uuid.UUID, editing bool) (*models.Order, error) {
	args := m.Called(ctx, actor, id, editing)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderService) CleanupExpiredLocks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockMappingService struct {
	mock.Mock
}

func (m *mockMappingService) Resolve(ctx context.Context, mappingType string) (*models.ResolvedMapping, error) {
	args := m.Called(ctx, mappingType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResolvedMapping), args.Error(1)
}

func (m *mockMappingService) Upsert(ctx context.Context, actor common.Actor, mappingType string, req services.UpsertMappingRequest) (*models.MappingConfig, error) {
	args := m.Called(ctx, actor, mappingType, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MappingConfig), args.Error(1)
}

func (m *mockMappingService) Remove(ctx context.Context, actor common.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *mockMappingService) List(ctx context.Context) (*services.MappingCatalogue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MappingCatalogue), args.Error(1)
}

func (m *mockMappingService) ListExternalTables(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockMappingService) ListExternalColumns(ctx context.Context, table string) ([]models.LedgerColumn, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerColumn), args.Error(1)
}

func (m *mockMappingService) PreviewMappedRows(ctx context.Context, req models.PreviewRequest) (*models.PreviewResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PreviewResult), args.Error(1)
}

type mockSyncRunner struct {
	mock.Mock
}

func (m *mockSyncRunner) Run(ctx context.Context) *models.SyncResult {
	return m.Called(ctx).Get(0).(*models.SyncResult)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

type stubScheduler []background.JobStatus

func (s stubScheduler) GetJobStatus() []background.JobStatus { return s }
