package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderbridge/internal/ledger"
	"orderbridge/internal/metrics"
	"orderbridge/internal/models"
	"orderbridge/testhelpers"
	"orderbridge/testhelpers/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const (
	deliveryLookup = `SELECT h."NUM_BL", h."DATE_BL" FROM "public"."BL_ENTETE" h JOIN "public"."BL_LIGNE" d ON d."NUM_BL" = h."NUM_BL" WHERE d."NUM_CDE" = $1 ORDER BY h."DATE_BL" DESC LIMIT 1`
	invoiceLookup  = `SELECT h."NUM_FACTURE", h."DATE_FACTURE" FROM "public"."FAC_ENTETE" h JOIN "public"."FAC_LIGNE" d ON d."NUM_FACTURE" = h."NUM_FACTURE" WHERE d."NUM_CDE" = $1 ORDER BY h."DATE_FACTURE" DESC LIMIT 1`
)

type announcement struct {
	orderID uuid.UUID
	from    models.OrderStatus
	to      models.OrderStatus
	action  string
}

type recordingAnnouncer struct {
	calls []announcement
}

func (a *recordingAnnouncer) Announce(_ context.Context, order *models.Order, from models.OrderStatus, _ *uuid.UUID, action string) {
	a.calls = append(a.calls, announcement{orderID: order.ID, from: from, to: order.Status, action: action})
}

type LedgerReconcilerTestSuite struct {
	suite.Suite
	ledger    *testhelpers.LedgerMock
	orderRepo *mocks.OrderRepository
	resolver  staticResolver
	announcer *recordingAnnouncer
	metrics   *metrics.Metrics
	ctx       context.Context
}

func (s *LedgerReconcilerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = testhelpers.NewLedgerMock(s.T())
	s.orderRepo = &mocks.OrderRepository{}
	s.resolver = defaultResolver()
	s.announcer = &recordingAnnouncer{}
	s.metrics = metrics.New("test")
}

func (s *LedgerReconcilerTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.ledger.Mock.ExpectationsWereMet())
	s.orderRepo.AssertExpectations(s.T())
}

func TestLedgerReconcilerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerReconcilerTestSuite))
}

func (s *LedgerReconcilerTestSuite) reconciler() *LedgerReconciler {
	return NewLedgerReconciler(s.orderRepo, s.resolver, ledger.NewStaticConnector(s.ledger.DB, 0),
		ledger.NewComposer("public"), s.announcer, s.metrics, zap.NewNop())
}

func exportedOrder(ref string, status models.OrderStatus) *models.Order {
	order := testhelpers.NewPendingOrder()
	order.ExternalRef = &ref
	order.Status = status
	return order
}

func (s *LedgerReconcilerTestSuite) expectDeliveryTables() {
	s.ledger.ExpectDescribe("public", "BL_ENTETE", testhelpers.Text("NUM_BL"), testhelpers.Date("DATE_BL"), testhelpers.Text("CODE_CLIENT"))
	s.ledger.ExpectDescribe("public", "BL_LIGNE", testhelpers.Text("NUM_BL"), testhelpers.Text("NUM_CDE"))
}

func (s *LedgerReconcilerTestSuite) expectInvoiceTables() {
	s.ledger.ExpectDescribe("public", "FAC_ENTETE", testhelpers.Text("NUM_FACTURE"), testhelpers.Date("DATE_FACTURE"))
	s.ledger.ExpectDescribe("public", "FAC_LIGNE", testhelpers.Text("NUM_FACTURE"), testhelpers.Text("NUM_CDE"))
}

func (s *LedgerReconcilerTestSuite) TestRun_LinksDeliveryNoteThenInvoiceInOneRun() {
	// Arrange
	order := exportedOrder("2603001", models.OrderStatusValidated)
	deliveredAt := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	invoicedAt := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{order}, nil).Once()
	s.expectDeliveryTables()
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(deliveryLookup)).
		WithArgs("2603001").
		WillReturnRows(sqlmock.NewRows([]string{"NUM_BL", "DATE_BL"}).AddRow("BL-77", deliveredAt))
	s.orderRepo.On("StampDeliveryNote", mock.Anything, order.ID, models.DocumentLink{Number: "BL-77", Date: &deliveredAt}).
		Return(models.OrderStatusShipped, true, nil).Once()

	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{order}, nil).Once()
	s.expectInvoiceTables()
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(invoiceLookup)).
		WithArgs("2603001").
		WillReturnRows(sqlmock.NewRows([]string{"NUM_FACTURE", "DATE_FACTURE"}).AddRow("FA-12", invoicedAt))
	s.orderRepo.On("StampInvoice", mock.Anything, order.ID, models.DocumentLink{Number: "FA-12", Date: &invoicedAt}).
		Return(models.OrderStatusInvoiced, true, nil).Once()

	// Act
	result := s.reconciler().Run(s.ctx)

	// Assert
	assert.Equal(s.T(), models.SyncStatusSuccess, result.Status)
	assert.Equal(s.T(), 2, result.SyncedCount)
	assert.Empty(s.T(), result.Errors)
	assert.Equal(s.T(), models.OrderStatusInvoiced, order.Status)
	assert.Equal(s.T(), "BL-77", *order.DeliveryNoteNumber)
	assert.Equal(s.T(), "FA-12", *order.InvoiceNumber)
	assert.Equal(s.T(), []announcement{
		{orderID: order.ID, from: models.OrderStatusValidated, to: models.OrderStatusShipped, action: models.ActionOrderReconcile},
		{orderID: order.ID, from: models.OrderStatusShipped, to: models.OrderStatusInvoiced, action: models.ActionOrderReconcile},
	}, s.announcer.calls)
}

func (s *LedgerReconcilerTestSuite) TestRun_NothingToDoIsSuccess() {
	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{}, nil)
	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{}, nil)

	result := s.reconciler().Run(s.ctx)

	assert.Equal(s.T(), models.SyncStatusSuccess, result.Status)
	assert.Zero(s.T(), result.SyncedCount)
	assert.NotNil(s.T(), result.Errors)
	assert.Empty(s.T(), s.announcer.calls)
}

func (s *LedgerReconcilerTestSuite) TestRun_DocumentNotYetInLedger() {
	order := exportedOrder("2603002", models.OrderStatusValidated)
	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{order}, nil)
	s.expectDeliveryTables()
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(deliveryLookup)).
		WithArgs("2603002").
		WillReturnRows(sqlmock.NewRows([]string{"NUM_BL", "DATE_BL"}))
	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{}, nil)

	result := s.reconciler().Run(s.ctx)

	assert.Equal(s.T(), models.SyncStatusSuccess, result.Status)
	assert.Zero(s.T(), result.SyncedCount)
	s.orderRepo.AssertNotCalled(s.T(), "StampDeliveryNote", mock.Anything, mock.Anything, mock.Anything)
}

func (s *LedgerReconcilerTestSuite) TestRun_OneFailingOrderIsPartial() {
	failing := exportedOrder("2603003", models.OrderStatusValidated)
	linked := exportedOrder("2603004", models.OrderStatusPreparation)
	deliveredAt := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{failing, linked}, nil)
	s.expectDeliveryTables()
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(deliveryLookup)).
		WithArgs("2603003").
		WillReturnError(errors.New(`relation "BL_LIGNE" is locked`))
	s.expectDeliveryTables()
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(deliveryLookup)).
		WithArgs("2603004").
		WillReturnRows(sqlmock.NewRows([]string{"NUM_BL", "DATE_BL"}).AddRow("BL-78", deliveredAt))
	s.orderRepo.On("StampDeliveryNote", mock.Anything, linked.ID, mock.Anything).
		Return(models.OrderStatusShipped, true, nil)
	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{}, nil)

	result := s.reconciler().Run(s.ctx)

	assert.Equal(s.T(), models.SyncStatusPartial, result.Status)
	assert.Equal(s.T(), 1, result.SyncedCount)
	assert.Len(s.T(), result.Errors, 1)
	assert.Contains(s.T(), result.Errors[0], failing.OrderNumber)
	assert.Len(s.T(), s.announcer.calls, 1)
}

func (s *LedgerReconcilerTestSuite) TestRun_AlreadyLinkedIsNotCounted() {
	order := exportedOrder("2603005", models.OrderStatusShipped)
	deliveredAt := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{order}, nil)
	s.expectDeliveryTables()
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(deliveryLookup)).
		WithArgs("2603005").
		WillReturnRows(sqlmock.NewRows([]string{"NUM_BL", "DATE_BL"}).AddRow("BL-79", deliveredAt))
	s.orderRepo.On("StampDeliveryNote", mock.Anything, order.ID, mock.Anything).
		Return(models.OrderStatusShipped, false, nil)
	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{}, nil)

	result := s.reconciler().Run(s.ctx)

	assert.Equal(s.T(), models.SyncStatusSuccess, result.Status)
	assert.Zero(s.T(), result.SyncedCount)
	assert.Empty(s.T(), s.announcer.calls)
}

func (s *LedgerReconcilerTestSuite) TestRun_MissingMappingFails() {
	delete(s.resolver, models.DatasetDeliveryNotesHeader)
	order := exportedOrder("2603006", models.OrderStatusValidated)
	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{order}, nil)
	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{}, nil)

	result := s.reconciler().Run(s.ctx)

	assert.Equal(s.T(), models.SyncStatusFailed, result.Status)
	assert.Len(s.T(), result.Errors, 1)
	assert.Contains(s.T(), result.Errors[0], "mapping unavailable")
}

func (s *LedgerReconcilerTestSuite) TestRun_SkipsOrdersWithoutExternalRef() {
	order := testhelpers.NewPendingOrder()
	order.Status = models.OrderStatusValidated
	s.orderRepo.On("ListAwaitingDeliveryNote", mock.Anything).Return([]*models.Order{order}, nil)
	s.orderRepo.On("ListAwaitingInvoice", mock.Anything).Return([]*models.Order{}, nil)

	result := s.reconciler().Run(s.ctx)

	assert.Equal(s.T(), models.SyncStatusSuccess, result.Status)
	assert.Zero(s.T(), result.SyncedCount)
}

func TestDateValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{name: "iso date", in: "2026-03-15", want: "2026-03-15"},
		{name: "timestamp text", in: []byte("2026-03-15 08:30:00"), want: "2026-03-15"},
		{name: "french date", in: "15/03/2026", want: "2026-03-15"},
		{name: "native time", in: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), want: "2026-03-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dateValue(tt.in)
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}

	assert.Nil(t, dateValue("not a date"))
	assert.Nil(t, dateValue(nil))
}

func TestTextValue(t *testing.T) {
	assert.Equal(t, "BL-1", textValue([]byte(" BL-1 ")))
	assert.Equal(t, "42", textValue(int64(42)))
	assert.Equal(t, "", textValue(nil))
}
