package repositories

import (
	"context"
	"testing"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"
	"orderbridge/testhelpers"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type OrderRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    OrderRepository
	context context.Context
}

func (suite *OrderRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewOrderRepo(mock)
	suite.context = context.Background()
}

func (suite *OrderRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestOrderRepoTestSuite(t *testing.T) {
	suite.Run(t, new(OrderRepoTestSuite))
}

var orderRowColumns = []string{
	"id", "order_number", "company_id", "created_by", "order_type", "status", "total_ht", "notes",
	"external_ref", "delivery_note_number", "delivery_note_date", "invoice_number", "invoice_date",
	"is_editing", "editing_by_user_id", "editing_started_at", "created_at", "updated_at",
}

func orderRow(rows *pgxmock.Rows, o *models.Order) *pgxmock.Rows {
	return rows.AddRow(o.ID, o.OrderNumber, o.CompanyID, o.CreatedBy, o.OrderType, o.Status, o.TotalHT, o.Notes,
		o.ExternalRef, o.DeliveryNoteNumber, o.DeliveryNoteDate, o.InvoiceNumber, o.InvoiceDate,
		o.IsEditing, o.EditingByUserID, o.EditingStartedAt, o.CreatedAt, o.UpdatedAt)
}

func (suite *OrderRepoTestSuite) TestCreate_InsertsOrderAndItemsInTransaction() {
	order := testhelpers.NewPendingOrder()

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(order.ID, order.OrderNumber, order.CompanyID, order.CreatedBy, order.OrderType, order.Status, pgxmock.AnyArg(), order.Notes).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for range order.Items {
		suite.mock.ExpectExec(`INSERT INTO order_items`).
			WithArgs(pgxmock.AnyArg(), order.ID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	suite.mock.ExpectCommit()

	err := suite.repo.Create(suite.context, order)
	assert.NoError(suite.T(), err)
}

func (suite *OrderRepoTestSuite) TestGetByID_LoadsItems() {
	order := testhelpers.NewPendingOrder()
	ref := "2603001"
	order.ExternalRef = &ref

	suite.mock.ExpectQuery(`FROM orders o WHERE o.id = \$1`).
		WithArgs(order.ID).
		WillReturnRows(orderRow(pgxmock.NewRows(orderRowColumns), order))

	itemRows := pgxmock.NewRows([]string{"id", "order_id", "line_number", "reference", "name", "quantity", "unit_price", "discount_percent", "line_total", "vat_rate", "availability", "shipped_quantity", "created_at"})
	for _, item := range order.Items {
		itemRows.AddRow(item.ID, order.ID, item.LineNumber, item.Reference, item.Name, item.Quantity, item.UnitPrice, item.DiscountPercent, item.LineTotal, item.VATRate, item.Availability, item.ShippedQuantity, item.CreatedAt)
	}
	suite.mock.ExpectQuery(`FROM order_items`).WithArgs(order.ID).WillReturnRows(itemRows)

	got, err := suite.repo.GetByID(suite.context, order.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), order.ID, got.ID)
	assert.Equal(suite.T(), "2603001", *got.ExternalRef)
	assert.Len(suite.T(), got.Items, 2)
	assert.True(suite.T(), got.TotalHT.Equal(decimal.RequireFromString("24.95")))
}

func (suite *OrderRepoTestSuite) TestGetByID_NotFound() {
	id := uuid.New()
	suite.mock.ExpectQuery(`FROM orders o WHERE o.id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	got, err := suite.repo.GetByID(suite.context, id)
	assert.Nil(suite.T(), got)
	assert.ErrorIs(suite.T(), err, common.ErrNotFound)
}

func (suite *OrderRepoTestSuite) TestList_BuildsFilters() {
	companyID := uuid.New()
	status := models.OrderStatusShipped
	filter := &models.OrderFilter{
		CompanyID: &companyID,
		Status:    &status,
		Query:     "CMD-2026",
		SortBy:    "total_ht",
		SortOrder: "asc",
	}

	suite.mock.ExpectQuery(`o.company_id = \$1 AND o.status = \$2 AND \(o.order_number ILIKE \$3 OR COALESCE\(o.external_ref, ''\) ILIKE \$3\) ORDER BY o.total_ht ASC LIMIT \$4 OFFSET \$5`).
		WithArgs(companyID, status, "%CMD-2026%", 50, 0).
		WillReturnRows(pgxmock.NewRows(orderRowColumns))

	orders, err := suite.repo.List(suite.context, filter)
	assert.NoError(suite.T(), err)
	assert.Empty(suite.T(), orders)
}

func (suite *OrderRepoTestSuite) TestReplaceItems_RejectsNonPendingOrder() {
	order := testhelpers.NewPendingOrder()

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`UPDATE orders`).
		WithArgs(pgxmock.AnyArg(), order.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	suite.mock.ExpectRollback()

	err := suite.repo.ReplaceItems(suite.context, order)
	assert.ErrorIs(suite.T(), err, common.ErrValidationConflict)
}

func (suite *OrderRepoTestSuite) TestReplaceItems_ClearsLockAndRewritesLines() {
	order := testhelpers.NewPendingOrder()

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`is_editing = FALSE`).
		WithArgs(pgxmock.AnyArg(), order.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`DELETE FROM order_items WHERE order_id = \$1`).
		WithArgs(order.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	for range order.Items {
		suite.mock.ExpectExec(`INSERT INTO order_items`).
			WithArgs(pgxmock.AnyArg(), order.ID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	suite.mock.ExpectCommit()

	err := suite.repo.ReplaceItems(suite.context, order)
	assert.NoError(suite.T(), err)
}

func (suite *OrderRepoTestSuite) TestStampExternalRef_OnlyWhenPending() {
	id := uuid.New()
	suite.mock.ExpectExec(`SET external_ref = \$1, status = 'VALIDATED'`).
		WithArgs("2603001", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`SET external_ref = \$1, status = 'VALIDATED'`).
		WithArgs("2603002", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	stamped, err := suite.repo.StampExternalRef(suite.context, id, "2603001")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), stamped)

	stamped, err = suite.repo.StampExternalRef(suite.context, id, "2603002")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), stamped)
}

func (suite *OrderRepoTestSuite) TestStampDeliveryNote_ReturnsResultingStatus() {
	id := uuid.New()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	doc := models.DocumentLink{Number: "BL0042", Date: &date}

	suite.mock.ExpectQuery(`WHERE id = \$3 AND delivery_note_number IS NULL`).
		WithArgs("BL0042", &date, id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("SHIPPED"))

	status, stamped, err := suite.repo.StampDeliveryNote(suite.context, id, doc)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), stamped)
	assert.Equal(suite.T(), models.OrderStatusShipped, status)
}

func (suite *OrderRepoTestSuite) TestStampInvoice_AlreadyLinked() {
	id := uuid.New()
	suite.mock.ExpectQuery(`WHERE id = \$3 AND invoice_number IS NULL`).
		WithArgs("FA0007", pgxmock.AnyArg(), id).
		WillReturnError(pgx.ErrNoRows)

	_, stamped, err := suite.repo.StampInvoice(suite.context, id, models.DocumentLink{Number: "FA0007"})
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), stamped)
}

func (suite *OrderRepoTestSuite) TestSetEditing_RejectedWhenNotPending() {
	id, userID := uuid.New(), uuid.New()
	at := time.Now()
	suite.mock.ExpectExec(`SET is_editing = TRUE`).
		WithArgs(userID, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := suite.repo.SetEditing(suite.context, id, userID, at)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), ok)
}

func (suite *OrderRepoTestSuite) TestCleanupExpiredLocks_SecondRunReleasesNothing() {
	cutoff := time.Now().Add(-time.Minute)
	first, second := uuid.New(), uuid.New()

	suite.mock.ExpectQuery(`RETURNING id`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(first).AddRow(second))
	suite.mock.ExpectQuery(`RETURNING id`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	released, err := suite.repo.CleanupExpiredLocks(suite.context, cutoff)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), []uuid.UUID{first, second}, released)

	released, err = suite.repo.CleanupExpiredLocks(suite.context, cutoff)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), released, 0)
}

func (suite *OrderRepoTestSuite) TestRecordShipment_UpdatesLinesThenStatus() {
	order := testhelpers.NewPendingOrder()
	order.Status = models.OrderStatusPreparation
	order.Items[0].ShippedQuantity = decimal.NewFromInt(1)

	suite.mock.ExpectBegin()
	for _, item := range order.Items {
		suite.mock.ExpectExec(`UPDATE order_items SET shipped_quantity`).
			WithArgs(pgxmock.AnyArg(), order.ID, item.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	suite.mock.ExpectExec(`UPDATE orders SET status = \$1`).
		WithArgs(models.OrderStatusPreparation, order.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectCommit()

	assert.NoError(suite.T(), suite.repo.RecordShipment(suite.context, order))
}

func (suite *OrderRepoTestSuite) TestDelete_NotFound() {
	id := uuid.New()
	suite.mock.ExpectExec(`DELETE FROM orders WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := suite.repo.Delete(suite.context, id)
	assert.ErrorIs(suite.T(), err, common.ErrNotFound)
}
