package testhelpers

import (
	"regexp"
	"testing"
	"time"

	"orderbridge/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerMock wraps a sqlmock-backed ledger handle
type LedgerMock struct {
	DB   *sqlx.DB
	Mock sqlmock.Sqlmock
}

// NewLedgerMock creates a sqlmock ledger handle that is closed with the test
func NewLedgerMock(t *testing.T) *LedgerMock {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create ledger mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &LedgerMock{DB: sqlx.NewDb(db, "sqlmock"), Mock: mock}
}

// Column is a live ledger column as returned by introspection
type Column struct {
	Name     string
	DataType string
}

func Text(name string) Column    { return Column{Name: name, DataType: "character varying"} }
func Numeric(name string) Column { return Column{Name: name, DataType: "numeric"} }
func Date(name string) Column    { return Column{Name: name, DataType: "timestamp without time zone"} }

// ExpectDescribe registers the introspection query for one table
func (m *LedgerMock) ExpectDescribe(schema, table string, columns ...Column) {
	rows := sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"})
	for _, col := range columns {
		rows.AddRow(table, col.Name, col.DataType, "YES")
	}
	m.Mock.ExpectQuery(`FROM information_schema.columns`).
		WithArgs(schema, table).
		WillReturnRows(rows)
}

// Quote escapes a composed statement for the regexp query matcher
func Quote(sql string) string {
	return regexp.QuoteMeta(sql)
}

// OrderHeaderColumns is the default order header table as deployed by most ledgers
func OrderHeaderColumns() []Column {
	return []Column{
		Text("NUM_CDE"), Text("CODE_CLIENT"), Date("DATE_CDE"), Text("REF_WEB"), Text("TYPE_CDE"),
		Text("STATUT"), Numeric("MONTANT_HT"), Numeric("MONTANT_TVA"), Numeric("MONTANT_TTC"),
	}
}

// OrderDetailColumns is the default order line table
func OrderDetailColumns() []Column {
	return []Column{
		Text("NUM_CDE"), Numeric("NUM_LIGNE"), Text("CODE_ARTICLE"), Text("DESIGNATION"), Numeric("QUANTITE"),
		Numeric("PRIX_UNITAIRE"), Numeric("REMISE"), Numeric("MONTANT_HT"), Numeric("TAUX_TVA"),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewPendingOrder builds the two-line reference order: 2 x 10.000 and 1 x 5.500 at 10% off
func NewPendingOrder() *models.Order {
	orderID := uuid.New()
	now := time.Now()
	order := &models.Order{
		ID:          orderID,
		OrderNumber: "CMD-20260301-ABC123",
		CompanyID:   uuid.New(),
		CreatedBy:   uuid.New(),
		OrderType:   models.OrderTypeStock,
		Status:      models.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items: []*models.OrderItem{
			{ID: uuid.New(), OrderID: orderID, LineNumber: 1, Reference: "A", Name: "Article A",
				Quantity: dec("2"), UnitPrice: dec("10.000"), DiscountPercent: dec("0"), VATRate: dec("20")},
			{ID: uuid.New(), OrderID: orderID, LineNumber: 2, Reference: "B", Name: "Article B",
				Quantity: dec("1"), UnitPrice: dec("5.500"), DiscountPercent: dec("10"), VATRate: dec("20")},
		},
	}
	for _, item := range order.Items {
		item.ApplyLineTotal()
	}
	order.RecomputeTotal()
	return order
}

// NewCompany builds a company with an external customer code
func NewCompany(code string) *models.Company {
	company := &models.Company{ID: uuid.New(), Name: "Test Company"}
	if code != "" {
		company.ExternalCustomerCode = &code
	}
	return company
}
