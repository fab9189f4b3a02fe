package jobs

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/ledger"
	"orderbridge/internal/metrics"
	"orderbridge/internal/models"
	"orderbridge/testhelpers"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	maxTextQuery = `SELECT MAX("NUM_CDE") FROM "public"."CDE_ENTETE" WHERE "NUM_CDE" BETWEEN $1 AND $2 AND LENGTH("NUM_CDE") = $3`
	existsQuery  = `SELECT 1 FROM "public"."CDE_ENTETE" WHERE "NUM_CDE" = $1 LIMIT 1`
)

type OrderNumberTestSuite struct {
	suite.Suite
	ledger    *testhelpers.LedgerMock
	header    *ledger.AllowList
	generator *OrderNumberGenerator
	metrics   *metrics.Metrics
	logs      *observer.ObservedLogs
	at        time.Time
	ctx       context.Context
}

func (s *OrderNumberTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = testhelpers.NewLedgerMock(s.T())
	s.metrics = metrics.New("test")
	core, logs := observer.New(zap.WarnLevel)
	s.logs = logs
	s.generator = NewOrderNumberGenerator(s.metrics, zap.New(core))
	s.at = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.header = s.allowList(testhelpers.OrderHeaderColumns()...)
}

func (s *OrderNumberTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.ledger.Mock.ExpectationsWereMet())
}

func TestOrderNumberTestSuite(t *testing.T) {
	suite.Run(t, new(OrderNumberTestSuite))
}

func (s *OrderNumberTestSuite) allowList(columns ...testhelpers.Column) *ledger.AllowList {
	mapping, _ := ledger.DefaultMapping(models.DatasetOrdersHeader)
	s.ledger.ExpectDescribe("public", "CDE_ENTETE", columns...)
	al, err := ledger.NewComposer("public").AllowList(s.ctx, s.ledger.DB, mapping)
	require.NoError(s.T(), err)
	return al
}

func (s *OrderNumberTestSuite) expectMax(value interface{}) {
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(maxTextQuery)).
		WithArgs("2603001", "2603999", 7).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(value))
}

func (s *OrderNumberTestSuite) expectFree(candidate string) {
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(existsQuery)).
		WithArgs(candidate).
		WillReturnError(sql.ErrNoRows)
}

func (s *OrderNumberTestSuite) expectTaken(candidate string) {
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(existsQuery)).
		WithArgs(candidate).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
}

func (s *OrderNumberTestSuite) TestNext_FirstOfMonth() {
	s.expectMax(nil)
	s.expectFree("2603001")

	number, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2603001", number)
}

func (s *OrderNumberTestSuite) TestNext_StrictlyIncreasingWithoutLedgerWrites() {
	s.expectMax(nil)
	s.expectFree("2603001")
	s.expectMax(nil)
	s.expectFree("2603002")

	first, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)
	require.NoError(s.T(), err)
	second, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)
	require.NoError(s.T(), err)

	a, _ := strconv.Atoi(first)
	b, _ := strconv.Atoi(second)
	assert.Greater(s.T(), b, a)
}

func (s *OrderNumberTestSuite) TestNext_ContinuesFromLedgerMaximum() {
	s.expectMax("2603041")
	s.expectFree("2603042")

	number, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2603042", number)
}

func (s *OrderNumberTestSuite) TestNext_ChecksNextWhenCandidateTaken() {
	s.expectMax("2603002")
	s.expectTaken("2603003")
	s.expectTaken("2603001")
	s.expectTaken("2603002")
	s.expectFree("2603004")

	number, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2603004", number)
}

func (s *OrderNumberTestSuite) TestNext_RangeFullScansFromOne() {
	s.expectMax("2603999")
	s.expectFree("2603001")

	number, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2603001", number)
}

func (s *OrderNumberTestSuite) TestNext_ExhaustedRangeFallsBackToClock() {
	s.expectMax("2603999")
	for seq := 1; seq <= maxSequence; seq++ {
		s.expectTaken(strconv.Itoa(2603000 + seq))
	}

	number, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	require.NoError(s.T(), err)
	assert.Len(s.T(), number, 9)
	s.assertFallbacks(1)
	s.assertExhaustionLogged()
}

func (s *OrderNumberTestSuite) TestNext_IntrospectionFailureFallsBack() {
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(maxTextQuery)).
		WillReturnError(errors.New(`permission denied for table "CDE_ENTETE"`))

	number, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	require.NoError(s.T(), err)
	assert.Len(s.T(), number, 9)
	s.assertFallbacks(1)
	s.assertExhaustionLogged()
}

func (s *OrderNumberTestSuite) TestNext_TimeoutPropagates() {
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(maxTextQuery)).
		WillReturnError(context.DeadlineExceeded)

	_, err := s.generator.Next(s.ctx, s.ledger.DB, s.header, s.at)

	assert.ErrorIs(s.T(), err, context.DeadlineExceeded)
}

func (s *OrderNumberTestSuite) TestNext_NumericColumn() {
	columns := testhelpers.OrderHeaderColumns()
	columns[0] = testhelpers.Numeric("NUM_CDE")
	header := s.allowList(columns...)
	s.ledger.Mock.ExpectQuery(testhelpers.Quote(`SELECT MAX("NUM_CDE") FROM "public"."CDE_ENTETE" WHERE "NUM_CDE" BETWEEN $1 AND $2`)).
		WithArgs("2603001", "2603999").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow("2603010"))
	s.expectFree("2603011")

	number, err := s.generator.Next(s.ctx, s.ledger.DB, header, s.at)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2603011", number)
}

func (s *OrderNumberTestSuite) assertExhaustionLogged() {
	entries := s.logs.FilterMessage("using timestamp order number").All()
	require.Len(s.T(), entries, 1)
	for _, field := range entries[0].Context {
		if field.Key == "error" {
			err, ok := field.Interface.(error)
			require.True(s.T(), ok)
			assert.ErrorIs(s.T(), err, common.ErrIdentifierExhaustion)
			return
		}
	}
	s.Fail("fallback logged without an error field")
}

func (s *OrderNumberTestSuite) assertFallbacks(n int) {
	expected := `
# HELP test_ledger_identifier_fallbacks_total External order numbers derived from the clock instead of the sequence.
# TYPE test_ledger_identifier_fallbacks_total counter
test_ledger_identifier_fallbacks_total ` + strconv.Itoa(n) + "\n"
	assert.NoError(s.T(), testutil.GatherAndCompare(s.metrics.Registry(), strings.NewReader(expected),
		"test_ledger_identifier_fallbacks_total"))
}
