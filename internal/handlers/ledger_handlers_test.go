package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/jobs"
	"orderbridge/internal/jobs/background"
	"orderbridge/internal/models"
	"orderbridge/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newContext(method, target, body string, actor *common.Actor) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != nil {
		req = req.WithContext(common.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestLedgerHandlers_SyncRunsInline(t *testing.T) {
	runner := &mockSyncRunner{}
	runner.On("Run", mock.Anything).Return(&models.SyncResult{SyncedCount: 3, Errors: []string{}, Status: models.SyncStatusSuccess})
	queue := &mockEnqueuer{}
	c, rec := newContext(http.MethodPost, "/v1/ledger/sync", "", nil)

	require.NoError(t, NewLedgerHandlers(&mockMappingService{}, runner, queue).Sync(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"synced_count":3`)
	queue.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestLedgerHandlers_SyncQueued(t *testing.T) {
	actor := common.Actor{UserID: uuid.New(), Role: common.RoleOperator}
	queue := &mockEnqueuer{}
	queue.On("Enqueue", mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == jobs.TypeLedgerSync && strings.Contains(string(task.Payload()), actor.UserID.String())
	})).Return(&asynq.TaskInfo{ID: "task-1", Queue: "critical"}, nil)
	runner := &mockSyncRunner{}
	c, rec := newContext(http.MethodPost, "/v1/ledger/sync?async=true", "", &actor)

	require.NoError(t, NewLedgerHandlers(&mockMappingService{}, runner, queue).Sync(c))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "task-1")
	runner.AssertNotCalled(t, "Run", mock.Anything)
}

func TestLedgerHandlers_SyncAlreadyQueued(t *testing.T) {
	queue := &mockEnqueuer{}
	queue.On("Enqueue", mock.Anything).Return(nil, asynq.ErrDuplicateTask)
	c, rec := newContext(http.MethodPost, "/v1/ledger/sync?async=true", "", nil)

	require.NoError(t, NewLedgerHandlers(&mockMappingService{}, &mockSyncRunner{}, queue).Sync(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLedgerHandlers_ListColumns(t *testing.T) {
	mappings := &mockMappingService{}
	mappings.On("ListExternalColumns", mock.Anything, "CDE_ENTETE").
		Return([]models.LedgerColumn{{Name: "NUM_CDE", DataType: "character varying"}}, nil)
	c, rec := newContext(http.MethodGet, "/v1/ledger/tables/CDE_ENTETE/columns", "", nil)
	c.SetParamNames("table")
	c.SetParamValues("CDE_ENTETE")

	require.NoError(t, NewLedgerHandlers(mappings, &mockSyncRunner{}, &mockEnqueuer{}).ListColumns(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NUM_CDE")
}

func TestLedgerHandlers_ListTablesUnreachable(t *testing.T) {
	mappings := &mockMappingService{}
	mappings.On("ListExternalTables", mock.Anything).
		Return(nil, common.TransientConnectivity("ledger connect", assert.AnError))
	c, rec := newContext(http.MethodGet, "/v1/ledger/tables", "", nil)

	require.NoError(t, NewLedgerHandlers(mappings, &mockSyncRunner{}, &mockEnqueuer{}).ListTables(c))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLedgerHandlers_Preview(t *testing.T) {
	mappings := &mockMappingService{}
	mappings.On("PreviewMappedRows", mock.Anything, models.PreviewRequest{MappingType: models.DatasetArticles, Limit: 5}).
		Return(&models.PreviewResult{TableName: "ARTICLES", Rows: []map[string]interface{}{{"codeArticle": "A"}}}, nil)
	c, rec := newContext(http.MethodPost, "/v1/ledger/preview", `{"mapping_type":"articles","limit":5}`, nil)

	require.NoError(t, NewLedgerHandlers(mappings, &mockSyncRunner{}, &mockEnqueuer{}).Preview(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ARTICLES")
}

func TestMappingHandlers_ResolveUnknownType(t *testing.T) {
	mappings := &mockMappingService{}
	mappings.On("Resolve", mock.Anything, "pallets").Return(nil, nil)
	c, rec := newContext(http.MethodGet, "/v1/mappings/pallets/resolve", "", nil)
	c.SetParamNames("type")
	c.SetParamValues("pallets")

	require.NoError(t, NewMappingHandlers(mappings).ResolveMapping(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMappingHandlers_Upsert(t *testing.T) {
	admin := common.Actor{UserID: uuid.New(), Role: common.RoleAdmin}
	mappings := &mockMappingService{}
	mappings.On("Upsert", mock.Anything, admin, models.DatasetArticles, services.UpsertMappingRequest{
		TableName: "ART",
		Columns:   map[string]string{"codeArticle": "CODE"},
	}).Return(&models.MappingConfig{ID: uuid.New(), MappingType: models.DatasetArticles, DMSTableName: "ART", IsActive: true}, nil)
	c, rec := newContext(http.MethodPut, "/v1/mappings/articles", `{"dms_table_name":"ART","column_mappings":{"codeArticle":"CODE"}}`, &admin)
	c.SetParamNames("type")
	c.SetParamValues(models.DatasetArticles)

	require.NoError(t, NewMappingHandlers(mappings).UpsertMapping(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	mappings.AssertExpectations(t)
}

func TestMappingHandlers_UpsertMissingTable(t *testing.T) {
	admin := common.Actor{UserID: uuid.New(), Role: common.RoleAdmin}
	mappings := &mockMappingService{}
	mappings.On("Upsert", mock.Anything, admin, models.DatasetArticles, mock.Anything).
		Return(nil, common.InvalidInput("upsert mapping", `table "NOPE" does not exist in the ledger`))
	c, rec := newContext(http.MethodPut, "/v1/mappings/articles", `{"dms_table_name":"NOPE","column_mappings":{"codeArticle":"CODE"}}`, &admin)
	c.SetParamNames("type")
	c.SetParamValues(models.DatasetArticles)

	require.NoError(t, NewMappingHandlers(mappings).UpsertMapping(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMappingHandlers_Remove(t *testing.T) {
	admin := common.Actor{UserID: uuid.New(), Role: common.RoleAdmin}
	id := uuid.New()
	mappings := &mockMappingService{}
	mappings.On("Remove", mock.Anything, admin, id).Return(nil)
	c, rec := newContext(http.MethodDelete, "/v1/mappings/"+id.String(), "", &admin)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	require.NoError(t, NewMappingHandlers(mappings).RemoveMapping(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestJobHandlers_ListJobs(t *testing.T) {
	next := time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)
	c, rec := newContext(http.MethodGet, "/v1/jobs", "", nil)

	require.NoError(t, NewJobHandlers(stubScheduler{{Name: "ledger-sync", NextRun: next}}).ListJobs(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger-sync")
	assert.Contains(t, rec.Body.String(), "2026-03-14T10:15:00Z")
}

var _ JobStatusReader = (*background.JobScheduler)(nil)
