package handlers

import (
	"net/http"

	"orderbridge/internal/jobs/background"

	"github.com/labstack/echo/v4"
)

// JobStatusReader reports the periodic jobs and their next runs
type JobStatusReader interface {
	GetJobStatus() []background.JobStatus
}

type JobHandlers struct {
	scheduler JobStatusReader
}

func NewJobHandlers(scheduler JobStatusReader) *JobHandlers {
	return &JobHandlers{scheduler: scheduler}
}

// ListJobs godoc
// @Summary Periodic jobs with last and next run times
// @Tags jobs
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /jobs [get]
func (h *JobHandlers) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs": h.scheduler.GetJobStatus(),
	})
}
