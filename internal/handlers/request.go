package handlers

import (
	"strconv"

	"orderbridge/internal/common"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// actorFrom returns the caller identity placed on the request by the JWT middleware.
func actorFrom(c echo.Context) (common.Actor, bool) {
	return common.ActorFromContext(c.Request().Context())
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	return common.ValidateUUID(c.Param(name), name)
}

func pagination(c echo.Context) (int, int, error) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return common.ValidatePaginationParams(limit, offset)
}
