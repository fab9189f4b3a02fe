package handlers

import (
	"net/http"

	"orderbridge/internal/common"
	"orderbridge/internal/services"

	"github.com/labstack/echo/v4"
)

// MappingHandlers exposes the logical-to-physical ledger mappings
type MappingHandlers struct {
	mappings services.MappingService
}

func NewMappingHandlers(mappings services.MappingService) *MappingHandlers {
	return &MappingHandlers{mappings: mappings}
}

// ListMappings godoc
// @Summary Stored overrides and the built-in default catalogue
// @Tags mappings
// @Produce json
// @Success 200 {object} services.MappingCatalogue
// @Router /mappings [get]
func (h *MappingHandlers) ListMappings(c echo.Context) error {
	catalogue, err := h.mappings.List(c.Request().Context())
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, catalogue)
}

// ResolveMapping godoc
// @Summary Effective mapping for a dataset type
// @Tags mappings
// @Produce json
// @Param type path string true "Dataset type"
// @Success 200 {object} models.ResolvedMapping
// @Router /mappings/{type}/resolve [get]
func (h *MappingHandlers) ResolveMapping(c echo.Context) error {
	mappingType := c.Param("type")
	mapping, err := h.mappings.Resolve(c.Request().Context(), mappingType)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if mapping == nil {
		return common.SendNotFoundError(c, "mapping "+mappingType)
	}
	return c.JSON(http.StatusOK, mapping)
}

// UpsertMapping godoc
// @Summary Create or replace the override for a dataset type
// @Tags mappings
// @Accept json
// @Produce json
// @Param type path string true "Dataset type"
// @Param mapping body services.UpsertMappingRequest true "Mapping"
// @Success 200 {object} models.MappingConfig
// @Router /mappings/{type} [put]
func (h *MappingHandlers) UpsertMapping(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req services.UpsertMappingRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	cfg, err := h.mappings.Upsert(c.Request().Context(), actor, c.Param("type"), req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// RemoveMapping godoc
// @Summary Delete an override; the type falls back to its default
// @Tags mappings
// @Param id path string true "Mapping ID"
// @Success 204
// @Router /mappings/{id} [delete]
func (h *MappingHandlers) RemoveMapping(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	if err := h.mappings.Remove(c.Request().Context(), actor, id); err != nil {
		return common.SendDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
