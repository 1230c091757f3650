// Package web serves the read-only admin API of a member.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/persistence"
	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/dukex/gridfn/pkg/server"
	"github.com/gofiber/fiber/v3"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Functions is the view of the function registry the API needs.
type Functions interface {
	Lookup(id string) (models.Function, bool)
	List() []models.FunctionDescriptor
	HealthCheck() (string, bool)
}

// ServerStats is the view of the listener the API needs.
type ServerStats interface {
	Stats() server.Stats
	Connections() []server.Info
}

type APIHandlers struct {
	functions Functions
	regions   protocol.RegionLookup
	history   persistence.History
	server    ServerStats
}

func NewAPIHandlers(functions Functions, regions protocol.RegionLookup, history persistence.History, srv ServerStats) *APIHandlers {
	return &APIHandlers{
		functions: functions,
		regions:   regions,
		history:   history,
		server:    srv,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.functions.HealthCheck()

	historyCheck, histOk := "ok", true
	if err := h.history.HealthCheck(c.Context()); err != nil {
		historyCheck, histOk = err.Error(), false
	}

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && histOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	body := fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry": registryCheck,
			"history":  historyCheck,
		},
		"timestamp": time.Now().UTC(),
	}

	if h.server != nil {
		body["server"] = h.server.Stats()
	}

	return c.Status(httpStatus).JSON(body)
}

func (h *APIHandlers) GetFunctions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"functions": h.functions.List()})
}

func (h *APIHandlers) GetFunction(c fiber.Ctx) error {
	id := c.Params("id")

	fn, ok := h.functions.Lookup(id)
	if !ok {
		return notFound(c, "function_not_found", "function "+id+" is not registered")
	}

	return c.JSON(newFunctionResponse(fn))
}

func (h *APIHandlers) GetRegion(c fiber.Ctx) error {
	region, err := h.regions.Region(c.Context(), c.Params("name"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(newRegionResponse(region))
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit := defaultLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 || n > maxLimit {
			return badRequest(c, "limit must be between 1 and "+strconv.Itoa(maxLimit))
		}

		limit = n
	}

	records, err := h.history.Recent(c.Context(), limit)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": records,
		"limit":      limit,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	record, err := h.history.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetConnections(c fiber.Ctx) error {
	if h.server == nil {
		return c.JSON(fiber.Map{"connections": []server.Info{}})
	}

	return c.JSON(fiber.Map{"connections": h.server.Connections()})
}
