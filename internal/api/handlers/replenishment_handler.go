package handlers

import (
	"net/http"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type ReplenishmentHandler struct {
	replenishments *service.ReplenishmentService
}

func NewReplenishmentHandler(replenishments *service.ReplenishmentService) *ReplenishmentHandler {
	return &ReplenishmentHandler{replenishments: replenishments}
}

func (h *ReplenishmentHandler) List(c *gin.Context) {
	filter := domain.RunFilter{
		State:           domain.RunState(c.Query("state")),
		IncludeArchived: parseBoolQuery(c.Query("include_archived")),
	}
	runs, err := h.replenishments.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *ReplenishmentHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	run, err := h.replenishments.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *ReplenishmentHandler) Create(c *gin.Context) {
	var req domain.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	run, err := h.replenishments.CreateRun(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h *ReplenishmentHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req domain.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	run, err := h.replenishments.UpdateRun(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *ReplenishmentHandler) Remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.replenishments.RemoveRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	removalResponse(c, deleted)
}

// Generate plans and emits the transfers of a draft run
func (h *ReplenishmentHandler) Generate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.replenishments.Generate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReplenishmentHandler) Transfers(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	transfers, err := h.replenishments.ListTransfers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfers)
}
