package handlers

import (
	"net/http"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type RegionHandler struct {
	regions *service.RegionService
}

func NewRegionHandler(regions *service.RegionService) *RegionHandler {
	return &RegionHandler{regions: regions}
}

type regionRequest struct {
	Name         string  `json:"name"`
	WarehouseIDs []int64 `json:"warehouse_ids"`
}

func (h *RegionHandler) List(c *gin.Context) {
	regions, err := h.regions.List(c.Request.Context(), parseBoolQuery(c.Query("include_archived")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, regions)
}

func (h *RegionHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	region, err := h.regions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, region)
}

func (h *RegionHandler) Create(c *gin.Context) {
	var req regionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	region, err := h.regions.Create(c.Request.Context(), req.Name, req.WarehouseIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, region)
}

func (h *RegionHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req regionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	region, err := h.regions.Update(c.Request.Context(), id, req.Name, req.WarehouseIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, region)
}

func (h *RegionHandler) Remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.regions.Remove(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	removalResponse(c, deleted)
}
