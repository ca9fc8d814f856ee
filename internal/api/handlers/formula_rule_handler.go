package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type FormulaRuleHandler struct {
	rules *service.FormulaRuleService
}

func NewFormulaRuleHandler(rules *service.FormulaRuleService) *FormulaRuleHandler {
	return &FormulaRuleHandler{rules: rules}
}

// previewRequest carries an unsaved rule and a sample therapy count
type previewRequest struct {
	domain.FormulaRule
	TherapyCount *int `json:"therapy_count"`
}

func (h *FormulaRuleHandler) List(c *gin.Context) {
	filter := domain.FormulaRuleFilter{
		ClinicID:        parseInt64Query(c.Query("clinic_id")),
		ProductID:       parseInt64Query(c.Query("product_id")),
		IncludeArchived: parseBoolQuery(c.Query("include_archived")),
	}

	rules, err := h.rules.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *FormulaRuleHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.rules.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *FormulaRuleHandler) Create(c *gin.Context) {
	var req domain.FormulaRule
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *FormulaRuleHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req domain.FormulaRule
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *FormulaRuleHandler) Remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.rules.Remove(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	removalResponse(c, deleted)
}

func (h *FormulaRuleHandler) Archive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.rules.Archive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *FormulaRuleHandler) Restore(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.rules.Restore(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// Preview evaluates a stored rule; therapy_count defaults to 20
func (h *FormulaRuleHandler) Preview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sample := domain.DefaultPreviewCount
	if raw := strings.TrimSpace(c.Query("therapy_count")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid therapy_count"})
			return
		}
		sample = v
	}

	breakdown, err := h.rules.Preview(c.Request.Context(), id, sample)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (h *FormulaRuleHandler) PreviewDraft(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sample := domain.DefaultPreviewCount
	if req.TherapyCount != nil {
		sample = *req.TherapyCount
	}

	breakdown, err := h.rules.PreviewDraft(&req.FormulaRule, sample)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (h *FormulaRuleHandler) YesterdayTarget(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	target, err := h.rules.TargetForYesterday(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}
