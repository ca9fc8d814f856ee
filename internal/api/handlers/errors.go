package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var (
		valErr *domain.ValidationError
		cfgErr *domain.ConfigurationError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRunAlreadyGenerated),
		errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, domain.ErrDuplicateTransfer):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) && valErr.Field != "" {
		body["field"] = valErr.Field
	}
	c.JSON(status, body)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseInt64Query(value string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseBoolQuery(value string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && v
}

// removalResponse reports the outcome of an archive-then-delete removal
func removalResponse(c *gin.Context, deleted bool) {
	if deleted {
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.StatusArchived)})
}
