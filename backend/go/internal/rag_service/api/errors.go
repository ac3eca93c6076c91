package api

import (
	"context"
	"errors"
	"net/http"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"

	"github.com/gin-gonic/gin"
)

// statusClientClosed is the non-standard status logged when the caller went away.
const statusClientClosed = 499

// statusOf maps an error to its HTTP status and whether the caller may retry.
func statusOf(err error) (int, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, true
	case errors.Is(err, context.Canceled):
		return statusClientClosed, true
	}
	switch ragerr.KindOf(err) {
	case ragerr.KindInvalidInput:
		return http.StatusBadRequest, false
	case ragerr.KindExtractionFailed:
		return http.StatusUnprocessableEntity, false
	case ragerr.KindNotFound:
		return http.StatusNotFound, false
	case ragerr.KindProviderRejected:
		if pe, ok := models.ProviderRejection(err); ok && pe.Unauthorized() {
			return http.StatusUnauthorized, false
		}
		return http.StatusBadRequest, false
	case ragerr.KindEmbeddingUnavailable, ragerr.KindGenerationUnavailable, ragerr.KindIndexUnavailable:
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

func writeError(c *gin.Context, err error) {
	status, retryable := statusOf(err)
	body := gin.H{"error": err.Error(), "retryable": retryable}
	if kind := ragerr.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	if q := ragerr.QuestionOf(err); q != "" {
		body["question"] = q
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
