package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"laundryspot-backend/internal/apperr"
)

// fail writes the error response for err. Errors carrying a taxonomy kind map
// to their status code; anything else is an opaque 500.
func fail(c *gin.Context, err error) {
	if kind, ok := apperr.KindOf(err); ok {
		if kind == apperr.KindSettlementConflict {
			// Operator-relevant: money moved without a matching record.
			log.Printf("settlement conflict surfaced to caller: %v", err)
		}
		c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{
			"error": gin.H{"kind": string(kind), "message": err.Error()},
		})
		return
	}

	log.Printf("internal error: %v", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"kind": "Internal", "message": "internal server error"},
	})
}

// failValidation reports a request-binding failure.
func failValidation(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"kind": string(apperr.KindValidation), "message": err.Error()},
	})
}
