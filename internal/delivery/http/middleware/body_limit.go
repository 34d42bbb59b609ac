package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/reel/internal/domain"
)

// BodySizeLimit rejects a declared Content-Length above maxBytes with 413 and caps the
// body reader for chunked uploads. Handlers see *http.MaxBytesError when the cap is hit.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	limit := strconv.FormatInt(maxBytes, 10)
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": domain.ErrPayloadTooLarge.Error() + " (" + limit + " bytes)",
			})
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
