// Package validation provides input validation middleware for the gig board API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxTitleLength bounds gig titles.
const MaxTitleLength = 200

// MaxDescriptionLength bounds gig descriptions and rejection reasons.
const MaxDescriptionLength = 10000

// principalRegex validates principal identifiers: lowercase slug, 1-64 chars.
var principalRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidPrincipal checks if a string is a well-formed principal identifier
func IsValidPrincipal(id string) bool {
	return principalRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// PrincipalParamMiddleware validates the :principal URL parameter on routes
// that use it. Apply to route groups that include :principal params to
// reject malformed identifiers early.
func PrincipalParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("principal")
		if id != "" && !IsValidPrincipal(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_principal",
				"message": "principal must be a lowercase slug of at most 64 characters",
			})
			return
		}
		c.Next()
	}
}
