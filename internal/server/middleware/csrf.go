package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"lazynotez/backend/internal/csrf"
)

const csrfHeader = "X-CSRF-Token"

// maxCSRFBodyPeek bounds how much of the body is buffered when falling back
// to the _csrf field.
const maxCSRFBodyPeek = 1 << 20

// RequireCSRF validates the single-use CSRF token on state-changing requests.
// The token comes from the X-CSRF-Token header, or from a _csrf field in a
// JSON body. Reads pass through untouched.
func RequireCSRF(store csrf.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		token := c.GetHeader(csrfHeader)
		if token == "" {
			token = peekBodyToken(c)
		}
		if !store.Validate(token) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Invalid CSRF token"})
			return
		}
		c.Next()
	}
}

// peekBodyToken reads the request body looking for a _csrf field and restores
// it so handlers can still bind the payload.
func peekBodyToken(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCSRFBodyPeek))
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var payload struct {
		CSRF string `json:"_csrf"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.CSRF
}
