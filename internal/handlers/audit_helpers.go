package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

// requestIDFromContext resolves the request's correlation id, minting one
// the first time a request without an X-Request-ID header needs it.
func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated caller's id as an audit
// field, or nil when the request is unauthenticated.
func userIDFromContext(c *gin.Context) *string {
	val, ok := c.Get("userID")
	if !ok {
		return nil
	}
	id, ok := val.(int)
	if !ok || id == 0 {
		return nil
	}
	s := strconv.Itoa(id)
	return &s
}
