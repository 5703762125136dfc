package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

// Error codes shared by every handler. Clients switch on these, not on text.
const (
	CodeMissingParams      = "MISSING_PARAMS"
	CodeInvalidSystem      = "INVALID_SYSTEM"
	CodeInvalidTier        = "INVALID_TIER"
	CodeInvalidBody        = "INVALID_BODY"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeSynthesisDenied    = "SYNTHESIS_DENIED"
	CodeDailyLimitReached  = "DAILY_LIMIT_REACHED"
	CodeFortuneDomainOnly  = "FORTUNE_DOMAIN_ONLY"
	CodeTestModeRequired   = "TEST_MODE_REQUIRED"
	CodeAdminRequired      = "ADMIN_REQUIRED"
	CodeNotFound           = "NOT_FOUND"
	CodeEnvConfigError     = "ENV_CONFIG_ERROR"
	CodeInternalError      = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeDuplicateRequest   = "DUPLICATE_REQUEST"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

// ErrorBody is the envelope of every failed response.
type ErrorBody struct {
	OK      int    `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error aborts with the standard error envelope.
func Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{OK: 0, Code: code, Message: message})
}

// ErrorWith aborts with the error envelope merged with extra fields.
func ErrorWith(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{"ok": 0, "code": code, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, code, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, code, message string) {
	Error(c, http.StatusForbidden, code, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

// InternalError sends a 500 error response. The cause is not echoed to clients.
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternalError, "internal server error")
}
