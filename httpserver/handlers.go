package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/invoke"
)

const HeaderRequestID = "X-Request-Id"

func (e *Engine) InstallHandlers() {
	e.GET("/", e.OK)
	e.GET("/health-check", e.OK)
	e.POST("/api/:function", e.API)
	e.POST("/evict/:function", e.Evict)
	e.NoRoute(e.PageNotFound)
}

func (e *Engine) OK(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (e *Engine) PageNotFound(c *gin.Context) {
	c.String(http.StatusNotFound, "404 page not found")
}

// API runs one synchronous invocation: URL names the function, the request
// body is the raw wire payload.
func (e *Engine) API(c *gin.Context) {
	function := c.Param("function")

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable request body")
		return
	}

	res, err := e.app.Invoke(c.Request.Context(), function, raw)
	if err != nil {
		e.hostError(c, function, err)
		return
	}

	c.Header(HeaderRequestID, res.ID)
	if res.OK() {
		c.Data(http.StatusOK, "application/json", res.Payload)
		return
	}
	c.Data(statusOf(res.Err.Kind), "application/json", res.Err.Wire())
}

// Evict drops the warm artifact for a function so the next invocation
// performs a fresh cold start. The deployment pipeline calls this after
// replacing a function's bundle.
func (e *Engine) Evict(c *gin.Context) {
	function := c.Param("function")
	if _, ok := e.app.Store().Get(function); !ok {
		c.String(http.StatusNotFound, "unknown function %q", function)
		return
	}
	e.app.Evict(function)
	c.String(http.StatusOK, "OK")
}

func (e *Engine) hostError(c *gin.Context, function string, err error) {
	switch {
	case errors.Is(err, invoke.ErrFunctionNotFound):
		c.String(http.StatusNotFound, "unknown function %q", function)
	case errors.Is(err, invoke.ErrOverCapacity):
		c.String(http.StatusTooManyRequests, "over capacity, retry later")
	case errors.Is(err, invoke.ErrStopped):
		c.String(http.StatusServiceUnavailable, "shutting down")
	default:
		e.Logger.Error().Err(err).Str("function", function).Msg("invocation rejected")
		c.String(http.StatusInternalServerError, "internal error")
	}
}

func statusOf(kind fault.Kind) int {
	switch kind {
	case fault.KindMalformedPayload:
		return http.StatusBadRequest
	case fault.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
