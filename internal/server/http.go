package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

// AuthorizationCompleter finishes an OAuth round trip from its redirect.
type AuthorizationCompleter interface {
	CompleteCalendarAuthorizationWithState(ctx context.Context, state, code string) (string, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error
}

type HTTPConfig struct {
	// CallbackPath receives the provider redirect.
	CallbackPath string
	// SuccessRedirect, when set, is where users land after connecting.
	SuccessRedirect string
}

// NewHTTPHandler serves the OAuth callback, /metrics and /healthz.
func NewHTTPHandler(cfg HTTPConfig, auth AuthorizationCompleter, metrics http.Handler, db HealthChecker, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/oauth/google/callback"
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(cfg.CallbackPath, func(c *gin.Context) {
		if denied := c.Query("error"); denied != "" {
			logger.Warn("calendar.auth.denied", "reason", denied)
			c.JSON(http.StatusBadRequest, gin.H{"error": "authorization denied", "reason": denied})
			return
		}
		state, code := c.Query("state"), c.Query("code")
		if state == "" || code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state and code are required"})
			return
		}
		userID, err := auth.CompleteCalendarAuthorizationWithState(c.Request.Context(), state, code)
		if err != nil {
			logger.Warn("calendar.auth.callback_failed", "code", common.ErrorCode(err), "error", err)
			c.JSON(httpStatus(err), gin.H{"error": err.Error(), "code": common.ErrorCode(err)})
			return
		}
		if cfg.SuccessRedirect != "" {
			target, err := url.Parse(cfg.SuccessRedirect)
			if err == nil {
				q := target.Query()
				q.Set("calendar", "connected")
				target.RawQuery = q.Encode()
				c.Redirect(http.StatusFound, target.String())
				return
			}
			logger.Warn("invalid success redirect", "url", cfg.SuccessRedirect, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "connected", "user_id": userID})
	})

	r.GET("/metrics", func(c *gin.Context) {
		if metrics == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		metrics.ServeHTTP(c.Writer, c.Request)
	})

	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := db.HealthCheck(c.Request.Context(), 2*time.Second, logger); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrAuthorizationRequired), errors.Is(err, common.ErrAuthorizationExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrConflictingUpdate), errors.Is(err, common.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, common.ErrCapabilityUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
