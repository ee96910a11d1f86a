package server

import (
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taskd/internal/logging"
)

const principalContextKey = "authenticated_principal"

// invalidCredentialResponse is the single body returned for every failed
// authentication. Not-found, expired, and malformed stay indistinguishable
// to the caller.
var invalidCredentialResponse = map[string]string{"error": "invalid credential"}

// recordingMiddleware feeds every request and error response into the
// health monitor. This is the inbound interface the request-handling
// collaborators use: mounting the middleware is all they do.
func (s *Server) recordingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s.monitor.RecordRequest()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			if status >= 400 {
				s.monitor.RecordError(status)
			}

			return err
		}
	}
}

// bearerAuth validates the Authorization header against the credential
// manager and stores the authenticated principal in context. Every
// failure mode produces the same generic 401.
func (s *Server) bearerAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, invalidCredentialResponse)
			}

			rec, err := s.credentials.Validate(raw)
			if err != nil {
				// Expired-use alerting already happened inside Validate;
				// the caller learns nothing beyond "invalid".
				return c.JSON(http.StatusUnauthorized, invalidCredentialResponse)
			}

			c.Set(principalContextKey, rec.Principal)
			ctx := logging.WithPrincipal(c.Request().Context(), rec.Principal)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// metricsGate restricts monitoring endpoints to principals matching the
// configured allow-list patterns. The patterns are an external
// authorization policy; this core only applies them.
func (s *Server) metricsGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, _ := c.Get(principalContextKey).(string)
			if !s.principalAllowed(principal) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

func (s *Server) principalAllowed(principal string) bool {
	if principal == "" {
		return false
	}
	for _, pattern := range s.cfg.MetricsPrincipals {
		if ok, err := path.Match(pattern, principal); err == nil && ok {
			return true
		}
	}
	return false
}

// issueRateLimit bounds credential issuance per remote IP.
func (s *Server) issueRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.limiters.allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}

// ipLimiters keeps one rate.Limiter per remote IP, sweeping the table
// periodically so it cannot grow without bound.
type ipLimiters struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	lastCleanup time.Time
}

const limiterCleanupInterval = 10 * time.Minute

func newIPLimiters(r float64, burst int) *ipLimiters {
	return &ipLimiters{
		limiters:    make(map[string]*rate.Limiter),
		rate:        rate.Limit(r),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > limiterCleanupInterval {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = time.Now()
	}

	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = lim
	}
	return lim.Allow()
}
