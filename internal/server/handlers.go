package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/credential"
)

// IssueCredentialRequest is the request body for POST /api/v1/credentials.
type IssueCredentialRequest struct {
	Principal string `json:"principal"`

	// Lifetime is an optional Go duration string; empty selects the
	// configured default.
	Lifetime string `json:"lifetime,omitempty"`
}

// IssueCredentialResponse carries the raw secret. This is the only place
// it ever appears; it cannot be retrieved again.
type IssueCredentialResponse struct {
	ID        string    `json:"id"`
	Secret    string    `json:"secret"`
	Principal string    `json:"principal"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevokeCredentialResponse is the response body for DELETE /api/v1/credentials/:id.
type RevokeCredentialResponse struct {
	Revoked bool `json:"revoked"`
}

// handleIssueCredential issues a credential and returns the raw secret once.
func (s *Server) handleIssueCredential(c echo.Context) error {
	var req IssueCredentialRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var lifetime time.Duration
	if req.Lifetime != "" {
		parsed, err := time.ParseDuration(req.Lifetime)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "lifetime must be a duration string")
		}
		lifetime = parsed
	}

	raw, rec, err := s.credentials.Issue(c.Request().Context(), req.Principal, lifetime)
	if err != nil {
		// Issuance only fails on malformed input; it is the caller's fault.
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, IssueCredentialResponse{
		ID:        rec.ID,
		Secret:    raw,
		Principal: rec.Principal,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	})
}

// handleListCredentials lists the authenticated principal's records in
// issuance order. Raw secrets do not exist server-side; hashes are one-way.
func (s *Server) handleListCredentials(c echo.Context) error {
	principal, _ := c.Get(principalContextKey).(string)

	records := s.credentials.ListForPrincipal(principal)
	if records == nil {
		records = []credential.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

// handleRevokeCredential revokes one of the caller's credentials. Revoking
// an unknown, foreign, or already-revoked credential reports revoked=false.
func (s *Server) handleRevokeCredential(c echo.Context) error {
	principal, _ := c.Get(principalContextKey).(string)
	id := c.Param("id")

	owned := false
	for _, rec := range s.credentials.ListForPrincipal(principal) {
		if rec.ID == id {
			owned = true
			break
		}
	}

	revoked := false
	if owned {
		revoked = s.credentials.Revoke(id)
	}

	if revoked {
		s.logger.Info("credential revoked via api",
			zap.String("credential_id", id),
			zap.String("principal", principal),
		)
	}

	return c.JSON(http.StatusOK, RevokeCredentialResponse{Revoked: revoked})
}

// handleMonitorSnapshot returns the current metrics snapshot. Read-only;
// never triggers an evaluation.
func (s *Server) handleMonitorSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.monitor.Snapshot())
}

// handleMonitorEvaluate runs an on-demand evaluation. Safe at arbitrary
// times: before the window elapses it returns a neutral result.
func (s *Server) handleMonitorEvaluate(c echo.Context) error {
	return c.JSON(http.StatusOK, s.monitor.Evaluate())
}

// AuthSpikeRequest is the request body for POST /api/v1/monitoring/auth-spike.
type AuthSpikeRequest struct {
	PreviousAuthErrors int64  `json:"previous_auth_errors"`
	Window             string `json:"window"`
}

// handleAuthSpike checks the auth-error growth against a caller-supplied
// baseline.
func (s *Server) handleAuthSpike(c echo.Context) error {
	var req AuthSpikeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	window := 24 * time.Hour
	if req.Window != "" {
		parsed, err := time.ParseDuration(req.Window)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "window must be a duration string")
		}
		window = parsed
	}

	return c.JSON(http.StatusOK, s.monitor.CheckAuthSpike(req.PreviousAuthErrors, window))
}

// handleMonitorReset clears counters, history, and cooldowns. Explicit
// administrative action only.
func (s *Server) handleMonitorReset(c echo.Context) error {
	s.monitor.Reset()
	return c.NoContent(http.StatusNoContent)
}
