// Package credential issues, validates, revokes, and expires opaque
// bearer credentials. The raw secret crosses the package boundary once,
// at issuance; the store holds only hashes.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/mail"
)

// ExpiryReporter receives the IDs of dead credentials that are still
// being presented. The health monitor satisfies this.
type ExpiryReporter interface {
	RecordExpiredCredentialUse(id string)
}

// Manager holds all credential records in memory for the process
// lifetime. One mutex guards the maps; every operation is synchronous.
type Manager struct {
	defaultLifetime time.Duration
	reporter        ExpiryReporter
	mailer          mail.Sender
	logger          *zap.Logger

	mu      sync.Mutex
	byHash  map[string]*Record
	byID    map[string]*Record
	ordered []*Record // insertion order, backs ListForPrincipal

	// now is replaceable in tests.
	now func() time.Time
}

// NewManager creates a credential manager. reporter and mailer may be
// nil; a nil logger is replaced with a no-op.
func NewManager(defaultLifetime time.Duration, reporter ExpiryReporter, mailer mail.Sender, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLifetime <= 0 {
		defaultLifetime = 24 * time.Hour
	}
	return &Manager{
		defaultLifetime: defaultLifetime,
		reporter:        reporter,
		mailer:          mailer,
		logger:          logger,
		byHash:          make(map[string]*Record),
		byID:            make(map[string]*Record),
		now:             time.Now,
	}
}

// Issue generates a new credential bound to principal and returns the raw
// secret exactly once; it is never retrievable again. A zero lifetime
// selects the configured default; a negative one is rejected. The
// principal is notified through the mail collaborator; a failed handoff
// is logged and never unwinds the issuance.
func (m *Manager) Issue(ctx context.Context, principal string, lifetime time.Duration) (string, Record, error) {
	if principal == "" {
		return "", Record{}, ErrEmptyPrincipal
	}
	if lifetime < 0 {
		return "", Record{}, ErrInvalidLifetime
	}
	if lifetime == 0 {
		lifetime = m.defaultLifetime
	}

	m.mu.Lock()

	// At most one record per hash. Collisions require regenerating,
	// which in practice never loops.
	var raw, hash string
	for {
		secret, err := newSecret()
		if err != nil {
			m.mu.Unlock()
			return "", Record{}, fmt.Errorf("generating secret: %w", err)
		}
		h := hashSecret(secret)
		if _, exists := m.byHash[h]; !exists {
			raw, hash = secret, h
			break
		}
	}

	now := m.now()
	rec := &Record{
		ID:         uuid.New().String(),
		SecretHash: hash,
		Principal:  principal,
		IssuedAt:   now,
		ExpiresAt:  now.Add(lifetime),
		Active:     true,
	}
	m.byHash[hash] = rec
	m.byID[rec.ID] = rec
	m.ordered = append(m.ordered, rec)

	out := *rec
	m.mu.Unlock()

	m.logger.Info("credential issued",
		zap.String("credential_id", out.ID),
		zap.String("principal", principal),
		zap.Time("expires_at", out.ExpiresAt),
		logging.RedactedString("raw_secret", raw),
	)

	m.notifyIssued(ctx, principal, raw, out.ExpiresAt)

	return raw, out, nil
}

// Validate hashes the input and looks the credential up.
//
// Malformed input fails the shape check and never reaches the store.
// A missing record returns ErrNotFound. A revoked or expired record
// returns ErrExpired (first expiry detection flips Active as a side
// effect) and the credential ID is reported to the monitor so reuse of
// dead credentials can alert. A live record gets its usage stats bumped.
func (m *Manager) Validate(raw string) (Record, error) {
	if !validSecretFormat(raw) {
		return Record{}, ErrInvalidFormat
	}

	m.mu.Lock()

	rec, ok := m.byHash[hashSecret(raw)]
	if !ok {
		m.mu.Unlock()
		return Record{}, ErrNotFound
	}

	now := m.now()
	if rec.Active && now.After(rec.ExpiresAt) {
		rec.Active = false
	}
	if !rec.Active {
		id := rec.ID
		m.mu.Unlock()
		if m.reporter != nil {
			m.reporter.RecordExpiredCredentialUse(id)
		}
		return Record{}, ErrExpired
	}

	rec.UseCount++
	used := now
	rec.LastUsedAt = &used

	out := *rec
	m.mu.Unlock()
	return out, nil
}

// Revoke deactivates a credential by ID and reports whether a record was
// affected. Revoking an already-dead or unknown credential returns false.
func (m *Manager) Revoke(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok || !rec.Active {
		return false
	}
	rec.Active = false

	m.logger.Info("credential revoked",
		zap.String("credential_id", id),
		zap.String("principal", rec.Principal),
	)
	return true
}

// ListForPrincipal returns copies of the principal's records in issuance
// order. No raw secret exists to leak; hashes are one-way.
func (m *Manager) ListForPrincipal(principal string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, rec := range m.ordered {
		if rec.Principal == principal {
			out = append(out, *rec)
		}
	}
	return out
}

// notifyIssued hands the raw secret to the mail collaborator exactly once.
func (m *Manager) notifyIssued(ctx context.Context, principal, raw string, expiresAt time.Time) {
	if m.mailer == nil {
		return
	}

	msg := mail.Message{
		To:      principal,
		Subject: "Your taskd API credential",
		Body: fmt.Sprintf(
			"A new API credential was issued to you.\n\nCredential: %s\nExpires: %s\n\nStore it now; it cannot be retrieved again.",
			raw, expiresAt.UTC().Format(time.RFC3339),
		),
	}
	if err := m.mailer.Send(ctx, msg); err != nil {
		m.logger.Error("credential notification failed",
			zap.String("principal", principal),
			zap.Error(err),
		)
	}
}
