package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// AppendAuditEvent inserts one immutable audit event row.
func (s *Store) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventID := strings.TrimSpace(event.ID)
	identityID := strings.TrimSpace(event.IdentityID)
	eventType := strings.TrimSpace(event.EventType)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO audit_logs (id, identity_id, event_type, details, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		eventID,
		identityID,
		eventType,
		event.Details,
		toMillis(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the audit trail for an identity, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, identityID string) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, identity_id, event_type, details, created_at
		 FROM audit_logs
		 WHERE identity_id = ?
		 ORDER BY created_at DESC, id DESC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var event storage.AuditEvent
		var createdAt int64
		if err := rows.Scan(
			&event.ID,
			&event.IdentityID,
			&event.EventType,
			&event.Details,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		event.CreatedAt = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// PutChallenge inserts one short-lived proof-of-key challenge.
func (s *Store) PutChallenge(ctx context.Context, challenge storage.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	challengeID := strings.TrimSpace(challenge.ID)
	did := strings.TrimSpace(challenge.DID)
	nonce := strings.TrimSpace(challenge.Nonce)
	if challengeID == "" {
		return fmt.Errorf("challenge id is required")
	}
	if did == "" {
		return fmt.Errorf("challenge did is required")
	}
	if nonce == "" {
		return fmt.Errorf("challenge nonce is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO auth_challenges (id, did, challenge, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		challengeID,
		did,
		nonce,
		toMillis(challenge.ExpiresAt),
		toMillis(challenge.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// GetChallenge returns one stored challenge by DID and nonce.
func (s *Store) GetChallenge(ctx context.Context, did string, nonce string) (storage.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return storage.Challenge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Challenge{}, fmt.Errorf("storage is not configured")
	}
	did = strings.TrimSpace(did)
	nonce = strings.TrimSpace(nonce)
	if did == "" {
		return storage.Challenge{}, fmt.Errorf("challenge did is required")
	}
	if nonce == "" {
		return storage.Challenge{}, fmt.Errorf("challenge nonce is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, did, challenge, expires_at, created_at
		 FROM auth_challenges
		 WHERE did = ? AND challenge = ?`,
		did,
		nonce,
	)
	var challenge storage.Challenge
	var expiresAt int64
	var createdAt int64
	err := row.Scan(
		&challenge.ID,
		&challenge.DID,
		&challenge.Nonce,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Challenge{}, storage.ErrNotFound
		}
		return storage.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	challenge.ExpiresAt = fromMillis(expiresAt)
	challenge.CreatedAt = fromMillis(createdAt)
	return challenge, nil
}

// DeleteChallenge removes one consumed or expired challenge.
func (s *Store) DeleteChallenge(ctx context.Context, challengeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return fmt.Errorf("challenge id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM auth_challenges WHERE id = ?`,
		challengeID,
	)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}
