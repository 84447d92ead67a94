// Package audit records append-only security events for identities.
package audit

import (
	"context"
	"time"

	"github.com/tekiplanet/vortexid/internal/platform/id"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// Event types written by the core. The sink is append-only; the core never
// reads events back except to serve the holder-facing audit trail view.
const (
	EventIdentityIssued        = "IDENTITY_ISSUED"
	EventAttributeAdded        = "ATTRIBUTE_ADDED"
	EventAttributeUpdated      = "ATTRIBUTE_UPDATED"
	EventAttributeDeleted      = "ATTRIBUTE_DELETED"
	EventAttributeVerified     = "ATTRIBUTE_VERIFIED"
	EventVerificationRequested = "VERIFICATION_REQUESTED"
	EventVerificationRevoked   = "VERIFICATION_REVOKED"
	EventVerificationRejected  = "VERIFICATION_REJECTED"
	EventKeyRotation           = "KEY_ROTATION"
	EventCryptoProofSuccess    = "CRYPTO_PROOF_SUCCESS"
	EventCryptoProofFailure    = "CRYPTO_PROOF_FAILURE"
	EventConsentGranted        = "CONSENT_GRANTED"
	EventConsentRevoked        = "CONSENT_REVOKED"
)

// Emitter writes audit events to an append-only store.
type Emitter struct {
	store storage.AuditStore
	clock func() time.Time
	newID func() (string, error)
}

// NewEmitter creates an audit emitter over the given store.
func NewEmitter(store storage.AuditStore) *Emitter {
	return &Emitter{store: store, clock: time.Now, newID: id.NewID}
}

// NewEmitterWithClock creates an audit emitter with a fixed clock for tests.
func NewEmitterWithClock(store storage.AuditStore, clock func() time.Time) *Emitter {
	emitter := NewEmitter(store)
	if clock != nil {
		emitter.clock = clock
	}
	return emitter
}

// Emit appends one audit event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, identityID string, eventType string, details string) error {
	if e == nil || e.store == nil {
		return nil
	}
	eventID, err := e.newID()
	if err != nil {
		return err
	}
	return e.store.AppendAuditEvent(ctx, storage.AuditEvent{
		ID:         eventID,
		IdentityID: identityID,
		EventType:  eventType,
		Details:    details,
		CreatedAt:  e.clock().UTC(),
	})
}

// List returns the audit trail for an identity, newest first.
func (e *Emitter) List(ctx context.Context, identityID string) ([]storage.AuditEvent, error) {
	if e == nil || e.store == nil {
		return nil, nil
	}
	return e.store.ListAuditEvents(ctx, identityID)
}
