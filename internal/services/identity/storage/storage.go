// Package storage defines persistence contracts for identity service state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Attribute verification statuses.
const (
	StatusUnverified = "unverified"
	StatusPending    = "pending"
	StatusVerified   = "verified"
	StatusRejected   = "rejected"
)

// Identity stores one holder identity record.
type Identity struct {
	ID            string
	DID           string
	SecurityLevel int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// KeyRecord stores the single active public signing key for an identity.
type KeyRecord struct {
	IdentityID string
	PublicKey  string
	KeyType    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Attribute stores one attested attribute claim belonging to an identity.
type Attribute struct {
	ID         string
	IdentityID string
	Name       string
	Value      string
	Status     string
	VerifiedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuditEvent stores one append-only security event.
type AuditEvent struct {
	ID         string
	IdentityID string
	EventType  string
	Details    string
	CreatedAt  time.Time
}

// Challenge stores one short-lived proof-of-key challenge.
type Challenge struct {
	ID        string
	DID       string
	Nonce     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IdentityStore persists holder identity records.
type IdentityStore interface {
	PutIdentity(ctx context.Context, identity Identity) error
	GetIdentity(ctx context.Context, identityID string) (Identity, error)
	GetIdentityByDID(ctx context.Context, did string) (Identity, error)
	SetSecurityLevel(ctx context.Context, identityID string, level int, updatedAt time.Time) error
	SetIdentityActive(ctx context.Context, identityID string, active bool, updatedAt time.Time) error
}

// KeyStore persists the active public key per identity. Rotation is a single
// atomic replace so in-flight verifications never observe a half-written key.
type KeyStore interface {
	PutKey(ctx context.Context, record KeyRecord) error
	GetKey(ctx context.Context, identityID string) (KeyRecord, error)
	ReplaceKey(ctx context.Context, identityID string, publicKey string, keyType string, updatedAt time.Time) error
}

// AttributeStore persists attribute claims. Duplicate names are permitted;
// status transitions operate on every row matching a name.
type AttributeStore interface {
	PutAttribute(ctx context.Context, attribute Attribute) error
	GetAttribute(ctx context.Context, attributeID string) (Attribute, error)
	ListAttributes(ctx context.Context, identityID string) ([]Attribute, error)
	ListAttributesByStatus(ctx context.Context, identityID string, status string) ([]Attribute, error)
	ListAttributesByNames(ctx context.Context, identityID string, names []string) ([]Attribute, error)
	UpdateAttributeValue(ctx context.Context, attributeID string, value string, updatedAt time.Time) (Attribute, error)
	// UpdateStatusByName moves every attribute row matching name whose current
	// status is in allowedFrom to the given status. verifiedAt is stored when
	// non-nil and cleared otherwise. Returns the updated rows; zero rows is not
	// an error.
	UpdateStatusByName(ctx context.Context, identityID string, name string, status string, allowedFrom []string, verifiedAt *time.Time, updatedAt time.Time) ([]Attribute, error)
	DeleteAttribute(ctx context.Context, attributeID string) error
}

// AuditStore appends immutable audit events.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
	ListAuditEvents(ctx context.Context, identityID string) ([]AuditEvent, error)
}

// ChallengeStore persists short-lived proof-of-key challenges.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, challenge Challenge) error
	GetChallenge(ctx context.Context, did string, nonce string) (Challenge, error)
	DeleteChallenge(ctx context.Context, challengeID string) error
}
