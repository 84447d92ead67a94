// Package holder orchestrates identity issuance and attribute management on
// behalf of the identity owner.
package holder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/platform/id"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/crypto"
	"github.com/tekiplanet/vortexid/internal/services/identity/did"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// Issued reports a freshly issued identity.
type Issued struct {
	IdentityID string
	DID        string
}

// Record is the full identity view returned to the holder dashboard.
type Record struct {
	Identity   storage.Identity
	Key        storage.KeyRecord
	Attributes []storage.Attribute
}

// Profile is the public view exposed when resolving a DID.
type Profile struct {
	DID           string
	SecurityLevel int
	CreatedAt     time.Time
}

// Service coordinates identity, key and attribute persistence.
type Service struct {
	identities storage.IdentityStore
	keys       storage.KeyStore
	attributes storage.AttributeStore
	auditor    *audit.Emitter
	clock      func() time.Time
	newID      func() (string, error)
}

// NewService creates a holder service over the given stores.
func NewService(identities storage.IdentityStore, keys storage.KeyStore, attributes storage.AttributeStore, auditor *audit.Emitter) *Service {
	return &Service{
		identities: identities,
		keys:       keys,
		attributes: attributes,
		auditor:    auditor,
		clock:      time.Now,
		newID:      id.NewID,
	}
}

// NewServiceWithClock creates a holder service with a fixed clock for tests.
func NewServiceWithClock(identities storage.IdentityStore, keys storage.KeyStore, attributes storage.AttributeStore, auditor *audit.Emitter, clock func() time.Time) *Service {
	service := NewService(identities, keys, attributes, auditor)
	if clock != nil {
		service.clock = clock
	}
	return service
}

// Issue creates a new identity with a fresh DID, stores the holder-generated
// public key and records the initial attributes as unverified.
//
// Creation is not transactional across the three stores; a failure after the
// identity insert leaves a partial record for the caller to surface.
func (s *Service) Issue(ctx context.Context, publicKey string, attributes map[string]string) (Issued, error) {
	if s == nil || s.identities == nil || s.keys == nil || s.attributes == nil {
		return Issued{}, fmt.Errorf("holder service is not configured")
	}
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return Issued{}, apperrors.New(apperrors.CodeValidation, "public key is required")
	}
	if _, err := crypto.ImportPublicKey(publicKey); err != nil {
		return Issued{}, err
	}

	identityID, err := s.newID()
	if err != nil {
		return Issued{}, fmt.Errorf("generate identity id: %w", err)
	}
	holderDID := did.Generate()
	now := s.clock().UTC()

	if err := s.identities.PutIdentity(ctx, storage.Identity{
		ID:            identityID,
		DID:           holderDID,
		SecurityLevel: 1,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return Issued{}, fmt.Errorf("create identity: %w", err)
	}

	if err := s.keys.PutKey(ctx, storage.KeyRecord{
		IdentityID: identityID,
		PublicKey:  publicKey,
		KeyType:    crypto.KeyType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return Issued{}, fmt.Errorf("store public key: %w", err)
	}

	for name, value := range attributes {
		if _, err := s.addAttribute(ctx, identityID, name, value, now); err != nil {
			return Issued{}, err
		}
	}

	_ = s.auditor.Emit(ctx, identityID, audit.EventIdentityIssued, holderDID)
	return Issued{IdentityID: identityID, DID: holderDID}, nil
}

// GetByDID returns the full identity record with its key and attributes.
func (s *Service) GetByDID(ctx context.Context, holderDID string) (Record, error) {
	if s == nil || s.identities == nil {
		return Record{}, fmt.Errorf("holder service is not configured")
	}
	if !did.IsValid(strings.TrimSpace(holderDID)) {
		return Record{}, apperrors.New(apperrors.CodeInvalidDID, "did is not a valid ozoro identifier")
	}

	identity, err := s.identities.GetIdentityByDID(ctx, strings.TrimSpace(holderDID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Record{}, apperrors.New(apperrors.CodeNotFound, "identity not found")
		}
		return Record{}, fmt.Errorf("load identity: %w", err)
	}
	key, err := s.keys.GetKey(ctx, identity.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Record{}, fmt.Errorf("load key: %w", err)
	}
	attributes, err := s.attributes.ListAttributes(ctx, identity.ID)
	if err != nil {
		return Record{}, fmt.Errorf("load attributes: %w", err)
	}
	return Record{Identity: identity, Key: key, Attributes: attributes}, nil
}

// ResolveDID returns the public identity profile for a DID.
func (s *Service) ResolveDID(ctx context.Context, holderDID string) (Profile, error) {
	if s == nil || s.identities == nil {
		return Profile{}, fmt.Errorf("holder service is not configured")
	}
	if !did.IsValid(strings.TrimSpace(holderDID)) {
		return Profile{}, apperrors.New(apperrors.CodeInvalidDID, "did is not a valid ozoro identifier")
	}
	identity, err := s.identities.GetIdentityByDID(ctx, strings.TrimSpace(holderDID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Profile{}, apperrors.New(apperrors.CodeNotFound, "identity not found")
		}
		return Profile{}, fmt.Errorf("resolve did: %w", err)
	}
	return Profile{
		DID:           identity.DID,
		SecurityLevel: identity.SecurityLevel,
		CreatedAt:     identity.CreatedAt,
	}, nil
}

// AddAttribute stores one new unverified attribute claim.
func (s *Service) AddAttribute(ctx context.Context, identityID string, name string, value string) (storage.Attribute, error) {
	if s == nil || s.attributes == nil {
		return storage.Attribute{}, fmt.Errorf("holder service is not configured")
	}
	attribute, err := s.addAttribute(ctx, identityID, name, value, s.clock().UTC())
	if err != nil {
		return storage.Attribute{}, err
	}
	return attribute, nil
}

// UpdateAttribute replaces an attribute's value. Any edit resets the
// verification status to unverified: a verified claim about old content must
// not silently carry over to new content.
func (s *Service) UpdateAttribute(ctx context.Context, attributeID string, value string) (storage.Attribute, error) {
	if s == nil || s.attributes == nil {
		return storage.Attribute{}, fmt.Errorf("holder service is not configured")
	}
	attribute, err := s.attributes.UpdateAttributeValue(ctx, attributeID, value, s.clock().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Attribute{}, apperrors.New(apperrors.CodeNotFound, "attribute not found")
		}
		return storage.Attribute{}, fmt.Errorf("update attribute: %w", err)
	}
	_ = s.auditor.Emit(ctx, attribute.IdentityID, audit.EventAttributeUpdated, attribute.Name)
	return attribute, nil
}

// DeleteAttribute removes one attribute claim.
func (s *Service) DeleteAttribute(ctx context.Context, attributeID string) error {
	if s == nil || s.attributes == nil {
		return fmt.Errorf("holder service is not configured")
	}
	attribute, err := s.attributes.GetAttribute(ctx, attributeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "attribute not found")
		}
		return fmt.Errorf("load attribute: %w", err)
	}
	if err := s.attributes.DeleteAttribute(ctx, attributeID); err != nil {
		return fmt.Errorf("delete attribute: %w", err)
	}
	_ = s.auditor.Emit(ctx, attribute.IdentityID, audit.EventAttributeDeleted, attribute.Name)
	return nil
}

// RotateKey replaces the identity's public key in one atomic swap. The
// identity and its key record are preserved; only the material changes.
func (s *Service) RotateKey(ctx context.Context, identityID string, publicKey string) error {
	if s == nil || s.keys == nil {
		return fmt.Errorf("holder service is not configured")
	}
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return apperrors.New(apperrors.CodeValidation, "public key is required")
	}
	if _, err := crypto.ImportPublicKey(publicKey); err != nil {
		return err
	}
	if err := s.keys.ReplaceKey(ctx, identityID, publicKey, crypto.KeyType, s.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "key record not found")
		}
		return fmt.Errorf("rotate key: %w", err)
	}
	_ = s.auditor.Emit(ctx, identityID, audit.EventKeyRotation, crypto.KeyType)
	return nil
}

// SetActive flips the identity's suspension flag.
func (s *Service) SetActive(ctx context.Context, identityID string, active bool) error {
	if s == nil || s.identities == nil {
		return fmt.Errorf("holder service is not configured")
	}
	if err := s.identities.SetIdentityActive(ctx, identityID, active, s.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "identity not found")
		}
		return fmt.Errorf("set identity active: %w", err)
	}
	return nil
}

func (s *Service) addAttribute(ctx context.Context, identityID string, name string, value string, now time.Time) (storage.Attribute, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Attribute{}, apperrors.New(apperrors.CodeValidation, "attribute name is required")
	}
	attributeID, err := s.newID()
	if err != nil {
		return storage.Attribute{}, fmt.Errorf("generate attribute id: %w", err)
	}
	attribute := storage.Attribute{
		ID:         attributeID,
		IdentityID: identityID,
		Name:       name,
		Value:      value,
		Status:     storage.StatusUnverified,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.attributes.PutAttribute(ctx, attribute); err != nil {
		return storage.Attribute{}, fmt.Errorf("store attribute %s: %w", name, err)
	}
	_ = s.auditor.Emit(ctx, identityID, audit.EventAttributeAdded, name)
	return attribute, nil
}
