// Package challenge implements proof-of-key authentication challenges.
//
// A holder proves control of their private key by signing a short-lived
// random nonce. Challenges are single-use: a successful proof consumes the
// stored record.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/platform/id"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/crypto"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// DefaultTTL bounds how long an issued challenge stays answerable.
const DefaultTTL = 5 * time.Minute

// Service issues and verifies signed challenges.
type Service struct {
	identities storage.IdentityStore
	keys       storage.KeyStore
	challenges storage.ChallengeStore
	auditor    *audit.Emitter
	ttl        time.Duration
	clock      func() time.Time
}

// NewService creates a challenge service over the given stores.
func NewService(identities storage.IdentityStore, keys storage.KeyStore, challenges storage.ChallengeStore, auditor *audit.Emitter) *Service {
	return &Service{
		identities: identities,
		keys:       keys,
		challenges: challenges,
		auditor:    auditor,
		ttl:        DefaultTTL,
		clock:      time.Now,
	}
}

// NewServiceWithClock creates a challenge service with a fixed clock for tests.
func NewServiceWithClock(identities storage.IdentityStore, keys storage.KeyStore, challenges storage.ChallengeStore, auditor *audit.Emitter, ttl time.Duration, clock func() time.Time) *Service {
	service := NewService(identities, keys, challenges, auditor)
	if ttl > 0 {
		service.ttl = ttl
	}
	if clock != nil {
		service.clock = clock
	}
	return service
}

// Generate issues a random challenge nonce for a DID and persists it with a
// short expiry.
func (s *Service) Generate(ctx context.Context, did string) (string, error) {
	if s == nil || s.challenges == nil {
		return "", fmt.Errorf("challenge service is not configured")
	}
	did = strings.TrimSpace(did)
	if did == "" {
		return "", apperrors.New(apperrors.CodeValidation, "did is required")
	}

	challengeID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate challenge id: %w", err)
	}
	nonce := uuid.NewString()
	now := s.clock().UTC()
	if err := s.challenges.PutChallenge(ctx, storage.Challenge{
		ID:        challengeID,
		DID:       did,
		Nonce:     nonce,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return nonce, nil
}

// Verify checks a signed challenge against the identity's current public key.
// The stored challenge is consumed on success so it cannot be replayed.
func (s *Service) Verify(ctx context.Context, did string, nonce string, signature string) (bool, error) {
	if s == nil || s.identities == nil || s.keys == nil || s.challenges == nil {
		return false, fmt.Errorf("challenge service is not configured")
	}
	did = strings.TrimSpace(did)
	nonce = strings.TrimSpace(nonce)
	if did == "" || nonce == "" {
		return false, apperrors.New(apperrors.CodeValidation, "did and challenge are required")
	}

	stored, err := s.challenges.GetChallenge(ctx, did, nonce)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load challenge: %w", err)
	}
	if stored.ExpiresAt.Before(s.clock().UTC()) {
		return false, nil
	}

	identity, err := s.identities.GetIdentityByDID(ctx, did)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve identity: %w", err)
	}
	record, err := s.keys.GetKey(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve key: %w", err)
	}

	valid, err := crypto.Verify([]byte(nonce), signature, record.PublicKey)
	if err != nil {
		return false, err
	}
	if !valid {
		_ = s.auditor.Emit(ctx, identity.ID, audit.EventCryptoProofFailure, "challenge signature mismatch")
		return false, nil
	}

	if err := s.challenges.DeleteChallenge(ctx, stored.ID); err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	_ = s.auditor.Emit(ctx, identity.ID, audit.EventCryptoProofSuccess, "challenge signature verified")
	return true, nil
}
