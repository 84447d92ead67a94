// Package token implements the signed selective-disclosure token protocol.
//
// A disclosure token is a three-segment JWS: RawURL-base64 header and payload
// joined by dots with a detached RSA-PSS signature over the first two
// segments. Tokens are ephemeral bearer strings; nothing is persisted at mint
// time and verification is a pure function of the token, the subject's
// current key record and the clock.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/crypto"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// DefaultIssuer tags tokens minted by this deployment.
const DefaultIssuer = "VORTEX-ID-SYSTEM"

// DefaultValidity bounds the replay surface without a revocation mechanism.
const DefaultValidity = time.Hour

// Config carries issuer constants for the token service. Injected at
// construction so tests can substitute alternate values.
type Config struct {
	Issuer   string
	Validity time.Duration
}

// DefaultConfig returns the production issuer tag and validity window.
func DefaultConfig() Config {
	return Config{Issuer: DefaultIssuer, Validity: DefaultValidity}
}

// DisclosedAttribute is one selectively disclosed claim value.
type DisclosedAttribute struct {
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
}

// disclosurePayload is the wire payload. Field order is part of the token
// format contract.
type disclosurePayload struct {
	Iss   string                        `json:"iss"`
	Sub   string                        `json:"sub"`
	Attrs map[string]DisclosedAttribute `json:"attrs"`
	Iat   int64                         `json:"iat"`
	Exp   int64                         `json:"exp"`
}

// Minted reports a freshly built disclosure token.
type Minted struct {
	Token     string
	ExpiresAt time.Time
}

// Service mints and verifies disclosure tokens.
type Service struct {
	identities storage.IdentityStore
	keys       storage.KeyStore
	attributes storage.AttributeStore
	auditor    *audit.Emitter
	cfg        Config
	clock      func() time.Time
}

// NewService creates a token service over the given stores.
func NewService(identities storage.IdentityStore, keys storage.KeyStore, attributes storage.AttributeStore, auditor *audit.Emitter, cfg Config) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	return &Service{
		identities: identities,
		keys:       keys,
		attributes: attributes,
		auditor:    auditor,
		cfg:        cfg,
		clock:      time.Now,
	}
}

// NewServiceWithClock creates a token service with a fixed clock for tests.
func NewServiceWithClock(identities storage.IdentityStore, keys storage.KeyStore, attributes storage.AttributeStore, auditor *audit.Emitter, cfg Config, clock func() time.Time) *Service {
	service := NewService(identities, keys, attributes, auditor, cfg)
	if clock != nil {
		service.clock = clock
	}
	return service
}

// Mint builds a signed disclosure token over the holder's chosen attribute
// names. Names with no stored attribute are simply absent from the token.
// Exactly one attribute read and one signing operation are performed.
func (s *Service) Mint(ctx context.Context, identityID string, privateKey string, names []string) (Minted, error) {
	if s == nil || s.identities == nil || s.attributes == nil {
		return Minted{}, fmt.Errorf("token service is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Minted{}, apperrors.New(apperrors.CodeValidation, "identity id is required")
	}
	if len(names) == 0 {
		return Minted{}, apperrors.New(apperrors.CodeValidation, "at least one attribute name is required")
	}

	identity, err := s.identities.GetIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Minted{}, apperrors.New(apperrors.CodeNotFound, "identity not found")
		}
		return Minted{}, fmt.Errorf("load identity: %w", err)
	}
	if !identity.IsActive {
		return Minted{}, apperrors.New(apperrors.CodeIdentitySuspended, "identity is suspended")
	}

	attributes, err := s.attributes.ListAttributesByNames(ctx, identityID, names)
	if err != nil {
		return Minted{}, fmt.Errorf("load attributes: %w", err)
	}
	attrs := make(map[string]DisclosedAttribute, len(attributes))
	for _, attribute := range attributes {
		attrs[attribute.Name] = DisclosedAttribute{
			Value:    attribute.Value,
			Verified: attribute.Status == storage.StatusVerified,
		}
	}

	now := s.clock().UTC()
	payload := disclosurePayload{
		Iss:   s.cfg.Issuer,
		Sub:   identityID,
		Attrs: attrs,
		Iat:   now.Unix(),
		Exp:   now.Add(s.cfg.Validity).Unix(),
	}

	headerJSON, err := json.Marshal(map[string]string{
		"alg": AlgRSAPSS,
		"typ": "JWT",
	})
	if err != nil {
		return Minted{}, fmt.Errorf("encode token header: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Minted{}, fmt.Errorf("encode token payload: %w", err)
	}

	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := encodedHeader + "." + encodedPayload

	signature, err := crypto.Sign([]byte(signingInput), privateKey)
	if err != nil {
		return Minted{}, err
	}
	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return Minted{}, fmt.Errorf("decode signature: %w", err)
	}
	encodedSig := base64.RawURLEncoding.EncodeToString(sigBytes)

	_ = s.auditor.Emit(ctx, identityID, audit.EventConsentGranted, strings.Join(names, ","))

	return Minted{
		Token:     signingInput + "." + encodedSig,
		ExpiresAt: time.Unix(payload.Exp, 0).UTC(),
	}, nil
}

// RevokeConsent records a consent revocation in the audit trail. Tokens
// themselves stay verifiable until expiry; there is no revocation list.
func (s *Service) RevokeConsent(ctx context.Context, identityID string, verifierID string) error {
	if s == nil {
		return fmt.Errorf("token service is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return apperrors.New(apperrors.CodeValidation, "identity id is required")
	}
	return s.auditor.Emit(ctx, identityID, audit.EventConsentRevoked, strings.TrimSpace(verifierID))
}
