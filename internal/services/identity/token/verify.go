package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/crypto"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// VerificationResult is the typed outcome of verifying an untrusted token
// string. Failures stemming from the token itself land here rather than in an
// error; only internal store failures propagate as errors.
type VerificationResult struct {
	Verified   bool                          `json:"verified"`
	IdentityID string                        `json:"identity_id,omitempty"`
	TrustLevel int                           `json:"trust_level,omitempty"`
	Claims     map[string]DisclosedAttribute `json:"claims,omitempty"`
	AuditNote  string                        `json:"audit_note,omitempty"`
	ErrorCode  apperrors.Code                `json:"error_code,omitempty"`
	Error      string                        `json:"error,omitempty"`
}

// disclosureClaims is the claims shape used for parsing incoming tokens.
type disclosureClaims struct {
	jwt.RegisteredClaims
	Attrs map[string]DisclosedAttribute `json:"attrs"`
}

// Verify checks a disclosure token's structure, signature and freshness and
// returns the decoded claims. The check is a pure function of the token, the
// subject's current key record and the clock; no session state is involved,
// so any party able to resolve the subject's public key can verify
// independently.
func (s *Service) Verify(ctx context.Context, tokenString string) (VerificationResult, error) {
	if s == nil || s.identities == nil || s.keys == nil {
		return VerificationResult{}, fmt.Errorf("token service is not configured")
	}

	tokenString = strings.TrimSpace(tokenString)
	if strings.Count(tokenString, ".") != 2 {
		return s.failure(ctx, "", apperrors.CodeTokenMalformed, "token must have exactly three segments"), nil
	}

	var subject storage.Identity
	var parsed disclosureClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		claims, ok := token.Claims.(*disclosureClaims)
		if !ok || strings.TrimSpace(claims.Subject) == "" {
			return nil, apperrors.New(apperrors.CodeTokenMalformed, "token payload lacks a subject")
		}

		identity, err := s.identities.GetIdentity(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperrors.New(apperrors.CodeUnknownSubject, "identity or public key not found")
			}
			return nil, fmt.Errorf("resolve subject identity: %w", err)
		}
		record, err := s.keys.GetKey(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperrors.New(apperrors.CodeUnknownSubject, "identity or public key not found")
			}
			return nil, fmt.Errorf("resolve subject key: %w", err)
		}

		key, err := crypto.ImportPublicKey(record.PublicKey)
		if err != nil {
			return nil, err
		}
		subject = identity
		return key, nil
	},
		jwt.WithValidMethods([]string{AlgRSAPSS}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		code, reason, internal := mapParseError(err)
		if internal != nil {
			return VerificationResult{}, internal
		}
		return s.failure(ctx, subject.ID, code, reason), nil
	}

	// Temporal check is exact: no clock-skew leeway is applied. exp carries
	// whole seconds, so the clock is truncated to seconds before comparing and
	// a token stays valid through the entirety of its expiry second.
	if parsed.ExpiresAt == nil {
		return s.failure(ctx, subject.ID, apperrors.CodeTokenMalformed, "token payload lacks an expiry"), nil
	}
	now := s.clock().UTC().Truncate(time.Second)
	if parsed.ExpiresAt.Time.Before(now) {
		return s.failure(ctx, subject.ID, apperrors.CodeTokenExpired, "token has expired"), nil
	}

	_ = s.auditor.Emit(ctx, subject.ID, audit.EventCryptoProofSuccess, "disclosure token verified")

	return VerificationResult{
		Verified:   true,
		IdentityID: subject.ID,
		TrustLevel: subject.SecurityLevel,
		Claims:     parsed.Attrs,
		AuditNote:  fmt.Sprintf("Verified by %s at %s", s.cfg.Issuer, now.Format(time.RFC3339)),
	}, nil
}

// mapParseError translates jwt parse failures into the verification taxonomy.
// Internal store failures are passed through unmapped.
func mapParseError(err error) (apperrors.Code, string, error) {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case apperrors.CodeTokenMalformed, apperrors.CodeUnknownSubject:
			return domainErr.Code, domainErr.Message, nil
		case apperrors.CodeKeyImport:
			// The stored public key itself is unusable; treat the subject as
			// unresolvable rather than failing the whole verifier.
			return apperrors.CodeUnknownSubject, "identity or public key not found", nil
		}
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.CodeSignatureInvalid, "cryptographic signature verification failed", nil
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return apperrors.CodeTokenMalformed, "token is not well-formed", nil
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		// Keyfunc failures that are not part of the taxonomy are internal.
		return apperrors.CodeUnknown, "", fmt.Errorf("verify disclosure token: %w", err)
	}
	return apperrors.CodeTokenMalformed, "token is not well-formed", nil
}

func (s *Service) failure(ctx context.Context, identityID string, code apperrors.Code, reason string) VerificationResult {
	if identityID != "" {
		_ = s.auditor.Emit(ctx, identityID, audit.EventCryptoProofFailure, reason)
	}
	return VerificationResult{
		Verified:  false,
		ErrorCode: code,
		Error:     reason,
	}
}
