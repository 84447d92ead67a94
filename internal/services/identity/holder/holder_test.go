package holder

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/services/identity/crypto"
	"github.com/tekiplanet/vortexid/internal/services/identity/did"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage/sqlite"
)

func newHolderService(t *testing.T) (*Service, *sqlite.Store, crypto.KeyPair) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}

	fixed := time.Date(2026, 4, 6, 14, 0, 0, 0, time.UTC)
	service := NewServiceWithClock(store, store, store, nil, func() time.Time { return fixed })
	return service, store, pair
}

func TestIssueCreatesIdentity(t *testing.T) {
	service, store, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, map[string]string{
		"name":  "Ada Lovelace",
		"email": "ada@example.com",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.IdentityID == "" {
		t.Fatal("expected identity id")
	}
	if !did.IsValid(issued.DID) {
		t.Fatalf("expected valid did, got %q", issued.DID)
	}

	identity, err := store.GetIdentity(context.Background(), issued.IdentityID)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if identity.SecurityLevel != 1 {
		t.Fatalf("expected fresh identity at level 1, got %d", identity.SecurityLevel)
	}
	if !identity.IsActive {
		t.Fatal("expected fresh identity active")
	}

	key, err := store.GetKey(context.Background(), issued.IdentityID)
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key.PublicKey != pair.PublicKey || key.KeyType != crypto.KeyType {
		t.Fatalf("unexpected key record: %+v", key)
	}

	attributes, err := store.ListAttributes(context.Background(), issued.IdentityID)
	if err != nil {
		t.Fatalf("list attributes: %v", err)
	}
	if len(attributes) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attributes))
	}
	for _, attribute := range attributes {
		if attribute.Status != storage.StatusUnverified {
			t.Fatalf("expected unverified initial attribute, got %q", attribute.Status)
		}
	}
}

func TestIssueRejectsBadPublicKey(t *testing.T) {
	service, _, _ := newHolderService(t)

	if _, err := service.Issue(context.Background(), "  ", nil); !apperrors.Is(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION error, got %v", err)
	}
	if _, err := service.Issue(context.Background(), "not-a-key", nil); !apperrors.Is(err, apperrors.CodeKeyImport) {
		t.Fatalf("expected KEY_IMPORT error, got %v", err)
	}
}

func TestGetByDID(t *testing.T) {
	service, _, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	record, err := service.GetByDID(context.Background(), issued.DID)
	if err != nil {
		t.Fatalf("get by did: %v", err)
	}
	if record.Identity.ID != issued.IdentityID {
		t.Fatalf("expected identity %q, got %q", issued.IdentityID, record.Identity.ID)
	}
	if record.Key.PublicKey != pair.PublicKey {
		t.Fatal("expected stored public key in record")
	}
	if len(record.Attributes) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(record.Attributes))
	}

	if _, err := service.GetByDID(context.Background(), "did:web:nope"); !apperrors.Is(err, apperrors.CodeInvalidDID) {
		t.Fatalf("expected INVALID_DID, got %v", err)
	}
	if _, err := service.GetByDID(context.Background(), did.Generate()); !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestResolveDIDReturnsPublicProfile(t *testing.T) {
	service, _, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	profile, err := service.ResolveDID(context.Background(), issued.DID)
	if err != nil {
		t.Fatalf("resolve did: %v", err)
	}
	if profile.DID != issued.DID {
		t.Fatalf("expected did %q, got %q", issued.DID, profile.DID)
	}
	if profile.SecurityLevel != 1 {
		t.Fatalf("expected level 1, got %d", profile.SecurityLevel)
	}
}

func TestUpdateAttributeResetsVerification(t *testing.T) {
	service, store, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, map[string]string{"email": "old@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	attributes, err := store.ListAttributes(context.Background(), issued.IdentityID)
	if err != nil || len(attributes) != 1 {
		t.Fatalf("list attributes: %v (%d)", err, len(attributes))
	}

	// Simulate a completed verification, then edit the value.
	verifiedAt := time.Date(2026, 4, 6, 15, 0, 0, 0, time.UTC)
	if _, err := store.UpdateStatusByName(
		context.Background(),
		issued.IdentityID,
		"email",
		storage.StatusVerified,
		[]string{storage.StatusUnverified},
		&verifiedAt,
		verifiedAt,
	); err != nil {
		t.Fatalf("force verify: %v", err)
	}

	updated, err := service.UpdateAttribute(context.Background(), attributes[0].ID, "new@example.com")
	if err != nil {
		t.Fatalf("update attribute: %v", err)
	}
	if updated.Value != "new@example.com" {
		t.Fatalf("expected new value, got %q", updated.Value)
	}
	if updated.Status != storage.StatusUnverified {
		t.Fatalf("expected verification reset, got %q", updated.Status)
	}
	if updated.VerifiedAt != nil {
		t.Fatal("expected verified_at cleared")
	}
}

func TestDeleteAttribute(t *testing.T) {
	service, store, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	attributes, err := store.ListAttributes(context.Background(), issued.IdentityID)
	if err != nil || len(attributes) != 1 {
		t.Fatalf("list attributes: %v (%d)", err, len(attributes))
	}

	if err := service.DeleteAttribute(context.Background(), attributes[0].ID); err != nil {
		t.Fatalf("delete attribute: %v", err)
	}
	if err := service.DeleteAttribute(context.Background(), attributes[0].ID); !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND on second delete, got %v", err)
	}
}

func TestRotateKey(t *testing.T) {
	service, store, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate rotated pair: %v", err)
	}
	if err := service.RotateKey(context.Background(), issued.IdentityID, rotated.PublicKey); err != nil {
		t.Fatalf("rotate key: %v", err)
	}

	key, err := store.GetKey(context.Background(), issued.IdentityID)
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if key.PublicKey != rotated.PublicKey {
		t.Fatal("expected rotated key material")
	}

	if err := service.RotateKey(context.Background(), issued.IdentityID, "junk"); !apperrors.Is(err, apperrors.CodeKeyImport) {
		t.Fatalf("expected KEY_IMPORT error, got %v", err)
	}
	if err := service.RotateKey(context.Background(), "missing", rotated.PublicKey); !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSetActive(t *testing.T) {
	service, store, pair := newHolderService(t)

	issued, err := service.Issue(context.Background(), pair.PublicKey, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := service.SetActive(context.Background(), issued.IdentityID, false); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	identity, err := store.GetIdentity(context.Background(), issued.IdentityID)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if identity.IsActive {
		t.Fatal("expected suspended identity")
	}

	if err := service.SetActive(context.Background(), issued.IdentityID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
}

func TestIssuedDIDsAreUnique(t *testing.T) {
	service, _, pair := newHolderService(t)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		issued, err := service.Issue(context.Background(), pair.PublicKey, nil)
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		if seen[issued.DID] || !strings.HasPrefix(issued.DID, did.Prefix) {
			t.Fatalf("unexpected did %q", issued.DID)
		}
		seen[issued.DID] = true
	}
}
