package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func putTestIdentity(t *testing.T, store *Store, identityID string, did string) {
	t.Helper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := store.PutIdentity(context.Background(), storage.Identity{
		ID:            identityID,
		DID:           did,
		SecurityLevel: 1,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("put identity: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPutGetIdentityRoundTrip(t *testing.T) {
	store := openTempStore(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	input := storage.Identity{
		ID:            "identity-1",
		DID:           "did:ozoro:abc123",
		SecurityLevel: 2,
		IsActive:      true,
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Hour),
	}
	if err := store.PutIdentity(context.Background(), input); err != nil {
		t.Fatalf("put identity: %v", err)
	}

	got, err := store.GetIdentity(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if got.DID != input.DID || got.SecurityLevel != 2 || !got.IsActive {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if !got.CreatedAt.Equal(input.CreatedAt) || !got.UpdatedAt.Equal(input.UpdatedAt) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}

	byDID, err := store.GetIdentityByDID(context.Background(), "did:ozoro:abc123")
	if err != nil {
		t.Fatalf("get identity by did: %v", err)
	}
	if byDID.ID != "identity-1" {
		t.Fatalf("expected identity-1, got %q", byDID.ID)
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.GetIdentity(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetIdentityByDID(context.Background(), "did:ozoro:missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetSecurityLevel(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	updated := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := store.SetSecurityLevel(context.Background(), "identity-1", 3, updated); err != nil {
		t.Fatalf("set security level: %v", err)
	}

	got, err := store.GetIdentity(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if got.SecurityLevel != 3 {
		t.Fatalf("expected level 3, got %d", got.SecurityLevel)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Fatalf("expected updated_at %v, got %v", updated, got.UpdatedAt)
	}

	if err := store.SetSecurityLevel(context.Background(), "identity-1", 9, updated); err == nil {
		t.Fatal("expected error for out-of-range level")
	}
	if err := store.SetSecurityLevel(context.Background(), "missing", 2, updated); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetIdentityActive(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	updated := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := store.SetIdentityActive(context.Background(), "identity-1", false, updated); err != nil {
		t.Fatalf("set identity active: %v", err)
	}

	got, err := store.GetIdentity(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if got.IsActive {
		t.Fatal("expected suspended identity")
	}
}

func TestKeyLifecycle(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := store.PutKey(context.Background(), storage.KeyRecord{
		IdentityID: "identity-1",
		PublicKey:  "key-material-1",
		KeyType:    "RSA-PSS",
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("put key: %v", err)
	}

	got, err := store.GetKey(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if got.PublicKey != "key-material-1" || got.KeyType != "RSA-PSS" {
		t.Fatalf("unexpected key record: %+v", got)
	}

	rotated := now.Add(time.Hour)
	if err := store.ReplaceKey(context.Background(), "identity-1", "key-material-2", "RSA-PSS", rotated); err != nil {
		t.Fatalf("replace key: %v", err)
	}
	got, err = store.GetKey(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get key after rotation: %v", err)
	}
	if got.PublicKey != "key-material-2" {
		t.Fatalf("expected rotated key, got %q", got.PublicKey)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(rotated) {
		t.Fatalf("unexpected key timestamps: %+v", got)
	}

	if err := store.ReplaceKey(context.Background(), "missing", "key", "RSA-PSS", rotated); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttributeRoundTrip(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attribute := storage.Attribute{
		ID:         "attr-1",
		IdentityID: "identity-1",
		Name:       "email",
		Value:      "holder@example.com",
		Status:     storage.StatusUnverified,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.PutAttribute(context.Background(), attribute); err != nil {
		t.Fatalf("put attribute: %v", err)
	}

	got, err := store.GetAttribute(context.Background(), "attr-1")
	if err != nil {
		t.Fatalf("get attribute: %v", err)
	}
	if got.Name != "email" || got.Value != "holder@example.com" || got.Status != storage.StatusUnverified {
		t.Fatalf("unexpected attribute: %+v", got)
	}
	if got.VerifiedAt != nil {
		t.Fatalf("expected nil verified_at, got %v", got.VerifiedAt)
	}

	list, err := store.ListAttributes(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("list attributes: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(list))
	}

	if err := store.DeleteAttribute(context.Background(), "attr-1"); err != nil {
		t.Fatalf("delete attribute: %v", err)
	}
	if _, err := store.GetAttribute(context.Background(), "attr-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListAttributesByNames(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"email", "phone", "name"} {
		err := store.PutAttribute(context.Background(), storage.Attribute{
			ID:         "attr-" + name,
			IdentityID: "identity-1",
			Name:       name,
			Value:      name + "-value",
			Status:     storage.StatusUnverified,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
			UpdatedAt:  now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("put attribute %s: %v", name, err)
		}
	}

	list, err := store.ListAttributesByNames(context.Background(), "identity-1", []string{"email", "name", "missing"})
	if err != nil {
		t.Fatalf("list attributes by names: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(list))
	}

	empty, err := store.ListAttributesByNames(context.Background(), "identity-1", nil)
	if err != nil {
		t.Fatalf("list attributes with no names: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no attributes, got %d", len(empty))
	}
}

func TestUpdateAttributeValueResetsStatus(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifiedAt := now.Add(time.Hour)
	err := store.PutAttribute(context.Background(), storage.Attribute{
		ID:         "attr-1",
		IdentityID: "identity-1",
		Name:       "email",
		Value:      "old@example.com",
		Status:     storage.StatusVerified,
		VerifiedAt: &verifiedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("put attribute: %v", err)
	}

	updated, err := store.UpdateAttributeValue(context.Background(), "attr-1", "new@example.com", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("update attribute value: %v", err)
	}
	if updated.Value != "new@example.com" {
		t.Fatalf("expected new value, got %q", updated.Value)
	}
	if updated.Status != storage.StatusUnverified {
		t.Fatalf("expected status reset to unverified, got %q", updated.Status)
	}
	if updated.VerifiedAt != nil {
		t.Fatalf("expected verified_at cleared, got %v", updated.VerifiedAt)
	}

	if _, err := store.UpdateAttributeValue(context.Background(), "missing", "x", now); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusByNameTransitions(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Two rows share the name; both should transition together.
	for _, id := range []string{"attr-1", "attr-2"} {
		err := store.PutAttribute(context.Background(), storage.Attribute{
			ID:         id,
			IdentityID: "identity-1",
			Name:       "email",
			Value:      id + "@example.com",
			Status:     storage.StatusUnverified,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			t.Fatalf("put attribute %s: %v", id, err)
		}
	}

	pending, err := store.UpdateStatusByName(
		context.Background(),
		"identity-1",
		"email",
		storage.StatusPending,
		[]string{storage.StatusUnverified, storage.StatusRejected},
		nil,
		now.Add(time.Minute),
	)
	if err != nil {
		t.Fatalf("move to pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 rows pending, got %d", len(pending))
	}

	verifiedAt := now.Add(2 * time.Minute)
	verified, err := store.UpdateStatusByName(
		context.Background(),
		"identity-1",
		"email",
		storage.StatusVerified,
		[]string{storage.StatusPending},
		&verifiedAt,
		verifiedAt,
	)
	if err != nil {
		t.Fatalf("move to verified: %v", err)
	}
	if len(verified) != 2 {
		t.Fatalf("expected 2 rows verified, got %d", len(verified))
	}
	for _, attribute := range verified {
		if attribute.Status != storage.StatusVerified {
			t.Fatalf("expected verified status, got %q", attribute.Status)
		}
		if attribute.VerifiedAt == nil || !attribute.VerifiedAt.Equal(verifiedAt) {
			t.Fatalf("expected verified_at %v, got %v", verifiedAt, attribute.VerifiedAt)
		}
	}

	// Rows already verified are outside allowedFrom; no-op, not an error.
	again, err := store.UpdateStatusByName(
		context.Background(),
		"identity-1",
		"email",
		storage.StatusPending,
		[]string{storage.StatusUnverified},
		nil,
		now.Add(3*time.Minute),
	)
	if err != nil {
		t.Fatalf("no-op transition: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no rows updated, got %d", len(again))
	}

	byStatus, err := store.ListAttributesByStatus(context.Background(), "identity-1", storage.StatusVerified)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(byStatus) != 2 {
		t.Fatalf("expected 2 verified rows, got %d", len(byStatus))
	}
}

func TestAuditEventsNewestFirst(t *testing.T) {
	store := openTempStore(t)
	putTestIdentity(t, store, "identity-1", "did:ozoro:abc")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, eventType := range []string{"IDENTITY_ISSUED", "ATTRIBUTE_ADDED", "ATTRIBUTE_VERIFIED"} {
		err := store.AppendAuditEvent(context.Background(), storage.AuditEvent{
			ID:         "event-" + eventType,
			IdentityID: "identity-1",
			EventType:  eventType,
			Details:    "detail",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append audit event: %v", err)
		}
	}

	events, err := store.ListAuditEvents(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].EventType != "ATTRIBUTE_VERIFIED" {
		t.Fatalf("expected newest event first, got %q", events[0].EventType)
	}
}

func TestChallengeLifecycle(t *testing.T) {
	store := openTempStore(t)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	challenge := storage.Challenge{
		ID:        "challenge-1",
		DID:       "did:ozoro:abc",
		Nonce:     "nonce-1",
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}
	if err := store.PutChallenge(context.Background(), challenge); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	got, err := store.GetChallenge(context.Background(), "did:ozoro:abc", "nonce-1")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.ID != "challenge-1" || !got.ExpiresAt.Equal(challenge.ExpiresAt) {
		t.Fatalf("unexpected challenge: %+v", got)
	}

	if err := store.DeleteChallenge(context.Background(), "challenge-1"); err != nil {
		t.Fatalf("delete challenge: %v", err)
	}
	if _, err := store.GetChallenge(context.Background(), "did:ozoro:abc", "nonce-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
