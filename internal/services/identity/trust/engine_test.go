package trust

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedIdentity(t *testing.T, store *sqlite.Store, identityID string) {
	t.Helper()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	err := store.PutIdentity(context.Background(), storage.Identity{
		ID:            identityID,
		DID:           "did:ozoro:00000000000000000000000000000001",
		SecurityLevel: 1,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}
}

func seedAttribute(t *testing.T, store *sqlite.Store, attributeID string, identityID string, name string, status string) {
	t.Helper()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	attribute := storage.Attribute{
		ID:         attributeID,
		IdentityID: identityID,
		Name:       name,
		Value:      name + "-value",
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == storage.StatusVerified {
		attribute.VerifiedAt = &now
	}
	if err := store.PutAttribute(context.Background(), attribute); err != nil {
		t.Fatalf("seed attribute %s: %v", name, err)
	}
}

func TestDetermineLevelThresholds(t *testing.T) {
	engine := NewEngine(nil, nil, DefaultConfig())

	tests := []struct {
		score int
		want  int
	}{
		{score: 0, want: LevelBasic},
		{score: 19, want: LevelBasic},
		{score: 20, want: LevelStandard},
		{score: 44, want: LevelStandard},
		{score: 45, want: LevelEnhanced},
		{score: 74, want: LevelEnhanced},
		{score: 75, want: LevelMaximum},
		{score: 200, want: LevelMaximum},
	}

	for _, tc := range tests {
		if got := engine.DetermineLevel(tc.score); got != tc.want {
			t.Fatalf("DetermineLevel(%d) = %d, want %d", tc.score, got, tc.want)
		}
	}
}

func TestCalculateScoreCountsOnlyVerified(t *testing.T) {
	store := openTestStore(t)
	seedIdentity(t, store, "identity-1")
	seedAttribute(t, store, "attr-1", "identity-1", "email", storage.StatusVerified)
	seedAttribute(t, store, "attr-2", "identity-1", "phone", storage.StatusVerified)
	seedAttribute(t, store, "attr-3", "identity-1", "admin_check", storage.StatusPending)
	seedAttribute(t, store, "attr-4", "identity-1", "institution_verify", storage.StatusUnverified)

	engine := NewEngine(store, store, DefaultConfig())
	score, err := engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if score.Score != 25 {
		t.Fatalf("expected score 25 (email 10 + phone 15), got %d", score.Score)
	}
	if score.Level != LevelStandard {
		t.Fatalf("expected level %d, got %d", LevelStandard, score.Level)
	}

	identity, err := store.GetIdentity(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if identity.SecurityLevel != LevelStandard {
		t.Fatalf("expected persisted level %d, got %d", LevelStandard, identity.SecurityLevel)
	}
}

func TestCalculateScoreLevelProgression(t *testing.T) {
	store := openTestStore(t)
	seedIdentity(t, store, "identity-1")
	seedAttribute(t, store, "attr-1", "identity-1", "email", storage.StatusVerified)
	seedAttribute(t, store, "attr-2", "identity-1", "phone", storage.StatusVerified)

	engine := NewEngine(store, store, DefaultConfig())
	score, err := engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if score.Score != 25 || score.Level != LevelStandard {
		t.Fatalf("expected 25/standard, got %+v", score)
	}

	// A verified admin check pushes the identity into the enhanced band.
	seedAttribute(t, store, "attr-3", "identity-1", "admin_check", storage.StatusVerified)
	score, err = engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("recalculate score: %v", err)
	}
	if score.Score != 55 || score.Level != LevelEnhanced {
		t.Fatalf("expected 55/enhanced, got %+v", score)
	}

	seedAttribute(t, store, "attr-4", "identity-1", "cryptographic_proof", storage.StatusVerified)
	score, err = engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("recalculate score: %v", err)
	}
	if score.Score != 75 || score.Level != LevelMaximum {
		t.Fatalf("expected 75/maximum, got %+v", score)
	}
}

func TestCalculateScoreUnknownNameUsesDefaultWeight(t *testing.T) {
	store := openTestStore(t)
	seedIdentity(t, store, "identity-1")
	seedAttribute(t, store, "attr-1", "identity-1", "favorite_color", storage.StatusVerified)

	engine := NewEngine(store, store, DefaultConfig())
	score, err := engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if score.Score != 5 {
		t.Fatalf("expected default weight 5, got %d", score.Score)
	}
	if score.Level != LevelBasic {
		t.Fatalf("expected basic level, got %d", score.Level)
	}
}

func TestCalculateScoreDuplicateNamesEachCount(t *testing.T) {
	store := openTestStore(t)
	seedIdentity(t, store, "identity-1")
	seedAttribute(t, store, "attr-1", "identity-1", "email", storage.StatusVerified)
	seedAttribute(t, store, "attr-2", "identity-1", "email", storage.StatusVerified)

	engine := NewEngine(store, store, DefaultConfig())
	score, err := engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if score.Score != 20 {
		t.Fatalf("expected duplicate rows to both count (20), got %d", score.Score)
	}
	if score.Level != LevelStandard {
		t.Fatalf("expected standard level, got %d", score.Level)
	}
}

func TestCalculateScoreNoVerifiedAttributes(t *testing.T) {
	store := openTestStore(t)
	seedIdentity(t, store, "identity-1")

	engine := NewEngine(store, store, DefaultConfig())
	score, err := engine.CalculateScore(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if score.Score != 0 || score.Level != LevelBasic {
		t.Fatalf("expected 0/basic, got %+v", score)
	}
}
