package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tekiplanet/vortexid/internal/services/identity/storage/sqlite"
)

func TestEmitterNilStoreIsNoOp(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), "identity-1", EventIdentityIssued, "details"); err != nil {
		t.Fatalf("nil emitter: %v", err)
	}

	emitter = NewEmitter(nil)
	if err := emitter.Emit(context.Background(), "identity-1", EventIdentityIssued, "details"); err != nil {
		t.Fatalf("nil store: %v", err)
	}
	events, err := emitter.List(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("list with nil store: %v", err)
	}
	if events != nil {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestEmitAppendsEvents(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	current := base
	emitter := NewEmitterWithClock(store, func() time.Time {
		current = current.Add(time.Second)
		return current
	})

	if err := emitter.Emit(context.Background(), "identity-1", EventIdentityIssued, "did:ozoro:abc"); err != nil {
		t.Fatalf("emit issued: %v", err)
	}
	if err := emitter.Emit(context.Background(), "identity-1", EventAttributeVerified, "email"); err != nil {
		t.Fatalf("emit verified: %v", err)
	}
	if err := emitter.Emit(context.Background(), "identity-2", EventKeyRotation, "RSA-PSS"); err != nil {
		t.Fatalf("emit rotation: %v", err)
	}

	events, err := emitter.List(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for identity-1, got %d", len(events))
	}
	if events[0].EventType != EventAttributeVerified {
		t.Fatalf("expected newest event first, got %q", events[0].EventType)
	}
	if events[1].EventType != EventIdentityIssued || events[1].Details != "did:ozoro:abc" {
		t.Fatalf("unexpected oldest event: %+v", events[1])
	}
	for _, event := range events {
		if event.ID == "" {
			t.Fatal("expected generated event id")
		}
		if event.IdentityID != "identity-1" {
			t.Fatalf("unexpected identity id %q", event.IdentityID)
		}
	}
}
