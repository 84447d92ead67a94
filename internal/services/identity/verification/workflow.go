// Package verification drives attribute claims through the verification state
// machine: unverified -> pending -> {verified, rejected}, with rejected ->
// pending resubmission and an authority-only verified -> unverified
// revocation.
package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/tekiplanet/vortexid/internal/platform/errors"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
	"github.com/tekiplanet/vortexid/internal/services/identity/trust"
)

// Role identifies the capability of the caller driving a transition.
type Role string

const (
	// RoleHolder is the self-service path: the identity owner completing a
	// challenge for their own attribute.
	RoleHolder Role = "holder"
	// RoleAuthority is the privileged path required for authority-only
	// attributes.
	RoleAuthority Role = "authority"
)

// DefaultAuthorityAttributes lists attribute names that only an authority may
// move to verified or revoke.
func DefaultAuthorityAttributes() map[string]bool {
	return map[string]bool{
		"institution": true,
		"admin_check": true,
	}
}

// Result reports the outcome of a completed verification.
type Result struct {
	Attributes []storage.Attribute
	Score      trust.Score
}

// Workflow coordinates attribute status transitions and rescoring.
type Workflow struct {
	attributes storage.AttributeStore
	engine     *trust.Engine
	auditor    *audit.Emitter
	authority  map[string]bool
	clock      func() time.Time
}

// NewWorkflow creates a verification workflow. authorityAttributes may be nil
// to use the default set.
func NewWorkflow(attributes storage.AttributeStore, engine *trust.Engine, auditor *audit.Emitter, authorityAttributes map[string]bool) *Workflow {
	if authorityAttributes == nil {
		authorityAttributes = DefaultAuthorityAttributes()
	}
	return &Workflow{
		attributes: attributes,
		engine:     engine,
		auditor:    auditor,
		authority:  authorityAttributes,
		clock:      time.Now,
	}
}

// NewWorkflowWithClock creates a verification workflow with a fixed clock.
func NewWorkflowWithClock(attributes storage.AttributeStore, engine *trust.Engine, auditor *audit.Emitter, authorityAttributes map[string]bool, clock func() time.Time) *Workflow {
	workflow := NewWorkflow(attributes, engine, auditor, authorityAttributes)
	if clock != nil {
		workflow.clock = clock
	}
	return workflow
}

// RequestChallenge moves every attribute with the given name to pending.
// Already-pending rows stay pending, and an absent name is not an error:
// there is simply nothing to verify yet.
func (w *Workflow) RequestChallenge(ctx context.Context, identityID string, name string) error {
	if w == nil || w.attributes == nil {
		return fmt.Errorf("verification workflow is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.New(apperrors.CodeValidation, "attribute name is required")
	}

	updated, err := w.attributes.UpdateStatusByName(
		ctx,
		identityID,
		name,
		storage.StatusPending,
		[]string{storage.StatusUnverified, storage.StatusRejected, storage.StatusPending},
		nil,
		w.clock().UTC(),
	)
	if err != nil {
		return fmt.Errorf("request challenge for %s: %w", name, err)
	}
	if len(updated) > 0 {
		_ = w.auditor.Emit(ctx, identityID, audit.EventVerificationRequested, name)
	}
	return nil
}

// Complete moves pending attributes with the given name to verified, stamps
// the verification time and synchronously recomputes the identity's trust
// score. This is the only path by which the assurance level changes upward.
func (w *Workflow) Complete(ctx context.Context, caller Role, identityID string, name string) (Result, error) {
	if w == nil || w.attributes == nil || w.engine == nil {
		return Result{}, fmt.Errorf("verification workflow is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{}, apperrors.New(apperrors.CodeValidation, "attribute name is required")
	}
	if err := w.requireAuthorityFor(caller, name); err != nil {
		return Result{}, err
	}

	verifiedAt := w.clock().UTC()
	updated, err := w.attributes.UpdateStatusByName(
		ctx,
		identityID,
		name,
		storage.StatusVerified,
		[]string{storage.StatusPending},
		&verifiedAt,
		verifiedAt,
	)
	if err != nil {
		return Result{}, fmt.Errorf("complete verification for %s: %w", name, err)
	}

	score, err := w.engine.CalculateScore(ctx, identityID)
	if err != nil {
		return Result{}, err
	}
	if len(updated) > 0 {
		_ = w.auditor.Emit(ctx, identityID, audit.EventAttributeVerified, name)
	}
	return Result{Attributes: updated, Score: score}, nil
}

// Reject moves pending attributes with the given name to rejected. A rejected
// attribute may be resubmitted later via RequestChallenge.
func (w *Workflow) Reject(ctx context.Context, caller Role, identityID string, name string) error {
	if w == nil || w.attributes == nil {
		return fmt.Errorf("verification workflow is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.New(apperrors.CodeValidation, "attribute name is required")
	}
	if err := w.requireAuthorityFor(caller, name); err != nil {
		return err
	}

	updated, err := w.attributes.UpdateStatusByName(
		ctx,
		identityID,
		name,
		storage.StatusRejected,
		[]string{storage.StatusPending},
		nil,
		w.clock().UTC(),
	)
	if err != nil {
		return fmt.Errorf("reject verification for %s: %w", name, err)
	}
	if len(updated) > 0 {
		_ = w.auditor.Emit(ctx, identityID, audit.EventVerificationRejected, name)
	}
	return nil
}

// Revoke is the authority-only backward transition verified -> unverified.
// The identity is rescored immediately so a revoked claim stops counting.
func (w *Workflow) Revoke(ctx context.Context, caller Role, identityID string, name string) (Result, error) {
	if w == nil || w.attributes == nil || w.engine == nil {
		return Result{}, fmt.Errorf("verification workflow is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{}, apperrors.New(apperrors.CodeValidation, "attribute name is required")
	}
	if caller != RoleAuthority {
		return Result{}, apperrors.WithMetadata(
			apperrors.CodePermissionDenied,
			"revocation requires an authority caller",
			map[string]string{"Attribute": name},
		)
	}

	updated, err := w.attributes.UpdateStatusByName(
		ctx,
		identityID,
		name,
		storage.StatusUnverified,
		[]string{storage.StatusVerified},
		nil,
		w.clock().UTC(),
	)
	if err != nil {
		return Result{}, fmt.Errorf("revoke verification for %s: %w", name, err)
	}

	score, err := w.engine.CalculateScore(ctx, identityID)
	if err != nil {
		return Result{}, err
	}
	if len(updated) > 0 {
		_ = w.auditor.Emit(ctx, identityID, audit.EventVerificationRevoked, name)
	}
	return Result{Attributes: updated, Score: score}, nil
}

// requireAuthorityFor rejects holder-driven transitions on authority-only
// attribute names with a typed permission error.
func (w *Workflow) requireAuthorityFor(caller Role, name string) error {
	if !w.authority[name] {
		return nil
	}
	if caller == RoleAuthority {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodePermissionDenied,
		fmt.Sprintf("attribute %s may only be verified by an authority", name),
		map[string]string{"Attribute": name},
	)
}
