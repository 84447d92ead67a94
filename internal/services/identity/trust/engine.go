// Package trust maps verified attributes to a numeric score and an assurance
// level.
package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

// Levels produced by the engine. Thresholds are engine-owned so scoring stays
// globally consistent across all callers.
const (
	LevelBasic    = 1
	LevelStandard = 2
	LevelEnhanced = 3
	LevelMaximum  = 4
)

// Config holds the weight table and level thresholds. It is injected at
// construction and treated as immutable afterwards.
type Config struct {
	// Weights maps attribute names to positive integer weights.
	Weights map[string]int
	// DefaultWeight applies to attribute names absent from Weights.
	DefaultWeight int
	// L2, L3 and L4 are ascending minimum scores for each level above basic.
	L2Threshold int
	L3Threshold int
	L4Threshold int
}

// DefaultConfig returns the production weight table and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]int{
			"email":               10,
			"phone":               15,
			"admin_check":         30,
			"cryptographic_proof": 20,
			"institution_verify":  25,
		},
		DefaultWeight: 5,
		L2Threshold:   20,
		L3Threshold:   45,
		L4Threshold:   75,
	}
}

// Score is the outcome of one trust computation.
type Score struct {
	Score int
	Level int
}

// Engine computes and persists identity assurance levels.
type Engine struct {
	attributes storage.AttributeStore
	identities storage.IdentityStore
	cfg        Config
	clock      func() time.Time
}

// NewEngine creates a trust engine over the given stores.
func NewEngine(attributes storage.AttributeStore, identities storage.IdentityStore, cfg Config) *Engine {
	return &Engine{
		attributes: attributes,
		identities: identities,
		cfg:        cfg,
		clock:      time.Now,
	}
}

// NewEngineWithClock creates a trust engine with a fixed clock for tests.
func NewEngineWithClock(attributes storage.AttributeStore, identities storage.IdentityStore, cfg Config, clock func() time.Time) *Engine {
	engine := NewEngine(attributes, identities, cfg)
	if clock != nil {
		engine.clock = clock
	}
	return engine
}

// CalculateScore reads one snapshot of the identity's verified attributes,
// sums their weights (duplicate names each count independently), maps the
// total to a level and persists that level onto the identity record. The
// write is an idempotent overwrite; concurrent recomputations may race but
// each one is internally consistent.
func (e *Engine) CalculateScore(ctx context.Context, identityID string) (Score, error) {
	if e == nil || e.attributes == nil || e.identities == nil {
		return Score{}, fmt.Errorf("trust engine is not configured")
	}

	verified, err := e.attributes.ListAttributesByStatus(ctx, identityID, storage.StatusVerified)
	if err != nil {
		return Score{}, fmt.Errorf("list verified attributes: %w", err)
	}

	score := 0
	for _, attribute := range verified {
		score += e.weight(attribute.Name)
	}
	level := e.DetermineLevel(score)

	if err := e.identities.SetSecurityLevel(ctx, identityID, level, e.clock().UTC()); err != nil {
		return Score{}, fmt.Errorf("persist security level: %w", err)
	}
	return Score{Score: score, Level: level}, nil
}

// DetermineLevel maps a numeric score to an assurance level.
func (e *Engine) DetermineLevel(score int) int {
	switch {
	case score >= e.cfg.L4Threshold:
		return LevelMaximum
	case score >= e.cfg.L3Threshold:
		return LevelEnhanced
	case score >= e.cfg.L2Threshold:
		return LevelStandard
	default:
		return LevelBasic
	}
}

func (e *Engine) weight(name string) int {
	if weight, ok := e.cfg.Weights[name]; ok {
		return weight
	}
	return e.cfg.DefaultWeight
}
