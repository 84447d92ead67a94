// Package sqlite provides a SQLite-backed identity storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/tekiplanet/vortexid/internal/platform/storage/sqlitemigrate"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
	"github.com/tekiplanet/vortexid/internal/services/identity/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists identity service state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite identity store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutIdentity inserts one identity record.
func (s *Store) PutIdentity(ctx context.Context, identity storage.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identityID := strings.TrimSpace(identity.ID)
	did := strings.TrimSpace(identity.DID)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if did == "" {
		return fmt.Errorf("identity did is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO identities (id, did, security_level, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		identityID,
		did,
		identity.SecurityLevel,
		boolToInt(identity.IsActive),
		toMillis(identity.CreatedAt),
		toMillis(identity.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// GetIdentity returns one identity record by its id.
func (s *Store) GetIdentity(ctx context.Context, identityID string) (storage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return storage.Identity{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Identity{}, fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return storage.Identity{}, fmt.Errorf("identity id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, did, security_level, is_active, created_at, updated_at
		 FROM identities
		 WHERE id = ?`,
		identityID,
	)
	return scanIdentity(row)
}

// GetIdentityByDID returns one identity record by its DID.
func (s *Store) GetIdentityByDID(ctx context.Context, did string) (storage.Identity, error) {
	if err := ctx.Err(); err != nil {
		return storage.Identity{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Identity{}, fmt.Errorf("storage is not configured")
	}
	did = strings.TrimSpace(did)
	if did == "" {
		return storage.Identity{}, fmt.Errorf("identity did is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, did, security_level, is_active, created_at, updated_at
		 FROM identities
		 WHERE did = ?`,
		did,
	)
	return scanIdentity(row)
}

// SetSecurityLevel overwrites the persisted assurance level for an identity.
func (s *Store) SetSecurityLevel(ctx context.Context, identityID string, level int, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if level < 1 || level > 4 {
		return fmt.Errorf("security level must be between 1 and 4")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE identities SET security_level = ?, updated_at = ? WHERE id = ?`,
		level,
		toMillis(updatedAt),
		identityID,
	)
	if err != nil {
		return fmt.Errorf("set security level: %w", err)
	}
	return requireRowUpdated(result, "set security level")
}

// SetIdentityActive flips the suspension flag for an identity.
func (s *Store) SetIdentityActive(ctx context.Context, identityID string, active bool, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE identities SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active),
		toMillis(updatedAt),
		identityID,
	)
	if err != nil {
		return fmt.Errorf("set identity active: %w", err)
	}
	return requireRowUpdated(result, "set identity active")
}

// PutKey inserts the active key record for an identity.
func (s *Store) PutKey(ctx context.Context, record storage.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identityID := strings.TrimSpace(record.IdentityID)
	publicKey := strings.TrimSpace(record.PublicKey)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if publicKey == "" {
		return fmt.Errorf("public key is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO cryptographic_keys (identity_id, public_key, key_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		identityID,
		publicKey,
		strings.TrimSpace(record.KeyType),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put key: %w", err)
	}
	return nil
}

// GetKey returns the active key record for an identity.
func (s *Store) GetKey(ctx context.Context, identityID string) (storage.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.KeyRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.KeyRecord{}, fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return storage.KeyRecord{}, fmt.Errorf("identity id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT identity_id, public_key, key_type, created_at, updated_at
		 FROM cryptographic_keys
		 WHERE identity_id = ?`,
		identityID,
	)
	var record storage.KeyRecord
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&record.IdentityID,
		&record.PublicKey,
		&record.KeyType,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.KeyRecord{}, storage.ErrNotFound
		}
		return storage.KeyRecord{}, fmt.Errorf("get key: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ReplaceKey swaps the key material in place. The identity keeps its single
// key record; the swap is one UPDATE so readers never see a partial key.
func (s *Store) ReplaceKey(ctx context.Context, identityID string, publicKey string, keyType string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	publicKey = strings.TrimSpace(publicKey)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if publicKey == "" {
		return fmt.Errorf("public key is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE cryptographic_keys SET public_key = ?, key_type = ?, updated_at = ? WHERE identity_id = ?`,
		publicKey,
		strings.TrimSpace(keyType),
		toMillis(updatedAt),
		identityID,
	)
	if err != nil {
		return fmt.Errorf("replace key: %w", err)
	}
	return requireRowUpdated(result, "replace key")
}

func scanIdentity(row *sql.Row) (storage.Identity, error) {
	var identity storage.Identity
	var isActive int
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&identity.ID,
		&identity.DID,
		&identity.SecurityLevel,
		&isActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Identity{}, storage.ErrNotFound
		}
		return storage.Identity{}, fmt.Errorf("scan identity: %w", err)
	}
	identity.IsActive = isActive != 0
	identity.CreatedAt = fromMillis(createdAt)
	identity.UpdatedAt = fromMillis(updatedAt)
	return identity, nil
}

func requireRowUpdated(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var _ storage.IdentityStore = (*Store)(nil)
var _ storage.KeyStore = (*Store)(nil)
var _ storage.AttributeStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)
