package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tekiplanet/vortexid/internal/services/identity/storage"
)

const attributeColumns = `id, identity_id, attribute_name, attribute_value, verification_status, verified_at, created_at, updated_at`

// PutAttribute inserts one attribute claim row.
func (s *Store) PutAttribute(ctx context.Context, attribute storage.Attribute) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	attributeID := strings.TrimSpace(attribute.ID)
	identityID := strings.TrimSpace(attribute.IdentityID)
	name := strings.TrimSpace(attribute.Name)
	if attributeID == "" {
		return fmt.Errorf("attribute id is required")
	}
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if name == "" {
		return fmt.Errorf("attribute name is required")
	}
	status := attribute.Status
	if status == "" {
		status = storage.StatusUnverified
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO identity_attributes (id, identity_id, attribute_name, attribute_value, verification_status, verified_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attributeID,
		identityID,
		name,
		attribute.Value,
		status,
		nullableMillis(attribute.VerifiedAt),
		toMillis(attribute.CreatedAt),
		toMillis(attribute.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put attribute: %w", err)
	}
	return nil
}

// GetAttribute returns one attribute row by its id.
func (s *Store) GetAttribute(ctx context.Context, attributeID string) (storage.Attribute, error) {
	if err := ctx.Err(); err != nil {
		return storage.Attribute{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Attribute{}, fmt.Errorf("storage is not configured")
	}
	attributeID = strings.TrimSpace(attributeID)
	if attributeID == "" {
		return storage.Attribute{}, fmt.Errorf("attribute id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+attributeColumns+` FROM identity_attributes WHERE id = ?`,
		attributeID,
	)
	attribute, err := scanAttribute(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Attribute{}, storage.ErrNotFound
		}
		return storage.Attribute{}, fmt.Errorf("get attribute: %w", err)
	}
	return attribute, nil
}

// ListAttributes returns every attribute row for an identity.
func (s *Store) ListAttributes(ctx context.Context, identityID string) ([]storage.Attribute, error) {
	return s.queryAttributes(
		ctx,
		`SELECT `+attributeColumns+` FROM identity_attributes WHERE identity_id = ? ORDER BY attribute_name, created_at`,
		strings.TrimSpace(identityID),
	)
}

// ListAttributesByStatus returns attribute rows for an identity in one status.
func (s *Store) ListAttributesByStatus(ctx context.Context, identityID string, status string) ([]storage.Attribute, error) {
	return s.queryAttributes(
		ctx,
		`SELECT `+attributeColumns+` FROM identity_attributes WHERE identity_id = ? AND verification_status = ? ORDER BY attribute_name, created_at`,
		strings.TrimSpace(identityID),
		status,
	)
}

// ListAttributesByNames returns attribute rows restricted to the given names.
// Names with no matching row are simply absent from the result.
func (s *Store) ListAttributesByNames(ctx context.Context, identityID string, names []string) ([]storage.Attribute, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?, ", len(names)-1) + "?"
	args := make([]any, 0, len(names)+1)
	args = append(args, strings.TrimSpace(identityID))
	for _, name := range names {
		args = append(args, strings.TrimSpace(name))
	}
	return s.queryAttributes(
		ctx,
		`SELECT `+attributeColumns+` FROM identity_attributes WHERE identity_id = ? AND attribute_name IN (`+placeholders+`) ORDER BY attribute_name, created_at`,
		args...,
	)
}

// UpdateAttributeValue replaces the value and resets verification state. A
// verified claim about old content must not carry over to new content.
func (s *Store) UpdateAttributeValue(ctx context.Context, attributeID string, value string, updatedAt time.Time) (storage.Attribute, error) {
	if err := ctx.Err(); err != nil {
		return storage.Attribute{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Attribute{}, fmt.Errorf("storage is not configured")
	}
	attributeID = strings.TrimSpace(attributeID)
	if attributeID == "" {
		return storage.Attribute{}, fmt.Errorf("attribute id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE identity_attributes
		 SET attribute_value = ?, verification_status = ?, verified_at = NULL, updated_at = ?
		 WHERE id = ?`,
		value,
		storage.StatusUnverified,
		toMillis(updatedAt),
		attributeID,
	)
	if err != nil {
		return storage.Attribute{}, fmt.Errorf("update attribute value: %w", err)
	}
	if err := requireRowUpdated(result, "update attribute value"); err != nil {
		return storage.Attribute{}, err
	}
	return s.GetAttribute(ctx, attributeID)
}

// UpdateStatusByName transitions every row matching name whose status is in
// allowedFrom, inside one transaction so each transition reads a consistent
// snapshot.
func (s *Store) UpdateStatusByName(ctx context.Context, identityID string, name string, status string, allowedFrom []string, verifiedAt *time.Time, updatedAt time.Time) ([]storage.Attribute, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	identityID = strings.TrimSpace(identityID)
	name = strings.TrimSpace(name)
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}
	if name == "" {
		return nil, fmt.Errorf("attribute name is required")
	}
	if len(allowedFrom) == 0 {
		return nil, fmt.Errorf("allowed source statuses are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?, ", len(allowedFrom)-1) + "?"
	args := []any{identityID, name}
	for _, from := range allowedFrom {
		args = append(args, from)
	}
	rows, err := tx.QueryContext(
		ctx,
		`SELECT id FROM identity_attributes
		 WHERE identity_id = ? AND attribute_name = ? AND verification_status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select transition targets: %w", err)
	}
	var ids []string
	for rows.Next() {
		var attributeID string
		if err := rows.Scan(&attributeID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan transition target: %w", err)
		}
		ids = append(ids, attributeID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate transition targets: %w", err)
	}
	_ = rows.Close()

	updated := make([]storage.Attribute, 0, len(ids))
	for _, attributeID := range ids {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE identity_attributes
			 SET verification_status = ?, verified_at = ?, updated_at = ?
			 WHERE id = ?`,
			status,
			nullableMillis(verifiedAt),
			toMillis(updatedAt),
			attributeID,
		); err != nil {
			return nil, fmt.Errorf("transition attribute %s: %w", attributeID, err)
		}
		row := tx.QueryRowContext(
			ctx,
			`SELECT `+attributeColumns+` FROM identity_attributes WHERE id = ?`,
			attributeID,
		)
		attribute, err := scanAttribute(row.Scan)
		if err != nil {
			return nil, fmt.Errorf("read transitioned attribute %s: %w", attributeID, err)
		}
		updated = append(updated, attribute)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status transition: %w", err)
	}
	return updated, nil
}

// DeleteAttribute removes one attribute row.
func (s *Store) DeleteAttribute(ctx context.Context, attributeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	attributeID = strings.TrimSpace(attributeID)
	if attributeID == "" {
		return fmt.Errorf("attribute id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM identity_attributes WHERE id = ?`,
		attributeID,
	)
	if err != nil {
		return fmt.Errorf("delete attribute: %w", err)
	}
	return nil
}

func (s *Store) queryAttributes(ctx context.Context, query string, args ...any) ([]storage.Attribute, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	defer rows.Close()

	var attributes []storage.Attribute
	for rows.Next() {
		attribute, err := scanAttribute(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list attributes: %w", err)
		}
		attributes = append(attributes, attribute)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	return attributes, nil
}

func scanAttribute(scan func(dest ...any) error) (storage.Attribute, error) {
	var attribute storage.Attribute
	var verifiedAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&attribute.ID,
		&attribute.IdentityID,
		&attribute.Name,
		&attribute.Value,
		&attribute.Status,
		&verifiedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Attribute{}, err
	}
	if verifiedAt.Valid {
		value := fromMillis(verifiedAt.Int64)
		attribute.VerifiedAt = &value
	}
	attribute.CreatedAt = fromMillis(createdAt)
	attribute.UpdatedAt = fromMillis(updatedAt)
	return attribute, nil
}

func nullableMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(value.UTC()), Valid: true}
}
