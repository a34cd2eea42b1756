package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/model"
)

// PermitStore persists permit records. A permit's property reference is
// weak: it is set at most once by the linker and cleared only through
// an explicit cascade, never by the database.
type PermitStore struct {
	db *sql.DB
}

func NewPermitStore(db *sql.DB) *PermitStore {
	return &PermitStore{db: db}
}

const permitColumns = `id, state, county, raw_address, canonical_address, fingerprint,
	permit_date, applicant_name, property_id, source_portal, source_object_id,
	scraped_at, extra, created_at`

// Upsert writes rec, refreshing the existing row when the same source
// object was ingested before. An existing property link survives the
// refresh untouched.
func (s *PermitStore) Upsert(ctx context.Context, rec *model.PermitRecord) error {
	extra, err := marshalExtra(rec.Extra)
	if err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.SourceObjectID != "" {
		res, err := s.db.ExecContext(ctx, `
			UPDATE permits SET
				raw_address = $3, canonical_address = $4, fingerprint = $5,
				permit_date = $6, applicant_name = $7, scraped_at = $8, extra = $9
			WHERE source_portal = $1 AND source_object_id = $2`,
			rec.SourcePortal, rec.SourceObjectID, rec.RawAddress,
			rec.CanonicalAddress, rec.Fingerprint, rec.PermitDate,
			rec.ApplicantName, rec.ScrapedAt, extra)
		if err != nil {
			return fmt.Errorf("failed to refresh permit: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permits (
			id, state, county, raw_address, canonical_address, fingerprint,
			permit_date, applicant_name, property_id, source_portal,
			source_object_id, scraped_at, extra
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,$9,$10,$11,$12)`,
		rec.ID, rec.State, rec.County, rec.RawAddress, rec.CanonicalAddress,
		rec.Fingerprint, rec.PermitDate, rec.ApplicantName, rec.SourcePortal,
		rec.SourceObjectID, rec.ScrapedAt, extra)
	if err != nil {
		return fmt.Errorf("failed to insert permit: %w", err)
	}
	return nil
}

// GetByID returns one permit or apperrors.ErrNotFound.
func (s *PermitStore) GetByID(ctx context.Context, id uuid.UUID) (*model.PermitRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE id = $1`, id)
	rec, err := scanPermit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load permit %s: %w", id, err)
	}
	return rec, nil
}

// Unlinked returns the permits in a jurisdiction that have no property
// reference yet.
func (s *PermitStore) Unlinked(ctx context.Context, j model.Jurisdiction) ([]model.PermitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+permitColumns+` FROM permits
		WHERE state = $1 AND county = $2 AND property_id IS NULL
		ORDER BY created_at`,
		j.State, j.County)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked permits for %s: %w", j, err)
	}
	defer rows.Close()

	var out []model.PermitRecord
	for rows.Next() {
		rec, err := scanPermit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permit: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ListByProperty returns the permits linked to one property.
func (s *PermitStore) ListByProperty(ctx context.Context, propertyID uuid.UUID) ([]model.PermitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+permitColumns+` FROM permits
		WHERE property_id = $1
		ORDER BY permit_date NULLS LAST, created_at`,
		propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permits for property %s: %w", propertyID, err)
	}
	defer rows.Close()

	var out []model.PermitRecord
	for rows.Next() {
		rec, err := scanPermit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permit: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetPropertyRef links a permit to a property. The guard clause makes
// the link monotonic: a permit that already carries a reference is
// never re-pointed, and the call reports ErrAlreadyLinked.
func (s *PermitStore) SetPropertyRef(ctx context.Context, permitID, propertyID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE permits SET property_id = $2 WHERE id = $1 AND property_id IS NULL`,
		permitID, propertyID)
	if err != nil {
		return fmt.Errorf("failed to link permit %s: %w", permitID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var existing *uuid.UUID
		err := s.db.QueryRowContext(ctx,
			`SELECT property_id FROM permits WHERE id = $1`, permitID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to inspect permit %s: %w", permitID, err)
		}
		return apperrors.ErrAlreadyLinked
	}
	return nil
}

// ClearPropertyRefs is the explicit cascade used when a property is
// purged: it detaches that property's permits so a later linking pass
// can re-home them. Returns the number of permits detached.
func (s *PermitStore) ClearPropertyRefs(ctx context.Context, propertyID uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE permits SET property_id = NULL WHERE property_id = $1`, propertyID)
	if err != nil {
		return 0, fmt.Errorf("failed to detach permits from property %s: %w", propertyID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountUnlinked reports how many permits in a jurisdiction still lack a
// property reference.
func (s *PermitStore) CountUnlinked(ctx context.Context, j model.Jurisdiction) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM permits WHERE state = $1 AND county = $2 AND property_id IS NULL`,
		j.State, j.County).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unlinked permits for %s: %w", j, err)
	}
	return n, nil
}

func scanPermit(row rowScanner) (*model.PermitRecord, error) {
	var rec model.PermitRecord
	var extra []byte
	err := row.Scan(
		&rec.ID, &rec.State, &rec.County, &rec.RawAddress, &rec.CanonicalAddress,
		&rec.Fingerprint, &rec.PermitDate, &rec.ApplicantName, &rec.PropertyID,
		&rec.SourcePortal, &rec.SourceObjectID, &rec.ScrapedAt, &extra,
		&rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode permit extra: %w", err)
		}
	}
	return &rec, nil
}
