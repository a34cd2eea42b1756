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

// PropertyStore persists property records. At most one active property
// exists per (fingerprint, state, county); re-ingesting the same
// address merges into the existing row instead of duplicating it.
type PropertyStore struct {
	db *sql.DB
}

func NewPropertyStore(db *sql.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

const propertyColumns = `id, state, county, raw_address, canonical_address, fingerprint,
	parcel_id, city, postal_code, latitude, longitude, year_built, square_footage,
	bedrooms, bathrooms, construction_type, lot_acres, lot_sqft, assessed_value,
	market_value, owner_name, owner_address, last_transfer_date, last_transfer_price,
	source_portal, source_object_id, scraped_at, quality_score, active, extra,
	created_at, updated_at`

// Upsert writes rec, merging into an existing row when either the
// source object was seen before or an active property already holds the
// same fingerprint in the same jurisdiction. rec.ID is populated with
// the surviving row's id.
func (s *PropertyStore) Upsert(ctx context.Context, rec *model.PropertyRecord) error {
	if rec.SourceObjectID != "" {
		id, err := s.findID(ctx,
			`SELECT id FROM properties WHERE source_portal = $1 AND source_object_id = $2`,
			rec.SourcePortal, rec.SourceObjectID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if err == nil {
			rec.ID = id
			return s.update(ctx, rec)
		}
	}

	if rec.Fingerprint != "" {
		id, err := s.findID(ctx,
			`SELECT id FROM properties WHERE fingerprint = $1 AND state = $2 AND county = $3 AND active`,
			rec.Fingerprint, rec.State, rec.County)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if err == nil {
			rec.ID = id
			return s.update(ctx, rec)
		}
	}

	return s.insert(ctx, rec)
}

func (s *PropertyStore) findID(ctx context.Context, query string, args ...any) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, apperrors.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up property: %w", err)
	}
	return id, nil
}

func (s *PropertyStore) insert(ctx context.Context, rec *model.PropertyRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	extra, err := marshalExtra(rec.Extra)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (
			id, state, county, raw_address, canonical_address, fingerprint,
			parcel_id, city, postal_code, latitude, longitude, year_built,
			square_footage, bedrooms, bathrooms, construction_type, lot_acres,
			lot_sqft, assessed_value, market_value, owner_name, owner_address,
			last_transfer_date, last_transfer_price, source_portal,
			source_object_id, scraped_at, quality_score, active, extra
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,TRUE,$29)`,
		rec.ID, rec.State, rec.County, rec.RawAddress, rec.CanonicalAddress,
		rec.Fingerprint, rec.ParcelID, rec.City, rec.PostalCode, rec.Latitude,
		rec.Longitude, rec.YearBuilt, rec.SquareFootage, rec.Bedrooms,
		rec.Bathrooms, rec.ConstructionType, rec.LotAcres, rec.LotSqFt,
		rec.AssessedValue, rec.MarketValue, rec.OwnerName, rec.OwnerAddress,
		rec.LastTransferDate, rec.LastTransferPrice, rec.SourcePortal,
		rec.SourceObjectID, rec.ScrapedAt, rec.QualityScore, extra)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	rec.Active = true
	return nil
}

func (s *PropertyStore) update(ctx context.Context, rec *model.PropertyRecord) error {
	extra, err := marshalExtra(rec.Extra)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE properties SET
			raw_address = $2, canonical_address = $3, fingerprint = $4,
			parcel_id = $5, city = $6, postal_code = $7, latitude = $8,
			longitude = $9, year_built = $10, square_footage = $11,
			bedrooms = $12, bathrooms = $13, construction_type = $14,
			lot_acres = $15, lot_sqft = $16, assessed_value = $17,
			market_value = $18, owner_name = $19, owner_address = $20,
			last_transfer_date = $21, last_transfer_price = $22,
			source_portal = $23, source_object_id = $24, scraped_at = $25,
			quality_score = $26, extra = $27, updated_at = now()
		WHERE id = $1`,
		rec.ID, rec.RawAddress, rec.CanonicalAddress, rec.Fingerprint,
		rec.ParcelID, rec.City, rec.PostalCode, rec.Latitude, rec.Longitude,
		rec.YearBuilt, rec.SquareFootage, rec.Bedrooms, rec.Bathrooms,
		rec.ConstructionType, rec.LotAcres, rec.LotSqFt, rec.AssessedValue,
		rec.MarketValue, rec.OwnerName, rec.OwnerAddress, rec.LastTransferDate,
		rec.LastTransferPrice, rec.SourcePortal, rec.SourceObjectID,
		rec.ScrapedAt, rec.QualityScore, extra)
	if err != nil {
		return fmt.Errorf("failed to update property %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns one property or apperrors.ErrNotFound.
func (s *PropertyStore) GetByID(ctx context.Context, id uuid.UUID) (*model.PropertyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id)
	rec, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load property %s: %w", id, err)
	}
	return rec, nil
}

// List returns active properties for a jurisdiction, newest first.
func (s *PropertyStore) List(ctx context.Context, j model.Jurisdiction, limit, offset int) ([]model.PropertyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+propertyColumns+` FROM properties
		WHERE state = $1 AND county = $2 AND active
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`,
		j.State, j.County, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties for %s: %w", j, err)
	}
	defer rows.Close()

	var out []model.PropertyRecord
	for rows.Next() {
		rec, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ActiveFingerprintIndex maps fingerprint to property id for every
// active fingerprinted property in a jurisdiction.
func (s *PropertyStore) ActiveFingerprintIndex(ctx context.Context, j model.Jurisdiction) (map[string]uuid.UUID, error) {
	return s.index(ctx, `
		SELECT fingerprint, id FROM properties
		WHERE state = $1 AND county = $2 AND active AND fingerprint <> ''`, j)
}

// ActiveAddressIndex maps canonical address to property id for a
// jurisdiction's active properties.
func (s *PropertyStore) ActiveAddressIndex(ctx context.Context, j model.Jurisdiction) (map[string]uuid.UUID, error) {
	return s.index(ctx, `
		SELECT canonical_address, id FROM properties
		WHERE state = $1 AND county = $2 AND active AND canonical_address <> ''`, j)
}

func (s *PropertyStore) index(ctx context.Context, query string, j model.Jurisdiction) (map[string]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, j.State, j.County)
	if err != nil {
		return nil, fmt.Errorf("failed to build property index for %s: %w", j, err)
	}
	defer rows.Close()

	idx := make(map[string]uuid.UUID)
	for rows.Next() {
		var key string
		var id uuid.UUID
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("failed to scan property index row: %w", err)
		}
		idx[key] = id
	}
	return idx, rows.Err()
}

// Deactivate retires a property without deleting it. Linked permits
// keep their property_id; history is preserved.
func (s *PropertyStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE properties SET active = FALSE, updated_at = now() WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate property %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ForEachActive streams a jurisdiction's active properties through fn.
func (s *PropertyStore) ForEachActive(ctx context.Context, j model.Jurisdiction, fn func(*model.PropertyRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+propertyColumns+` FROM properties
		WHERE state = $1 AND county = $2 AND active
		ORDER BY id`,
		j.State, j.County)
	if err != nil {
		return fmt.Errorf("failed to iterate properties for %s: %w", j, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanProperty(rows)
		if err != nil {
			return fmt.Errorf("failed to scan property: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpdateScore rewrites a property's stored quality score.
func (s *PropertyStore) UpdateScore(ctx context.Context, id uuid.UUID, score int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE properties SET quality_score = $2, updated_at = now() WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("failed to update quality score for %s: %w", id, err)
	}
	return nil
}

// CountActive reports the number of active properties in a jurisdiction.
func (s *PropertyStore) CountActive(ctx context.Context, j model.Jurisdiction) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM properties WHERE state = $1 AND county = $2 AND active`,
		j.State, j.County).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count properties for %s: %w", j, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*model.PropertyRecord, error) {
	var rec model.PropertyRecord
	var extra []byte
	err := row.Scan(
		&rec.ID, &rec.State, &rec.County, &rec.RawAddress, &rec.CanonicalAddress,
		&rec.Fingerprint, &rec.ParcelID, &rec.City, &rec.PostalCode,
		&rec.Latitude, &rec.Longitude, &rec.YearBuilt, &rec.SquareFootage,
		&rec.Bedrooms, &rec.Bathrooms, &rec.ConstructionType, &rec.LotAcres,
		&rec.LotSqFt, &rec.AssessedValue, &rec.MarketValue, &rec.OwnerName,
		&rec.OwnerAddress, &rec.LastTransferDate, &rec.LastTransferPrice,
		&rec.SourcePortal, &rec.SourceObjectID, &rec.ScrapedAt,
		&rec.QualityScore, &rec.Active, &extra, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode property extra: %w", err)
		}
	}
	return &rec, nil
}

func marshalExtra(extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra attributes: %w", err)
	}
	return b, nil
}
