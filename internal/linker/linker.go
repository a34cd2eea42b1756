package linker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/metrics"
	"github.com/permitlink/internal/model"
)

// PropertyIndexer supplies the in-memory lookup tables the linker
// matches against. Both indexes cover only active properties.
type PropertyIndexer interface {
	ActiveAddressIndex(ctx context.Context, j model.Jurisdiction) (map[string]uuid.UUID, error)
	ActiveFingerprintIndex(ctx context.Context, j model.Jurisdiction) (map[string]uuid.UUID, error)
}

// PermitUpdater exposes the unlinked backlog and the monotonic link
// write.
type PermitUpdater interface {
	Unlinked(ctx context.Context, j model.Jurisdiction) ([]model.PermitRecord, error)
	SetPropertyRef(ctx context.Context, permitID, propertyID uuid.UUID) error
}

// LinkReport summarizes one linking pass over a jurisdiction.
type LinkReport struct {
	Jurisdiction    model.Jurisdiction `json:"jurisdiction"`
	Examined        int                `json:"examined"`
	LinkedByAddress int                `json:"linked_by_address"`
	LinkedByHash    int                `json:"linked_by_hash"`
	StillUnlinked   int                `json:"still_unlinked"`
}

// Linker attaches unlinked permits to properties in two tiers: exact
// canonical address first, then fingerprint. A permit that matches
// neither stays unlinked until a later pass, once more properties have
// been ingested.
type Linker struct {
	properties PropertyIndexer
	permits    PermitUpdater
	logger     *zap.Logger
}

func New(properties PropertyIndexer, permits PermitUpdater, logger *zap.Logger) *Linker {
	return &Linker{properties: properties, permits: permits, logger: logger}
}

// Link runs one pass over a jurisdiction's unlinked permits. Indexes
// are built once up front, so a pass is two queries plus one write per
// matched permit. Links are never overwritten; a permit already linked
// by a concurrent run is skipped, not failed.
func (l *Linker) Link(ctx context.Context, j model.Jurisdiction) (*LinkReport, error) {
	byAddress, err := l.properties.ActiveAddressIndex(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("failed to build address index: %w", err)
	}
	byFingerprint, err := l.properties.ActiveFingerprintIndex(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("failed to build fingerprint index: %w", err)
	}
	backlog, err := l.permits.Unlinked(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlinked permits: %w", err)
	}

	report := &LinkReport{Jurisdiction: j, Examined: len(backlog)}
	for _, permit := range backlog {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		propertyID, tier := match(permit, byAddress, byFingerprint)
		if tier == "" {
			report.StillUnlinked++
			metrics.PermitsLinked.WithLabelValues("unlinked").Inc()
			continue
		}

		err := l.permits.SetPropertyRef(ctx, permit.ID, propertyID)
		switch {
		case errors.Is(err, apperrors.ErrAlreadyLinked):
			continue
		case err != nil:
			return report, fmt.Errorf("failed to link permit %s: %w", permit.ID, err)
		}

		metrics.PermitsLinked.WithLabelValues(tier).Inc()
		if tier == "address" {
			report.LinkedByAddress++
		} else {
			report.LinkedByHash++
		}
	}

	l.logger.Info("linking pass finished",
		zap.String("jurisdiction", j.String()),
		zap.Int("examined", report.Examined),
		zap.Int("by_address", report.LinkedByAddress),
		zap.Int("by_hash", report.LinkedByHash),
		zap.Int("still_unlinked", report.StillUnlinked))
	return report, nil
}

func match(permit model.PermitRecord, byAddress, byFingerprint map[string]uuid.UUID) (uuid.UUID, string) {
	if permit.CanonicalAddress != "" {
		if id, ok := byAddress[permit.CanonicalAddress]; ok {
			return id, "address"
		}
	}
	if permit.Fingerprint != "" {
		if id, ok := byFingerprint[permit.Fingerprint]; ok {
			return id, "hash"
		}
	}
	return uuid.Nil, ""
}
