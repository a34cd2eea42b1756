package linker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/model"
)

type fakeProperties struct {
	byAddress     map[string]uuid.UUID
	byFingerprint map[string]uuid.UUID
}

func (f *fakeProperties) ActiveAddressIndex(context.Context, model.Jurisdiction) (map[string]uuid.UUID, error) {
	return f.byAddress, nil
}

func (f *fakeProperties) ActiveFingerprintIndex(context.Context, model.Jurisdiction) (map[string]uuid.UUID, error) {
	return f.byFingerprint, nil
}

type fakePermits struct {
	backlog []model.PermitRecord
	links   map[uuid.UUID]uuid.UUID
}

func newFakePermits(backlog ...model.PermitRecord) *fakePermits {
	return &fakePermits{backlog: backlog, links: map[uuid.UUID]uuid.UUID{}}
}

func (f *fakePermits) Unlinked(context.Context, model.Jurisdiction) ([]model.PermitRecord, error) {
	var out []model.PermitRecord
	for _, p := range f.backlog {
		if _, linked := f.links[p.ID]; !linked {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePermits) SetPropertyRef(_ context.Context, permitID, propertyID uuid.UUID) error {
	if _, linked := f.links[permitID]; linked {
		return apperrors.ErrAlreadyLinked
	}
	f.links[permitID] = propertyID
	return nil
}

var testJurisdiction = model.Jurisdiction{State: "TN", County: "Williamson"}

func permitWith(addr, fingerprint string) model.PermitRecord {
	return model.PermitRecord{
		ID:               uuid.New(),
		State:            "TN",
		County:           "Williamson",
		CanonicalAddress: addr,
		Fingerprint:      fingerprint,
	}
}

func TestLinkPrefersAddressTier(t *testing.T) {
	propA := uuid.New()
	propB := uuid.New()
	props := &fakeProperties{
		byAddress:     map[string]uuid.UUID{"7243 MURREL DR": propA},
		byFingerprint: map[string]uuid.UUID{"fp-1": propB},
	}
	// Matches both tiers; the address tier must win.
	permit := permitWith("7243 MURREL DR", "fp-1")
	permits := newFakePermits(permit)

	l := New(props, permits, zap.NewNop())
	report, err := l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)

	assert.Equal(t, 1, report.LinkedByAddress)
	assert.Equal(t, 0, report.LinkedByHash)
	assert.Equal(t, propA, permits.links[permit.ID])
}

func TestLinkFallsBackToFingerprint(t *testing.T) {
	prop := uuid.New()
	props := &fakeProperties{
		byAddress:     map[string]uuid.UUID{},
		byFingerprint: map[string]uuid.UUID{"fp-9": prop},
	}
	permit := permitWith("118 ELM AVE", "fp-9")
	permits := newFakePermits(permit)

	l := New(props, permits, zap.NewNop())
	report, err := l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)

	assert.Equal(t, 0, report.LinkedByAddress)
	assert.Equal(t, 1, report.LinkedByHash)
	assert.Equal(t, prop, permits.links[permit.ID])
}

func TestLinkLeavesUnmatchedPermitsUnlinked(t *testing.T) {
	props := &fakeProperties{
		byAddress:     map[string]uuid.UUID{},
		byFingerprint: map[string]uuid.UUID{},
	}
	permits := newFakePermits(permitWith("355 HILLSBORO RD", "fp-2"))

	l := New(props, permits, zap.NewNop())
	report, err := l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 1, report.StillUnlinked)
	assert.Empty(t, permits.links)
}

func TestLinkSkipsPermitsWithEmptyKeys(t *testing.T) {
	prop := uuid.New()
	props := &fakeProperties{
		// An empty canonical address must never match anything, even if
		// a pathological index contained an empty key.
		byAddress:     map[string]uuid.UUID{"": prop},
		byFingerprint: map[string]uuid.UUID{"": prop},
	}
	permits := newFakePermits(permitWith("", ""))

	l := New(props, permits, zap.NewNop())
	report, err := l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)

	assert.Equal(t, 1, report.StillUnlinked)
	assert.Empty(t, permits.links)
}

func TestLinkNeverRelinks(t *testing.T) {
	prop := uuid.New()
	other := uuid.New()
	props := &fakeProperties{
		byAddress:     map[string]uuid.UUID{"7243 MURREL DR": prop},
		byFingerprint: map[string]uuid.UUID{},
	}
	permit := permitWith("7243 MURREL DR", "")
	permits := newFakePermits(permit)
	permits.links[permit.ID] = other

	l := New(props, permits, zap.NewNop())

	// The store-side guard fires and the pass carries on.
	err := permits.SetPropertyRef(context.Background(), permit.ID, prop)
	require.ErrorIs(t, err, apperrors.ErrAlreadyLinked)

	_, err = l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)
	assert.Equal(t, other, permits.links[permit.ID])
}

func TestLinkIsMonotonicAcrossPasses(t *testing.T) {
	prop := uuid.New()
	props := &fakeProperties{
		byAddress:     map[string]uuid.UUID{"7243 MURREL DR": prop},
		byFingerprint: map[string]uuid.UUID{},
	}
	linked := permitWith("7243 MURREL DR", "")
	stray := permitWith("UNKNOWN PLACE", "")
	permits := newFakePermits(linked, stray)

	l := New(props, permits, zap.NewNop())

	first, err := l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)
	assert.Equal(t, 1, first.LinkedByAddress)

	// A second pass sees only the stray; the linked count never shrinks
	// because existing links are untouched.
	second, err := l.Link(context.Background(), testJurisdiction)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Examined)
	assert.Equal(t, 0, second.LinkedByAddress)
	assert.Equal(t, prop, permits.links[linked.ID])
}
