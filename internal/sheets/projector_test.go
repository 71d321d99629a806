package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelmail/internal/carriers"
)

type fakeStore struct {
	rows       [][]string
	archive    [][]string
	colors     map[int]RowColor
	archiveErr error
	deleted    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{colors: make(map[int]RowColor)}
}

func (f *fakeStore) Rows(ctx context.Context) ([]Row, error) {
	out := make([]Row, len(f.rows))
	for i, cells := range f.rows {
		out[i] = Row{Index: i, Cells: append([]string(nil), cells...)}
	}
	return out, nil
}

func (f *fakeStore) AppendRow(ctx context.Context, cells []string) error {
	f.rows = append(f.rows, append([]string(nil), cells...))
	return nil
}

func (f *fakeStore) UpdateRow(ctx context.Context, index int, cells []string) error {
	f.rows[index] = append([]string(nil), cells...)
	return nil
}

func (f *fakeStore) UpdateCell(ctx context.Context, index, col int, value string) error {
	f.rows[index][col] = value
	return nil
}

func (f *fakeStore) SetRowColor(ctx context.Context, index int, color RowColor) error {
	f.colors[index] = color
	return nil
}

func (f *fakeStore) AppendArchive(ctx context.Context, cells []string) error {
	if f.archiveErr != nil {
		return f.archiveErr
	}
	f.archive = append(f.archive, append([]string(nil), cells...))
	return nil
}

func (f *fakeStore) DeleteRow(ctx context.Context, index int) error {
	f.rows = append(f.rows[:index], f.rows[index+1:]...)
	f.deleted++
	return nil
}

type fakeAccounts struct{ removed []string }

func (f *fakeAccounts) RemoveAccount(ctx context.Context, email string) error {
	f.removed = append(f.removed, email)
	return nil
}

type fakeMappings struct{ removed []string }

func (f *fakeMappings) RemoveMapping(emailOrKey string) error {
	f.removed = append(f.removed, emailOrKey)
	return nil
}

func update(mutate func(*carriers.ShipmentUpdate)) *carriers.ShipmentUpdate {
	u := &carriers.ShipmentUpdate{
		Carrier:   carriers.CarrierInPost,
		Status:    carriers.StatusTransit,
		Email:     "lunaewsx@gmail.com",
		EmailDate: time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(u)
	}
	return u
}

func TestProjectAppendsNewRow(t *testing.T) {
	store := newFakeStore()
	p := NewProjector(store, nil, nil, nil)

	err := p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Carrier = carriers.CarrierAliExpress
		u.Status = carriers.StatusConfirmed
		u.OrderNumber = "3054169918883922"
	}))

	require.NoError(t, err)
	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "lunaewsx@gmail.com", row[ColEmail])
	assert.Equal(t, "AliExpress", row[ColCarrier])
	assert.Equal(t, "Confirmed", row[ColStatus])
	assert.Equal(t, "3054169918883922", row[ColOrderNumber])
	assert.Equal(t, "17.03.2024 09:00", row[ColEmailDate])
	assert.Contains(t, store.colors, 0)
}

func TestProjectUpdatesInPlaceAndMerges(t *testing.T) {
	store := newFakeStore()
	p := NewProjector(store, nil, nil, nil)

	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Status = carriers.StatusShipmentSent
		u.OrderNumber = "3054169918883922"
		u.PackageNumber = "623456789012345678901234"
	})))

	// Pickup email carries the code but not the order number; the order
	// number already on the sheet must survive the merge.
	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Status = carriers.StatusPickup
		u.PackageNumber = "623456789012345678901234"
		u.PickupCode = "516465"
	})))

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "Ready for pickup", row[ColStatus])
	assert.Equal(t, "516465", row[ColPickupCode])
	assert.Equal(t, "3054169918883922", row[ColOrderNumber])
}

func TestProjectLookupPriority(t *testing.T) {
	store := newFakeStore()
	p := NewProjector(store, nil, nil, nil)

	// Two rows: one with a package number, one for a different user with
	// only an order number.
	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.PackageNumber = "623456789012345678901234"
	})))
	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Email = "otheruser@gmail.com"
		u.OrderNumber = "3054169918883922"
	})))
	require.Len(t, store.rows, 2)

	// An update carrying both identifiers must land on the package row.
	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Status = carriers.StatusPickup
		u.PackageNumber = "623456789012345678901234"
		u.OrderNumber = "9999999999999999"
	})))

	require.Len(t, store.rows, 2)
	assert.Equal(t, "Ready for pickup", store.rows[0][ColStatus])
	assert.Equal(t, "In transit", store.rows[1][ColStatus])
}

func TestProjectFallsBackToUserMatch(t *testing.T) {
	store := newFakeStore()
	p := NewProjector(store, nil, nil, nil)

	require.NoError(t, p.Project(context.Background(), update(nil)))

	// No identifiers at all; the row is found through the email identity.
	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Status = carriers.StatusPickup
		u.Email = "LunaEwsx@outlook.com"
	})))

	require.Len(t, store.rows, 1)
	assert.Equal(t, "Ready for pickup", store.rows[0][ColStatus])
}

func TestProjectDeliveredTeardown(t *testing.T) {
	store := newFakeStore()
	accounts := &fakeAccounts{}
	mappings := &fakeMappings{}
	p := NewProjector(store, accounts, mappings, nil)

	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.PackageNumber = "623456789012345678901234"
	})))
	require.Len(t, store.rows, 1)

	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Status = carriers.StatusDelivered
		u.PackageNumber = "623456789012345678901234"
	})))

	assert.Empty(t, store.rows, "delivered row leaves the live sheet")
	require.Len(t, store.archive, 1)
	assert.Equal(t, "Delivered", store.archive[0][ColStatus])
	assert.Equal(t, []string{"lunaewsx@gmail.com"}, accounts.removed)
	assert.Equal(t, []string{"lunaewsx@gmail.com"}, mappings.removed)
	assert.Equal(t, 1, store.deleted)
}

func TestProjectTeardownKeepsRowWhenArchiveFails(t *testing.T) {
	store := newFakeStore()
	store.archiveErr = errors.New("quota exceeded")
	p := NewProjector(store, nil, nil, nil)

	require.NoError(t, p.Project(context.Background(), update(func(u *carriers.ShipmentUpdate) {
		u.Status = carriers.StatusDelivered
		u.PackageNumber = "623456789012345678901234"
	})))

	require.Len(t, store.rows, 1, "row survives a failed archive")
	assert.Equal(t, 0, store.deleted)
}
