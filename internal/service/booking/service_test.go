package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository/memory"
)

type fixture struct {
	store      *memory.Store
	svc        *Service
	facilityID int64
	vehicleID  int64
	now        time.Time
}

// newFixture seeds one facility (flat reservation fee 500), two regular
// spots, one vehicle on account 42 with a 1000 balance.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewStore()

	fid, err := store.Facilities().Create(ctx, &domain.Facility{
		Name:            "Central",
		HourlyRate:      150,
		ReservationRate: 500,
	})
	require.NoError(t, err)

	_, err = store.Facilities().InitSpots(ctx, fid, 2, "A", domain.SpotRegular)
	require.NoError(t, err)

	vid, err := store.Vehicles().Register(ctx, &domain.Vehicle{AccountID: 42, Plate: "CAB-1234"})
	require.NoError(t, err)

	_, err = store.Wallets().Credit(ctx, 42, 1000)
	require.NoError(t, err)

	f := &fixture{
		store:      store,
		facilityID: fid,
		vehicleID:  vid,
		now:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = New(store, nil, nil, nil, Config{Clock: func() time.Time { return f.now }})

	return f
}

func (f *fixture) window(startIn, length time.Duration) (time.Time, time.Time) {
	start := f.now.Add(startIn)
	return start, start.Add(length)
}

func TestCreateReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	start, end := f.window(time.Hour, 2*time.Hour)

	resv, err := f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ReservationConfirmed, resv.Status)
	assert.Equal(t, "A-01", resv.SpotName)
	assert.Equal(t, int64(500), resv.Fee)
	assert.Equal(t, domain.PaymentPaid, resv.PaymentStatus)
	assert.NotEmpty(t, resv.Token)

	// fee charged up front
	w, err := f.store.Wallets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)

	// the held spot is out of the walk-in pool but not occupied
	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Reserved)
	assert.Equal(t, 1, oc.Available)
}

func TestCreateRejectsBadWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"inverted", f.now.Add(2 * time.Hour), f.now.Add(time.Hour)},
		{"zero length", f.now.Add(time.Hour), f.now.Add(time.Hour)},
		{"in the past", f.now.Add(-2 * time.Hour), f.now.Add(-time.Hour)},
		{"beyond horizon", f.now.Add(800 * time.Hour), f.now.Add(801 * time.Hour)},
		{"too long", f.now.Add(time.Hour), f.now.Add(30 * time.Hour)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, CreateInput{
				VehicleID:  f.vehicleID,
				FacilityID: f.facilityID,
				Start:      tc.start,
				End:        tc.end,
			})
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestCreateInsufficientFundsHoldsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// drain the wallet below the flat fee
	_, err := f.store.Wallets().Debit(ctx, 42, 900)
	require.NoError(t, err)

	start, end := f.window(time.Hour, time.Hour)
	_, err = f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// the failed unit of work must not leak the spot hold taken before
	// the debit
	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 0, oc.Reserved)
}

func TestCreateSoldOutClass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := f.window(time.Hour, time.Hour)
	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(ctx, CreateInput{
			VehicleID:  f.vehicleID,
			FacilityID: f.facilityID,
			Start:      start,
			End:        end,
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	assert.ErrorIs(t, err, ErrNoSpotAvailable)
}

func TestCancelBeforeStartRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := f.window(time.Hour, time.Hour)
	resv, err := f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	require.NoError(t, err)

	out, err := f.svc.Cancel(ctx, resv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, out.Status)

	w, err := f.store.Wallets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)

	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 0, oc.Reserved)
	assert.Equal(t, 2, oc.Available)
}

func TestCancelAfterStartForfeitsFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := f.window(time.Hour, time.Hour)
	resv, err := f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	require.NoError(t, err)

	f.now = start.Add(10 * time.Minute)

	_, err = f.svc.Cancel(ctx, resv.ID)
	require.NoError(t, err)

	w, err := f.store.Wallets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
}

func TestCancelTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := f.window(time.Hour, time.Hour)
	resv, err := f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, resv.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, resv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelUnknownReservation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Cancel(context.Background(), 999)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestExpireNoShowsFreesSpots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := f.window(time.Hour, time.Hour)
	resv, err := f.svc.Create(ctx, CreateInput{
		VehicleID:  f.vehicleID,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	require.NoError(t, err)

	// whole window passes without a check-in
	f.now = end.Add(time.Minute)

	n, err := f.svc.ExpireNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := f.store.Reservations().Get(ctx, resv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationNoShow, out.Status)

	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 0, oc.Reserved)
	assert.Equal(t, 2, oc.Available)

	// fee is forfeited
	w, err := f.store.Wallets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)

	// second sweep finds nothing
	n, err = f.svc.ExpireNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateUnknownVehicle(t *testing.T) {
	f := newFixture(t)
	start, end := f.window(time.Hour, time.Hour)

	_, err := f.svc.Create(context.Background(), CreateInput{
		VehicleID:  999,
		FacilityID: f.facilityID,
		Start:      start,
		End:        end,
	})
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}
