package allocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
	"github.com/parkgate/parkgate/internal/repository/memory"
)

type fixture struct {
	store      *memory.Store
	svc        *Service
	facilityID int64
	now        time.Time
}

// newFixture seeds a facility with rate 150/h and the given number of
// regular spots, backed by the memory store and a frozen clock.
func newFixture(t *testing.T, spots int) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewStore()

	fid, err := store.Facilities().Create(ctx, &domain.Facility{
		Name:            "Central",
		HourlyRate:      150,
		ReservationRate: 500,
	})
	require.NoError(t, err)

	if spots > 0 {
		_, err = store.Facilities().InitSpots(ctx, fid, spots, "A", domain.SpotRegular)
		require.NoError(t, err)
	}

	f := &fixture{
		store:      store,
		facilityID: fid,
		now:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = New(store, nil, nil, Config{Clock: func() time.Time { return f.now }})

	return f
}

func (f *fixture) registerVehicle(t *testing.T, accountID int64, plate string) *domain.Vehicle {
	t.Helper()

	v := &domain.Vehicle{AccountID: accountID, Plate: plate}
	id, err := f.store.Vehicles().Register(context.Background(), v)
	require.NoError(t, err)
	v.ID = id

	return v
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestWalkInEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.registerVehicle(t, 42, "CAB-1234")

	res, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "cab 1234"})
	require.NoError(t, err)

	assert.Equal(t, domain.GateOpen, res.GateAction)
	assert.True(t, res.IsRegistered)
	assert.Equal(t, domain.SessionWalkIn, res.Session.Type)
	assert.Equal(t, "CAB-1234", res.Session.Plate)
	assert.Equal(t, "A-01", res.Spot.Name)

	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Occupied)
}

func TestUnregisteredEntryGatePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	res, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "XYZ-999"})
	require.NoError(t, err)

	// unknown plate still gets a spot, but waits for manual approval
	assert.Equal(t, domain.GatePending, res.GateAction)
	assert.False(t, res.IsRegistered)
	assert.Equal(t, domain.SessionWalkIn, res.Session.Type)

	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Occupied)
}

func TestEntryRejectsDuplicatePlate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	_, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1234"})
	require.NoError(t, err)

	// same vehicle, differently formatted plate
	_, err = f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "cab_1234"})
	assert.ErrorIs(t, err, ErrAlreadyParked)
}

func TestEntryDeniedWhenFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1"})
	require.NoError(t, err)

	_, err = f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-2"})
	assert.ErrorIs(t, err, ErrNoSpotAvailable)
}

func TestEntryUnknownFacility(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.OpenSession(context.Background(), EntryInput{FacilityID: 999, Plate: "CAB-1"})
	assert.ErrorIs(t, err, ErrFacilityNotFound)
}

func TestExitChargesWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.registerVehicle(t, 42, "CAB-1234")

	_, err := f.store.Wallets().Credit(ctx, 42, 1000)
	require.NoError(t, err)

	_, err = f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1234"})
	require.NoError(t, err)

	// 2h07 -> 3 billed hours at 150
	f.advance(2*time.Hour + 7*time.Minute)

	res, err := f.svc.CloseSession(ctx, ExitInput{Plate: "CAB-1234"})
	require.NoError(t, err)

	assert.Equal(t, domain.GateOpen, res.GateAction)
	assert.Equal(t, 127, res.Session.DurationMin)
	assert.Equal(t, int64(450), res.Session.Fee)
	assert.Equal(t, domain.PaymentPaid, res.Session.PaymentStatus)
	assert.True(t, res.Charged)
	assert.Equal(t, int64(550), res.NewBalance)

	// spot is free again
	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Available)

	// payment recorded against the session
	payments, err := f.store.Wallets().Payments(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, res.Session.ID, payments[0].SessionID)
	assert.Equal(t, int64(450), payments[0].Amount)
}

func TestExitInsufficientFundsNeverBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.registerVehicle(t, 42, "CAB-1234")

	_, err := f.store.Wallets().Credit(ctx, 42, 100)
	require.NoError(t, err)

	_, err = f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1234"})
	require.NoError(t, err)

	f.advance(30 * time.Minute)

	res, err := f.svc.CloseSession(ctx, ExitInput{Plate: "CAB-1234"})
	require.NoError(t, err)

	// gate opens, debt stays pending, balance untouched
	assert.Equal(t, domain.GateOpen, res.GateAction)
	assert.Equal(t, domain.PaymentPending, res.Session.PaymentStatus)
	assert.False(t, res.Charged)

	w, err := f.store.Wallets().Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.Balance)

	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Available)
}

func TestExitUnregisteredPlateIsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "XYZ-1"})
	require.NoError(t, err)

	f.advance(10 * time.Minute)

	res, err := f.svc.CloseSession(ctx, ExitInput{Plate: "XYZ-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, res.Session.PaymentStatus)
	assert.Equal(t, int64(150), res.Session.Fee)
}

func TestExitWithoutEntry(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.CloseSession(context.Background(), ExitInput{Plate: "CAB-9"})
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSubscriptionSessionIsWaived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	v := f.registerVehicle(t, 42, "CAB-1234")

	_, err := f.store.Subscriptions().Create(ctx, &domain.Subscription{
		VehicleID:  v.ID,
		FacilityID: f.facilityID,
		AccountID:  42,
		Plan:       "monthly",
		StartDate:  f.now.Add(-24 * time.Hour),
		EndDate:    f.now.Add(30 * 24 * time.Hour),
		Status:     domain.SubscriptionActive,
	})
	require.NoError(t, err)

	res, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionSubscription, res.Session.Type)

	f.advance(9 * time.Hour)

	out, err := f.svc.CloseSession(ctx, ExitInput{Plate: "CAB-1234"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Session.Fee)
	assert.Equal(t, domain.PaymentWaived, out.Session.PaymentStatus)
}

func TestReservationCheckInByToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	v := f.registerVehicle(t, 42, "CAB-1234")

	spot, err := f.store.Spots().ReserveClass(ctx, f.facilityID, domain.SpotRegular)
	require.NoError(t, err)

	resvID, err := f.store.Reservations().Create(ctx, &domain.Reservation{
		VehicleID:  v.ID,
		FacilityID: f.facilityID,
		SpotID:     spot.ID,
		SpotName:   spot.Name,
		SpotClass:  spot.Class,
		Start:      f.now.Add(-10 * time.Minute),
		End:        f.now.Add(50 * time.Minute),
		Status:     domain.ReservationConfirmed,
		Token:      "tok-123",
	})
	require.NoError(t, err)

	res, err := f.svc.OpenSession(ctx, EntryInput{
		FacilityID:   f.facilityID,
		Plate:        "CAB-1234",
		CheckInToken: "tok-123",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionReserved, res.Session.Type)
	assert.Equal(t, spot.ID, res.Spot.ID)
	assert.Equal(t, resvID, res.Session.ReservationID)

	resv, err := f.store.Reservations().Get(ctx, resvID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCheckedIn, resv.Status)

	// exit completes the reservation
	f.advance(30 * time.Minute)
	_, err = f.svc.CloseSession(ctx, ExitInput{Plate: "CAB-1234"})
	require.NoError(t, err)

	resv, err = f.store.Reservations().Get(ctx, resvID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCompleted, resv.Status)
}

func TestReservationAutoMatchWithoutToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	v := f.registerVehicle(t, 42, "CAB-1234")

	spot, err := f.store.Spots().ReserveClass(ctx, f.facilityID, domain.SpotRegular)
	require.NoError(t, err)

	_, err = f.store.Reservations().Create(ctx, &domain.Reservation{
		VehicleID:  v.ID,
		FacilityID: f.facilityID,
		SpotID:     spot.ID,
		SpotName:   spot.Name,
		SpotClass:  spot.Class,
		Start:      f.now.Add(-10 * time.Minute),
		End:        f.now.Add(50 * time.Minute),
		Status:     domain.ReservationConfirmed,
		Token:      "tok-456",
	})
	require.NoError(t, err)

	res, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionReserved, res.Session.Type)
	assert.Equal(t, spot.ID, res.Spot.ID)
}

// checkInRacer wraps the memory store so that every auto-match
// immediately checks the reservation in behind the caller's back,
// forcing the in-transaction transition to lose.
type checkInRacer struct {
	*memory.Store
}

func (s *checkInRacer) Reservations() repository.Reservations {
	return &racingReservations{Reservations: s.Store.Reservations(), store: s.Store}
}

type racingReservations struct {
	repository.Reservations
	store *memory.Store
}

func (r *racingReservations) FindForEntry(
	ctx context.Context,
	vehicleID, facilityID int64,
	at time.Time,
) (*domain.Reservation, error) {
	resv, err := r.Reservations.FindForEntry(ctx, vehicleID, facilityID, at)
	if err == nil {
		_ = r.store.Reservations().Transition(
			ctx, resv.ID,
			[]domain.ReservationStatus{domain.ReservationConfirmed},
			domain.ReservationCheckedIn,
		)
	}
	return resv, err
}

func TestAutoMatchRaceFallsBackToWalkIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	v := f.registerVehicle(t, 42, "CAB-1234")

	spot, err := f.store.Spots().ReserveClass(ctx, f.facilityID, domain.SpotRegular)
	require.NoError(t, err)

	_, err = f.store.Reservations().Create(ctx, &domain.Reservation{
		VehicleID:  v.ID,
		FacilityID: f.facilityID,
		SpotID:     spot.ID,
		SpotName:   spot.Name,
		SpotClass:  spot.Class,
		Start:      f.now.Add(-10 * time.Minute),
		End:        f.now.Add(50 * time.Minute),
		Status:     domain.ReservationConfirmed,
		Token:      "tok-789",
	})
	require.NoError(t, err)

	svc := New(&checkInRacer{Store: f.store}, nil, nil, Config{Clock: func() time.Time { return f.now }})

	// no token presented: losing the reservation must not fail the
	// entry, it degrades to a walk-in on another spot
	res, err := svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1234"})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionWalkIn, res.Session.Type)
	assert.Zero(t, res.Session.ReservationID)
	assert.NotEqual(t, spot.ID, res.Spot.ID)
	assert.Equal(t, domain.GateOpen, res.GateAction)
}

func TestInvalidCheckInToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.svc.OpenSession(ctx, EntryInput{
		FacilityID:   f.facilityID,
		Plate:        "CAB-1",
		CheckInToken: "bogus",
	})
	assert.ErrorIs(t, err, ErrInvalidCheckInToken)
}

func TestExpiredWindowTokenRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	v := f.registerVehicle(t, 42, "CAB-1234")

	spot, err := f.store.Spots().ReserveClass(ctx, f.facilityID, domain.SpotRegular)
	require.NoError(t, err)

	_, err = f.store.Reservations().Create(ctx, &domain.Reservation{
		VehicleID:  v.ID,
		FacilityID: f.facilityID,
		SpotID:     spot.ID,
		SpotName:   spot.Name,
		SpotClass:  spot.Class,
		Start:      f.now.Add(-2 * time.Hour),
		End:        f.now.Add(-time.Hour),
		Status:     domain.ReservationConfirmed,
		Token:      "tok-old",
	})
	require.NoError(t, err)

	_, err = f.svc.OpenSession(ctx, EntryInput{
		FacilityID:   f.facilityID,
		Plate:        "CAB-1234",
		CheckInToken: "tok-old",
	})
	assert.ErrorIs(t, err, ErrInvalidCheckInToken)
}

func TestReservedSpotInvisibleToWalkIns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.store.Spots().ReserveClass(ctx, f.facilityID, domain.SpotRegular)
	require.NoError(t, err)

	_, err = f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: "CAB-1"})
	assert.ErrorIs(t, err, ErrNoSpotAvailable)
}

func TestConcurrentEntriesRespectCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	const callers = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := 0; i < callers; i++ {
		plate := fmt.Sprintf("CAB-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: plate})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)

	oc, err := f.store.Spots().Occupancy(ctx, f.facilityID)
	require.NoError(t, err)
	assert.Equal(t, 3, oc.Occupied)
	assert.Equal(t, 0, oc.Available)

	open, err := f.store.Sessions().List(ctx, repository.SessionFilter{
		FacilityID: f.facilityID,
		OpenOnly:   true,
		Limit:      50,
	})
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestConcurrentUnregisteredEntriesOneSpot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*EntryResult
		errs    []error
	)

	for _, plate := range []string{"XYZ-1", "XYZ-2"} {
		plate := plate
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.OpenSession(ctx, EntryInput{FacilityID: f.facilityID, Plate: plate})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res)
		}()
	}
	wg.Wait()

	// exactly one gets the spot, held pending approval; the other is
	// turned away
	require.Len(t, results, 1)
	assert.Equal(t, domain.GatePending, results[0].GateAction)
	assert.False(t, results[0].IsRegistered)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoSpotAvailable)
}
