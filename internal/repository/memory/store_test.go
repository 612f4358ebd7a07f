package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

func seedFacility(t *testing.T, s *Store, spots int) int64 {
	t.Helper()

	ctx := context.Background()
	id, err := s.Facilities().Create(ctx, &domain.Facility{
		Name:       "Central",
		HourlyRate: 150,
	})
	require.NoError(t, err)

	if spots > 0 {
		n, err := s.Facilities().InitSpots(ctx, id, spots, "A", domain.SpotRegular)
		require.NoError(t, err)
		require.Equal(t, spots, n)
	}

	return id
}

func TestTryClaimPicksLowestNameAndExhausts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fid := seedFacility(t, s, 2)

	sp1, err := s.Spots().TryClaim(ctx, fid, domain.SpotRegular)
	require.NoError(t, err)
	assert.Equal(t, "A-01", sp1.Name)

	sp2, err := s.Spots().TryClaim(ctx, fid, domain.SpotRegular)
	require.NoError(t, err)
	assert.Equal(t, "A-02", sp2.Name)

	_, err = s.Spots().TryClaim(ctx, fid, domain.SpotRegular)
	assert.ErrorIs(t, err, repository.ErrNoSpotAvailable)
}

func TestConcurrentClaimsNeverDoubleAllocate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fid := seedFacility(t, s, 5)

	const callers = 20

	var (
		mu      sync.Mutex
		claimed = map[int64]int{}
		wg      sync.WaitGroup
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sp, err := s.Spots().TryClaim(ctx, fid, domain.SpotRegular)
			if err != nil {
				return
			}
			mu.Lock()
			claimed[sp.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 5)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "spot %d claimed more than once", id)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fid := seedFacility(t, s, 1)

	sp, err := s.Spots().TryClaim(ctx, fid, domain.SpotRegular)
	require.NoError(t, err)

	require.NoError(t, s.Spots().Release(ctx, sp.ID))
	require.NoError(t, s.Spots().Release(ctx, sp.ID))

	oc, err := s.Spots().Occupancy(ctx, fid)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Available)
	assert.Equal(t, 0, oc.Occupied)
}

func TestSessionsRejectSecondOpenForPlate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fid := seedFacility(t, s, 2)

	_, err := s.Sessions().Create(ctx, &domain.Session{
		FacilityID: fid, SpotID: 1, Plate: "ABC-1234", EntryTime: time.Now(),
	})
	require.NoError(t, err)

	_, err = s.Sessions().Create(ctx, &domain.Session{
		FacilityID: fid, SpotID: 2, Plate: "ABC-1234", EntryTime: time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSessionCloseTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fid := seedFacility(t, s, 1)

	id, err := s.Sessions().Create(ctx, &domain.Session{
		FacilityID: fid, SpotID: 1, Plate: "ABC-1", EntryTime: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.Sessions().Close(ctx, id, time.Now(), 10, 150, domain.PaymentPaid))
	assert.ErrorIs(t,
		s.Sessions().Close(ctx, id, time.Now(), 10, 150, domain.PaymentPaid),
		repository.ErrNotFound,
	)
}

func TestWalletDebitBounds(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Wallets().Debit(ctx, 7, 100)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	balance, err := s.Wallets().Credit(ctx, 7, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	_, err = s.Wallets().Debit(ctx, 7, 501)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	// failed debit leaves the balance untouched
	w, err := s.Wallets().Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)

	balance, err = s.Wallets().Debit(ctx, 7, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestReservationTransitionGuardsState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	id, err := s.Reservations().Create(ctx, &domain.Reservation{
		VehicleID: 1, FacilityID: 1, SpotID: 1,
		Start:  time.Now(),
		End:    time.Now().Add(time.Hour),
		Status: domain.ReservationConfirmed,
		Token:  "tok",
	})
	require.NoError(t, err)

	require.NoError(t, s.Reservations().Transition(
		ctx, id,
		[]domain.ReservationStatus{domain.ReservationConfirmed},
		domain.ReservationCheckedIn,
	))

	// a second check-in must not pass
	assert.ErrorIs(t, s.Reservations().Transition(
		ctx, id,
		[]domain.ReservationStatus{domain.ReservationConfirmed},
		domain.ReservationCheckedIn,
	), repository.ErrConflict)
}

func TestExpireNoShows(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	mk := func(end time.Time, status domain.ReservationStatus) int64 {
		id, err := s.Reservations().Create(ctx, &domain.Reservation{
			VehicleID: 1, FacilityID: 1, SpotID: 1,
			Start:  end.Add(-time.Hour),
			End:    end,
			Status: status,
		})
		require.NoError(t, err)
		return id
	}

	past := mk(now.Add(-time.Minute), domain.ReservationConfirmed)
	future := mk(now.Add(time.Hour), domain.ReservationConfirmed)
	cancelled := mk(now.Add(-time.Minute), domain.ReservationCancelled)

	expired, err := s.Reservations().ExpireNoShows(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, past, expired[0].ID)

	still, err := s.Reservations().Get(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, still.Status)

	c, err := s.Reservations().Get(ctx, cancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, c.Status)
}

func TestAtomicRunsHooksOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fid := seedFacility(t, s, 1)

	var fired int
	err := s.Atomic(ctx, func(ctx context.Context, tx repository.Tx, after func(repository.AfterCommit)) error {
		if _, err := tx.Spots().TryClaim(ctx, fid, domain.SpotRegular); err != nil {
			return err
		}
		after(func(ctx context.Context) { fired++ })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	err = s.Atomic(ctx, func(ctx context.Context, tx repository.Tx, after func(repository.AfterCommit)) error {
		after(func(ctx context.Context) { fired++ })
		return assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, 1, fired)
}
