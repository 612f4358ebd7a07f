package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository/memory"
)

func newFixture(t *testing.T) (*Service, *memory.Store, int64) {
	t.Helper()

	store := memory.NewStore()
	svc := New(store, nil)

	f, err := svc.CreateFacility(context.Background(), &domain.Facility{
		Name:       "Central",
		HourlyRate: 150,
	})
	require.NoError(t, err)

	return svc, store, f.ID
}

func TestInitSpotsOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, fid := newFixture(t)

	n, err := svc.InitSpots(ctx, fid, 3, "B", domain.SpotRegular)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	spots, err := store.Spots().ListByFacility(ctx, fid)
	require.NoError(t, err)
	require.Len(t, spots, 3)
	assert.Equal(t, "B-01", spots[0].Name)
	assert.Equal(t, "B-03", spots[2].Name)

	_, err = svc.InitSpots(ctx, fid, 3, "B", domain.SpotRegular)
	assert.ErrorIs(t, err, ErrSpotsAlreadyExist)
}

func TestInitSpotsValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, fid := newFixture(t)

	_, err := svc.InitSpots(ctx, fid, 0, "B", domain.SpotRegular)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.InitSpots(ctx, 999, 3, "B", domain.SpotRegular)
	assert.ErrorIs(t, err, ErrFacilityNotFound)
}

func TestRegisterVehicleNormalizesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	v, err := svc.RegisterVehicle(ctx, &domain.Vehicle{AccountID: 1, Plate: "cab 1234"})
	require.NoError(t, err)
	assert.Equal(t, "CAB-1234", v.Plate)

	_, err = svc.RegisterVehicle(ctx, &domain.Vehicle{AccountID: 2, Plate: "CAB-1234"})
	assert.ErrorIs(t, err, ErrPlateTaken)
}

func TestPurchaseSubscriptionDebitsWallet(t *testing.T) {
	ctx := context.Background()
	svc, store, fid := newFixture(t)

	v, err := svc.RegisterVehicle(ctx, &domain.Vehicle{AccountID: 7, Plate: "CAB-1"})
	require.NoError(t, err)

	_, err = store.Wallets().Credit(ctx, 7, 5000)
	require.NoError(t, err)

	sub, err := svc.PurchaseSubscription(ctx, PurchaseInput{
		VehicleID:  v.ID,
		FacilityID: fid,
		Plan:       "monthly",
		Months:     2,
		Price:      3000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.True(t, sub.Covers(time.Now().Add(24*time.Hour)))

	w, err := store.Wallets().Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), w.Balance)
}

func TestPurchaseSubscriptionInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, store, fid := newFixture(t)

	v, err := svc.RegisterVehicle(ctx, &domain.Vehicle{AccountID: 7, Plate: "CAB-1"})
	require.NoError(t, err)

	_, err = store.Wallets().Credit(ctx, 7, 100)
	require.NoError(t, err)

	_, err = svc.PurchaseSubscription(ctx, PurchaseInput{
		VehicleID:  v.ID,
		FacilityID: fid,
		Plan:       "monthly",
		Months:     1,
		Price:      3000,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestRecordDetectionTagsRegisteredPlates(t *testing.T) {
	ctx := context.Background()
	svc, _, fid := newFixture(t)

	_, err := svc.RegisterVehicle(ctx, &domain.Vehicle{AccountID: 1, Plate: "CAB-1"})
	require.NoError(t, err)

	d, err := svc.RecordDetection(ctx, &domain.Detection{
		CameraID:   "cam-7",
		FacilityID: fid,
		Plate:      "cab 1",
		Confidence: 0.97,
	})
	require.NoError(t, err)
	assert.True(t, d.Registered)
	assert.Equal(t, "CAB-1", d.Plate)

	d, err = svc.RecordDetection(ctx, &domain.Detection{
		CameraID:   "cam-7",
		FacilityID: fid,
		Plate:      "XYZ-9",
	})
	require.NoError(t, err)
	assert.False(t, d.Registered)

	out, err := svc.Detections(ctx, fid, 10)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
