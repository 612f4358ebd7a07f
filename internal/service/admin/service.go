// Package admin covers the operator surface: facility setup, spot
// seeding and maintenance, vehicle registration, subscription sales and
// the plate-detection feed.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrFacilityNotFound  = errors.New("facility not found")
	ErrVehicleNotFound   = errors.New("vehicle not found")
	ErrSpotNotFound      = errors.New("spot not found")
	ErrPlateTaken        = errors.New("plate is already registered")
	ErrSpotsAlreadyExist = errors.New("facility already has spots")
	ErrInsufficientFunds = errors.New("wallet balance does not cover the plan price")
)

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
}

func New(store repository.Store, cache *redisrepo.Cache) *Service {
	return &Service{store: store, cache: cache}
}

func (s *Service) CreateFacility(ctx context.Context, f *domain.Facility) (*domain.Facility, error) {
	const op = "service.admin.CreateFacility"

	if f.Name == "" || f.HourlyRate < 0 || f.ReservationRate < 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	id, err := s.store.Facilities().Create(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	f.ID = id
	f.Active = true

	s.invalidate(ctx, id)

	return f, nil
}

func (s *Service) UpdateFacility(ctx context.Context, f *domain.Facility) error {
	const op = "service.admin.UpdateFacility"

	if err := s.store.Facilities().Update(ctx, f); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrFacilityNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, f.ID)

	return nil
}

// InitSpots seeds a facility with count spots named prefix-01..NN. Runs
// once per facility; a second call fails with ErrSpotsAlreadyExist.
func (s *Service) InitSpots(
	ctx context.Context,
	facilityID int64,
	count int,
	prefix string,
	class domain.SpotClass,
) (int, error) {
	const op = "service.admin.InitSpots"

	if count <= 0 || count > 10000 || prefix == "" {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	if class == "" {
		class = domain.SpotRegular
	}

	n, err := s.store.Facilities().InitSpots(ctx, facilityID, count, prefix, class)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return 0, fmt.Errorf("%s:%w", op, ErrFacilityNotFound)
		case errors.Is(err, repository.ErrConflict):
			return 0, fmt.Errorf("%s:%w", op, ErrSpotsAlreadyExist)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, facilityID)

	return n, nil
}

// UpdateSpot reclassifies a spot or takes it in or out of service. Nil
// fields are left untouched.
func (s *Service) UpdateSpot(
	ctx context.Context,
	facilityID, spotID int64,
	class *domain.SpotClass,
	active *bool,
) error {
	const op = "service.admin.UpdateSpot"

	if err := s.store.Spots().Update(ctx, spotID, class, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrSpotNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, facilityID)

	return nil
}

func (s *Service) RegisterVehicle(ctx context.Context, v *domain.Vehicle) (*domain.Vehicle, error) {
	const op = "service.admin.RegisterVehicle"

	v.Plate = domain.NormalizePlate(v.Plate)
	if v.Plate == "" || v.AccountID == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	id, err := s.store.Vehicles().Register(ctx, v)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrPlateTaken)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	v.ID = id
	v.Active = true

	return v, nil
}

func (s *Service) ListVehicles(ctx context.Context, accountID int64) ([]domain.Vehicle, error) {
	const op = "service.admin.ListVehicles"

	out, err := s.store.Vehicles().List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

type PurchaseInput struct {
	VehicleID  int64
	FacilityID int64
	Plan       string
	Months     int
	Price      int64
}

// PurchaseSubscription sells a monthly pass, debiting the plan price
// from the vehicle owner's wallet. A failed insert refunds the debit.
func (s *Service) PurchaseSubscription(ctx context.Context, in PurchaseInput) (*domain.Subscription, error) {
	const op = "service.admin.PurchaseSubscription"

	if in.Months <= 0 || in.Price < 0 || in.Plan == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	vehicle, err := s.store.Vehicles().Get(ctx, in.VehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrVehicleNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if _, err := s.store.Facilities().Get(ctx, in.FacilityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrFacilityNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if in.Price > 0 {
		if _, err := s.store.Wallets().Debit(ctx, vehicle.AccountID, in.Price); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) ||
				errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%s:%w", op, ErrInsufficientFunds)
			}
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	now := time.Now()
	sub := domain.Subscription{
		VehicleID:  vehicle.ID,
		FacilityID: in.FacilityID,
		AccountID:  vehicle.AccountID,
		Plan:       in.Plan,
		StartDate:  now,
		EndDate:    now.AddDate(0, in.Months, 0),
		Status:     domain.SubscriptionActive,
	}

	id, err := s.store.Subscriptions().Create(ctx, &sub)
	if err != nil {
		if in.Price > 0 {
			_, _ = s.store.Wallets().Credit(ctx, vehicle.AccountID, in.Price)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	sub.ID = id

	if in.Price > 0 {
		_ = s.store.Wallets().RecordPayment(ctx, &domain.Payment{
			AccountID:   vehicle.AccountID,
			Amount:      in.Price,
			Method:      "wallet",
			Status:      "completed",
			Description: fmt.Sprintf("subscription %s, %d month(s)", in.Plan, in.Months),
		})
	}

	return &sub, nil
}

// RecordDetection ingests a raw plate sighting from a recognizer and
// tags it with whether the plate is registered.
func (s *Service) RecordDetection(ctx context.Context, d *domain.Detection) (*domain.Detection, error) {
	const op = "service.admin.RecordDetection"

	d.Plate = domain.NormalizePlate(d.Plate)
	if d.Plate == "" || d.FacilityID == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now()
	}

	if _, err := s.store.Vehicles().LookupPlate(ctx, d.Plate); err == nil {
		d.Registered = true
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	id, err := s.store.Audit().RecordDetection(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	d.ID = id

	return d, nil
}

func (s *Service) Detections(ctx context.Context, facilityID int64, limit int) ([]domain.Detection, error) {
	const op = "service.admin.Detections"

	out, err := s.store.Audit().Detections(ctx, facilityID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) invalidate(ctx context.Context, facilityID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateFacility(ctx, facilityID)
	}
}
