// Package booking creates and cancels reservations. A reservation holds
// one concrete spot for its whole window and charges the facility's
// flat reservation fee up front.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
)

type Config struct {
	// MaxHorizon caps how far in the future a window may start.
	MaxHorizon time.Duration
	// MaxWindow caps the window length itself.
	MaxWindow time.Duration
	// Clock supplies current time; nil means time.Now.
	Clock func() time.Time
}

type Service struct {
	store   repository.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.LifecyclePubSub
	limiter *redisrepo.SlidingWindowLimiter
	cfg     Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.LifecyclePubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Service {
	if cfg.MaxHorizon <= 0 {
		cfg.MaxHorizon = 720 * time.Hour
	}

	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = 24 * time.Hour
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		cfg:     cfg,
	}
}

func (s *Service) now() time.Time { return s.cfg.Clock() }

type CreateInput struct {
	VehicleID  int64
	FacilityID int64
	SpotClass  domain.SpotClass
	Start      time.Time
	End        time.Time
	// RateLimitKey scopes the per-caller limiter; empty disables it.
	RateLimitKey string
}

// Create books a spot of the requested class for [Start, End).
//
// The spot hold, the wallet debit for the flat fee and the reservation
// insert commit together: a reservation either exists fully paid with a
// spot held, or not at all.
//
// Returns:
//   - booking.ErrInvalidWindow for windows in the past, inverted, too
//     long, or starting beyond the horizon.
//   - booking.ErrNoSpotAvailable when the class is sold out.
//   - booking.ErrInsufficientFunds when the wallet cannot cover the fee.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Reservation, error) {
	const op = "service.booking.Create"

	now := s.now()

	if in.SpotClass == "" {
		in.SpotClass = domain.SpotRegular
	}

	if !in.Start.Before(in.End) ||
		in.End.Sub(in.Start) > s.cfg.MaxWindow ||
		in.Start.Before(now.Add(-time.Minute)) ||
		in.Start.After(now.Add(s.cfg.MaxHorizon)) {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidWindow)
	}

	if s.limiter != nil && in.RateLimitKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, in.RateLimitKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s:%w (retry in %s)", op, ErrRateLimited, retry)
		}
	}

	vehicle, err := s.store.Vehicles().Get(ctx, in.VehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrVehicleNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	facility, err := s.store.Facilities().Get(ctx, in.FacilityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrFacilityNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var resv domain.Reservation

	err = s.store.Atomic(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(repository.AfterCommit),
	) error {
		spot, err := tx.Spots().ReserveClass(ctx, facility.ID, in.SpotClass)
		if err != nil {
			if errors.Is(err, repository.ErrNoSpotAvailable) {
				return ErrNoSpotAvailable
			}
			return err
		}

		fee := facility.ReservationRate
		status := domain.PaymentWaived
		if fee > 0 {
			if _, err := tx.Wallets().Debit(ctx, vehicle.AccountID, fee); err != nil {
				if errors.Is(err, repository.ErrInsufficientFunds) ||
					errors.Is(err, repository.ErrNotFound) {
					return ErrInsufficientFunds
				}
				return err
			}
			status = domain.PaymentPaid
		}

		resv = domain.Reservation{
			VehicleID:     vehicle.ID,
			FacilityID:    facility.ID,
			SpotID:        spot.ID,
			SpotName:      spot.Name,
			SpotClass:     spot.Class,
			Start:         in.Start,
			End:           in.End,
			Status:        domain.ReservationConfirmed,
			Fee:           fee,
			PaymentStatus: status,
			Token:         uuid.NewString(),
		}

		id, err := tx.Reservations().Create(ctx, &resv)
		if err != nil {
			return err
		}
		resv.ID = id

		if fee > 0 {
			if err := tx.Wallets().RecordPayment(ctx, &domain.Payment{
				AccountID:   vehicle.AccountID,
				Amount:      fee,
				Method:      "wallet",
				Status:      "completed",
				Description: fmt.Sprintf("reservation fee, spot %s", spot.Name),
			}); err != nil {
				return err
			}
		}

		after(func(ctx context.Context) {
			s.invalidate(ctx, facility.ID)
			s.publish(ctx, domain.LifecycleEvent{
				Type:          domain.EventReservationConfirmed,
				FacilityID:    facility.ID,
				SpotName:      resv.SpotName,
				ReservationID: resv.ID,
				AccountID:     vehicle.AccountID,
				Amount:        fee,
			})
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &resv, nil
}

// Cancel voids a confirmed reservation and frees its spot. The flat fee
// is refunded when the window has not started yet.
//
// Returns booking.ErrInvalidTransition when the reservation has already
// been checked in, completed or expired.
func (s *Service) Cancel(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "service.booking.Cancel"

	resv, err := s.store.Reservations().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := s.now()
	refund := resv.Fee > 0 && resv.PaymentStatus == domain.PaymentPaid && now.Before(resv.Start)

	var accountID int64
	if refund {
		vehicle, err := s.store.Vehicles().Get(ctx, resv.VehicleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				refund = false
			} else {
				return nil, fmt.Errorf("%s:%w", op, err)
			}
		} else {
			accountID = vehicle.AccountID
		}
	}

	err = s.store.Atomic(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(repository.AfterCommit),
	) error {
		err := tx.Reservations().Transition(
			ctx, resv.ID,
			[]domain.ReservationStatus{domain.ReservationPending, domain.ReservationConfirmed},
			domain.ReservationCancelled,
		)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrInvalidTransition
			}
			return err
		}

		if err := tx.Spots().Unreserve(ctx, resv.SpotID); err != nil {
			return err
		}

		if refund {
			if _, err := tx.Wallets().Credit(ctx, accountID, resv.Fee); err != nil {
				return err
			}
			if err := tx.Wallets().RecordPayment(ctx, &domain.Payment{
				AccountID:   accountID,
				Amount:      resv.Fee,
				Method:      "wallet",
				Status:      "refunded",
				Description: fmt.Sprintf("reservation refund, spot %s", resv.SpotName),
			}); err != nil {
				return err
			}
		}

		after(func(ctx context.Context) {
			s.invalidate(ctx, resv.FacilityID)
			s.publish(ctx, domain.LifecycleEvent{
				Type:          domain.EventReservationCancelled,
				FacilityID:    resv.FacilityID,
				SpotName:      resv.SpotName,
				ReservationID: resv.ID,
			})
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	resv.Status = domain.ReservationCancelled

	return resv, nil
}

// ExpireNoShows flips confirmed reservations whose window has fully
// passed to no_show and frees their held spots. Called from the
// background sweeper; the fee is forfeited.
func (s *Service) ExpireNoShows(ctx context.Context) (int, error) {
	const op = "service.booking.ExpireNoShows"

	var expired []domain.Reservation

	err := s.store.Atomic(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(repository.AfterCommit),
	) error {
		var err error
		expired, err = tx.Reservations().ExpireNoShows(ctx, s.now())
		if err != nil {
			return err
		}

		for _, resv := range expired {
			if err := tx.Spots().Unreserve(ctx, resv.SpotID); err != nil {
				return err
			}
		}

		if len(expired) > 0 {
			resvs := expired
			after(func(ctx context.Context) {
				for _, resv := range resvs {
					s.invalidate(ctx, resv.FacilityID)
					s.publish(ctx, domain.LifecycleEvent{
						Type:          domain.EventReservationNoShow,
						FacilityID:    resv.FacilityID,
						SpotName:      resv.SpotName,
						ReservationID: resv.ID,
					})
				}
			})
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return len(expired), nil
}

// Get returns one reservation by ID.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "service.booking.Get"

	resv, err := s.store.Reservations().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return resv, nil
}

func (s *Service) invalidate(ctx context.Context, facilityID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateFacility(ctx, facilityID)
	}
}

func (s *Service) publish(ctx context.Context, ev domain.LifecycleEvent) {
	if s.pubsub != nil {
		_ = s.pubsub.Publish(ctx, ev)
	}
}
