// Package allocation runs the gate: it admits vehicles, claims spots
// under the reservation > subscription > walk-in priority order, and
// settles fees against prepaid wallets on exit.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/pricing"
	"github.com/parkgate/parkgate/internal/repository"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
)

type Config struct {
	// DefaultHourlyRate prices exits whose facility row has since been
	// deactivated or deleted. Minor currency units.
	DefaultHourlyRate int64
	// Clock supplies current time; nil means time.Now.
	Clock func() time.Time
}

type Service struct {
	store  repository.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.LifecyclePubSub
	cfg    Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.LifecyclePubSub,
	cfg Config,
) *Service {
	if cfg.DefaultHourlyRate <= 0 {
		cfg.DefaultHourlyRate = 100
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		cfg:    cfg,
	}
}

func (s *Service) now() time.Time { return s.cfg.Clock() }

type EntryInput struct {
	FacilityID   int64
	Plate        string
	SpotClass    domain.SpotClass
	CheckInToken string
	Method       string
}

type EntryResult struct {
	Session      *domain.Session
	Spot         *domain.Spot
	GateAction   domain.GateAction
	IsRegistered bool
}

// OpenSession admits a vehicle at the gate.
//
// The plate is normalized, matched against open sessions (a plate can
// only be inside once), then classified: a confirmed reservation wins,
// an active subscription comes next, anything else is a walk-in. The
// spot claim, the reservation transition and the session insert land in
// one unit of work.
//
// The gate action depends on registration: a registered vehicle gets
// open, an unknown plate gets pending and waits for manual approval at
// the barrier. The spot is claimed either way.
//
// Returns:
//   - allocation.ErrAlreadyParked if the plate has an open session.
//   - allocation.ErrNoSpotAvailable if no spot of the class is free.
//   - allocation.ErrInvalidCheckInToken if a token was presented but
//     does not match a usable reservation for this entry.
func (s *Service) OpenSession(ctx context.Context, in EntryInput) (*EntryResult, error) {
	const op = "service.allocation.OpenSession"

	plate := domain.NormalizePlate(in.Plate)
	if plate == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPlate)
	}

	if in.SpotClass == "" {
		in.SpotClass = domain.SpotRegular
	}

	if in.Method == "" {
		in.Method = "camera"
	}

	now := s.now()

	facility, err := s.store.Facilities().Get(ctx, in.FacilityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrFacilityNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// Cheap pre-check; the partial unique index on open sessions is the
	// guarantee that holds under concurrency.
	if _, err := s.store.Sessions().FindOpenByPlate(ctx, plate); err == nil {
		s.recordGate(ctx, facility.ID, plate, domain.GateDeny, in.Method, now)
		return nil, fmt.Errorf("%s:%w", op, ErrAlreadyParked)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var vehicle *domain.Vehicle
	if v, err := s.store.Vehicles().LookupPlate(ctx, plate); err == nil {
		vehicle = v
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// Unknown plates still get a spot, but the barrier holds them for
	// manual approval instead of opening.
	admitAction := domain.GateOpen
	if vehicle == nil {
		admitAction = domain.GatePending
	}

	resv, err := s.matchReservation(ctx, in, plate, vehicle, now)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	sessionType := domain.SessionWalkIn
	switch {
	case resv != nil:
		sessionType = domain.SessionReserved
	case vehicle != nil:
		if _, err := s.store.Subscriptions().ActiveFor(ctx, vehicle.ID, facility.ID, now); err == nil {
			sessionType = domain.SessionSubscription
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	var (
		spot    *domain.Spot
		session domain.Session
	)

	err = s.store.Atomic(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(repository.AfterCommit),
	) error {
		var err error

		claimed := resv
		if claimed != nil {
			if err := tx.Reservations().Transition(
				ctx, claimed.ID,
				[]domain.ReservationStatus{domain.ReservationConfirmed},
				domain.ReservationCheckedIn,
			); err != nil {
				switch {
				case !errors.Is(err, repository.ErrConflict):
					return err
				case in.CheckInToken != "":
					return ErrInvalidCheckInToken
				default:
					// Auto-matched reservation lost the race (checked in
					// elsewhere or expired under us); the vehicle is still
					// at the gate, so carry on as a walk-in.
					claimed = nil
				}
			}
		}

		stype := sessionType
		if claimed == nil {
			if stype == domain.SessionReserved {
				stype = domain.SessionWalkIn
			}
			spot, err = tx.Spots().TryClaim(ctx, facility.ID, in.SpotClass)
		} else {
			spot, err = tx.Spots().ClaimReserved(ctx, claimed.SpotID)
			if errors.Is(err, repository.ErrConflict) {
				// Held spot was taken out of service after booking; fall
				// back to any free spot of the reserved class.
				spot, err = tx.Spots().TryClaim(ctx, facility.ID, claimed.SpotClass)
			}
		}
		if err != nil {
			if errors.Is(err, repository.ErrNoSpotAvailable) {
				return ErrNoSpotAvailable
			}
			return err
		}

		session = domain.Session{
			FacilityID:  facility.ID,
			SpotID:      spot.ID,
			Plate:       plate,
			SpotName:    spot.Name,
			Type:        stype,
			EntryMethod: in.Method,
			EntryTime:   now,
		}
		if vehicle != nil {
			session.VehicleID = vehicle.ID
		}
		if claimed != nil {
			session.ReservationID = claimed.ID
		}

		id, err := tx.Sessions().Create(ctx, &session)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAlreadyParked
			}
			return err
		}
		session.ID = id

		after(func(ctx context.Context) {
			s.invalidate(ctx, facility.ID)
			s.publish(ctx, domain.LifecycleEvent{
				Type:       domain.EventEntry,
				FacilityID: facility.ID,
				Plate:      plate,
				SpotName:   spot.Name,
				SessionID:  session.ID,
			})
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoSpotAvailable) || errors.Is(err, ErrAlreadyParked) {
			s.recordGate(ctx, facility.ID, plate, domain.GateDeny, in.Method, now)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.recordGate(ctx, facility.ID, plate, admitAction, in.Method, now)

	return &EntryResult{
		Session:      &session,
		Spot:         spot,
		GateAction:   admitAction,
		IsRegistered: vehicle != nil,
	}, nil
}

// matchReservation resolves the reservation for an entry: by token when
// one is presented (strict: a bad token fails the entry), otherwise by
// vehicle and window (best effort).
func (s *Service) matchReservation(
	ctx context.Context,
	in EntryInput,
	plate string,
	vehicle *domain.Vehicle,
	now time.Time,
) (*domain.Reservation, error) {
	if in.CheckInToken != "" {
		resv, err := s.store.Reservations().GetByToken(ctx, in.CheckInToken)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrInvalidCheckInToken
			}
			return nil, err
		}

		usable := resv.FacilityID == in.FacilityID &&
			resv.Status == domain.ReservationConfirmed &&
			!now.Before(resv.Start) && now.Before(resv.End)
		if !usable {
			return nil, ErrInvalidCheckInToken
		}
		if vehicle != nil && resv.VehicleID != vehicle.ID {
			return nil, ErrInvalidCheckInToken
		}

		return resv, nil
	}

	if vehicle == nil {
		return nil, nil
	}

	resv, err := s.store.Reservations().FindForEntry(ctx, vehicle.ID, in.FacilityID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return resv, nil
}

type ExitInput struct {
	Plate  string
	Method string
}

type ExitResult struct {
	Session    *domain.Session
	GateAction domain.GateAction
	NewBalance int64
	Charged    bool
}

// CloseSession settles a visit at the exit gate.
//
// The fee is computed from billed minutes and the facility's hourly
// rate (zero for subscription sessions), then debited from the owner's
// wallet. A wallet that cannot cover the fee never blocks the exit: the
// session closes with payment_status pending, and the spot is released
// either way.
//
// Returns allocation.ErrNoActiveSession when the plate is not inside.
func (s *Service) CloseSession(ctx context.Context, in ExitInput) (*ExitResult, error) {
	const op = "service.allocation.CloseSession"

	plate := domain.NormalizePlate(in.Plate)
	if plate == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPlate)
	}

	if in.Method == "" {
		in.Method = "camera"
	}

	session, err := s.store.Sessions().FindOpenByPlate(ctx, plate)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrNoActiveSession)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	exitTime := s.now()

	rate := s.cfg.DefaultHourlyRate
	if facility, err := s.store.Facilities().Get(ctx, session.FacilityID); err == nil {
		rate = facility.HourlyRate
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	durationMin := pricing.BilledMinutes(int64(exitTime.Sub(session.EntryTime).Seconds()))
	fee := pricing.ComputeFee(session.Type, durationMin, rate)

	var accountID int64
	if session.VehicleID != 0 {
		v, err := s.store.Vehicles().Get(ctx, session.VehicleID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if err == nil {
			accountID = v.AccountID
		}
	}

	var (
		status  domain.PaymentStatus
		balance int64
		charged bool
	)

	err = s.store.Atomic(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(repository.AfterCommit),
	) error {
		// Free the spot first: the vehicle is leaving regardless of how
		// settlement goes.
		if err := tx.Spots().Release(ctx, session.SpotID); err != nil {
			return err
		}

		status = domain.PaymentPending
		switch {
		case fee == 0:
			status = domain.PaymentWaived
		case accountID != 0:
			b, err := tx.Wallets().Debit(ctx, accountID, fee)
			switch {
			case err == nil:
				status = domain.PaymentPaid
				balance = b
				charged = true
			case errors.Is(err, repository.ErrInsufficientFunds),
				errors.Is(err, repository.ErrNotFound):
				// Exit is never blocked on money; the debt stays on the
				// session as pending.
			default:
				return err
			}
		}

		if charged {
			if err := tx.Wallets().RecordPayment(ctx, &domain.Payment{
				AccountID:   accountID,
				SessionID:   session.ID,
				Amount:      fee,
				Method:      "wallet",
				Status:      "completed",
				Description: fmt.Sprintf("parking fee, spot %s", session.SpotName),
			}); err != nil {
				return err
			}
		}

		if err := tx.Sessions().Close(ctx, session.ID, exitTime, durationMin, fee, status); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNoActiveSession
			}
			return err
		}

		if session.ReservationID != 0 {
			err := tx.Reservations().Transition(
				ctx, session.ReservationID,
				[]domain.ReservationStatus{domain.ReservationCheckedIn},
				domain.ReservationCompleted,
			)
			if err != nil && !errors.Is(err, repository.ErrConflict) {
				return err
			}
		}

		after(func(ctx context.Context) {
			s.invalidate(ctx, session.FacilityID)
			s.publish(ctx, domain.LifecycleEvent{
				Type:       domain.EventExit,
				FacilityID: session.FacilityID,
				Plate:      plate,
				SpotName:   session.SpotName,
				SessionID:  session.ID,
				Amount:     fee,
			})
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.recordGate(ctx, session.FacilityID, plate, domain.GateOpen, in.Method, exitTime)

	session.ExitTime = &exitTime
	session.DurationMin = durationMin
	session.Fee = fee
	session.PaymentStatus = status

	return &ExitResult{
		Session:    session,
		GateAction: domain.GateOpen,
		NewBalance: balance,
		Charged:    charged,
	}, nil
}

func (s *Service) recordGate(
	ctx context.Context,
	facilityID int64,
	plate string,
	action domain.GateAction,
	triggeredBy string,
	at time.Time,
) {
	_ = s.store.Audit().RecordGateEvent(ctx, &domain.GateEvent{
		FacilityID:  facilityID,
		Plate:       plate,
		Action:      action,
		TriggeredBy: triggeredBy,
		OccurredAt:  at,
	})
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
