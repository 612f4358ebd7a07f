// Package repository defines the storage ports the services depend on,
// plus the sentinel errors every adapter translates its failures into.
// Two adapters exist: postgres (production) and memory (dev/test).
package repository

import (
	"context"
	"time"

	"github.com/parkgate/parkgate/internal/domain"
)

// Spots is the single serialization point for spot state. TryClaim and
// ReserveClass must select and mark a spot in one atomic step; a plain
// read-then-write sequence is not an acceptable implementation.
type Spots interface {
	// TryClaim picks the lowest-named free, active, unreserved spot of
	// the class and marks it occupied. ErrNoSpotAvailable when the
	// eligible set is empty.
	TryClaim(ctx context.Context, facilityID int64, class domain.SpotClass) (*domain.Spot, error)
	// ClaimReserved converts a reservation-held spot to occupied,
	// clearing the reserved flag. ErrConflict if it is already occupied
	// or out of service.
	ClaimReserved(ctx context.Context, spotID int64) (*domain.Spot, error)
	// Release frees a spot. Idempotent: releasing a free spot is a no-op.
	Release(ctx context.Context, spotID int64) error
	// ReserveClass picks a free spot of the class and marks it reserved
	// without occupying it. ErrNoSpotAvailable when none qualify.
	ReserveClass(ctx context.Context, facilityID int64, class domain.SpotClass) (*domain.Spot, error)
	// Unreserve clears the reserved flag. Idempotent.
	Unreserve(ctx context.Context, spotID int64) error

	ListByFacility(ctx context.Context, facilityID int64) ([]domain.Spot, error)
	Update(ctx context.Context, spotID int64, class *domain.SpotClass, active *bool) error
	Occupancy(ctx context.Context, facilityID int64) (*domain.Occupancy, error)
}

type SessionFilter struct {
	FacilityID int64
	Plate      string
	OpenOnly   bool
	Limit      int
}

type Sessions interface {
	// Create inserts an open session. ErrConflict when an open session
	// already exists for the plate (this is the duplicate-entry guard
	// that holds under concurrency).
	Create(ctx context.Context, s *domain.Session) (int64, error)
	FindOpenByPlate(ctx context.Context, plate string) (*domain.Session, error)
	// Close stamps exit data on an open session. ErrNotFound when the
	// session does not exist or is already closed.
	Close(ctx context.Context, id int64, exitTime time.Time, durationMin int, fee int64, status domain.PaymentStatus) error
	Get(ctx context.Context, id int64) (*domain.Session, error)
	List(ctx context.Context, f SessionFilter) ([]domain.Session, error)
}

type ReservationFilter struct {
	FacilityID int64
	VehicleID  int64
	Status     domain.ReservationStatus
	Limit      int
}

type Reservations interface {
	Create(ctx context.Context, r *domain.Reservation) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Reservation, error)
	GetByToken(ctx context.Context, token string) (*domain.Reservation, error)
	// FindForEntry returns a confirmed reservation for the vehicle at
	// the facility whose window contains at, or ErrNotFound.
	FindForEntry(ctx context.Context, vehicleID, facilityID int64, at time.Time) (*domain.Reservation, error)
	// Transition moves a reservation to the target status only if its
	// current status is one of from; otherwise ErrConflict.
	Transition(ctx context.Context, id int64, from []domain.ReservationStatus, to domain.ReservationStatus) error
	// ExpireNoShows flips every confirmed reservation whose window ended
	// at or before cutoff to no_show and returns the affected rows.
	ExpireNoShows(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error)
	List(ctx context.Context, f ReservationFilter) ([]domain.Reservation, error)
}

type Wallets interface {
	Get(ctx context.Context, accountID int64) (*domain.Wallet, error)
	// Credit adds amount, creating the wallet on first top-up. Returns
	// the new balance.
	Credit(ctx context.Context, accountID int64, amount int64) (int64, error)
	// Debit subtracts amount only if the balance covers it, in one
	// atomic step. ErrInsufficientFunds leaves the balance untouched.
	Debit(ctx context.Context, accountID int64, amount int64) (int64, error)
	RecordPayment(ctx context.Context, p *domain.Payment) error
	Payments(ctx context.Context, accountID int64, limit int) ([]domain.Payment, error)
}

type Vehicles interface {
	Register(ctx context.Context, v *domain.Vehicle) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Vehicle, error)
	// LookupPlate resolves a normalized plate to its registration, or
	// ErrNotFound for unregistered plates.
	LookupPlate(ctx context.Context, plate string) (*domain.Vehicle, error)
	List(ctx context.Context, accountID int64) ([]domain.Vehicle, error)
}

type Subscriptions interface {
	Create(ctx context.Context, s *domain.Subscription) (int64, error)
	// ActiveFor returns the subscription covering the vehicle at the
	// facility at time at, or ErrNotFound.
	ActiveFor(ctx context.Context, vehicleID, facilityID int64, at time.Time) (*domain.Subscription, error)
}

type Facilities interface {
	Create(ctx context.Context, f *domain.Facility) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Facility, error)
	List(ctx context.Context) ([]domain.Facility, error)
	Update(ctx context.Context, f *domain.Facility) error
	// InitSpots bulk-creates count spots named prefix-01..prefix-NN.
	// ErrConflict if the facility already has spots.
	InitSpots(ctx context.Context, facilityID int64, count int, prefix string, class domain.SpotClass) (int, error)
}

// Audit receives gate decisions and plate detections. Callers treat it
// as fire-and-forget: a failed write never rolls back engine state.
type Audit interface {
	RecordGateEvent(ctx context.Context, ev *domain.GateEvent) error
	RecordDetection(ctx context.Context, d *domain.Detection) (int64, error)
	Detections(ctx context.Context, facilityID int64, limit int) ([]domain.Detection, error)
}

// Tx is the slice of the store visible inside a unit of work: the
// entities whose writes must land together.
type Tx interface {
	Spots() Spots
	Sessions() Sessions
	Reservations() Reservations
	Wallets() Wallets
}

// AfterCommit runs after a unit of work has committed.
type AfterCommit func(ctx context.Context)

type Store interface {
	Tx
	Vehicles() Vehicles
	Subscriptions() Subscriptions
	Facilities() Facilities
	Audit() Audit

	// Atomic runs fn as one unit of work. Hooks registered through
	// after run exactly once, only if the work committed.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx, after func(AfterCommit)) error) error
}
