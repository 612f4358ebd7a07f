package domain

import (
	"time"
)

type SpotClass string

const (
	SpotRegular    SpotClass = "regular"
	SpotAccessible SpotClass = "accessible"
	SpotEV         SpotClass = "ev"
	SpotReserved   SpotClass = "reserved"
)

type SessionType string

const (
	SessionWalkIn       SessionType = "walk_in"
	SessionReserved     SessionType = "reserved"
	SessionSubscription SessionType = "subscription"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentWaived  PaymentStatus = "waived"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCheckedIn ReservationStatus = "checked_in"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationNoShow    ReservationStatus = "no_show"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type GateAction string

const (
	GateOpen    GateAction = "open"
	GatePending GateAction = "pending"
	GateDeny    GateAction = "deny"
)

// Facility is one physical parking site. Rates are in minor currency
// units; ReservationRate is the flat fee charged at booking time.
type Facility struct {
	ID              int64
	Name            string
	Address         string
	City            string
	TotalSpots      int
	HourlyRate      int64
	ReservationRate int64
	OpensAt         string
	ClosesAt        string
	Active          bool
}

// Spot is one physical parking bay, uniquely named within its facility.
// Occupied and Reserved are mutually exclusive; Active false means the
// bay is out of service.
type Spot struct {
	ID         int64
	FacilityID int64
	Name       string
	Class      SpotClass
	Occupied   bool
	Reserved   bool
	Active     bool
}

type Vehicle struct {
	ID        int64
	AccountID int64
	Plate     string
	Make      string
	Model     string
	Type      string
	Active    bool
}

// Session is one vehicle visit from entry to exit. VehicleID is zero for
// unregistered plates. ExitTime nil means the session is still open.
type Session struct {
	ID            int64
	VehicleID     int64
	FacilityID    int64
	SpotID        int64
	ReservationID int64
	Plate         string
	SpotName      string
	Type          SessionType
	EntryMethod   string
	EntryTime     time.Time
	ExitTime      *time.Time
	DurationMin   int
	Fee           int64
	PaymentStatus PaymentStatus
}

func (s *Session) Open() bool { return s.ExitTime == nil }

// Reservation holds one spot for the whole [Start, End) window. Token is
// the opaque check-in credential handed to the booker.
type Reservation struct {
	ID            int64
	VehicleID     int64
	FacilityID    int64
	SpotID        int64
	SpotName      string
	SpotClass     SpotClass
	Start         time.Time
	End           time.Time
	Status        ReservationStatus
	Fee           int64
	PaymentStatus PaymentStatus
	Token         string
}

type Subscription struct {
	ID         int64
	VehicleID  int64
	FacilityID int64
	AccountID  int64
	Plan       string
	StartDate  time.Time
	EndDate    time.Time
	Status     SubscriptionStatus
}

// Covers reports whether the subscription is active at t.
func (s *Subscription) Covers(t time.Time) bool {
	return s.Status == SubscriptionActive && !t.Before(s.StartDate) && t.Before(s.EndDate)
}

// Wallet is a prepaid, non-negative balance in minor currency units.
type Wallet struct {
	AccountID int64
	Balance   int64
	Currency  string
	UpdatedAt time.Time
}

type Payment struct {
	ID          int64
	AccountID   int64
	SessionID   int64
	Amount      int64
	Method      string
	Status      string
	Description string
	CreatedAt   time.Time
}

// Occupancy is a live per-facility spot count snapshot.
type Occupancy struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
}

// GateEvent is an audit record of a barrier decision. The engine never
// drives hardware; it only records what it decided.
type GateEvent struct {
	ID          int64
	FacilityID  int64
	Plate       string
	Action      GateAction
	TriggeredBy string
	OccurredAt  time.Time
}

// Detection is a raw plate sighting reported by an external recognizer.
type Detection struct {
	ID         int64
	CameraID   string
	FacilityID int64
	Plate      string
	Confidence float64
	Registered bool
	DetectedAt time.Time
}
