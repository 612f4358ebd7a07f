package domain

// Event types published on the lifecycle channel for external
// dispatchers (push notifications, dashboards). Fire-and-forget: a
// failed publish never rolls back engine state.
const (
	EventEntry                = "session_entry"
	EventExit                 = "session_exit"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationNoShow    = "reservation_no_show"
	EventWalletTopUp          = "wallet_topup"
)

// LifecycleEvent is the payload emitted to the notification channel.
type LifecycleEvent struct {
	Type          string `json:"type"`
	FacilityID    int64  `json:"facility_id,omitempty"`
	Plate         string `json:"plate,omitempty"`
	SpotName      string `json:"spot_name,omitempty"`
	SessionID     int64  `json:"session_id,omitempty"`
	ReservationID int64  `json:"reservation_id,omitempty"`
	AccountID     int64  `json:"account_id,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	TsUnix        int64  `json:"ts_unix"`
}
