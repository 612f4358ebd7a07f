package httpgin

import "time"

type EntryRequest struct {
	FacilityID   int64  `json:"facility_id" binding:"required"`
	Plate        string `json:"plate" binding:"required"`
	SpotClass    string `json:"spot_class"`
	CheckInToken string `json:"checkin_token"`
	Method       string `json:"method"`
}

type EntryResponse struct {
	SessionID    int64  `json:"session_id"`
	SpotID       int64  `json:"spot_id"`
	SpotName     string `json:"spot_name"`
	SessionType  string `json:"session_type"`
	GateAction   string `json:"gate_action"`
	IsRegistered bool   `json:"is_registered"`
	EntryTime    string `json:"entry_time"`
}

type ExitRequest struct {
	Plate  string `json:"plate" binding:"required"`
	Method string `json:"method"`
}

type ExitResponse struct {
	SessionID     int64  `json:"session_id"`
	SpotName      string `json:"spot_name"`
	DurationMin   int    `json:"duration_min"`
	Fee           int64  `json:"fee"`
	PaymentStatus string `json:"payment_status"`
	GateAction    string `json:"gate_action"`
	NewBalance    int64  `json:"new_balance,omitempty"`
}

type CreateReservationRequest struct {
	VehicleID  int64  `json:"vehicle_id" binding:"required"`
	FacilityID int64  `json:"facility_id" binding:"required"`
	SpotClass  string `json:"spot_class"`
	Start      string `json:"start" binding:"required"`
	End        string `json:"end" binding:"required"`
}

type ReservationResponse struct {
	ID            int64  `json:"id"`
	SpotName      string `json:"spot_name"`
	SpotClass     string `json:"spot_class"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        string `json:"status"`
	Fee           int64  `json:"fee"`
	PaymentStatus string `json:"payment_status"`
	CheckInToken  string `json:"checkin_token,omitempty"`
}

type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type WalletResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
}

type FacilityRequest struct {
	Name            string `json:"name" binding:"required"`
	Address         string `json:"address"`
	City            string `json:"city"`
	HourlyRate      int64  `json:"hourly_rate" binding:"required,gte=0"`
	ReservationRate int64  `json:"reservation_rate"`
	OpensAt         string `json:"opens_at"`
	ClosesAt        string `json:"closes_at"`
	Active          *bool  `json:"is_active"`
}

type InitSpotsRequest struct {
	Count  int    `json:"count" binding:"required,gt=0"`
	Prefix string `json:"prefix" binding:"required"`
	Class  string `json:"class"`
}

type UpdateSpotRequest struct {
	Class  *string `json:"class"`
	Active *bool   `json:"is_active"`
}

type RegisterVehicleRequest struct {
	AccountID int64  `json:"account_id" binding:"required"`
	Plate     string `json:"plate" binding:"required"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	Type      string `json:"vehicle_type"`
}

type PurchaseSubscriptionRequest struct {
	VehicleID  int64  `json:"vehicle_id" binding:"required"`
	FacilityID int64  `json:"facility_id" binding:"required"`
	Plan       string `json:"plan" binding:"required"`
	Months     int    `json:"months" binding:"required,gt=0"`
	Price      int64  `json:"price" binding:"gte=0"`
}

type DetectionRequest struct {
	CameraID   string  `json:"camera_id" binding:"required"`
	FacilityID int64   `json:"facility_id" binding:"required"`
	Plate      string  `json:"plate" binding:"required"`
	Confidence float64 `json:"confidence"`
	DetectedAt string  `json:"detected_at"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	GateAction string `json:"gate_action,omitempty"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
