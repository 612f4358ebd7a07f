// Package pricing computes parking fees. It is a pure function of the
// session type, the billed duration and the facility rate; reservation
// fees are flat and charged at booking time, outside this package.
package pricing

import "github.com/parkgate/parkgate/internal/domain"

// BilledMinutes converts a raw stay into billed minutes, rounding any
// started minute up.
func BilledMinutes(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int((seconds + 59) / 60)
}

// ComputeFee returns the amount owed for a closed session in minor
// currency units. Subscription sessions are always free. Everything
// else pays per started hour with a minimum of one billed hour; the
// rounding is always up, never to the nearest.
func ComputeFee(sessionType domain.SessionType, durationMin int, hourlyRate int64) int64 {
	if sessionType == domain.SessionSubscription {
		return 0
	}

	hours := int64(durationMin+59) / 60
	if hours < 1 {
		hours = 1
	}

	return hours * hourlyRate
}
