package service

import (
	"github.com/parkgate/parkgate/internal/repository"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
	"github.com/parkgate/parkgate/internal/service/admin"
	"github.com/parkgate/parkgate/internal/service/allocation"
	"github.com/parkgate/parkgate/internal/service/booking"
	"github.com/parkgate/parkgate/internal/service/query"
	"github.com/parkgate/parkgate/internal/service/wallet"
)

type Services struct {
	Allocation *allocation.Service
	Booking    *booking.Service
	Wallet     *wallet.Service
	Query      *query.Service
	Admin      *admin.Service
}

type Config struct {
	Allocation allocation.Config
	Booking    booking.Config
	Query      query.Config
}

// NewServices wires the service layer against a store. The redis
// collaborators are optional: a nil cache, pubsub or limiter disables
// that concern, which is how the memory-backed dev mode runs.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.LifecyclePubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Services {
	return &Services{
		Allocation: allocation.New(store, cache, pubsub, cfg.Allocation),
		Booking:    booking.New(store, cache, pubsub, limiter, cfg.Booking),
		Wallet:     wallet.New(store, pubsub),
		Query:      query.New(store, cache, cfg.Query),
		Admin:      admin.New(store, cache),
	}
}
