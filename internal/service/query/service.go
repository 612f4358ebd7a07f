// Package query serves the read side: occupancy snapshots, facility
// listings, spot maps, session and reservation history. Hot reads go
// through the redis cache with short TTLs; writes invalidate via
// after-commit hooks in the write services.
package query

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
	ErrFacilityNotFound = errors.New("facility not found")
	ErrSessionNotFound  = errors.New("session not found")
)

type Config struct {
	OccupancyTTL time.Duration
	SpotsTTL     time.Duration
	FacilityTTL  time.Duration
	DefaultPage  int
	MaxPage      int
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.OccupancyTTL <= 0 {
		cfg.OccupancyTTL = 15 * time.Second
	}

	if cfg.SpotsTTL <= 0 {
		cfg.SpotsTTL = 30 * time.Second
	}

	if cfg.FacilityTTL <= 0 {
		cfg.FacilityTTL = 60 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 50
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 500
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// Occupancy returns the live spot counts for a facility. Gates and
// display boards poll this, so it is cached with a short TTL and the
// cold path is collapsed through singleflight.
func (s *Service) Occupancy(ctx context.Context, facilityID int64) (*domain.Occupancy, error) {
	const op = "service.query.Occupancy"

	load := func(ctx context.Context) (domain.Occupancy, error) {
		oc, err := s.store.Spots().Occupancy(ctx, facilityID)
		if err != nil {
			return domain.Occupancy{}, err
		}
		return *oc, nil
	}

	if s.cache == nil {
		oc, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return &oc, nil
	}

	oc, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyFacilityOccupancy(facilityID),
		s.cfg.OccupancyTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &oc, nil
}

// Facilities lists active facilities.
func (s *Service) Facilities(ctx context.Context) ([]domain.Facility, error) {
	const op = "service.query.Facilities"

	load := func(ctx context.Context) ([]domain.Facility, error) {
		return s.store.Facilities().List(ctx)
	}

	if s.cache == nil {
		out, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return out, nil
	}

	out, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyFacilityList(),
		s.cfg.FacilityTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Facility returns one facility by ID.
func (s *Service) Facility(ctx context.Context, id int64) (*domain.Facility, error) {
	const op = "service.query.Facility"

	f, err := s.store.Facilities().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrFacilityNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return f, nil
}

// Spots returns the spot map of a facility, cached briefly.
func (s *Service) Spots(ctx context.Context, facilityID int64) ([]domain.Spot, error) {
	const op = "service.query.Spots"

	load := func(ctx context.Context) ([]domain.Spot, error) {
		return s.store.Spots().ListByFacility(ctx, facilityID)
	}

	if s.cache == nil {
		out, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return out, nil
	}

	out, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyFacilitySpots(facilityID),
		s.cfg.SpotsTTL,
		load,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Session returns one session by ID.
func (s *Service) Session(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "service.query.Session"

	sess, err := s.store.Sessions().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sess, nil
}

// Sessions lists sessions, newest first. Uncached: history queries are
// rare compared to occupancy polling.
func (s *Service) Sessions(ctx context.Context, f repository.SessionFilter) ([]domain.Session, error) {
	const op = "service.query.Sessions"

	f.Limit = s.clampPage(f.Limit)

	out, err := s.store.Sessions().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Reservations lists reservations, newest window first.
func (s *Service) Reservations(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, error) {
	const op = "service.query.Reservations"

	f.Limit = s.clampPage(f.Limit)

	out, err := s.store.Reservations().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) clampPage(n int) int {
	if n <= 0 {
		return s.cfg.DefaultPage
	}
	if n > s.cfg.MaxPage {
		return s.cfg.MaxPage
	}
	return n
}
