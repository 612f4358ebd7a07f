// Package memory is an in-process implementation of the repository
// ports: one mutex over plain maps, snapshot rollback for units of
// work. It backs STORE=memory for local development and gives the
// service tests a real, racy-by-construction backend to exercise the
// atomicity contracts against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

type state struct {
	seq           int64
	facilities    map[int64]*domain.Facility
	spots         map[int64]*domain.Spot
	vehicles      map[int64]*domain.Vehicle
	sessions      map[int64]*domain.Session
	reservations  map[int64]*domain.Reservation
	subscriptions map[int64]*domain.Subscription
	wallets       map[int64]*domain.Wallet
	payments      []domain.Payment
	gateEvents    []domain.GateEvent
	detections    []domain.Detection
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// clone deep-copies the state so Atomic can restore it when the unit of
// work fails, mirroring the rollback the postgres adapter gets from its
// transactions.
func (st *state) clone() *state {
	cp := &state{
		seq:           st.seq,
		facilities:    make(map[int64]*domain.Facility, len(st.facilities)),
		spots:         make(map[int64]*domain.Spot, len(st.spots)),
		vehicles:      make(map[int64]*domain.Vehicle, len(st.vehicles)),
		sessions:      make(map[int64]*domain.Session, len(st.sessions)),
		reservations:  make(map[int64]*domain.Reservation, len(st.reservations)),
		subscriptions: make(map[int64]*domain.Subscription, len(st.subscriptions)),
		wallets:       make(map[int64]*domain.Wallet, len(st.wallets)),
		payments:      append([]domain.Payment(nil), st.payments...),
		gateEvents:    append([]domain.GateEvent(nil), st.gateEvents...),
		detections:    append([]domain.Detection(nil), st.detections...),
	}
	for k, v := range st.facilities {
		f := *v
		cp.facilities[k] = &f
	}
	for k, v := range st.spots {
		s := *v
		cp.spots[k] = &s
	}
	for k, v := range st.vehicles {
		ve := *v
		cp.vehicles[k] = &ve
	}
	for k, v := range st.sessions {
		s := *v
		cp.sessions[k] = &s
	}
	for k, v := range st.reservations {
		r := *v
		cp.reservations[k] = &r
	}
	for k, v := range st.subscriptions {
		s := *v
		cp.subscriptions[k] = &s
	}
	for k, v := range st.wallets {
		w := *v
		cp.wallets[k] = &w
	}
	return cp
}

// restore overwrites the state with a snapshot taken by clone.
func (st *state) restore(snap *state) {
	*st = *snap
}

// Store serializes every operation behind one mutex; Atomic holds the
// mutex for the whole unit of work, which is the in-process equivalent
// of the per-facility critical section the postgres adapter gets from
// its transactions.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: &state{
		facilities:    make(map[int64]*domain.Facility),
		spots:         make(map[int64]*domain.Spot),
		vehicles:      make(map[int64]*domain.Vehicle),
		sessions:      make(map[int64]*domain.Session),
		reservations:  make(map[int64]*domain.Reservation),
		subscriptions: make(map[int64]*domain.Subscription),
		wallets:       make(map[int64]*domain.Wallet),
	}}
}

func (s *Store) Spots() repository.Spots                 { return &spotRepo{st: s.st, mu: &s.mu} }
func (s *Store) Sessions() repository.Sessions           { return &sessionRepo{st: s.st, mu: &s.mu} }
func (s *Store) Reservations() repository.Reservations   { return &reservationRepo{st: s.st, mu: &s.mu} }
func (s *Store) Wallets() repository.Wallets             { return &walletRepo{st: s.st, mu: &s.mu} }
func (s *Store) Vehicles() repository.Vehicles           { return &vehicleRepo{st: s.st, mu: &s.mu} }
func (s *Store) Subscriptions() repository.Subscriptions { return &subscriptionRepo{st: s.st, mu: &s.mu} }
func (s *Store) Facilities() repository.Facilities       { return &facilityRepo{st: s.st, mu: &s.mu} }
func (s *Store) Audit() repository.Audit                 { return &auditRepo{st: s.st, mu: &s.mu} }

// Atomic runs fn under the store mutex. The state is snapshotted first
// and restored when fn fails, so a failed unit of work leaves no
// partial writes. After-commit hooks run outside the lock and only
// when fn succeeded.
func (s *Store) Atomic(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx, after func(repository.AfterCommit)) error,
) error {
	var hooks []repository.AfterCommit

	s.mu.Lock()
	snap := s.st.clone()
	err := fn(ctx, &txStore{st: s.st}, func(h repository.AfterCommit) {
		hooks = append(hooks, h)
	})
	if err != nil {
		s.st.restore(snap)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

type txStore struct {
	st *state
}

func (t *txStore) Spots() repository.Spots               { return &spotRepo{st: t.st} }
func (t *txStore) Sessions() repository.Sessions         { return &sessionRepo{st: t.st} }
func (t *txStore) Reservations() repository.Reservations { return &reservationRepo{st: t.st} }
func (t *txStore) Wallets() repository.Wallets           { return &walletRepo{st: t.st} }

// lock acquires the store mutex when the repo is used outside Atomic.
// Inside a unit of work mu is nil: the mutex is already held.
func lock(mu *sync.Mutex) func() {
	if mu == nil {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// --- spots ---

type spotRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *spotRepo) eligible(facilityID int64, class domain.SpotClass) *domain.Spot {
	var candidates []*domain.Spot
	for _, sp := range r.st.spots {
		if sp.FacilityID == facilityID && sp.Class == class &&
			sp.Active && !sp.Occupied && !sp.Reserved {
			candidates = append(candidates, sp)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	return candidates[0]
}

func (r *spotRepo) TryClaim(ctx context.Context, facilityID int64, class domain.SpotClass) (*domain.Spot, error) {
	const op = "memory.spotRepo.TryClaim"
	defer lock(r.mu)()

	sp := r.eligible(facilityID, class)
	if sp == nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNoSpotAvailable)
	}

	sp.Occupied = true
	cp := *sp
	return &cp, nil
}

func (r *spotRepo) ClaimReserved(ctx context.Context, spotID int64) (*domain.Spot, error) {
	const op = "memory.spotRepo.ClaimReserved"
	defer lock(r.mu)()

	sp, ok := r.st.spots[spotID]
	if !ok || !sp.Active || sp.Occupied {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	sp.Occupied = true
	sp.Reserved = false
	cp := *sp
	return &cp, nil
}

func (r *spotRepo) Release(ctx context.Context, spotID int64) error {
	defer lock(r.mu)()

	if sp, ok := r.st.spots[spotID]; ok {
		sp.Occupied = false
		sp.Reserved = false
	}

	return nil
}

func (r *spotRepo) ReserveClass(ctx context.Context, facilityID int64, class domain.SpotClass) (*domain.Spot, error) {
	const op = "memory.spotRepo.ReserveClass"
	defer lock(r.mu)()

	sp := r.eligible(facilityID, class)
	if sp == nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNoSpotAvailable)
	}

	sp.Reserved = true
	cp := *sp
	return &cp, nil
}

func (r *spotRepo) Unreserve(ctx context.Context, spotID int64) error {
	defer lock(r.mu)()

	if sp, ok := r.st.spots[spotID]; ok {
		sp.Reserved = false
	}

	return nil
}

func (r *spotRepo) ListByFacility(ctx context.Context, facilityID int64) ([]domain.Spot, error) {
	defer lock(r.mu)()

	var out []domain.Spot
	for _, sp := range r.st.spots {
		if sp.FacilityID == facilityID {
			out = append(out, *sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (r *spotRepo) Update(ctx context.Context, spotID int64, class *domain.SpotClass, active *bool) error {
	const op = "memory.spotRepo.Update"
	defer lock(r.mu)()

	sp, ok := r.st.spots[spotID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if class != nil {
		sp.Class = *class
	}
	if active != nil {
		sp.Active = *active
	}

	return nil
}

func (r *spotRepo) Occupancy(ctx context.Context, facilityID int64) (*domain.Occupancy, error) {
	defer lock(r.mu)()

	var oc domain.Occupancy
	for _, sp := range r.st.spots {
		if sp.FacilityID != facilityID || !sp.Active {
			continue
		}
		oc.Total++
		switch {
		case sp.Occupied:
			oc.Occupied++
		case sp.Reserved:
			oc.Reserved++
		}
	}
	oc.Available = oc.Total - oc.Occupied - oc.Reserved

	return &oc, nil
}

// --- sessions ---

type sessionRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *sessionRepo) openByPlate(plate string) *domain.Session {
	for _, s := range r.st.sessions {
		if s.Plate == plate && s.Open() {
			return s
		}
	}
	return nil
}

func (r *sessionRepo) Create(ctx context.Context, s *domain.Session) (int64, error) {
	const op = "memory.sessionRepo.Create"
	defer lock(r.mu)()

	// Same guarantee as the postgres partial unique index.
	if r.openByPlate(s.Plate) != nil {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	cp := *s
	cp.ID = r.st.nextID()
	r.st.sessions[cp.ID] = &cp

	return cp.ID, nil
}

func (r *sessionRepo) FindOpenByPlate(ctx context.Context, plate string) (*domain.Session, error) {
	const op = "memory.sessionRepo.FindOpenByPlate"
	defer lock(r.mu)()

	s := r.openByPlate(plate)
	if s == nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *s
	return &cp, nil
}

func (r *sessionRepo) Close(
	ctx context.Context,
	id int64,
	exitTime time.Time,
	durationMin int,
	fee int64,
	status domain.PaymentStatus,
) error {
	const op = "memory.sessionRepo.Close"
	defer lock(r.mu)()

	s, ok := r.st.sessions[id]
	if !ok || !s.Open() {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	t := exitTime
	s.ExitTime = &t
	s.DurationMin = durationMin
	s.Fee = fee
	s.PaymentStatus = status

	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "memory.sessionRepo.Get"
	defer lock(r.mu)()

	s, ok := r.st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *s
	return &cp, nil
}

func (r *sessionRepo) List(ctx context.Context, f repository.SessionFilter) ([]domain.Session, error) {
	defer lock(r.mu)()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []domain.Session
	for _, s := range r.st.sessions {
		if f.FacilityID != 0 && s.FacilityID != f.FacilityID {
			continue
		}
		if f.Plate != "" && s.Plate != f.Plate {
			continue
		}
		if f.OpenOnly && !s.Open() {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// --- reservations ---

type reservationRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *reservationRepo) Create(ctx context.Context, rv *domain.Reservation) (int64, error) {
	defer lock(r.mu)()

	cp := *rv
	cp.ID = r.st.nextID()
	r.st.reservations[cp.ID] = &cp

	return cp.ID, nil
}

func (r *reservationRepo) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "memory.reservationRepo.Get"
	defer lock(r.mu)()

	rv, ok := r.st.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *rv
	return &cp, nil
}

func (r *reservationRepo) GetByToken(ctx context.Context, token string) (*domain.Reservation, error) {
	const op = "memory.reservationRepo.GetByToken"
	defer lock(r.mu)()

	for _, rv := range r.st.reservations {
		if rv.Token == token {
			cp := *rv
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func (r *reservationRepo) FindForEntry(
	ctx context.Context,
	vehicleID, facilityID int64,
	at time.Time,
) (*domain.Reservation, error) {
	const op = "memory.reservationRepo.FindForEntry"
	defer lock(r.mu)()

	for _, rv := range r.st.reservations {
		if rv.VehicleID == vehicleID && rv.FacilityID == facilityID &&
			rv.Status == domain.ReservationConfirmed &&
			!at.Before(rv.Start) && at.Before(rv.End) {
			cp := *rv
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func (r *reservationRepo) Transition(
	ctx context.Context,
	id int64,
	from []domain.ReservationStatus,
	to domain.ReservationStatus,
) error {
	const op = "memory.reservationRepo.Transition"
	defer lock(r.mu)()

	rv, ok := r.st.reservations[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	for _, st := range from {
		if rv.Status == st {
			rv.Status = to
			return nil
		}
	}

	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

func (r *reservationRepo) ExpireNoShows(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error) {
	defer lock(r.mu)()

	var out []domain.Reservation
	for _, rv := range r.st.reservations {
		if rv.Status == domain.ReservationConfirmed && !rv.End.After(cutoff) {
			rv.Status = domain.ReservationNoShow
			out = append(out, *rv)
		}
	}

	return out, nil
}

func (r *reservationRepo) List(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, error) {
	defer lock(r.mu)()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []domain.Reservation
	for _, rv := range r.st.reservations {
		if f.FacilityID != 0 && rv.FacilityID != f.FacilityID {
			continue
		}
		if f.VehicleID != 0 && rv.VehicleID != f.VehicleID {
			continue
		}
		if f.Status != "" && rv.Status != f.Status {
			continue
		}
		out = append(out, *rv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// --- wallets ---

type walletRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *walletRepo) Get(ctx context.Context, accountID int64) (*domain.Wallet, error) {
	const op = "memory.walletRepo.Get"
	defer lock(r.mu)()

	w, ok := r.st.wallets[accountID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *w
	return &cp, nil
}

func (r *walletRepo) Credit(ctx context.Context, accountID int64, amount int64) (int64, error) {
	defer lock(r.mu)()

	w, ok := r.st.wallets[accountID]
	if !ok {
		w = &domain.Wallet{AccountID: accountID, Currency: "LKR"}
		r.st.wallets[accountID] = w
	}
	w.Balance += amount
	w.UpdatedAt = time.Now()

	return w.Balance, nil
}

func (r *walletRepo) Debit(ctx context.Context, accountID int64, amount int64) (int64, error) {
	const op = "memory.walletRepo.Debit"
	defer lock(r.mu)()

	w, ok := r.st.wallets[accountID]
	if !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if w.Balance < amount {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrInsufficientFunds)
	}

	w.Balance -= amount
	w.UpdatedAt = time.Now()

	return w.Balance, nil
}

func (r *walletRepo) RecordPayment(ctx context.Context, p *domain.Payment) error {
	defer lock(r.mu)()

	cp := *p
	cp.ID = r.st.nextID()
	cp.CreatedAt = time.Now()
	r.st.payments = append(r.st.payments, cp)

	return nil
}

func (r *walletRepo) Payments(ctx context.Context, accountID int64, limit int) ([]domain.Payment, error) {
	defer lock(r.mu)()

	if limit <= 0 {
		limit = 100
	}

	var out []domain.Payment
	for i := len(r.st.payments) - 1; i >= 0 && len(out) < limit; i-- {
		if r.st.payments[i].AccountID == accountID {
			out = append(out, r.st.payments[i])
		}
	}

	return out, nil
}

// --- vehicles ---

type vehicleRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *vehicleRepo) Register(ctx context.Context, v *domain.Vehicle) (int64, error) {
	const op = "memory.vehicleRepo.Register"
	defer lock(r.mu)()

	for _, existing := range r.st.vehicles {
		if existing.Plate == v.Plate {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	cp := *v
	cp.ID = r.st.nextID()
	cp.Active = true
	r.st.vehicles[cp.ID] = &cp

	return cp.ID, nil
}

func (r *vehicleRepo) Get(ctx context.Context, id int64) (*domain.Vehicle, error) {
	const op = "memory.vehicleRepo.Get"
	defer lock(r.mu)()

	v, ok := r.st.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *v
	return &cp, nil
}

func (r *vehicleRepo) LookupPlate(ctx context.Context, plate string) (*domain.Vehicle, error) {
	const op = "memory.vehicleRepo.LookupPlate"
	defer lock(r.mu)()

	for _, v := range r.st.vehicles {
		if v.Plate == plate && v.Active {
			cp := *v
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

func (r *vehicleRepo) List(ctx context.Context, accountID int64) ([]domain.Vehicle, error) {
	defer lock(r.mu)()

	var out []domain.Vehicle
	for _, v := range r.st.vehicles {
		if accountID == 0 || v.AccountID == accountID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// --- subscriptions ---

type subscriptionRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *subscriptionRepo) Create(ctx context.Context, s *domain.Subscription) (int64, error) {
	defer lock(r.mu)()

	cp := *s
	cp.ID = r.st.nextID()
	r.st.subscriptions[cp.ID] = &cp

	return cp.ID, nil
}

func (r *subscriptionRepo) ActiveFor(
	ctx context.Context,
	vehicleID, facilityID int64,
	at time.Time,
) (*domain.Subscription, error) {
	const op = "memory.subscriptionRepo.ActiveFor"
	defer lock(r.mu)()

	for _, s := range r.st.subscriptions {
		if s.VehicleID == vehicleID && s.FacilityID == facilityID && s.Covers(at) {
			cp := *s
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

// --- facilities ---

type facilityRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *facilityRepo) Create(ctx context.Context, f *domain.Facility) (int64, error) {
	defer lock(r.mu)()

	cp := *f
	cp.ID = r.st.nextID()
	cp.Active = true
	r.st.facilities[cp.ID] = &cp

	return cp.ID, nil
}

func (r *facilityRepo) Get(ctx context.Context, id int64) (*domain.Facility, error) {
	const op = "memory.facilityRepo.Get"
	defer lock(r.mu)()

	f, ok := r.st.facilities[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := *f
	return &cp, nil
}

func (r *facilityRepo) List(ctx context.Context) ([]domain.Facility, error) {
	defer lock(r.mu)()

	var out []domain.Facility
	for _, f := range r.st.facilities {
		if f.Active {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (r *facilityRepo) Update(ctx context.Context, f *domain.Facility) error {
	const op = "memory.facilityRepo.Update"
	defer lock(r.mu)()

	existing, ok := r.st.facilities[f.ID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	total := existing.TotalSpots
	cp := *f
	cp.TotalSpots = total
	r.st.facilities[f.ID] = &cp

	return nil
}

func (r *facilityRepo) InitSpots(
	ctx context.Context,
	facilityID int64,
	count int,
	prefix string,
	class domain.SpotClass,
) (int, error) {
	const op = "memory.facilityRepo.InitSpots"
	defer lock(r.mu)()

	f, ok := r.st.facilities[facilityID]
	if !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	for _, sp := range r.st.spots {
		if sp.FacilityID == facilityID {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	for i := 1; i <= count; i++ {
		id := r.st.nextID()
		r.st.spots[id] = &domain.Spot{
			ID:         id,
			FacilityID: facilityID,
			Name:       fmt.Sprintf("%s-%02d", prefix, i),
			Class:      class,
			Active:     true,
		}
	}
	f.TotalSpots = count

	return count, nil
}

// --- audit ---

type auditRepo struct {
	st *state
	mu *sync.Mutex
}

func (r *auditRepo) RecordGateEvent(ctx context.Context, ev *domain.GateEvent) error {
	defer lock(r.mu)()

	cp := *ev
	cp.ID = r.st.nextID()
	r.st.gateEvents = append(r.st.gateEvents, cp)

	return nil
}

func (r *auditRepo) RecordDetection(ctx context.Context, d *domain.Detection) (int64, error) {
	defer lock(r.mu)()

	cp := *d
	cp.ID = r.st.nextID()
	r.st.detections = append(r.st.detections, cp)

	return cp.ID, nil
}

func (r *auditRepo) Detections(ctx context.Context, facilityID int64, limit int) ([]domain.Detection, error) {
	defer lock(r.mu)()

	if limit <= 0 {
		limit = 50
	}

	var out []domain.Detection
	for i := len(r.st.detections) - 1; i >= 0 && len(out) < limit; i-- {
		d := r.st.detections[i]
		if facilityID == 0 || d.FacilityID == facilityID {
			out = append(out, d)
		}
	}

	return out, nil
}

var _ repository.Store = (*Store)(nil)
