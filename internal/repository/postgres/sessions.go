package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

// SessionRepo persists parking sessions. Sessions are historical
// records: they are created at entry, stamped once at exit and never
// deleted. A partial unique index on (plate_number) WHERE exit_time IS
// NULL backs the one-open-session-per-plate invariant.
type SessionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SessionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const sessionColumns = `id, vehicle_id, facility_id, spot_id, reservation_id, plate_number,
	spot_name, session_type, entry_method, entry_time, exit_time, duration_minutes, fee, payment_status`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var (
		s             domain.Session
		vehicleID     *int64
		reservationID *int64
		durationMin   *int
		fee           *int64
		status        *string
	)
	err := row.Scan(
		&s.ID, &vehicleID, &s.FacilityID, &s.SpotID, &reservationID, &s.Plate,
		&s.SpotName, &s.Type, &s.EntryMethod, &s.EntryTime, &s.ExitTime,
		&durationMin, &fee, &status,
	)
	if err != nil {
		return nil, err
	}

	if vehicleID != nil {
		s.VehicleID = *vehicleID
	}
	if reservationID != nil {
		s.ReservationID = *reservationID
	}
	if durationMin != nil {
		s.DurationMin = *durationMin
	}
	if fee != nil {
		s.Fee = *fee
	}
	if status != nil {
		s.PaymentStatus = domain.PaymentStatus(*status)
	}

	return &s, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) (int64, error) {
	const op = "postgres.SessionRepo.Create"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO parking_sessions
		    (vehicle_id, facility_id, spot_id, reservation_id, plate_number,
		     spot_name, session_type, entry_method, entry_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		nullableID(s.VehicleID), s.FacilityID, s.SpotID, nullableID(s.ReservationID),
		s.Plate, s.SpotName, s.Type, s.EntryMethod, s.EntryTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *SessionRepo) FindOpenByPlate(ctx context.Context, plate string) (*domain.Session, error) {
	const op = "postgres.SessionRepo.FindOpenByPlate"

	db := r.handle()

	s, err := scanSession(db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		   FROM parking_sessions
		  WHERE plate_number = $1 AND exit_time IS NULL
		  ORDER BY entry_time DESC
		  LIMIT 1`,
		plate,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return s, nil
}

func (r *SessionRepo) Close(
	ctx context.Context,
	id int64,
	exitTime time.Time,
	durationMin int,
	fee int64,
	status domain.PaymentStatus,
) error {
	const op = "postgres.SessionRepo.Close"

	db := r.handle()

	// The exit_time IS NULL guard makes a double close report
	// ErrNotFound instead of silently rewriting history.
	tag, err := db.Exec(ctx,
		`UPDATE parking_sessions
		    SET exit_time = $2, duration_minutes = $3, fee = $4, payment_status = $5
		  WHERE id = $1 AND exit_time IS NULL`,
		id, exitTime, durationMin, fee, status,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "postgres.SessionRepo.Get"

	db := r.handle()

	s, err := scanSession(db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM parking_sessions WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return s, nil
}

func (r *SessionRepo) List(ctx context.Context, f repository.SessionFilter) ([]domain.Session, error) {
	const op = "postgres.SessionRepo.List"

	db := r.handle()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(ctx,
		`SELECT `+sessionColumns+`
		   FROM parking_sessions
		  WHERE ($1 = 0 OR facility_id = $1)
		    AND ($2 = '' OR plate_number = $2)
		    AND (NOT $3 OR exit_time IS NULL)
		  ORDER BY entry_time DESC
		  LIMIT $4`,
		f.FacilityID, f.Plate, f.OpenOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
