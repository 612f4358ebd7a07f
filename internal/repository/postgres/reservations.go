package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

// ReservationRepo persists reservations. Status moves only through
// Transition, which compares against the allowed source states in the
// UPDATE itself, so concurrent transitions cannot both win.
type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const reservationColumns = `id, vehicle_id, facility_id, spot_id, spot_name, spot_class,
	reserved_start, reserved_end, status, fee, payment_status, checkin_token`

func scanReservation(row interface{ Scan(...any) error }) (*domain.Reservation, error) {
	var rv domain.Reservation
	err := row.Scan(
		&rv.ID, &rv.VehicleID, &rv.FacilityID, &rv.SpotID, &rv.SpotName, &rv.SpotClass,
		&rv.Start, &rv.End, &rv.Status, &rv.Fee, &rv.PaymentStatus, &rv.Token,
	)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *ReservationRepo) Create(ctx context.Context, rv *domain.Reservation) (int64, error) {
	const op = "postgres.ReservationRepo.Create"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO reservations
		    (vehicle_id, facility_id, spot_id, spot_name, spot_class,
		     reserved_start, reserved_end, status, fee, payment_status, checkin_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		rv.VehicleID, rv.FacilityID, rv.SpotID, rv.SpotName, rv.SpotClass,
		rv.Start, rv.End, rv.Status, rv.Fee, rv.PaymentStatus, rv.Token,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *ReservationRepo) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Get"

	db := r.handle()

	rv, err := scanReservation(db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return rv, nil
}

func (r *ReservationRepo) GetByToken(ctx context.Context, token string) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.GetByToken"

	db := r.handle()

	rv, err := scanReservation(db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE checkin_token = $1`,
		token,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return rv, nil
}

func (r *ReservationRepo) FindForEntry(
	ctx context.Context,
	vehicleID, facilityID int64,
	at time.Time,
) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.FindForEntry"

	db := r.handle()

	rv, err := scanReservation(db.QueryRow(ctx,
		`SELECT `+reservationColumns+`
		   FROM reservations
		  WHERE vehicle_id = $1
		    AND facility_id = $2
		    AND status = 'confirmed'
		    AND reserved_start <= $3
		    AND reserved_end > $3
		  ORDER BY reserved_start
		  LIMIT 1`,
		vehicleID, facilityID, at,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return rv, nil
}

func (r *ReservationRepo) Transition(
	ctx context.Context,
	id int64,
	from []domain.ReservationStatus,
	to domain.ReservationStatus,
) error {
	const op = "postgres.ReservationRepo.Transition"

	db := r.handle()

	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}

	tag, err := db.Exec(ctx,
		`UPDATE reservations
		    SET status = $2, updated_at = now()
		  WHERE id = $1 AND status = ANY($3)`,
		id, to, states,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

func (r *ReservationRepo) ExpireNoShows(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ExpireNoShows"

	db := r.handle()

	rows, err := db.Query(ctx,
		`UPDATE reservations
		    SET status = 'no_show', updated_at = now()
		  WHERE status = 'confirmed' AND reserved_end <= $1
		  RETURNING `+reservationColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		rv, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *ReservationRepo) List(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.List"

	db := r.handle()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(ctx,
		`SELECT `+reservationColumns+`
		   FROM reservations
		  WHERE ($1 = 0 OR facility_id = $1)
		    AND ($2 = 0 OR vehicle_id = $2)
		    AND ($3 = '' OR status = $3)
		  ORDER BY reserved_start DESC
		  LIMIT $4`,
		f.FacilityID, f.VehicleID, string(f.Status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		rv, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
