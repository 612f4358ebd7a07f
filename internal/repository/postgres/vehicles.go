package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

// VehicleRepo is the plate directory consulted at entry time. Plates
// are stored normalized and unique.
type VehicleRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *VehicleRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const vehicleColumns = `id, account_id, plate_number, make, model, vehicle_type, is_active`

func scanVehicle(row interface{ Scan(...any) error }) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(&v.ID, &v.AccountID, &v.Plate, &v.Make, &v.Model, &v.Type, &v.Active)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VehicleRepo) Register(ctx context.Context, v *domain.Vehicle) (int64, error) {
	const op = "postgres.VehicleRepo.Register"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO vehicles (account_id, plate_number, make, model, vehicle_type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		v.AccountID, v.Plate, v.Make, v.Model, v.Type,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *VehicleRepo) Get(ctx context.Context, id int64) (*domain.Vehicle, error) {
	const op = "postgres.VehicleRepo.Get"

	db := r.handle()

	v, err := scanVehicle(db.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return v, nil
}

func (r *VehicleRepo) LookupPlate(ctx context.Context, plate string) (*domain.Vehicle, error) {
	const op = "postgres.VehicleRepo.LookupPlate"

	db := r.handle()

	v, err := scanVehicle(db.QueryRow(ctx,
		`SELECT `+vehicleColumns+`
		   FROM vehicles
		  WHERE plate_number = $1 AND is_active`,
		plate,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return v, nil
}

func (r *VehicleRepo) List(ctx context.Context, accountID int64) ([]domain.Vehicle, error) {
	const op = "postgres.VehicleRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+vehicleColumns+`
		   FROM vehicles
		  WHERE ($1 = 0 OR account_id = $1)
		  ORDER BY id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// SubscriptionRepo reads monthly passes. The engine treats them as a
// read-only directory at entry; rows are written by the admin service.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SubscriptionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *SubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) (int64, error) {
	const op = "postgres.SubscriptionRepo.Create"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO subscriptions
		    (vehicle_id, facility_id, account_id, plan, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		s.VehicleID, s.FacilityID, s.AccountID, s.Plan, s.StartDate, s.EndDate, s.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *SubscriptionRepo) ActiveFor(
	ctx context.Context,
	vehicleID, facilityID int64,
	at time.Time,
) (*domain.Subscription, error) {
	const op = "postgres.SubscriptionRepo.ActiveFor"

	db := r.handle()

	var s domain.Subscription
	err := db.QueryRow(ctx,
		`SELECT id, vehicle_id, facility_id, account_id, plan, start_date, end_date, status
		   FROM subscriptions
		  WHERE vehicle_id = $1
		    AND facility_id = $2
		    AND status = 'active'
		    AND start_date <= $3
		    AND end_date > $3
		  ORDER BY end_date DESC
		  LIMIT 1`,
		vehicleID, facilityID, at,
	).Scan(&s.ID, &s.VehicleID, &s.FacilityID, &s.AccountID, &s.Plan, &s.StartDate, &s.EndDate, &s.Status)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &s, nil
}

var _ repository.Vehicles = (*VehicleRepo)(nil)
var _ repository.Subscriptions = (*SubscriptionRepo)(nil)
