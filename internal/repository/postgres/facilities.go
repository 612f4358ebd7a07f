package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

type FacilityRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *FacilityRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const facilityColumns = `id, name, address, city, total_spots, hourly_rate,
	reservation_rate, opens_at, closes_at, is_active`

func scanFacility(row interface{ Scan(...any) error }) (*domain.Facility, error) {
	var f domain.Facility
	err := row.Scan(
		&f.ID, &f.Name, &f.Address, &f.City, &f.TotalSpots,
		&f.HourlyRate, &f.ReservationRate, &f.OpensAt, &f.ClosesAt, &f.Active,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FacilityRepo) Create(ctx context.Context, f *domain.Facility) (int64, error) {
	const op = "postgres.FacilityRepo.Create"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO facilities
		    (name, address, city, total_spots, hourly_rate, reservation_rate, opens_at, closes_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		f.Name, f.Address, f.City, f.TotalSpots, f.HourlyRate, f.ReservationRate, f.OpensAt, f.ClosesAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *FacilityRepo) Get(ctx context.Context, id int64) (*domain.Facility, error) {
	const op = "postgres.FacilityRepo.Get"

	db := r.handle()

	f, err := scanFacility(db.QueryRow(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return f, nil
}

func (r *FacilityRepo) List(ctx context.Context) ([]domain.Facility, error) {
	const op = "postgres.FacilityRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE is_active ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *FacilityRepo) Update(ctx context.Context, f *domain.Facility) error {
	const op = "postgres.FacilityRepo.Update"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE facilities
		    SET name = $2, address = $3, city = $4, hourly_rate = $5,
		        reservation_rate = $6, opens_at = $7, closes_at = $8,
		        is_active = $9, updated_at = now()
		  WHERE id = $1`,
		f.ID, f.Name, f.Address, f.City, f.HourlyRate,
		f.ReservationRate, f.OpensAt, f.ClosesAt, f.Active,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *FacilityRepo) InitSpots(
	ctx context.Context,
	facilityID int64,
	count int,
	prefix string,
	class domain.SpotClass,
) (int, error) {
	const op = "postgres.FacilityRepo.InitSpots"

	db := r.handle()

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM parking_spots WHERE facility_id = $1)`,
		facilityID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if exists {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	batch := &pgx.Batch{}
	for i := 1; i <= count; i++ {
		batch.Queue(
			`INSERT INTO parking_spots (facility_id, spot_name, spot_class)
			 VALUES ($1, $2, $3)`,
			facilityID, fmt.Sprintf("%s-%02d", prefix, i), class,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if _, err := db.Exec(ctx,
		`UPDATE facilities SET total_spots = $2, updated_at = now() WHERE id = $1`,
		facilityID, count,
	); err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return count, nil
}
