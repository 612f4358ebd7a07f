package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
	"github.com/parkgate/parkgate/internal/repository"
)

// SpotRepo owns spot occupancy state. Both claim paths are single
// conditional UPDATEs: the row is selected and flipped in one statement,
// so two concurrent claims can never win the same spot.
type SpotRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SpotRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const spotColumns = `id, facility_id, spot_name, spot_class, is_occupied, is_reserved, is_active`

func scanSpot(row interface{ Scan(...any) error }) (*domain.Spot, error) {
	var s domain.Spot
	err := row.Scan(&s.ID, &s.FacilityID, &s.Name, &s.Class, &s.Occupied, &s.Reserved, &s.Active)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SpotRepo) TryClaim(ctx context.Context, facilityID int64, class domain.SpotClass) (*domain.Spot, error) {
	const op = "postgres.SpotRepo.TryClaim"

	db := r.handle()

	// Lowest spot name wins the tie-break; FOR UPDATE keeps the pick
	// deterministic under contention instead of skipping locked rows.
	spot, err := scanSpot(db.QueryRow(ctx,
		`UPDATE parking_spots
		    SET is_occupied = TRUE
		  WHERE id = (
		        SELECT id FROM parking_spots
		         WHERE facility_id = $1
		           AND spot_class = $2
		           AND is_active
		           AND NOT is_occupied
		           AND NOT is_reserved
		         ORDER BY spot_name
		         LIMIT 1
		         FOR UPDATE)
		  RETURNING `+spotColumns,
		facilityID, class,
	))
	if err != nil {
		if translateDBErr(err) == repository.ErrNotFound {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrNoSpotAvailable)
		}
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return spot, nil
}

func (r *SpotRepo) ClaimReserved(ctx context.Context, spotID int64) (*domain.Spot, error) {
	const op = "postgres.SpotRepo.ClaimReserved"

	db := r.handle()

	spot, err := scanSpot(db.QueryRow(ctx,
		`UPDATE parking_spots
		    SET is_occupied = TRUE, is_reserved = FALSE
		  WHERE id = $1 AND is_active AND NOT is_occupied
		  RETURNING `+spotColumns,
		spotID,
	))
	if err != nil {
		if translateDBErr(err) == repository.ErrNotFound {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return spot, nil
}

func (r *SpotRepo) Release(ctx context.Context, spotID int64) error {
	const op = "postgres.SpotRepo.Release"

	db := r.handle()

	// Idempotent: zero rows affected means the spot was already free.
	_, err := db.Exec(ctx,
		`UPDATE parking_spots
		    SET is_occupied = FALSE, is_reserved = FALSE
		  WHERE id = $1`,
		spotID,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *SpotRepo) ReserveClass(ctx context.Context, facilityID int64, class domain.SpotClass) (*domain.Spot, error) {
	const op = "postgres.SpotRepo.ReserveClass"

	db := r.handle()

	spot, err := scanSpot(db.QueryRow(ctx,
		`UPDATE parking_spots
		    SET is_reserved = TRUE
		  WHERE id = (
		        SELECT id FROM parking_spots
		         WHERE facility_id = $1
		           AND spot_class = $2
		           AND is_active
		           AND NOT is_occupied
		           AND NOT is_reserved
		         ORDER BY spot_name
		         LIMIT 1
		         FOR UPDATE)
		  RETURNING `+spotColumns,
		facilityID, class,
	))
	if err != nil {
		if translateDBErr(err) == repository.ErrNotFound {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrNoSpotAvailable)
		}
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return spot, nil
}

func (r *SpotRepo) Unreserve(ctx context.Context, spotID int64) error {
	const op = "postgres.SpotRepo.Unreserve"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE parking_spots SET is_reserved = FALSE WHERE id = $1`,
		spotID,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *SpotRepo) ListByFacility(ctx context.Context, facilityID int64) ([]domain.Spot, error) {
	const op = "postgres.SpotRepo.ListByFacility"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+spotColumns+`
		   FROM parking_spots
		  WHERE facility_id = $1
		  ORDER BY spot_name`,
		facilityID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
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

func (r *SpotRepo) Update(ctx context.Context, spotID int64, class *domain.SpotClass, active *bool) error {
	const op = "postgres.SpotRepo.Update"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE parking_spots
		    SET spot_class = COALESCE($2, spot_class),
		        is_active  = COALESCE($3, is_active)
		  WHERE id = $1`,
		spotID, class, active,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *SpotRepo) Occupancy(ctx context.Context, facilityID int64) (*domain.Occupancy, error) {
	const op = "postgres.SpotRepo.Occupancy"

	db := r.handle()

	var oc domain.Occupancy
	err := db.QueryRow(ctx,
		`SELECT
		    COUNT(*),
		    COALESCE(SUM(CASE WHEN is_occupied THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN is_reserved AND NOT is_occupied THEN 1 ELSE 0 END), 0)
		   FROM parking_spots
		  WHERE facility_id = $1 AND is_active`,
		facilityID,
	).Scan(&oc.Total, &oc.Occupied, &oc.Reserved)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	oc.Available = oc.Total - oc.Occupied - oc.Reserved

	return &oc, nil
}
