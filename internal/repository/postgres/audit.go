package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkgate/parkgate/internal/domain"
)

// AuditRepo appends gate decisions and plate detections. Append-only;
// the engine never reads gate events back.
type AuditRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AuditRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AuditRepo) RecordGateEvent(ctx context.Context, ev *domain.GateEvent) error {
	const op = "postgres.AuditRepo.RecordGateEvent"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO gate_events (facility_id, plate_number, action, triggered_by, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.FacilityID, ev.Plate, ev.Action, ev.TriggeredBy, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *AuditRepo) RecordDetection(ctx context.Context, d *domain.Detection) (int64, error) {
	const op = "postgres.AuditRepo.RecordDetection"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO detections
		    (camera_id, facility_id, plate_number, confidence, is_registered, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		d.CameraID, d.FacilityID, d.Plate, d.Confidence, d.Registered, d.DetectedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *AuditRepo) Detections(ctx context.Context, facilityID int64, limit int) ([]domain.Detection, error) {
	const op = "postgres.AuditRepo.Detections"

	db := r.handle()

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(ctx,
		`SELECT id, camera_id, facility_id, plate_number, confidence, is_registered, detected_at
		   FROM detections
		  WHERE ($1 = 0 OR facility_id = $1)
		  ORDER BY detected_at DESC
		  LIMIT $2`,
		facilityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Detection
	for rows.Next() {
		var d domain.Detection
		if err := rows.Scan(
			&d.ID, &d.CameraID, &d.FacilityID, &d.Plate,
			&d.Confidence, &d.Registered, &d.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
