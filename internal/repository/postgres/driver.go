package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"rideengine/internal/domain"
	"rideengine/internal/repository"
)

const driverSelect = `
	SELECT d.id, d.user_id, u.username, d.status, d.is_approved,
	       COALESCE(d.vehicle_model, ''), COALESCE(d.vehicle_plate, ''), COALESCE(d.vehicle_color, ''),
	       d.total_rides, d.total_earnings, d.total_distance_km,
	       d.average_rating, d.total_ratings, d.created_at, d.updated_at
	FROM drivers d
	JOIN users u ON u.id = d.user_id
`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository
// and repository.DriverPool.
type DriverRepository struct {
	q Querier
}

var (
	_ repository.DriverRepository = (*DriverRepository)(nil)
	_ repository.DriverPool       = (*DriverRepository)(nil)
)

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	return r.getOne(ctx, driverSelect+` WHERE d.id = $1`, id)
}

// GetByUserID retrieves the driver profile owned by a user.
func (r *DriverRepository) GetByUserID(ctx context.Context, userID string) (*domain.Driver, error) {
	return r.getOne(ctx, driverSelect+` WHERE d.user_id = $1`, userID)
}

// GetAll retrieves all drivers.
func (r *DriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	rows, err := r.q.QueryContext(ctx, driverSelect+` ORDER BY d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

// TransitionStatus sets the driver status when the current status is one of
// from. With no from statuses the write is unconditional.
func (r *DriverRepository) TransitionStatus(ctx context.Context, id string, to domain.DriverStatus, from ...domain.DriverStatus) (bool, error) {
	if len(from) == 0 {
		result, err := r.q.ExecContext(ctx, `UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2`, to, id)
		if err != nil {
			return false, err
		}
		ok, err := affectedOne(result)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, repository.ErrNotFound
		}
		return true, nil
	}

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`
	result, err := r.q.ExecContext(ctx, query, to, id, pq.Array(allowed))
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

// SetApproval marks the driver as approved or not.
func (r *DriverRepository) SetApproval(ctx context.Context, id string, approved bool) error {
	result, err := r.q.ExecContext(ctx, `UPDATE drivers SET is_approved = $1, updated_at = NOW() WHERE id = $2`, approved, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateVehicle replaces the driver's vehicle details.
func (r *DriverRepository) UpdateVehicle(ctx context.Context, id string, v domain.Vehicle) error {
	query := `
		UPDATE drivers
		SET vehicle_model = $1, vehicle_plate = $2, vehicle_color = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := r.q.ExecContext(ctx, query, v.Model, v.Plate, nullString(v.Color), id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// RecordCompletion returns the driver to AVAILABLE and bumps the counters in
// place so concurrent completions never lose an increment.
func (r *DriverRepository) RecordCompletion(ctx context.Context, driverID, rideID string, fare, distanceKm float64) error {
	query := `
		UPDATE drivers
		SET status = 'AVAILABLE',
		    total_rides = total_rides + 1,
		    total_earnings = total_earnings + $2,
		    total_distance_km = total_distance_km + $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, driverID, fare, distanceKm)
	if err != nil {
		return err
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO driver_rides (driver_id, ride_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		driverID, rideID,
	)
	return err
}

// ApplyRating folds one score into the driver's running average.
func (r *DriverRepository) ApplyRating(ctx context.Context, driverID, rideID string, score int) error {
	query := `
		UPDATE drivers
		SET average_rating = (average_rating * total_ratings + $2) / (total_ratings + 1),
		    total_ratings = total_ratings + 1,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, driverID, float64(score))
	if err != nil {
		return err
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO driver_ratings (driver_id, ride_id, score) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		driverID, rideID, score,
	)
	return err
}

// MarkIdleUnavailable moves AVAILABLE drivers not seen since cutoff to
// UNAVAILABLE and takes their users offline.
func (r *DriverRepository) MarkIdleUnavailable(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		WITH idle AS (
			UPDATE drivers d
			SET status = 'UNAVAILABLE', updated_at = NOW()
			FROM users u
			WHERE u.id = d.user_id
			  AND d.status = 'AVAILABLE'
			  AND (u.last_seen_at IS NULL OR u.last_seen_at < $1)
			RETURNING d.user_id
		)
		UPDATE users SET is_online = FALSE
		WHERE id IN (SELECT user_id FROM idle)
	`

	result, err := r.q.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Snapshot returns the drivers currently eligible for dispatch. It is a plain
// read with no caching.
func (r *DriverRepository) Snapshot(ctx context.Context) ([]domain.Candidate, error) {
	query := `
		SELECT d.id, u.id, u.name, u.username, u.email,
		       u.location_lng, u.location_lat, COALESCE(u.location_address, ''),
		       d.status, d.is_approved, d.average_rating,
		       COALESCE(d.vehicle_model, ''), COALESCE(d.vehicle_plate, ''), COALESCE(d.vehicle_color, '')
		FROM drivers d
		JOIN users u ON u.id = d.user_id
		WHERE u.is_online
		  AND NOT u.is_blocked
		  AND u.role = 'DRIVER'
		  AND d.status = 'AVAILABLE'
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var lng, lat sql.NullFloat64
		var address string
		if err := rows.Scan(
			&c.DriverID,
			&c.UserID,
			&c.Name,
			&c.Username,
			&c.Email,
			&lng,
			&lat,
			&address,
			&c.Status,
			&c.IsApproved,
			&c.AverageRating,
			&c.Vehicle.Model,
			&c.Vehicle.Plate,
			&c.Vehicle.Color,
		); err != nil {
			return nil, err
		}
		if lng.Valid && lat.Valid {
			loc := domain.NewPoint(lat.Float64, lng.Float64, address)
			c.Location = &loc
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (r *DriverRepository) getOne(ctx context.Context, query string, arg string) (*domain.Driver, error) {
	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return driver, nil
}

func scanDriver(s rowScanner) (*domain.Driver, error) {
	var driver domain.Driver
	err := s.Scan(
		&driver.ID,
		&driver.UserID,
		&driver.Username,
		&driver.Status,
		&driver.IsApproved,
		&driver.Vehicle.Model,
		&driver.Vehicle.Plate,
		&driver.Vehicle.Color,
		&driver.TotalRides,
		&driver.TotalEarnings,
		&driver.TotalDistanceKm,
		&driver.Rating.AverageRating,
		&driver.Rating.TotalRatings,
		&driver.CreatedAt,
		&driver.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &driver, nil
}
