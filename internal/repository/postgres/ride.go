package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/repository"
)

const rideColumns = `id, rider_id, rider_username, driver_id, driver_user_id, driver_username,
	pickup_lng, pickup_lat, pickup_address,
	dropoff_lng, dropoff_lat, dropoff_address,
	driver_lng, driver_lat, driver_address,
	fare, distance_km, duration_min,
	status, requested_at, accepted_at, picked_up_at, in_transit_at, completed_at,
	cancelled_at, cancelled_by, expires_at,
	rating_score, rating_rider_id, rated_at, updated_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

var _ repository.RideRepository = (*RideRepository)(nil)

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
	`

	_, err := r.q.ExecContext(ctx, query, rideArgs(ride)...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// ListByParticipant returns the most recent rides where the user is the rider
// or the driver's user.
func (r *RideRepository) ListByParticipant(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE rider_id = $1 OR driver_user_id = $1
		ORDER BY requested_at DESC
		LIMIT $2
	`
	return r.queryRides(ctx, query, userID, limit)
}

// HasOutstandingRequest reports whether the rider has a live REQUESTED ride.
func (r *RideRepository) HasOutstandingRequest(ctx context.Context, riderID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE rider_id = $1 AND status = 'REQUESTED'
			  AND (expires_at IS NULL OR expires_at > $2)
		)
	`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, riderID, now).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CompareAndSwapStatus writes the ride's lifecycle columns only if the stored
// status still equals expected and the ride has not expired.
func (r *RideRepository) CompareAndSwapStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus, now time.Time) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1, accepted_at = $2, picked_up_at = $3, in_transit_at = $4,
		    completed_at = $5, cancelled_at = $6, cancelled_by = $7, expires_at = $8,
		    updated_at = $9
		WHERE id = $10 AND status = $11
		  AND (expires_at IS NULL OR expires_at > $9)
	`

	result, err := r.q.ExecContext(ctx, query,
		ride.Status,
		nullTime(ride.AcceptedAt),
		nullTime(ride.PickedUpAt),
		nullTime(ride.InTransitAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		nullString(string(ride.CancelledBy)),
		nullTime(ride.ExpiresAt),
		now,
		ride.ID,
		expected,
	)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

// AttachRating stores the rating on a COMPLETED, unrated ride.
func (r *RideRepository) AttachRating(ctx context.Context, rideID string, rating domain.RideRating) (bool, error) {
	query := `
		UPDATE rides
		SET rating_score = $1, rating_rider_id = $2, rated_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'COMPLETED' AND rating_score IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, rating.Score, rating.RiderID, rating.RatedAt, rideID)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

// FindActiveByDriver returns the ride the driver is currently serving.
func (r *RideRepository) FindActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE driver_id = $1 AND status IN ('ACCEPTED', 'PICKED_UP', 'IN_TRANSIT')
		ORDER BY requested_at DESC
		LIMIT 1
	`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// ListRequestedForDriver returns live REQUESTED rides bound to the driver.
func (r *RideRepository) ListRequestedForDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE driver_id = $1 AND status = 'REQUESTED'
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY requested_at
	`
	return r.queryRides(ctx, query, driverID, now)
}

// MirrorDriverLocation copies the driver's position into the rides the driver
// is bound to and returns the rides that were touched.
func (r *RideRepository) MirrorDriverLocation(ctx context.Context, driverID string, loc domain.Point, now time.Time) ([]repository.RideRef, error) {
	query := `
		UPDATE rides
		SET driver_lng = $1, driver_lat = $2, driver_address = $3, updated_at = $4
		WHERE driver_id = $5
		  AND status IN ('REQUESTED', 'ACCEPTED', 'PICKED_UP', 'IN_TRANSIT')
		  AND (expires_at IS NULL OR expires_at > $4)
		RETURNING id, rider_id
	`

	rows, err := r.q.QueryContext(ctx, query, loc.Lng(), loc.Lat(), nullString(loc.Address), now, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []repository.RideRef
	for rows.Next() {
		var ref repository.RideRef
		if err := rows.Scan(&ref.ID, &ref.RiderID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteExpiredRequests removes REQUESTED rides whose expiry has elapsed.
func (r *RideRepository) DeleteExpiredRequests(ctx context.Context, riderID string, now time.Time) (int64, error) {
	query := `
		DELETE FROM rides
		WHERE status = 'REQUESTED' AND expires_at <= $1
		  AND ($2::text = '' OR rider_id = $2)
	`

	result, err := r.q.ExecContext(ctx, query, now, riderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteCompleted removes a COMPLETED ride.
func (r *RideRepository) DeleteCompleted(ctx context.Context, id string) (bool, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM rides WHERE id = $1 AND status = 'COMPLETED'`, id)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *RideRepository) queryRides(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func rideArgs(ride *domain.Ride) []any {
	var driverLng, driverLat sql.NullFloat64
	var driverAddress sql.NullString
	if ride.DriverLocation != nil {
		driverLng = sql.NullFloat64{Float64: ride.DriverLocation.Lng(), Valid: true}
		driverLat = sql.NullFloat64{Float64: ride.DriverLocation.Lat(), Valid: true}
		driverAddress = nullString(ride.DriverLocation.Address)
	}

	var ratingScore sql.NullInt32
	var ratingRider sql.NullString
	var ratedAt sql.NullTime
	if ride.Rating != nil {
		ratingScore = sql.NullInt32{Int32: int32(ride.Rating.Score), Valid: true}
		ratingRider = nullString(ride.Rating.RiderID)
		ratedAt = sql.NullTime{Time: ride.Rating.RatedAt, Valid: true}
	}

	updatedAt := ride.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = ride.RequestedAt
	}

	return []any{
		ride.ID,
		ride.RiderID,
		ride.RiderUsername,
		ride.DriverID,
		ride.DriverUserID,
		ride.DriverUsername,
		ride.PickUp.Lng(),
		ride.PickUp.Lat(),
		ride.PickUp.Address,
		ride.DropOff.Lng(),
		ride.DropOff.Lat(),
		ride.DropOff.Address,
		driverLng,
		driverLat,
		driverAddress,
		ride.Fare,
		nullFloat(ride.DistanceKm),
		nullFloat(ride.DurationMin),
		ride.Status,
		ride.RequestedAt,
		nullTime(ride.AcceptedAt),
		nullTime(ride.PickedUpAt),
		nullTime(ride.InTransitAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		nullString(string(ride.CancelledBy)),
		nullTime(ride.ExpiresAt),
		ratingScore,
		ratingRider,
		ratedAt,
		updatedAt,
	}
}

func scanRide(s rowScanner) (*domain.Ride, error) {
	var (
		ride                                   domain.Ride
		pickupLng, pickupLat, dropLng, dropLat float64
		pickupAddress, dropAddress             string
		driverLng, driverLat                   sql.NullFloat64
		driverAddress                          sql.NullString
		distanceKm, durationMin                sql.NullFloat64
		acceptedAt, pickedUpAt, inTransitAt    sql.NullTime
		completedAt, cancelledAt, expiresAt    sql.NullTime
		cancelledBy                            sql.NullString
		ratingScore                            sql.NullInt32
		ratingRider                            sql.NullString
		ratedAt                                sql.NullTime
	)

	err := s.Scan(
		&ride.ID,
		&ride.RiderID,
		&ride.RiderUsername,
		&ride.DriverID,
		&ride.DriverUserID,
		&ride.DriverUsername,
		&pickupLng,
		&pickupLat,
		&pickupAddress,
		&dropLng,
		&dropLat,
		&dropAddress,
		&driverLng,
		&driverLat,
		&driverAddress,
		&ride.Fare,
		&distanceKm,
		&durationMin,
		&ride.Status,
		&ride.RequestedAt,
		&acceptedAt,
		&pickedUpAt,
		&inTransitAt,
		&completedAt,
		&cancelledAt,
		&cancelledBy,
		&expiresAt,
		&ratingScore,
		&ratingRider,
		&ratedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ride.PickUp = domain.NewPoint(pickupLat, pickupLng, pickupAddress)
	ride.DropOff = domain.NewPoint(dropLat, dropLng, dropAddress)
	if driverLng.Valid && driverLat.Valid {
		loc := domain.NewPoint(driverLat.Float64, driverLng.Float64, driverAddress.String)
		ride.DriverLocation = &loc
	}
	ride.DistanceKm = floatPtr(distanceKm)
	ride.DurationMin = floatPtr(durationMin)
	ride.AcceptedAt = timePtr(acceptedAt)
	ride.PickedUpAt = timePtr(pickedUpAt)
	ride.InTransitAt = timePtr(inTransitAt)
	ride.CompletedAt = timePtr(completedAt)
	ride.CancelledAt = timePtr(cancelledAt)
	ride.CancelledBy = domain.CancelledBy(cancelledBy.String)
	ride.ExpiresAt = timePtr(expiresAt)
	if ratingScore.Valid {
		ride.Rating = &domain.RideRating{
			RiderID: ratingRider.String,
			Score:   int(ratingScore.Int32),
			RatedAt: ratedAt.Time,
		}
	}

	return &ride, nil
}

func affectedOne(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}
