package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, name, username, email, role, is_online, is_blocked,
		       location_lng, location_lat, COALESCE(location_address, ''),
		       last_seen_at, created_at
		FROM users WHERE id = $1
	`

	var user domain.User
	var lng, lat sql.NullFloat64
	var address string
	var lastSeen sql.NullTime

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.IsOnline,
		&user.IsBlocked,
		&lng,
		&lat,
		&address,
		&lastSeen,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lng.Valid && lat.Valid {
		loc := domain.NewPoint(lat.Float64, lng.Float64, address)
		user.Location = &loc
	}
	user.LastSeenAt = timePtr(lastSeen)
	return &user, nil
}

// UpdateLocation stores the user's latest position.
func (r *UserRepository) UpdateLocation(ctx context.Context, id string, loc domain.Point, seenAt time.Time) error {
	query := `
		UPDATE users
		SET location_lng = $1, location_lat = $2, location_address = $3, last_seen_at = $4
		WHERE id = $5
	`
	return r.execOne(ctx, query, loc.Lng(), loc.Lat(), nullString(loc.Address), seenAt, id)
}

// SetOnline flips the user's online flag and refreshes last_seen_at.
func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET is_online = $1, last_seen_at = $2 WHERE id = $3`, online, at, id)
}

// SetBlocked flips the user's blocked flag.
func (r *UserRepository) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.execOne(ctx, `UPDATE users SET is_blocked = $1 WHERE id = $2`, blocked, id)
}

// AppendRideHistory adds a ride to the user's history once.
func (r *UserRepository) AppendRideHistory(ctx context.Context, userID, rideID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO rider_rides (rider_id, ride_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, rideID,
	)
	return err
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
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
