package repository

import "context"

// Repositories bundles the repositories bound to one unit of work.
type Repositories struct {
	Rides   RideRepository
	Drivers DriverRepository
	Users   UserRepository
}

// Transactor runs fn inside a single transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
