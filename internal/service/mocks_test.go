package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"rideengine/internal/domain"
	"rideengine/internal/redis"
	"rideengine/internal/repository"
	"rideengine/internal/service"
)

// ──────────────────────────────────────────────
// IN-MEMORY STORE
// ──────────────────────────────────────────────

// memStore holds every table the mocks read and write. One mutex guards it so
// each repository call is atomic, like a single SQL statement.
type memStore struct {
	mu            sync.RWMutex
	rides         map[string]*domain.Ride
	drivers       map[string]*domain.Driver
	users         map[string]*domain.User
	driverRides   map[string]map[string]bool
	riderRides    map[string]map[string]bool
	driverRatings map[string]map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		rides:         make(map[string]*domain.Ride),
		drivers:       make(map[string]*domain.Driver),
		users:         make(map[string]*domain.User),
		driverRides:   make(map[string]map[string]bool),
		riderRides:    make(map[string]map[string]bool),
		driverRatings: make(map[string]map[string]int),
	}
}

type storeState struct {
	rides         map[string]domain.Ride
	drivers       map[string]domain.Driver
	users         map[string]domain.User
	driverRides   map[string]map[string]bool
	riderRides    map[string]map[string]bool
	driverRatings map[string]map[string]int
}

func (s *memStore) snapshot() storeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := storeState{
		rides:         make(map[string]domain.Ride, len(s.rides)),
		drivers:       make(map[string]domain.Driver, len(s.drivers)),
		users:         make(map[string]domain.User, len(s.users)),
		driverRides:   copySets(s.driverRides),
		riderRides:    copySets(s.riderRides),
		driverRatings: make(map[string]map[string]int, len(s.driverRatings)),
	}
	for k, v := range s.rides {
		st.rides[k] = *v
	}
	for k, v := range s.drivers {
		st.drivers[k] = *v
	}
	for k, v := range s.users {
		st.users[k] = *v
	}
	for k, v := range s.driverRatings {
		m := make(map[string]int, len(v))
		for rk, rv := range v {
			m[rk] = rv
		}
		st.driverRatings[k] = m
	}
	return st
}

func (s *memStore) restore(st storeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides = make(map[string]*domain.Ride, len(st.rides))
	for k, v := range st.rides {
		v := v
		s.rides[k] = &v
	}
	s.drivers = make(map[string]*domain.Driver, len(st.drivers))
	for k, v := range st.drivers {
		v := v
		s.drivers[k] = &v
	}
	s.users = make(map[string]*domain.User, len(st.users))
	for k, v := range st.users {
		v := v
		s.users[k] = &v
	}
	s.driverRides = st.driverRides
	s.riderRides = st.riderRides
	s.driverRatings = st.driverRatings
}

func copySets(in map[string]map[string]bool) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(in))
	for k, v := range in {
		m := make(map[string]bool, len(v))
		for rk := range v {
			m[rk] = true
		}
		out[k] = m
	}
	return out
}

func addToSet(sets map[string]map[string]bool, owner, id string) {
	if sets[owner] == nil {
		sets[owner] = make(map[string]bool)
	}
	sets[owner][id] = true
}

// ──────────────────────────────────────────────
// MOCK TRANSACTOR
// ──────────────────────────────────────────────

// MockTransactor runs fn against the shared store. Serialized transactions
// run one at a time and roll back on error. Unserialized ones interleave
// freely, leaving the compare-and-set as the only guard, and never roll back.
type MockTransactor struct {
	store     *memStore
	repos     repository.Repositories
	serialize bool
	mu        sync.Mutex

	TxCount int32
}

func (m *MockTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	atomic.AddInt32(&m.TxCount, 1)
	if !m.serialize {
		return fn(ctx, m.repos)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.store.snapshot()
	if err := fn(ctx, m.repos); err != nil {
		m.store.restore(before)
		return err
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository.
type MockRideRepository struct {
	store *memStore

	// Counters for verification
	CreateCallCount int32
	CASCallCount    int32

	// Error injection
	CreateError error
	GetError    error

	// BeforeCAS runs before each compare-and-set, outside the store lock.
	BeforeCAS func(rideID string)
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	// Mirrors the partial unique index on REQUESTED rides per rider.
	if ride.Status == domain.RideStatusRequested {
		for _, r := range m.store.rides {
			if r.RiderID == ride.RiderID && r.Status == domain.RideStatusRequested {
				return repository.ErrDuplicate
			}
		}
	}
	copy := *ride
	m.store.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	ride, ok := m.store.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) ListByParticipant(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []*domain.Ride
	for _, r := range m.store.rides {
		if r.RiderID == userID || r.DriverUserID == userID {
			copy := *r
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestedAt.After(result[j].RequestedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockRideRepository) HasOutstandingRequest(ctx context.Context, riderID string, now time.Time) (bool, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, r := range m.store.rides {
		if r.RiderID == riderID && r.Status == domain.RideStatusRequested && !r.IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockRideRepository) CompareAndSwapStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus, now time.Time) (bool, error) {
	atomic.AddInt32(&m.CASCallCount, 1)
	if m.BeforeCAS != nil {
		m.BeforeCAS(ride.ID)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	stored, ok := m.store.rides[ride.ID]
	if !ok || stored.Status != expected || stored.IsExpired(now) {
		return false, nil
	}
	stored.Status = ride.Status
	stored.AcceptedAt = ride.AcceptedAt
	stored.PickedUpAt = ride.PickedUpAt
	stored.InTransitAt = ride.InTransitAt
	stored.CompletedAt = ride.CompletedAt
	stored.CancelledAt = ride.CancelledAt
	stored.CancelledBy = ride.CancelledBy
	stored.ExpiresAt = ride.ExpiresAt
	stored.UpdatedAt = ride.UpdatedAt
	return true, nil
}

func (m *MockRideRepository) AttachRating(ctx context.Context, rideID string, rating domain.RideRating) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	stored, ok := m.store.rides[rideID]
	if !ok || stored.Status != domain.RideStatusCompleted || stored.Rating != nil {
		return false, nil
	}
	r := rating
	stored.Rating = &r
	return true, nil
}

func (m *MockRideRepository) FindActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, r := range m.store.rides {
		if r.DriverID == driverID && r.IsActive() {
			copy := *r
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockRideRepository) ListRequestedForDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.Ride, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []*domain.Ride
	for _, r := range m.store.rides {
		if r.DriverID == driverID && r.Status == domain.RideStatusRequested && !r.IsExpired(now) {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockRideRepository) MirrorDriverLocation(ctx context.Context, driverID string, loc domain.Point, now time.Time) ([]repository.RideRef, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var refs []repository.RideRef
	for _, r := range m.store.rides {
		if r.DriverID != driverID || r.Status.IsTerminal() || r.IsExpired(now) {
			continue
		}
		l := loc
		r.DriverLocation = &l
		refs = append(refs, repository.RideRef{ID: r.ID, RiderID: r.RiderID})
	}
	return refs, nil
}

func (m *MockRideRepository) DeleteExpiredRequests(ctx context.Context, riderID string, now time.Time) (int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var n int64
	for id, r := range m.store.rides {
		if (riderID == "" || r.RiderID == riderID) && r.IsExpired(now) {
			delete(m.store.rides, id)
			n++
		}
	}
	return n, nil
}

func (m *MockRideRepository) DeleteCompleted(ctx context.Context, id string) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	r, ok := m.store.rides[id]
	if !ok || r.Status != domain.RideStatusCompleted {
		return false, nil
	}
	delete(m.store.rides, id)
	return true, nil
}

// AddRide stores a ride directly.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	copy := *ride
	m.store.rides[ride.ID] = &copy
}

// GetRide returns the stored ride for test assertions.
func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	r, ok := m.store.rides[id]
	if !ok {
		return nil
	}
	copy := *r
	return &copy
}

// Count returns the number of stored rides.
func (m *MockRideRepository) Count() int {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return len(m.store.rides)
}

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository and
// DriverPool.
type MockDriverRepository struct {
	store *memStore

	// Counters for verification
	SnapshotCallCount         int32
	TransitionStatusCallCount int32
	RecordCompletionCallCount int32

	// Error injection
	SnapshotError         error
	RecordCompletionError error
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	d, ok := m.store.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *d
	return &copy, nil
}

func (m *MockDriverRepository) GetByUserID(ctx context.Context, userID string) (*domain.Driver, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, d := range m.store.drivers {
		if d.UserID == userID {
			copy := *d
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockDriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	result := make([]*domain.Driver, 0, len(m.store.drivers))
	for _, d := range m.store.drivers {
		copy := *d
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockDriverRepository) TransitionStatus(ctx context.Context, id string, to domain.DriverStatus, from ...domain.DriverStatus) (bool, error) {
	atomic.AddInt32(&m.TransitionStatusCallCount, 1)
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	d, ok := m.store.drivers[id]
	if !ok {
		if len(from) == 0 {
			return false, repository.ErrNotFound
		}
		return false, nil
	}
	if len(from) > 0 {
		allowed := false
		for _, s := range from {
			if d.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil
		}
	}
	d.Status = to
	return true, nil
}

func (m *MockDriverRepository) SetApproval(ctx context.Context, id string, approved bool) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	d, ok := m.store.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.IsApproved = approved
	return nil
}

func (m *MockDriverRepository) UpdateVehicle(ctx context.Context, id string, v domain.Vehicle) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	d, ok := m.store.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Vehicle = v
	return nil
}

func (m *MockDriverRepository) RecordCompletion(ctx context.Context, driverID, rideID string, fare, distanceKm float64) error {
	atomic.AddInt32(&m.RecordCompletionCallCount, 1)
	if m.RecordCompletionError != nil {
		return m.RecordCompletionError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	d, ok := m.store.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = domain.DriverStatusAvailable
	d.TotalRides++
	d.TotalEarnings += fare
	d.TotalDistanceKm += distanceKm
	addToSet(m.store.driverRides, driverID, rideID)
	return nil
}

func (m *MockDriverRepository) ApplyRating(ctx context.Context, driverID, rideID string, score int) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	d, ok := m.store.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	n := float64(d.Rating.TotalRatings)
	d.Rating.AverageRating = (d.Rating.AverageRating*n + float64(score)) / (n + 1)
	d.Rating.TotalRatings++
	if m.store.driverRatings[driverID] == nil {
		m.store.driverRatings[driverID] = make(map[string]int)
	}
	m.store.driverRatings[driverID][rideID] = score
	return nil
}

func (m *MockDriverRepository) MarkIdleUnavailable(ctx context.Context, cutoff time.Time) (int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var n int64
	for _, d := range m.store.drivers {
		if d.Status != domain.DriverStatusAvailable {
			continue
		}
		u, ok := m.store.users[d.UserID]
		if !ok || (u.LastSeenAt != nil && !u.LastSeenAt.Before(cutoff)) {
			continue
		}
		d.Status = domain.DriverStatusUnavailable
		u.IsOnline = false
		n++
	}
	return n, nil
}

func (m *MockDriverRepository) Snapshot(ctx context.Context) ([]domain.Candidate, error) {
	atomic.AddInt32(&m.SnapshotCallCount, 1)
	if m.SnapshotError != nil {
		return nil, m.SnapshotError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []domain.Candidate
	for _, d := range m.store.drivers {
		u, ok := m.store.users[d.UserID]
		if !ok || !u.IsOnline || u.IsBlocked || u.Role != domain.RoleDriver || d.Status != domain.DriverStatusAvailable {
			continue
		}
		c := domain.Candidate{
			DriverID:      d.ID,
			UserID:        u.ID,
			Name:          u.Name,
			Username:      u.Username,
			Email:         u.Email,
			Status:        d.Status,
			IsApproved:    d.IsApproved,
			AverageRating: d.Rating.AverageRating,
			Vehicle:       d.Vehicle,
		}
		if u.Location != nil {
			loc := *u.Location
			c.Location = &loc
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DriverID < result[j].DriverID })
	return result, nil
}

// GetDriver returns the stored driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.Driver {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	d, ok := m.store.drivers[id]
	if !ok {
		return nil
	}
	copy := *d
	return &copy
}

// DriverRideCount returns how many rides are in the driver's history.
func (m *MockDriverRepository) DriverRideCount(driverID string) int {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return len(m.store.driverRides[driverID])
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	store *memStore

	UpdateLocationCallCount int32
	UpdateLocationError     error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	u, ok := m.store.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (m *MockUserRepository) UpdateLocation(ctx context.Context, id string, loc domain.Point, seenAt time.Time) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	u, ok := m.store.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	l := loc
	at := seenAt
	u.Location = &l
	u.LastSeenAt = &at
	return nil
}

func (m *MockUserRepository) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	u, ok := m.store.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsOnline = online
	seen := at
	u.LastSeenAt = &seen
	return nil
}

func (m *MockUserRepository) SetBlocked(ctx context.Context, id string, blocked bool) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	u, ok := m.store.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsBlocked = blocked
	return nil
}

func (m *MockUserRepository) AppendRideHistory(ctx context.Context, userID, rideID string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	addToSet(m.store.riderRides, userID, rideID)
	return nil
}

// GetUser returns the stored user for test assertions.
func (m *MockUserRepository) GetUser(id string) *domain.User {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	u, ok := m.store.users[id]
	if !ok {
		return nil
	}
	copy := *u
	return &copy
}

// RideHistory returns the rides in the user's history.
func (m *MockUserRepository) RideHistory(userID string) int {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return len(m.store.riderRides[userID])
}

// ──────────────────────────────────────────────
// FAKE COLLABORATORS
// ──────────────────────────────────────────────

// FakeGeocoder returns a fixed address or error.
type FakeGeocoder struct {
	Address string
	Err     error
	Calls   int32
}

func (g *FakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	atomic.AddInt32(&g.Calls, 1)
	if g.Err != nil {
		return "", g.Err
	}
	return g.Address, nil
}

// MockLockStore is an in-memory rider lock.
type MockLockStore struct {
	mu   sync.Mutex
	held map[string]string
	seq  int

	AcquireError error
	ReleaseCount int32
}

func NewMockLockStore() *MockLockStore {
	return &MockLockStore{held: make(map[string]string)}
}

func (m *MockLockStore) AcquireRiderLock(ctx context.Context, riderID string, ttl time.Duration) (string, bool, error) {
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[riderID]; ok {
		return "", false, nil
	}
	m.seq++
	token := fmt.Sprintf("%s-%d", riderID, m.seq)
	m.held[riderID] = token
	return token, true, nil
}

func (m *MockLockStore) ReleaseRiderLock(ctx context.Context, riderID, token string) error {
	atomic.AddInt32(&m.ReleaseCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[riderID] == token {
		delete(m.held, riderID)
	}
	return nil
}

// Hold takes the rider lock as if another request were in flight.
func (m *MockLockStore) Hold(riderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[riderID] = "held-by-test"
}

// IsHeld reports whether the rider lock is taken.
func (m *MockLockStore) IsHeld(riderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[riderID]
	return ok
}

// MockLocationStore is an in-memory driver GEO index.
type MockLocationStore struct {
	mu        sync.Mutex
	positions map[string]redis.DriverPosition

	UpdateError error
}

func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{positions: make(map[string]redis.DriverPosition)}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[driverID] = redis.DriverPosition{DriverID: driverID, Lat: lat, Lng: lng}
	return nil
}

func (m *MockLocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]redis.DriverPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []redis.DriverPosition
	for _, p := range m.positions {
		result = append(result, p)
	}
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, driverID)
	return nil
}

// Has reports whether the driver is in the index.
func (m *MockLocationStore) Has(driverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[driverID]
	return ok
}

// MockPublisher records notifications.
type MockPublisher struct {
	mu   sync.Mutex
	sent []service.Notification

	Err error
}

func (m *MockPublisher) Publish(ctx context.Context, key string, n service.Notification) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (m *MockPublisher) Sent() []service.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]service.Notification(nil), m.sent...)
}

// OfType returns the recorded notifications of one type.
func (m *MockPublisher) OfType(t service.NotificationType) []service.Notification {
	var out []service.Notification
	for _, n := range m.Sent() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errInjected = errors.New("injected failure")

var (
	_ repository.Transactor        = (*MockTransactor)(nil)
	_ repository.RideRepository    = (*MockRideRepository)(nil)
	_ repository.DriverRepository  = (*MockDriverRepository)(nil)
	_ repository.DriverPool        = (*MockDriverRepository)(nil)
	_ repository.UserRepository    = (*MockUserRepository)(nil)
	_ service.Geocoder             = (*FakeGeocoder)(nil)
	_ service.Publisher            = (*MockPublisher)(nil)
	_ redis.LockStoreInterface     = (*MockLockStore)(nil)
	_ redis.LocationStoreInterface = (*MockLocationStore)(nil)
)

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fixture wires every service against one in-memory store.
type fixture struct {
	store     *memStore
	rides     *MockRideRepository
	drivers   *MockDriverRepository
	users     *MockUserRepository
	tx        *MockTransactor
	geocoder  *FakeGeocoder
	locks     *MockLockStore
	locations *MockLocationStore
	publisher *MockPublisher
	clock     *testClock
	dispatch  *service.DispatchService
	lifecycle *service.LifecycleService
	driverSvc *service.DriverService
	admin     *service.AdminService
	bridge    *service.LocationBridge
}

func newFixture() *fixture {
	return buildFixture(true)
}

// newConcurrentFixture lets transactions interleave so the repository
// compare-and-set is the only guard.
func newConcurrentFixture() *fixture {
	return buildFixture(false)
}

func buildFixture(serialize bool) *fixture {
	store := newMemStore()
	f := &fixture{
		store:     store,
		rides:     &MockRideRepository{store: store},
		drivers:   &MockDriverRepository{store: store},
		users:     &MockUserRepository{store: store},
		geocoder:  &FakeGeocoder{Address: "Banani, Dhaka"},
		locks:     NewMockLockStore(),
		locations: NewMockLocationStore(),
		publisher: &MockPublisher{},
		clock:     &testClock{now: testEpoch},
	}
	f.tx = &MockTransactor{
		store:     store,
		serialize: serialize,
		repos:     repository.Repositories{Rides: f.rides, Drivers: f.drivers, Users: f.users},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := service.NewNotificationService(f.publisher, logger)

	f.dispatch = service.NewDispatchService(f.tx, f.rides, f.drivers, f.geocoder, f.locks, notifier, logger,
		service.DispatchConfig{}).WithClock(f.clock.Now)
	f.lifecycle = service.NewLifecycleService(f.tx, f.rides, nil, notifier, logger).WithClock(f.clock.Now)
	f.driverSvc = service.NewDriverService(f.tx, f.drivers, f.rides, f.locations, logger).WithClock(f.clock.Now)
	f.admin = service.NewAdminService(f.tx, f.drivers, f.rides, f.locations, nil, logger)
	f.bridge = service.NewLocationBridge(f.users, f.drivers, f.rides, f.locations, nil, notifier, logger).
		WithClock(f.clock.Now)
	return f
}

// addRider stores a rider user.
func (f *fixture) addRider(id string) domain.Principal {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.users[id] = &domain.User{ID: id, Username: id, Name: id, Role: domain.RoleRider, IsOnline: true}
	return domain.Principal{UserID: id, Username: id, Role: domain.RoleRider}
}

// addDriver stores an online, approved, AVAILABLE driver at lat/lng.
func (f *fixture) addDriver(driverID, userID string, lat, lng, rating float64) domain.Principal {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	loc := domain.NewPoint(lat, lng, "")
	seen := f.clock.Now()
	f.store.users[userID] = &domain.User{
		ID:         userID,
		Username:   userID,
		Name:       userID,
		Role:       domain.RoleDriver,
		IsOnline:   true,
		Location:   &loc,
		LastSeenAt: &seen,
	}
	f.store.drivers[driverID] = &domain.Driver{
		ID:         driverID,
		UserID:     userID,
		Username:   userID,
		Status:     domain.DriverStatusAvailable,
		IsApproved: true,
		Rating:     domain.DriverRating{AverageRating: rating, TotalRatings: 1},
	}
	return domain.Principal{UserID: userID, Username: userID, Role: domain.RoleDriver}
}

// setDriverStatus overwrites a stored driver's status.
func (f *fixture) setDriverStatus(driverID string, status domain.DriverStatus) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.drivers[driverID].Status = status
}

var adminPrincipal = domain.Principal{UserID: "admin-1", Username: "ops", Role: domain.RoleAdmin}

// dhakaRequest is a short trip across Gulshan.
func dhakaRequest() service.RequestRideRequest {
	return service.RequestRideRequest{
		PickUp:  domain.NewPoint(23.81, 90.41, "Gulshan 1"),
		DropOff: domain.NewPoint(23.82, 90.43, ""),
		Fare:    120,
	}
}

// requestedRide dispatches one ride from rider to the only driver.
func (f *fixture) requestedRide(rider domain.Principal) *domain.Ride {
	res, err := f.dispatch.RequestRide(context.Background(), rider, dhakaRequest())
	if err != nil {
		panic(fmt.Sprintf("dispatch failed: %v", err))
	}
	return res.Ride
}
