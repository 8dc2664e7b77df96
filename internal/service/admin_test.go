package service_test

import (
	"context"
	"errors"
	"testing"

	"rideengine/internal/domain"
	"rideengine/internal/service"
)

func TestSuspendAndReinstateDriver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	rider := f.addRider("rider-1")
	f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
	f.locations.UpdateLocation(ctx, "driver-1", 23.811, 90.412)

	suspended, err := f.admin.SuspendDriver(ctx, adminPrincipal, "driver-1")
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if suspended.Status != domain.DriverStatusSuspended {
		t.Errorf("expected SUSPENDED, got %s", suspended.Status)
	}
	if !f.users.GetUser("driver-user-1").IsBlocked {
		t.Error("suspended driver's user should be blocked")
	}
	if f.locations.Has("driver-1") {
		t.Error("suspended driver should leave the GEO index")
	}

	// A suspended driver is out of the pool.
	if _, err := f.dispatch.RequestRide(ctx, rider, dhakaRequest()); !errors.Is(err, service.ErrNoDriversOnline) {
		t.Errorf("expected ErrNoDriversOnline, got %v", err)
	}

	if _, err := f.admin.SuspendDriver(ctx, adminPrincipal, "driver-1"); !errors.Is(err, service.ErrDriverAlreadySuspended) {
		t.Errorf("expected ErrDriverAlreadySuspended, got %v", err)
	}

	reinstated, err := f.admin.ReinstateDriver(ctx, adminPrincipal, "driver-1")
	if err != nil {
		t.Fatalf("reinstate failed: %v", err)
	}
	if reinstated.Status != domain.DriverStatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", reinstated.Status)
	}
	if f.users.GetUser("driver-user-1").IsBlocked {
		t.Error("reinstated driver's user should be unblocked")
	}

	if _, err := f.admin.ReinstateDriver(ctx, adminPrincipal, "driver-1"); !errors.Is(err, service.ErrDriverAlreadyAvailable) {
		t.Errorf("expected ErrDriverAlreadyAvailable, got %v", err)
	}
}

func TestReinstateDriver_FromStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    domain.DriverStatus
		want    domain.DriverStatus
		wantErr error
	}{
		{"suspended", domain.DriverStatusSuspended, domain.DriverStatusAvailable, nil},
		{"unavailable", domain.DriverStatusUnavailable, domain.DriverStatusAvailable, nil},
		{"already available", domain.DriverStatusAvailable, domain.DriverStatusAvailable, service.ErrDriverAlreadyAvailable},
		{"on a ride", domain.DriverStatusRiding, domain.DriverStatusRiding, service.ErrDriverBusy},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
			f.setDriverStatus("driver-1", tc.from)

			_, err := f.admin.ReinstateDriver(context.Background(), adminPrincipal, "driver-1")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := f.drivers.GetDriver("driver-1").Status; got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSetUserBlocked_Rider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	f.addRider("rider-1")

	u, err := f.admin.SetUserBlocked(ctx, adminPrincipal, "rider-1", true)
	if err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if !u.IsBlocked {
		t.Error("expected the user to be blocked")
	}
	if _, err := f.admin.SetUserBlocked(ctx, adminPrincipal, "rider-1", true); !errors.Is(err, service.ErrUserAlreadyBlocked) {
		t.Errorf("expected ErrUserAlreadyBlocked, got %v", err)
	}

	u, err = f.admin.SetUserBlocked(ctx, adminPrincipal, "rider-1", false)
	if err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if u.IsBlocked {
		t.Error("expected the user to be unblocked")
	}
	if _, err := f.admin.SetUserBlocked(ctx, adminPrincipal, "rider-1", false); !errors.Is(err, service.ErrUserNotBlocked) {
		t.Errorf("expected ErrUserNotBlocked, got %v", err)
	}
}

func TestSetUserBlocked_DriverIsSuspended(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	rider := f.addRider("rider-1")
	f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
	f.locations.UpdateLocation(ctx, "driver-1", 23.811, 90.412)

	if _, err := f.admin.SetUserBlocked(ctx, adminPrincipal, "driver-user-1", true); err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if got := f.drivers.GetDriver("driver-1").Status; got != domain.DriverStatusSuspended {
		t.Errorf("expected SUSPENDED, got %s", got)
	}
	if f.locations.Has("driver-1") {
		t.Error("blocked driver should leave the GEO index")
	}
	if _, err := f.dispatch.RequestRide(ctx, rider, dhakaRequest()); !errors.Is(err, service.ErrNoDriversOnline) {
		t.Errorf("expected ErrNoDriversOnline, got %v", err)
	}

	if _, err := f.admin.SetUserBlocked(ctx, adminPrincipal, "driver-user-1", false); err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if got := f.drivers.GetDriver("driver-1").Status; got != domain.DriverStatusSuspended {
		t.Errorf("unblocking must leave the driver suspended, got %s", got)
	}
}

func TestSetUserBlocked_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	rider := f.addRider("rider-1")
	f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
	f.setDriverStatus("driver-1", domain.DriverStatusRiding)

	tests := []struct {
		name    string
		actor   domain.Principal
		userID  string
		wantErr error
	}{
		{"non-admin", rider, "rider-1", service.ErrRoleNotAllowed},
		{"anonymous", domain.Principal{}, "rider-1", service.ErrMissingPrincipal},
		{"empty id", adminPrincipal, "", service.ErrInvalidUserID},
		{"unknown user", adminPrincipal, "missing", service.ErrNotFound},
		{"driver on a ride", adminPrincipal, "driver-user-1", service.ErrDriverBusy},
	}

	for _, tc := range tests {
		_, err := f.admin.SetUserBlocked(ctx, tc.actor, tc.userID, true)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
	if f.users.GetUser("driver-user-1").IsBlocked {
		t.Error("a rejected block must not be stored")
	}
}

func TestSuspendDriver_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	driver := f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
	f.setDriverStatus("driver-1", domain.DriverStatusRiding)

	tests := []struct {
		name     string
		actor    domain.Principal
		driverID string
		wantErr  error
	}{
		{"non-admin", driver, "driver-1", service.ErrRoleNotAllowed},
		{"anonymous", domain.Principal{}, "driver-1", service.ErrMissingPrincipal},
		{"empty id", adminPrincipal, "", service.ErrInvalidDriverID},
		{"unknown driver", adminPrincipal, "missing", service.ErrNotFound},
		{"driver on a ride", adminPrincipal, "driver-1", service.ErrDriverBusy},
	}

	for _, tc := range tests {
		_, err := f.admin.SuspendDriver(ctx, tc.actor, tc.driverID)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestSetDriverApproval(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)

	d, err := f.admin.SetDriverApproval(ctx, adminPrincipal, "driver-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.IsApproved {
		t.Error("driver should be disapproved")
	}

	if _, err := f.admin.SetDriverApproval(ctx, adminPrincipal, "missing", true); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgeRide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	rider := f.addRider("rider-1")
	driver := f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
	done := completedRide(t, f, rider, driver)
	pending := f.requestedRide(rider)

	if err := f.admin.PurgeRide(ctx, adminPrincipal, pending.ID); !errors.Is(err, service.ErrRideNotPurgeable) {
		t.Errorf("expected ErrRideNotPurgeable, got %v", err)
	}
	if err := f.admin.PurgeRide(ctx, rider, done.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected forbidden for a rider, got %v", err)
	}
	if err := f.admin.PurgeRide(ctx, adminPrincipal, done.ID); err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if f.rides.GetRide(done.ID) != nil {
		t.Error("completed ride should be gone")
	}
	if err := f.admin.PurgeRide(ctx, adminPrincipal, done.ID); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second purge, got %v", err)
	}
}

func TestListDrivers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	f.addDriver("driver-1", "driver-user-1", 23.811, 90.412, 4.2)
	f.addDriver("driver-2", "driver-user-2", 23.9, 90.5, 3.1)

	drivers, err := f.admin.ListDrivers(ctx, adminPrincipal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drivers) != 2 {
		t.Errorf("expected 2 drivers, got %d", len(drivers))
	}
	if _, err := f.admin.ListDrivers(ctx, f.addRider("rider-1")); !errors.Is(err, service.ErrRoleNotAllowed) {
		t.Errorf("expected ErrRoleNotAllowed, got %v", err)
	}
}
