package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestLockoutAndLazyUnlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")

	for i := 1; i < DefaultLockoutThreshold; i++ {
		state, err := h.guard.IncrementFailure(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, i, state.Attempts)
		require.False(t, state.Locked)
	}

	state, err := h.guard.IncrementFailure(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, state.Locked)
	require.Equal(t, DefaultLockoutThreshold, state.Attempts)
	require.WithinDuration(t, h.clock.Now().Add(DefaultLockoutDuration), state.Until, time.Second)

	lock, err := h.guard.CheckLocked(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, lock.Locked)

	h.clock.Advance(DefaultLockoutDuration + time.Second)

	lock, err = h.guard.CheckLocked(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, lock.Locked)

	got, err := h.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UserActive, got.Status)
	require.Zero(t, got.FailedAttempts)
	require.Nil(t, got.LockedUntil)
}

func TestGuardKeepsSuspendedStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "ada@example.com", "correct horse battery")
	require.NoError(t, h.users.SetStatus(ctx, u.ID, domain.UserSuspended))

	var state FailureState
	for range DefaultLockoutThreshold {
		var err error
		state, err = h.guard.IncrementFailure(ctx, u.ID)
		require.NoError(t, err)
	}
	// Guessing is still limited, but the status is left alone.
	require.True(t, state.Locked)
	got, err := h.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UserSuspended, got.Status)

	require.NoError(t, h.guard.ResetFailures(ctx, u.ID))

	got, err = h.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UserSuspended, got.Status)
	require.Zero(t, got.FailedAttempts)
}

func TestLockoutAppliesToEveryStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.UserStatus{domain.UserPending, domain.UserInactive, domain.UserSuspended} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newHarness(t)

			u := h.register(t, "ada@example.com", "correct horse battery")
			require.NoError(t, h.store.Users().UpdateStatus(ctx, u.ID, status))

			var state FailureState
			for range DefaultLockoutThreshold {
				var err error
				state, err = h.guard.IncrementFailure(ctx, u.ID)
				require.NoError(t, err)
			}
			require.True(t, state.Locked)

			lock, err := h.guard.CheckLocked(ctx, u.ID)
			require.NoError(t, err)
			require.True(t, lock.Locked)

			// The right password no longer reveals the account status.
			_, err = h.login.Login(ctx, "ada@example.com", "correct horse battery", domain.ClientMeta{})
			require.ErrorIs(t, err, ErrAccountLocked)

			h.clock.Advance(DefaultLockoutDuration + time.Second)

			lock, err = h.guard.CheckLocked(ctx, u.ID)
			require.NoError(t, err)
			require.False(t, lock.Locked)

			got, err := h.store.Users().GetUserByID(ctx, u.ID)
			require.NoError(t, err)
			require.Equal(t, status, got.Status, "unlock must not promote to ACTIVE")
			require.Zero(t, got.FailedAttempts)
			require.Nil(t, got.LockedUntil)
		})
	}
}

func TestResetFailuresClearsCounter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.guard.Threshold = 3

	u := h.register(t, "ada@example.com", "correct horse battery")

	for range 2 {
		_, err := h.guard.IncrementFailure(ctx, u.ID)
		require.NoError(t, err)
	}
	require.NoError(t, h.guard.ResetFailures(ctx, u.ID))

	// Two more failures stay below the threshold after the reset.
	for range 2 {
		state, err := h.guard.IncrementFailure(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, state.Locked)
	}
}

func TestCheckLockedUnknownUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.guard.CheckLocked(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
