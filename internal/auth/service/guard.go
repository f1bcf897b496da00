package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/slogx"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockState is the outcome of a lock check.
type LockState struct {
	Locked bool
	Until  time.Time
}

// FailureState is the outcome of recording a failed credential check.
type FailureState struct {
	Attempts int
	Locked   bool
	Until    time.Time
}

// AccountGuard counts failed credential checks and locks an account for a
// fixed duration once the threshold is reached. The guard owns the LOCKED
// status; administrators suspend accounts with SUSPENDED instead, which the
// guard never clears.
type AccountGuard struct {
	Store     store.Store
	Metrics   *metrics.Collector
	Threshold int
	Duration  time.Duration
	Now       func() time.Time
}

func (g *AccountGuard) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *AccountGuard) threshold() int {
	if g.Threshold > 0 {
		return g.Threshold
	}
	return DefaultLockoutThreshold
}

func (g *AccountGuard) duration() time.Duration {
	if g.Duration > 0 {
		return g.Duration
	}
	return DefaultLockoutDuration
}

// CheckLocked reports whether the user is locked. A lock whose time has
// passed is lifted by this call, so it is a write.
func (g *AccountGuard) CheckLocked(ctx context.Context, userID string) (LockState, error) {
	user, err := g.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return LockState{}, mapStoreErr(err)
	}
	_, state, err := g.checkUser(ctx, user)
	return state, err
}

// checkUser is CheckLocked for an already loaded user; it returns the user
// as it is after any unlock. A pending locked_until locks the account
// whatever its status.
func (g *AccountGuard) checkUser(ctx context.Context, user domain.User) (domain.User, LockState, error) {
	if user.Status != domain.UserLocked && user.LockedUntil == nil {
		return user, LockState{}, nil
	}

	now := g.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return user, LockState{Locked: true, Until: *user.LockedUntil}, nil
	}

	if err := g.Store.Users().ClearFailures(ctx, user.ID); err != nil {
		return user, LockState{}, mapStoreErr(err)
	}
	slogx.FromContext(ctx).Info("account unlocked", slog.String("user_id", user.ID))

	if user.Status == domain.UserLocked {
		user.Status = domain.UserActive
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	return user, LockState{}, nil
}

// IncrementFailure records one failed check. Reaching the threshold locks the
// account in the same update.
func (g *AccountGuard) IncrementFailure(ctx context.Context, userID string) (FailureState, error) {
	until := g.now().Add(g.duration())

	user, err := g.Store.Users().RecordFailure(ctx, userID, g.threshold(), until)
	if err != nil {
		return FailureState{}, mapStoreErr(err)
	}

	state := FailureState{Attempts: user.FailedAttempts}
	if user.LockedUntil != nil && g.now().Before(*user.LockedUntil) {
		state.Locked = true
		state.Until = *user.LockedUntil
	}

	if state.Locked && user.FailedAttempts == g.threshold() {
		g.Metrics.AccountLocked()
		slogx.FromContext(ctx).Warn("account locked",
			slog.String("user_id", userID),
			slog.Int("attempts", user.FailedAttempts),
			slog.Time("until", state.Until),
		)
	}
	return state, nil
}

// ResetFailures clears the counter after a successful check and lifts a
// guard-owned lock.
func (g *AccountGuard) ResetFailures(ctx context.Context, userID string) error {
	return mapStoreErr(g.Store.Users().ClearFailures(ctx, userID))
}
