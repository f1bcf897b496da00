package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/metrics"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/cryptox"
	"github.com/aussiebroadwan/warden/pkg/idx"
	"github.com/aussiebroadwan/warden/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultMFASessionTTL  = 5 * time.Minute
	DefaultMFAMaxAttempts = 5

	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 100
)

// LoginService runs the sign-in flows: password login with lockout, the
// MFA second step, refresh, logout and registration.
type LoginService struct {
	Store    store.Store
	Hasher   PasswordHasher
	Tokens   *TokenAuthority
	Guard    *AccountGuard
	Sessions *SessionGovernor
	Profiles *Profiles
	RBAC     *RBACResolver
	Metrics  *metrics.Collector

	// DefaultRoles are assigned by name to newly registered users.
	DefaultRoles   []string
	MFASessionTTL  time.Duration
	MFAMaxAttempts int
	Now            func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func (s *LoginService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *LoginService) mfaTTL() time.Duration {
	if s.MFASessionTTL > 0 {
		return s.MFASessionTTL
	}
	return DefaultMFASessionTTL
}

func (s *LoginService) mfaMaxAttempts() int {
	if s.MFAMaxAttempts > 0 {
		return s.MFAMaxAttempts
	}
	return DefaultMFAMaxAttempts
}

// RegisterInput is a local sign-up request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an ACTIVE local account with the default roles.
func (s *LoginService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	l := slogx.FromContext(ctx)

	email, err := normalizeEmail(in.Email)
	fe := fieldErrors{}
	if err != nil {
		fe.add("email", "must be a valid email address")
	}
	if n := utf8.RuneCountInString(in.Password); n < minPasswordLength || n > maxPasswordLength {
		fe.add("password", fmt.Sprintf("must be %d-%d characters", minPasswordLength, maxPasswordLength))
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if utf8.RuneCountInString(firstName) > maxNameLength {
		fe.add("first_name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(lastName) > maxNameLength {
		fe.add("last_name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if err := fe.err(); err != nil {
		return domain.User{}, err
	}

	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	roleIDs, err := s.RBAC.roleIDs(ctx, s.DefaultRoles)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve default roles: %w", err)
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: &hash,
		Status:       domain.UserActive,
		RoleIDs:      roleIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		return domain.User{}, mapStoreErr(err)
	}

	l.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login checks a password and either opens a session or starts an MFA
// challenge. Unknown emails, accounts without a password and wrong passwords
// all fail with ErrInvalidCredentials.
func (s *LoginService) Login(ctx context.Context, email, password string, meta domain.ClientMeta) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	// 1. Lookup
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.burnHash(password)
			s.Metrics.LoginAttempt(metrics.OutcomeFailure)
			l.Info("login failed", slog.String("reason", "unknown_email"))
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		s.Metrics.LoginAttempt(metrics.OutcomeError)
		return domain.LoginResult{}, err
	}
	l = l.With(slog.String("user_id", user.ID))

	// 2. Lock check, which lifts an elapsed lock
	user, lock, err := s.Guard.checkUser(ctx, user)
	if err != nil {
		s.Metrics.LoginAttempt(metrics.OutcomeError)
		return domain.LoginResult{}, err
	}
	if lock.Locked {
		s.Metrics.LoginAttempt(metrics.OutcomeLocked)
		l.Info("login rejected", slog.String("reason", "locked"), slog.Time("until", lock.Until))
		return domain.LoginResult{}, &LockedError{Until: lock.Until}
	}

	// 3. Password
	if !user.HasPassword() {
		s.burnHash(password)
		s.Metrics.LoginAttempt(metrics.OutcomeFailure)
		l.Info("login failed", slog.String("reason", "no_password"))
		return domain.LoginResult{}, ErrInvalidCredentials
	}
	if err := s.Hasher.Verify(password, *user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			l.Error("stored password hash unreadable", slog.Any("error", err))
		}
		state, ferr := s.Guard.IncrementFailure(ctx, user.ID)
		if ferr != nil {
			s.Metrics.LoginAttempt(metrics.OutcomeError)
			return domain.LoginResult{}, ferr
		}
		s.Metrics.LoginAttempt(metrics.OutcomeFailure)
		l.Info("login failed", slog.String("reason", "bad_password"), slog.Int("attempts", state.Attempts))
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	// 4. Status gate, after the password so status is not disclosed to guessers
	if !canSignIn(user.Status) {
		s.Metrics.LoginAttempt(metrics.OutcomeDisabled)
		l.Info("login rejected", slog.String("reason", "status"), slog.String("status", string(user.Status)))
		return domain.LoginResult{}, ErrAccountDisabled
	}

	if user.FailedAttempts > 0 {
		if err := s.Guard.ResetFailures(ctx, user.ID); err != nil {
			s.Metrics.LoginAttempt(metrics.OutcomeError)
			return domain.LoginResult{}, err
		}
	}

	return s.completeLogin(ctx, user, meta)
}

// completeLogin is shared by password and OAuth sign-in once the user is
// known to be allowed in.
func (s *LoginService) completeLogin(ctx context.Context, user domain.User, meta domain.ClientMeta) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx).With(slog.String("user_id", user.ID))

	profile, err := s.Profiles.BuildProfile(ctx, user)
	if err != nil {
		s.Metrics.LoginAttempt(metrics.OutcomeError)
		return domain.LoginResult{}, err
	}

	if user.MFAEnabled() {
		token, methods, err := s.startMFA(ctx, user, meta)
		if err != nil {
			s.Metrics.LoginAttempt(metrics.OutcomeError)
			return domain.LoginResult{}, err
		}
		s.Metrics.LoginAttempt(metrics.OutcomeMFARequired)
		l.Info("mfa challenge issued")
		return domain.LoginResult{
			Profile:     profile,
			MFARequired: true,
			MFAToken:    token,
			MFAMethods:  methods,
		}, nil
	}

	pair, err := s.Sessions.Open(ctx, profile, meta)
	if err != nil {
		s.Metrics.LoginAttempt(metrics.OutcomeError)
		return domain.LoginResult{}, err
	}
	s.Metrics.LoginAttempt(metrics.OutcomeSuccess)
	l.Info("login succeeded", slog.String("session", pair.RefreshJTI))
	return domain.LoginResult{Pair: &pair, Profile: profile}, nil
}

// startMFA stores a pending challenge keyed by the fingerprint of the token
// handed to the client.
func (s *LoginService) startMFA(ctx context.Context, user domain.User, meta domain.ClientMeta) (string, []string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	err = s.Store.MFASessions().CreateMFASession(ctx, domain.MFASession{
		ID:        cryptox.FingerprintToken(token),
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		ExpiresAt: now.Add(s.mfaTTL()),
		CreatedAt: now,
	})
	if err != nil {
		return "", nil, fmt.Errorf("create mfa session: %w", err)
	}

	methods := []string{domain.MFAMethodTOTP}
	if n, err := s.Store.BackupCodes().CountUserBackupCodes(ctx, user.ID); err == nil && n > 0 {
		methods = append(methods, domain.MFAMethodBackupCode)
	}
	return token, methods, nil
}

// VerifyMFA completes a login started by an MFA challenge. A challenge
// allows a fixed number of wrong codes before it is discarded.
func (s *LoginService) VerifyMFA(
	ctx context.Context,
	mfaToken, method, code string,
	meta domain.ClientMeta,
) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)

	mfaToken = strings.TrimSpace(mfaToken)
	code = strings.TrimSpace(code)
	if mfaToken == "" {
		return domain.LoginResult{}, ErrMissingToken
	}
	if code == "" {
		return domain.LoginResult{}, invalid("code", "required")
	}
	if method == "" {
		method = domain.MFAMethodTOTP
	}
	if method != domain.MFAMethodTOTP && method != domain.MFAMethodBackupCode {
		return domain.LoginResult{}, invalid("method", "must be totp or backup_code")
	}

	sessionID := cryptox.FingerprintToken(mfaToken)
	session, err := s.Store.MFASessions().GetMFASession(ctx, sessionID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResult{}, ErrTokenInvalid
		}
		return domain.LoginResult{}, err
	}
	l = l.With(slog.String("user_id", session.UserID))

	if session.Attempts >= s.mfaMaxAttempts() {
		s.dropMFASession(ctx, sessionID)
		return domain.LoginResult{}, ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByID(ctx, session.UserID)
	if err != nil {
		return domain.LoginResult{}, mapStoreErr(err)
	}
	user, lock, err := s.Guard.checkUser(ctx, user)
	if err != nil {
		return domain.LoginResult{}, err
	}
	if lock.Locked {
		return domain.LoginResult{}, &LockedError{Until: lock.Until}
	}
	if !canSignIn(user.Status) {
		s.dropMFASession(ctx, sessionID)
		return domain.LoginResult{}, ErrAccountDisabled
	}
	if !user.MFAEnabled() || user.MFASecret == nil {
		s.dropMFASession(ctx, sessionID)
		return domain.LoginResult{}, ErrMFANotEnabled
	}

	ok, err := s.checkSecondFactor(ctx, user, method, code)
	if err != nil {
		return domain.LoginResult{}, err
	}
	if !ok {
		updated, err := s.Store.MFASessions().IncrementMFASessionAttempts(ctx, sessionID)
		if err != nil {
			return domain.LoginResult{}, mapStoreErr(err)
		}
		s.Metrics.LoginAttempt(metrics.OutcomeFailure)
		l.Info("mfa verification failed", slog.String("method", method), slog.Int("attempts", updated.Attempts))
		if updated.Attempts >= s.mfaMaxAttempts() {
			s.dropMFASession(ctx, sessionID)
			return domain.LoginResult{}, ErrTooManyAttempts
		}
		return domain.LoginResult{}, ErrInvalidMFACode
	}

	s.dropMFASession(ctx, sessionID)

	profile, err := s.Profiles.BuildProfile(ctx, user)
	if err != nil {
		return domain.LoginResult{}, err
	}
	pair, err := s.Sessions.Open(ctx, profile, meta)
	if err != nil {
		s.Metrics.LoginAttempt(metrics.OutcomeError)
		return domain.LoginResult{}, err
	}
	s.Metrics.LoginAttempt(metrics.OutcomeSuccess)
	l.Info("mfa login succeeded", slog.String("method", method))
	return domain.LoginResult{Pair: &pair, Profile: profile}, nil
}

func (s *LoginService) checkSecondFactor(ctx context.Context, user domain.User, method, code string) (bool, error) {
	switch method {
	case domain.MFAMethodBackupCode:
		ok, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, user.ID, cryptox.FingerprintToken(code))
		if err != nil {
			return false, fmt.Errorf("consume backup code: %w", err)
		}
		if ok {
			slogx.FromContext(ctx).Info("backup code used", slog.String("user_id", user.ID))
		}
		return ok, nil
	default:
		return validateTOTP(code, *user.MFASecret, s.now()), nil
	}
}

func (s *LoginService) dropMFASession(ctx context.Context, id string) {
	if err := s.Store.MFASessions().DeleteMFASession(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Warn("failed to delete mfa session", slog.Any("error", err))
	}
}

// Refresh rotates a refresh token into a new pair.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string, meta domain.ClientMeta) (domain.TokenPair, domain.Profile, error) {
	return s.Tokens.Rotate(ctx, refreshToken, meta)
}

// Logout ends the session of refreshToken and revokes the presented access
// token. Either may be empty; tokens that are already expired or revoked
// are ignored.
func (s *LoginService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	accessToken = strings.TrimSpace(accessToken)
	if refreshToken == "" && accessToken == "" {
		return ErrMissingToken
	}

	var userID string
	if refreshToken != "" {
		id, err := s.Tokens.RevokeRefresh(ctx, refreshToken, metrics.ReasonLogout)
		if err != nil {
			return err
		}
		userID = id
	}
	if accessToken != "" {
		if err := s.Tokens.RevokeAccess(ctx, accessToken, metrics.ReasonLogout); err != nil {
			return err
		}
	}

	slogx.FromContext(ctx).Info("logout", slog.String("user_id", userID))
	return nil
}

// LogoutAll ends every session of the user.
func (s *LoginService) LogoutAll(ctx context.Context, userID string) (int, error) {
	return s.Sessions.RevokeAll(ctx, userID)
}

// Validate verifies an access token and returns its profile.
func (s *LoginService) Validate(ctx context.Context, accessToken string) (domain.Profile, error) {
	return s.Tokens.VerifyAccess(ctx, accessToken)
}

// burnHash spends the same time as a real verify so unknown emails are not
// distinguishable by latency.
func (s *LoginService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.Hasher.Hash("warden-dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		_ = s.Hasher.Verify(password, s.dummyHash)
	}
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || len(raw) > 254 {
		return "", errors.New("invalid email")
	}
	return strings.ToLower(raw), nil
}

// validateTOTP accepts the current 30 second step and one either side.
func validateTOTP(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
