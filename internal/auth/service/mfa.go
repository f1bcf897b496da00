package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/warden/internal/auth/domain"
	"github.com/aussiebroadwan/warden/internal/auth/store"
	"github.com/aussiebroadwan/warden/pkg/cryptox"
	"github.com/aussiebroadwan/warden/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 10
	backupCodeBytes = cryptox.TokenSize128
)

// MFAService manages TOTP enrollment and backup codes for signed-in users.
type MFAService struct {
	Store  store.Store
	Issuer string // shown in authenticator apps
	Now    func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// EnrollTOTP generates and stores a pending TOTP secret. MFA is not enabled
// until a code from the new secret is confirmed with ConfirmTOTP. Enrolling
// again before confirming replaces the pending secret.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, mapStoreErr(err)
	}
	if user.MFAEnabled() {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Users().UpdateMFASecret(ctx, userID, key.Secret()); err != nil {
		return domain.MFAEnrollment{}, mapStoreErr(err)
	}

	return domain.MFAEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: user.Email,
	}, nil
}

// ConfirmTOTP checks a code against the pending secret, enables MFA and
// returns a fresh set of backup codes. The codes are only ever returned here
// and from RegenerateBackupCodes; the store keeps fingerprints.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if user.MFAEnabled() {
		return nil, ErrMFAAlreadyEnabled
	}
	if user.MFASecret == nil || *user.MFASecret == "" {
		return nil, ErrMFANotEnrolled
	}
	if !validateTOTP(code, *user.MFASecret, s.now()) {
		return nil, ErrInvalidMFACode
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := replaceBackupCodes(ctx, tx, userID, codes); err != nil {
			return err
		}
		if err := tx.Users().EnableMFA(ctx, userID, s.now()); err != nil {
			return fmt.Errorf("enable mfa: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("mfa enabled", slog.String("user_id", userID))
	return codes, nil
}

// RegenerateBackupCodes replaces every backup code after a TOTP check.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.verifyCode(ctx, userID, code); err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceBackupCodes(ctx, tx, userID, codes)
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// RemainingBackupCodes reports how many unused backup codes the user has.
func (s *MFAService) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return s.Store.BackupCodes().CountUserBackupCodes(ctx, userID)
}

// RemoveMFA disables MFA after a TOTP check and drops the backup codes.
func (s *MFAService) RemoveMFA(ctx context.Context, userID, code string) error {
	if err := s.verifyCode(ctx, userID, code); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		if err := tx.Users().DisableMFA(ctx, userID); err != nil {
			return fmt.Errorf("disable mfa: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("mfa removed", slog.String("user_id", userID))
	return nil
}

func (s *MFAService) verifyCode(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return mapStoreErr(err)
	}
	if !user.MFAEnabled() || user.MFASecret == nil || *user.MFASecret == "" {
		return ErrMFANotEnabled
	}
	if !validateTOTP(code, *user.MFASecret, s.now()) {
		return ErrInvalidMFACode
	}
	return nil
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range backupCodeCount {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = code
	}
	return codes, nil
}

func replaceBackupCodes(ctx context.Context, tx store.Tx, userID string, codes []string) error {
	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	for _, code := range codes {
		if err := tx.BackupCodes().CreateBackupCode(ctx, userID, cryptox.FingerprintToken(code)); err != nil {
			return fmt.Errorf("store backup code: %w", err)
		}
	}
	return nil
}
