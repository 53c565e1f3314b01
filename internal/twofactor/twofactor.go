// Package twofactor implements TOTP enrollment and verification. Secrets are
// stored gateway-encrypted; recovery codes are stored as bcrypt hashes and
// burn on first use.
package twofactor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/store"
)

const recoveryCodeCount = 8

type Service struct {
	store   *store.TwoFactorStore
	gateway *crypto.Gateway
	issuer  string
}

func NewService(st *store.TwoFactorStore, gateway *crypto.Gateway, issuer string) *Service {
	if issuer == "" {
		issuer = "Astrid"
	}
	return &Service{store: st, gateway: gateway, issuer: issuer}
}

// Enrollment is returned once at setup. The provisioning URL and recovery
// codes are shown to the user a single time and never stored in this form.
type Enrollment struct {
	OTPAuthURL    string   `json:"otpauth_url"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// Setup provisions a new TOTP secret for the user, replacing any previous
// enrollment. The enrollment stays unconfirmed until the first successful
// Verify.
func (s *Service) Setup(ctx context.Context, userID, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	secretEnc, err := s.gateway.Encrypt(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("encrypt totp secret: %w", err)
	}
	if err := s.store.SaveSecret(ctx, userID, secretEnc); err != nil {
		return nil, err
	}

	codes, hashes, err := generateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceRecoveryCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	return &Enrollment{OTPAuthURL: key.URL(), RecoveryCodes: codes}, nil
}

// Enrolled reports whether the user has a confirmed enrollment.
func (s *Service) Enrolled(ctx context.Context, userID string) (bool, error) {
	_, confirmed, err := s.store.GetSecret(ctx, userID)
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

// Verify checks a TOTP code, falling back to unused recovery codes. The
// first successful TOTP check confirms a fresh enrollment.
func (s *Service) Verify(ctx context.Context, userID, code string) (bool, error) {
	secretEnc, confirmed, err := s.store.GetSecret(ctx, userID)
	if err != nil {
		return false, err
	}
	if secretEnc == "" {
		return false, nil
	}

	secret, err := s.gateway.Decrypt(&secretEnc)
	if err != nil {
		return false, fmt.Errorf("decrypt totp secret: %w", err)
	}

	if totp.Validate(code, *secret) {
		if !confirmed {
			if err := s.store.Confirm(ctx, userID); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	return s.tryRecoveryCode(ctx, userID, code)
}

func (s *Service) tryRecoveryCode(ctx context.Context, userID, code string) (bool, error) {
	hashes, err := s.store.UnusedCodeHashes(ctx, userID)
	if err != nil {
		return false, err
	}
	for id, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			used, err := s.store.MarkCodeUsed(ctx, id)
			if err != nil {
				return false, err
			}
			return used, nil
		}
	}
	return false, nil
}

func generateRecoveryCodes() ([]string, []string, error) {
	codes := make([]string, 0, recoveryCodeCount)
	hashes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generate recovery code: %w", err)
		}
		code := hex.EncodeToString(raw)
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hash recovery code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, string(hash))
	}
	return codes, hashes, nil
}
