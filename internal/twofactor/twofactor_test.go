package twofactor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/database"
	"github.com/evharlow/astrid/internal/store"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	gateway, err := crypto.New(key)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return NewService(store.NewTwoFactorStore(db), gateway, "Astrid")
}

// secretFromURL pulls the shared secret out of the otpauth provisioning URL
// so tests can compute valid codes.
func secretFromURL(t *testing.T, url string) string {
	t.Helper()
	i := strings.Index(url, "secret=")
	if i < 0 {
		t.Fatalf("no secret in %q", url)
	}
	rest := url[i+len("secret="):]
	if j := strings.IndexByte(rest, '&'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func TestSetupIssuesEnrollment(t *testing.T) {
	s := setupService(t)

	enr, err := s.Setup(context.Background(), "user-1", "vega@example.com")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.HasPrefix(enr.OTPAuthURL, "otpauth://totp/") {
		t.Errorf("url = %q", enr.OTPAuthURL)
	}
	if len(enr.RecoveryCodes) != recoveryCodeCount {
		t.Errorf("recovery codes = %d, want %d", len(enr.RecoveryCodes), recoveryCodeCount)
	}

	// Enrollment is unconfirmed until the first successful verify.
	confirmed, err := s.Enrolled(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if confirmed {
		t.Error("fresh enrollment should be unconfirmed")
	}
}

func TestVerifyTOTPCodeConfirms(t *testing.T) {
	s := setupService(t)

	enr, err := s.Setup(context.Background(), "user-1", "vega@example.com")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	code, err := totp.GenerateCode(secretFromURL(t, enr.OTPAuthURL), time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	ok, err := s.Verify(context.Background(), "user-1", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("valid code rejected")
	}

	confirmed, _ := s.Enrolled(context.Background(), "user-1")
	if !confirmed {
		t.Error("enrollment not confirmed after successful verify")
	}
}

func TestVerifyRejectsBadCode(t *testing.T) {
	s := setupService(t)

	if _, err := s.Setup(context.Background(), "user-1", "vega@example.com"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	ok, err := s.Verify(context.Background(), "user-1", "000000")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("bogus code accepted")
	}
}

func TestVerifyNotEnrolled(t *testing.T) {
	s := setupService(t)

	ok, err := s.Verify(context.Background(), "nobody", "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("verify succeeded for unenrolled user")
	}
}

func TestRecoveryCodeIsSingleUse(t *testing.T) {
	s := setupService(t)

	enr, err := s.Setup(context.Background(), "user-1", "vega@example.com")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	code := enr.RecoveryCodes[0]

	ok, err := s.Verify(context.Background(), "user-1", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("recovery code rejected")
	}

	ok, err = s.Verify(context.Background(), "user-1", code)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if ok {
		t.Error("recovery code accepted twice")
	}
}
