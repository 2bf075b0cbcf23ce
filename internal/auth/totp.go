package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// recoveryCodeLength is the length of one recovery code.
const recoveryCodeLength = 8

// recoveryCodeAlphabet deliberately omits easily confused characters (0/O, 1/I/L).
const recoveryCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// TwoFactorService verifies second-factor codes: TOTP first, then a
// single-use recovery code.
type TwoFactorService struct {
	users UserRepositoryInterface
}

// NewTwoFactorService creates a TwoFactorService.
func NewTwoFactorService(users UserRepositoryInterface) *TwoFactorService {
	return &TwoFactorService{users: users}
}

// Verify checks code against the user's TOTP secret; if that fails it
// treats code as a candidate recovery code and consumes it. A consumed
// recovery code never verifies again. Returns (false, nil) for a plain
// mismatch; an error only signals a storage failure.
func (s *TwoFactorService) Verify(ctx context.Context, user *User, code string) (bool, error) {
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return false, nil
	}

	if totp.Validate(code, user.TwoFactorSecret) {
		return true, nil
	}

	used, exists := user.RecoveryCodes[code]
	if !exists || used {
		return false, nil
	}

	err := s.users.MarkRecoveryCodeUsed(ctx, user.BusinessID, user.ID, code)
	if err != nil {
		if errors.Is(err, ErrRecoveryCodeUsed) || errors.Is(err, ErrTwoFactorInvalid) {
			// Lost the race to another request holding the same code
			return false, nil
		}
		return false, storageErr("recovery code consume", err)
	}

	user.RecoveryCodes[code] = true
	return true, nil
}

// VerifyTOTPCode reports whether code is a valid time-step code for secret.
// Malformed codes and secrets verify as false, never as an error.
func VerifyTOTPCode(code, secret string) (bool, error) {
	return totp.Validate(code, secret), nil
}

// GenerateTOTPSecret creates a new TOTP secret for accountName and returns
// the secret, a PNG QR code as a data URI, and the otpauth provisioning URI.
func GenerateTOTPSecret(issuer, accountName string) (secret, qrCodeDataURI, otpauthURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", "", fmt.Errorf("generate totp key: %w", err)
	}

	var png bytes.Buffer
	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return "", "", "", fmt.Errorf("generate qr code: %w", err)
	}
	if err := qr.Write(256, &png); err != nil {
		return "", "", "", fmt.Errorf("encode qr code: %w", err)
	}

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png.Bytes())
	return key.Secret(), dataURI, key.URL(), nil
}

// GenerateRecoveryCodes returns count fresh single-use recovery codes and
// the unused-state map to persist alongside them.
func GenerateRecoveryCodes(count int) ([]string, map[string]bool, error) {
	if count <= 0 {
		count = 10
	}

	codes := make([]string, 0, count)
	state := make(map[string]bool, count)
	for len(codes) < count {
		code, err := randomRecoveryCode()
		if err != nil {
			return nil, nil, err
		}
		if _, dup := state[code]; dup {
			continue
		}
		codes = append(codes, code)
		state[code] = false
	}
	return codes, state, nil
}

func randomRecoveryCode() (string, error) {
	buf := make([]byte, recoveryCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = recoveryCodeAlphabet[int(buf[i])%len(recoveryCodeAlphabet)]
	}
	return string(buf), nil
}
