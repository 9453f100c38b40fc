// Package auth: password hashing.
//
// PASSWORD STORAGE:
// Passwords are stored as bcrypt hashes, never in plain text or under a fast
// hash (MD5, SHA-256). bcrypt:
//   - generates a random salt per hash, so equal passwords hash differently
//   - embeds that salt in its output, so the users table needs one column
//   - takes a work factor ("cost"); each +1 doubles the time per hash
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// The cost is read back from the stored hash on Verify, so raising
// defaultCost only affects new hashes and needs no migration.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// defaultCost is the bcrypt work factor: roughly 250ms per hash on a
	// current server.
	//
	// COST TUNING:
	// Aim for 200-300ms on the production machine. Lower makes offline
	// cracking cheap; higher makes login slow and lets a burst of sign-ins
	// saturate the CPU.
	defaultCost = 12

	// MinPasswordLength is enforced at registration.
	MinPasswordLength = 8
	// MaxPasswordLength is bcrypt's input limit; longer input would be
	// silently truncated, so it is rejected instead.
	MaxPasswordLength = 72
)

var (
	ErrPasswordMismatch = errors.New("auth: invalid password")
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
)

// PasswordService hashes and verifies passwords with bcrypt.
//
// The cost is a field rather than a constant so tests can run at
// bcrypt.MinCost (4): a registration test at cost 12 takes a quarter of a
// second per hash, at cost 4 under a millisecond, with identical logic.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService at the production cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest returns a PasswordService with a custom cost.
// Tests in other packages pass bcrypt.MinCost (4) to stay fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch
// when it does not. An empty hash (GitHub-only account) never matches.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrPasswordMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
