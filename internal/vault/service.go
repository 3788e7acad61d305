// Package vault implements the master-password path: a verify-only password hash and an
// on-demand encryption key, each derived with PBKDF2 from its own salt.
package vault

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"jobtrackr/backend/internal/security"
	"jobtrackr/backend/internal/telemetry"
	"jobtrackr/backend/internal/vault/domain"
	"jobtrackr/backend/internal/vault/repository"
)

var (
	ErrNoMasterPasswordConfigured = errors.New("no master password configured")
	ErrWeakPassword               = errors.New("master password too short")
	ErrPasswordMismatch           = errors.New("master password mismatch")
	ErrInvalidIterations          = errors.New("vault: iterations must be positive")
)

// Length policies. Callers pick the one that applies to their flow.
var (
	PolicyInitialSetup = Policy{MinLength: 12}
	PolicyChange       = Policy{MinLength: 8}
)

// Policy is a master-password length rule, counted in characters.
type Policy struct {
	MinLength int
}

// Check returns ErrWeakPassword if password is shorter than the policy allows.
func (p Policy) Check(password string) error {
	if utf8.RuneCountInString(password) < p.MinLength {
		return ErrWeakPassword
	}
	return nil
}

// KDF operation labels used in metrics.
const (
	opVerifyHash    = "verify_hash"
	opEncryptionKey = "encryption_key"
)

// Sealed is ciphertext plus the IV needed to open it.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
}

// Service manages master secrets. PBKDF2 runs are bounded by a weighted semaphore so bursts of
// verify calls cannot occupy every CPU.
type Service struct {
	repo       repository.Repository
	iterations int
	sem        *semaphore.Weighted
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// NewService returns a Service. concurrency <= 0 means GOMAXPROCS. metrics may be nil.
func NewService(repo repository.Repository, iterations, concurrency int, metrics *telemetry.Metrics) (*Service, error) {
	if iterations <= 0 {
		return nil, ErrInvalidIterations
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Service{
		repo:       repo,
		iterations: iterations,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Setup stores a new verify hash for userID. The first setup creates both salts; later setups
// reuse the stored salts and iteration count and only replace the hash.
func (s *Service) Setup(ctx context.Context, userID, password string, policy Policy) error {
	if err := policy.Check(password); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get master secret: %w", err)
	}
	if existing == nil {
		created, err := s.create(ctx, userID, password)
		if err != nil || created {
			return err
		}
		// A concurrent setup stored its salts first; hash against those.
		if existing, err = s.secret(ctx, userID); err != nil {
			return err
		}
	}
	hash, err := s.derive(ctx, opVerifyHash, func() []byte {
		return security.PasswordHash([]byte(password), existing.PasswordSalt, existing.Iterations)
	})
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdateHash(ctx, userID, hash, s.now())
	if err != nil {
		return fmt.Errorf("store master secret: %w", err)
	}
	if !ok {
		return ErrNoMasterPasswordConfigured
	}
	return nil
}

// create stores a fresh record with new salts. It reports false when userID already has one.
func (s *Service) create(ctx context.Context, userID, password string) (bool, error) {
	verifySalt, err := security.RandomBytes(security.SaltSize)
	if err != nil {
		return false, err
	}
	keySalt, err := security.RandomBytes(security.SaltSize)
	if err != nil {
		return false, err
	}
	now := s.now()
	secret := &domain.MasterSecret{
		UserID:            userID,
		PasswordSalt:      verifySalt,
		KeyDerivationSalt: keySalt,
		Iterations:        s.iterations,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	secret.PasswordHash, err = s.derive(ctx, opVerifyHash, func() []byte {
		return security.PasswordHash([]byte(password), secret.PasswordSalt, secret.Iterations)
	})
	if err != nil {
		return false, err
	}
	created, err := s.repo.Create(ctx, secret)
	if err != nil {
		return false, fmt.Errorf("store master secret: %w", err)
	}
	return created, nil
}

// Verify reports whether password matches the stored hash. A wrong password is false, not an error.
// Returns ErrNoMasterPasswordConfigured if userID has no record.
func (s *Service) Verify(ctx context.Context, userID, password string) (bool, error) {
	secret, err := s.secret(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.matches(ctx, secret, password)
}

// Configured reports whether userID has a master secret.
func (s *Service) Configured(ctx context.Context, userID string) (bool, error) {
	secret, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get master secret: %w", err)
	}
	return secret != nil, nil
}

// DeriveEncryptionKey returns the 32-byte AES key for password. The key is never stored;
// callers use it immediately and drop it. It does not check the password.
func (s *Service) DeriveEncryptionKey(ctx context.Context, userID, password string) ([]byte, error) {
	secret, err := s.secret(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.encryptionKey(ctx, secret, password)
}

// Seal verifies password, derives the encryption key and encrypts plaintext with a fresh IV.
// Returns ErrPasswordMismatch when the password is wrong.
func (s *Service) Seal(ctx context.Context, userID, password string, plaintext []byte) (*Sealed, error) {
	key, err := s.verifiedKey(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	ciphertext, iv, err := security.EncryptData(plaintext, key)
	if err != nil {
		return nil, err
	}
	return &Sealed{Ciphertext: ciphertext, IV: iv}, nil
}

// Open verifies password and decrypts sealed.
func (s *Service) Open(ctx context.Context, userID, password string, sealed *Sealed) ([]byte, error) {
	if sealed == nil {
		return nil, errors.New("vault: nothing to open")
	}
	key, err := s.verifiedKey(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	return security.DecryptData(sealed.Ciphertext, key, sealed.IV)
}

// ConfirmPassword returns ErrPasswordMismatch unless both entries are identical.
func ConfirmPassword(password, confirmation string) error {
	if !security.HashEqual([]byte(password), []byte(confirmation)) {
		return ErrPasswordMismatch
	}
	return nil
}

func (s *Service) verifiedKey(ctx context.Context, userID, password string) ([]byte, error) {
	secret, err := s.secret(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.matches(ctx, secret, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPasswordMismatch
	}
	return s.encryptionKey(ctx, secret, password)
}

func (s *Service) secret(ctx context.Context, userID string) (*domain.MasterSecret, error) {
	secret, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get master secret: %w", err)
	}
	if secret == nil {
		return nil, ErrNoMasterPasswordConfigured
	}
	return secret, nil
}

func (s *Service) matches(ctx context.Context, secret *domain.MasterSecret, password string) (bool, error) {
	hash, err := s.derive(ctx, opVerifyHash, func() []byte {
		return security.PasswordHash([]byte(password), secret.PasswordSalt, secret.Iterations)
	})
	if err != nil {
		return false, err
	}
	return security.HashEqual(hash, secret.PasswordHash), nil
}

func (s *Service) encryptionKey(ctx context.Context, secret *domain.MasterSecret, password string) ([]byte, error) {
	return s.derive(ctx, opEncryptionKey, func() []byte {
		return security.EncryptionKey([]byte(password), secret.KeyDerivationSalt, secret.Iterations)
	})
}

// derive runs one KDF computation under the semaphore. Waiting honours ctx.
func (s *Service) derive(ctx context.Context, op string, kdf func() []byte) ([]byte, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	start := time.Now()
	out := kdf()
	s.metrics.RecordKDF(ctx, op, time.Since(start))
	return out, nil
}
