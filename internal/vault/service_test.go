package vault

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobtrackr/backend/internal/security"
	"jobtrackr/backend/internal/vault/domain"
	"jobtrackr/backend/internal/vault/repository"
)

const testIterations = 1000

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	svc, err := NewService(repo, testIterations, 2, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*domain.MasterSecret, error) {
	return nil, errors.New("conn reset")
}

func (failingRepo) Create(context.Context, *domain.MasterSecret) (bool, error) {
	return false, errors.New("conn reset")
}

func (failingRepo) UpdateHash(context.Context, string, []byte, time.Time) (bool, error) {
	return false, errors.New("conn reset")
}

// barrierRepo holds the first n Get calls until all n have arrived, so concurrent setups
// all observe an empty store.
type barrierRepo struct {
	*repository.MemoryRepository
	mu      sync.Mutex
	n       int
	release chan struct{}
}

func newBarrierRepo(n int) *barrierRepo {
	return &barrierRepo{MemoryRepository: repository.NewMemoryRepository(), n: n, release: make(chan struct{})}
}

func (b *barrierRepo) Get(ctx context.Context, userID string) (*domain.MasterSecret, error) {
	b.mu.Lock()
	waiting := b.n > 0
	if waiting {
		b.n--
		if b.n == 0 {
			close(b.release)
		}
	}
	b.mu.Unlock()
	if waiting {
		<-b.release
	}
	return b.MemoryRepository.Get(ctx, userID)
}

func TestNewService_RejectsZeroIterations(t *testing.T) {
	if _, err := NewService(repository.NewMemoryRepository(), 0, 0, nil); !errors.Is(err, ErrInvalidIterations) {
		t.Errorf("NewService error = %v, want ErrInvalidIterations", err)
	}
}

func TestPolicy_Check(t *testing.T) {
	testCases := []struct {
		name     string
		policy   Policy
		password string
		wantErr  bool
	}{
		{"initial too short", PolicyInitialSetup, "short", true},
		{"initial eleven", PolicyInitialSetup, "elevenchars", true},
		{"initial twelve", PolicyInitialSetup, "twelve-chars", false},
		{"change eight", PolicyChange, "8chars!!", false},
		{"change seven", PolicyChange, "7chars!", true},
		{"multibyte counts characters", PolicyChange, "pässwörd", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Check(tc.password)
			if tc.wantErr && !errors.Is(err, ErrWeakPassword) {
				t.Errorf("Check(%q) = %v, want ErrWeakPassword", tc.password, err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Check(%q) = %v", tc.password, err)
			}
		})
	}
}

func TestSetupAndVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Setup(ctx, "u1", "short", PolicyInitialSetup); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("Setup(short) = %v, want ErrWeakPassword", err)
	}
	if err := svc.Setup(ctx, "u1", "a-strong-password-123", PolicyInitialSetup); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	ok, err := svc.Verify(ctx, "u1", "a-strong-password-123")
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	for _, wrong := range []string{"a-strong-password-124", "", "A-STRONG-PASSWORD-123", "a-strong-password-123 "} {
		ok, err := svc.Verify(ctx, "u1", wrong)
		if err != nil {
			t.Errorf("Verify(%q) error = %v, want nil", wrong, err)
		}
		if ok {
			t.Errorf("Verify(%q) = true", wrong)
		}
	}
}

func TestVerify_NotConfigured(t *testing.T) {
	svc, _ := newTestService(t)
	ok, err := svc.Verify(context.Background(), "nobody", "whatever-password")
	if ok || !errors.Is(err, ErrNoMasterPasswordConfigured) {
		t.Errorf("Verify = %v, %v; want false, ErrNoMasterPasswordConfigured", ok, err)
	}
	if _, err := svc.DeriveEncryptionKey(context.Background(), "nobody", "whatever-password"); !errors.Is(err, ErrNoMasterPasswordConfigured) {
		t.Errorf("DeriveEncryptionKey error = %v", err)
	}
	configured, err := svc.Configured(context.Background(), "nobody")
	if err != nil || configured {
		t.Errorf("Configured = %v, %v", configured, err)
	}
}

func TestSetup_IndependentSalts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	if err := svc.Setup(ctx, "u1", "a-strong-password-123", PolicyInitialSetup); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	secret, _ := repo.Get(ctx, "u1")
	if len(secret.PasswordSalt) != security.SaltSize || len(secret.KeyDerivationSalt) != security.SaltSize {
		t.Fatalf("salt sizes = %d, %d", len(secret.PasswordSalt), len(secret.KeyDerivationSalt))
	}
	if bytes.Equal(secret.PasswordSalt, secret.KeyDerivationSalt) {
		t.Error("verify and key-derivation salts must differ")
	}
	if len(secret.PasswordHash) != security.VerifyHashSize {
		t.Errorf("hash size = %d, want %d", len(secret.PasswordHash), security.VerifyHashSize)
	}

	key, err := svc.DeriveEncryptionKey(ctx, "u1", "a-strong-password-123")
	if err != nil {
		t.Fatalf("DeriveEncryptionKey: %v", err)
	}
	if len(key) != security.EncryptionKeySize {
		t.Errorf("key size = %d", len(key))
	}
	if bytes.Contains(secret.PasswordHash, key) {
		t.Error("encryption key must not be derivable from the stored hash")
	}
}

func TestSetup_RotationKeepsSalts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	if err := svc.Setup(ctx, "u1", "first-password-123", PolicyInitialSetup); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	before, _ := repo.Get(ctx, "u1")

	if err := svc.Setup(ctx, "u1", "second-pw", PolicyChange); err != nil {
		t.Fatalf("Setup(change): %v", err)
	}
	after, _ := repo.Get(ctx, "u1")
	if !bytes.Equal(before.PasswordSalt, after.PasswordSalt) || !bytes.Equal(before.KeyDerivationSalt, after.KeyDerivationSalt) {
		t.Error("salts changed on rotation")
	}
	if bytes.Equal(before.PasswordHash, after.PasswordHash) {
		t.Error("hash should change on rotation")
	}
	if ok, _ := svc.Verify(ctx, "u1", "first-password-123"); ok {
		t.Error("old password should no longer verify")
	}
	if ok, _ := svc.Verify(ctx, "u1", "second-pw"); !ok {
		t.Error("new password should verify")
	}
}

func TestSetup_ConcurrentFirstSetup(t *testing.T) {
	repo := newBarrierRepo(2)
	svc, err := NewService(repo, testIterations, 2, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	passwords := []string{"first-password-123", "second-password-456"}

	var wg sync.WaitGroup
	errs := make([]error, len(passwords))
	for i, pw := range passwords {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = svc.Setup(ctx, "u1", pw, PolicyInitialSetup)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Setup(%q): %v", passwords[i], err)
		}
	}

	verified := 0
	for _, pw := range passwords {
		ok, err := svc.Verify(ctx, "u1", pw)
		if err != nil {
			t.Fatalf("Verify(%q): %v", pw, err)
		}
		if ok {
			verified++
			if _, err := svc.Seal(ctx, "u1", pw, []byte("x")); err != nil {
				t.Errorf("Seal with the surviving password: %v", err)
			}
		}
	}
	if verified != 1 {
		t.Errorf("%d passwords verify after concurrent setup, want exactly 1", verified)
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	password := "a-strong-password-123"
	if err := svc.Setup(ctx, "u1", password, PolicyInitialSetup); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	plaintexts := []string{"", "a", "sixteen bytes!!!", "salary: 120k, notes: ☕ 日本語 🎉", string(bytes.Repeat([]byte("x"), 1000))}
	for _, p := range plaintexts {
		sealed, err := svc.Seal(ctx, "u1", password, []byte(p))
		if err != nil {
			t.Fatalf("Seal(%q): %v", p, err)
		}
		if len(sealed.IV) != 16 {
			t.Errorf("IV length = %d", len(sealed.IV))
		}
		got, err := svc.Open(ctx, "u1", password, sealed)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if string(got) != p {
			t.Errorf("round trip = %q, want %q", got, p)
		}
	}
}

func TestSeal_FreshIV(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	password := "a-strong-password-123"
	_ = svc.Setup(ctx, "u1", password, PolicyInitialSetup)

	a, err := svc.Seal(ctx, "u1", password, []byte("same"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, _ := svc.Seal(ctx, "u1", password, []byte("same"))
	if bytes.Equal(a.IV, b.IV) || bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("each Seal must use a fresh IV")
	}
}

func TestSealOpen_WrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_ = svc.Setup(ctx, "u1", "a-strong-password-123", PolicyInitialSetup)

	if _, err := svc.Seal(ctx, "u1", "wrong-password-123", []byte("x")); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Seal error = %v, want ErrPasswordMismatch", err)
	}
	sealed, _ := svc.Seal(ctx, "u1", "a-strong-password-123", []byte("x"))
	if _, err := svc.Open(ctx, "u1", "wrong-password-123", sealed); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Open error = %v, want ErrPasswordMismatch", err)
	}
}

func TestDerive_HonoursContext(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc, err := NewService(repo, testIterations, 1, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	_ = svc.Setup(context.Background(), "u1", "a-strong-password-123", PolicyInitialSetup)

	if err := svc.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer svc.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Verify(ctx, "u1", "a-strong-password-123"); !errors.Is(err, context.Canceled) {
		t.Errorf("Verify error = %v, want context.Canceled", err)
	}
}

func TestService_RepositoryErrors(t *testing.T) {
	svc, err := NewService(failingRepo{}, testIterations, 1, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	if err := svc.Setup(ctx, "u1", "a-strong-password-123", PolicyInitialSetup); err == nil {
		t.Error("Setup should fail")
	}
	if _, err := svc.Verify(ctx, "u1", "a-strong-password-123"); err == nil || errors.Is(err, ErrNoMasterPasswordConfigured) {
		t.Errorf("Verify error = %v, want a database error", err)
	}
}

func TestConfirmPassword(t *testing.T) {
	if err := ConfirmPassword("same-password", "same-password"); err != nil {
		t.Errorf("ConfirmPassword(same) = %v", err)
	}
	if err := ConfirmPassword("same-password", "other-password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("ConfirmPassword(different) = %v", err)
	}
}
