package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cokmall-api/internal/response"
)

// fakeStore mirrors the repository's semantics in memory, including the
// atomic increment-and-lock of RecordFailedLogin.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	revoked  map[string]time.Time
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*Account),
		revoked:  make(map[string]time.Time),
	}
}

func (f *fakeStore) CreateAccount(_ context.Context, email, passwordHash string, issue func(Account) error) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.accounts[email]; exists {
		return Account{}, ErrEmailTaken
	}

	f.nextID++
	now := time.Now().UTC()
	account := Account{
		ID:           f.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if issue != nil {
		if err := issue(account); err != nil {
			return Account{}, err
		}
	}

	stored := account
	f.accounts[email] = &stored
	return account, nil
}

func (f *fakeStore) GetAccountByEmail(_ context.Context, email string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *account, nil
}

func (f *fakeStore) RecordFailedLogin(_ context.Context, email string, maxAttempts int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[email]
	if !ok {
		return 0, false, ErrAccountNotFound
	}

	account.FailedLoginAttempts++
	if account.FailedLoginAttempts >= maxAttempts {
		account.Locked = true
	}
	account.UpdatedAt = time.Now().UTC()
	return account.FailedLoginAttempts, account.Locked, nil
}

func (f *fakeStore) ResetFailedLogins(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if account, ok := f.accounts[email]; ok {
		account.FailedLoginAttempts = 0
		account.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (f *fakeStore) UnlockAccount(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[email]
	if !ok {
		return ErrAccountNotFound
	}
	account.Locked = false
	account.FailedLoginAttempts = 0
	return nil
}

func (f *fakeStore) EnsureAdminAccount(_ context.Context, email, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.accounts[email]; exists {
		return nil
	}
	f.nextID++
	f.accounts[email] = &Account{
		ID:           f.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
	}
	return nil
}

func (f *fakeStore) RevokeToken(_ context.Context, jti string, _ int64, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.revoked[jti]; exists {
		return false, nil
	}
	f.revoked[jti] = expiresAt
	return true, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	tokens, err := NewTokenService(testSecret)
	require.NoError(t, err)
	return NewService(store, tokens, zap.NewNop()), store
}

func requireDomainError(t *testing.T, err error) *response.Error {
	t.Helper()
	var domainErr *response.Error
	require.ErrorAs(t, err, &domainErr)
	return domainErr
}

func TestRegister_Success(t *testing.T) {
	service, store := newTestService(t)

	tokens, err := service.Register(context.Background(), "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(900), tokens.ExpiresIn)
	assert.Equal(t, "alice@example.com", tokens.Email)
	assert.Equal(t, "USER", tokens.Role)

	account, err := store.GetAccountByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, account.Role)
	assert.Equal(t, 0, account.FailedLoginAttempts)
	assert.False(t, account.Locked)
	assert.NotEqual(t, "Str0ng!Pass", account.PasswordHash)
}

func TestRegister_NormalizesEmail(t *testing.T) {
	service, _ := newTestService(t)

	tokens, err := service.Register(context.Background(), "  Alice@Example.COM ", "Str0ng!Pass")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", tokens.Email)

	// Different casing collides with the normalized account.
	_, err = service.Register(context.Background(), "ALICE@example.com", "Str0ng!Pass")
	domainErr := requireDomainError(t, err)
	assert.Equal(t, response.KindUnauthorized, domainErr.Kind)
	assert.Equal(t, "Email already registered", domainErr.Message)
}

func TestRegister_ValidationFailures(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Register(context.Background(), "not-an-email", "Str0ng!Pass")
	domainErr := requireDomainError(t, err)
	assert.Equal(t, response.KindValidation, domainErr.Kind)
	assert.Contains(t, domainErr.Fields, "email")

	_, err = service.Register(context.Background(), "bob@example.com", "weakpass")
	domainErr = requireDomainError(t, err)
	assert.Equal(t, response.KindValidation, domainErr.Kind)
	assert.Contains(t, domainErr.Fields, "password")
}

func TestLogin_Success_ResetsCounter(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	_, err = service.Login(ctx, "alice@example.com", "Wr0ng!Pass1")
	require.Error(t, err)

	tokens, err := service.Login(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)

	account, err := store.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, account.FailedLoginAttempts)
}

func TestLogin_EnumerationResistance(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "real@x.com", "Str0ng!Pass")
	require.NoError(t, err)

	_, unknownErr := service.Login(ctx, "nonexistent@x.com", "anything")
	_, wrongPassErr := service.Login(ctx, "real@x.com", "Wr0ngPass1!")

	unknown := requireDomainError(t, unknownErr)
	wrongPass := requireDomainError(t, wrongPassErr)

	// Identical kind and message regardless of whether the account exists.
	assert.Equal(t, unknown.Kind, wrongPass.Kind)
	assert.Equal(t, unknown.Message, wrongPass.Message)
	assert.Equal(t, response.KindUnauthorized, unknown.Kind)
}

func TestLogin_LockoutThreshold(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	// First four failures: still active, generic message.
	for i := 1; i <= 4; i++ {
		_, loginErr := service.Login(ctx, "alice@example.com", "Wr0ng!Pass1")
		domainErr := requireDomainError(t, loginErr)
		assert.Equal(t, "Invalid email or password", domainErr.Message, "attempt %d", i)
	}

	account, err := store.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 4, account.FailedLoginAttempts)
	assert.False(t, account.Locked)

	// Fifth failure trips the lock.
	_, loginErr := service.Login(ctx, "alice@example.com", "Wr0ng!Pass1")
	domainErr := requireDomainError(t, loginErr)
	assert.Contains(t, domainErr.Message, "locked")

	account, err = store.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, account.FailedLoginAttempts)
	assert.True(t, account.Locked)

	// Correct password no longer helps and the counter stays put.
	_, loginErr = service.Login(ctx, "alice@example.com", "Str0ng!Pass")
	domainErr = requireDomainError(t, loginErr)
	assert.Contains(t, domainErr.Message, "locked")

	account, err = store.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, account.FailedLoginAttempts)
	assert.True(t, account.Locked)
}

func TestUnlock_RestoresLogin(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = service.Login(ctx, "alice@example.com", "Wr0ng!Pass1")
	}

	_, loginErr := service.Login(ctx, "alice@example.com", "Str0ng!Pass")
	require.Error(t, loginErr)

	require.NoError(t, service.Unlock(ctx, "alice@example.com"))

	tokens, err := service.Login(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestUnlock_UnknownAccount(t *testing.T) {
	service, _ := newTestService(t)

	err := service.Unlock(context.Background(), "ghost@example.com")
	domainErr := requireDomainError(t, err)
	assert.Equal(t, response.KindNotFound, domainErr.Kind)
}

func TestRefresh_RotatesToken(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	refreshed, err := service.Refresh(ctx, registered.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, registered.RefreshToken, refreshed.RefreshToken)

	// The presented token was revoked by the rotation.
	_, err = service.Refresh(ctx, registered.RefreshToken)
	domainErr := requireDomainError(t, err)
	assert.Equal(t, response.KindUnauthorized, domainErr.Kind)
}

func TestRefresh_ConcurrentRedemptionSpendsTokenOnce(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	const racers = 4
	start := make(chan struct{})
	results := make(chan error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, refreshErr := service.Refresh(ctx, registered.RefreshToken)
			results <- refreshErr
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	// Exactly one redemption wins; the rest get the generic rejection.
	var successes int
	for refreshErr := range results {
		if refreshErr == nil {
			successes++
			continue
		}
		domainErr := requireDomainError(t, refreshErr)
		assert.Equal(t, response.KindUnauthorized, domainErr.Kind)
		assert.Equal(t, "Invalid refresh token", domainErr.Message)
	}
	assert.Equal(t, 1, successes)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	_, err = service.Refresh(ctx, registered.AccessToken)
	domainErr := requireDomainError(t, err)
	assert.Equal(t, response.KindUnauthorized, domainErr.Kind)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, "alice@example.com", "Str0ng!Pass")
	require.NoError(t, err)

	require.NoError(t, service.Logout(ctx, registered.RefreshToken))

	_, err = service.Refresh(ctx, registered.RefreshToken)
	require.Error(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	// Nothing configured: no-op.
	require.NoError(t, service.EnsureAdmin(ctx, "", ""))

	// Half-configured: config error.
	require.Error(t, service.EnsureAdmin(ctx, "admin@example.com", ""))

	require.NoError(t, service.EnsureAdmin(ctx, "admin@example.com", "Adm1n!Pass"))
	account, err := store.GetAccountByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, account.Role)
}
