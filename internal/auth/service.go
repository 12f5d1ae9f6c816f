package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"cokmall-api/internal/response"
)

// Client-visible failure messages. Wrong password, unknown email and a
// mid-flight lock all collapse onto the same strings so responses cannot
// be used to enumerate accounts; the log line keeps the real cause.
const (
	msgInvalidCredentials  = "Invalid email or password"
	msgAccountLocked       = "Account is locked due to too many failed login attempts. Please contact support."
	msgEmailTaken          = "Email already registered"
	msgInvalidRefreshToken = "Invalid refresh token"
)

const defaultMaxLoginAttempts = 5

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Store is the persistence surface the use cases need. *Repository is the
// Postgres implementation; tests use an in-memory fake.
type Store interface {
	CreateAccount(ctx context.Context, email, passwordHash string, issue func(Account) error) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	RecordFailedLogin(ctx context.Context, email string, maxAttempts int) (attempts int, locked bool, err error)
	ResetFailedLogins(ctx context.Context, email string) error
	UnlockAccount(ctx context.Context, email string) error
	EnsureAdminAccount(ctx context.Context, email, passwordHash string) error
	RevokeToken(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error)
}

// Service orchestrates the auth use cases: register, login, refresh,
// logout and unlock.
type Service struct {
	store       Store
	tokens      *TokenService
	logger      *zap.Logger
	maxAttempts int
}

func NewService(store Store, tokens *TokenService, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		tokens:      tokens,
		logger:      logger,
		maxAttempts: defaultMaxLoginAttempts,
	}
}

func (s *Service) WithMaxLoginAttempts(maxAttempts int) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
}

// NormalizeEmail lowercases and trims so lookups and uniqueness never
// depend on the case the client happened to send.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and issues its first token pair. The insert
// and the issuance run as one atomic unit in the store.
func (s *Service) Register(ctx context.Context, email, password string) (AuthTokens, error) {
	email = NormalizeEmail(email)

	fields := map[string]string{}
	if !emailPattern.MatchString(email) {
		fields["email"] = "Invalid email format"
	}
	if err := ValidateStrength(password); err != nil {
		fields["password"] = err.Error()
	}
	if len(fields) > 0 {
		s.logger.Warn("register_rejected_validation", zap.String("email", email))
		return AuthTokens{}, response.Validation(fields)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return AuthTokens{}, response.Internal(fmt.Errorf("hash password: %w", err))
	}

	var tokens AuthTokens
	account, err := s.store.CreateAccount(ctx, email, passwordHash, func(created Account) error {
		issued, issueErr := s.issueTokens(created)
		if issueErr != nil {
			return issueErr
		}
		tokens = issued
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.logger.Warn("register_rejected_duplicate", zap.String("email", email))
			return AuthTokens{}, response.Unauthorized(msgEmailTaken)
		}
		return AuthTokens{}, response.Internal(err)
	}

	s.logger.Info("register_ok", zap.String("email", account.Email), zap.Int64("user_id", account.ID))
	return tokens, nil
}

// Login verifies credentials and applies the lockout policy. A locked
// account fails before any bcrypt work.
func (s *Service) Login(ctx context.Context, email, password string) (AuthTokens, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return AuthTokens{}, response.Unauthorized(msgInvalidCredentials)
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.logger.Warn("login_failed_unknown_email", zap.String("email", email))
			return AuthTokens{}, response.Unauthorized(msgInvalidCredentials)
		}
		return AuthTokens{}, response.Internal(err)
	}

	if account.Locked {
		s.logger.Warn("login_failed_locked", zap.String("email", email))
		return AuthTokens{}, response.Unauthorized(msgAccountLocked)
	}

	if !VerifyPassword(password, account.PasswordHash) {
		attempts, locked, recordErr := s.store.RecordFailedLogin(ctx, email, s.maxAttempts)
		if recordErr != nil {
			return AuthTokens{}, response.Internal(recordErr)
		}

		s.logger.Warn("login_failed_bad_password",
			zap.String("email", email),
			zap.Int("failed_attempts", attempts),
			zap.Bool("locked", locked),
		)
		if locked {
			return AuthTokens{}, response.Unauthorized(msgAccountLocked)
		}
		return AuthTokens{}, response.Unauthorized(msgInvalidCredentials)
	}

	if err := s.store.ResetFailedLogins(ctx, email); err != nil {
		return AuthTokens{}, response.Internal(err)
	}

	tokens, err := s.issueTokens(account)
	if err != nil {
		return AuthTokens{}, response.Internal(err)
	}

	s.logger.Info("login_ok", zap.String("email", account.Email), zap.Int64("user_id", account.ID))
	return tokens, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The denylist
// insert itself spends the presented token, so each refresh token works
// exactly once even under concurrent redemption.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.validateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	account, err := s.store.GetAccountByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return AuthTokens{}, response.Unauthorized(msgInvalidRefreshToken)
		}
		return AuthTokens{}, response.Internal(err)
	}
	if account.Locked {
		return AuthTokens{}, response.Unauthorized(msgAccountLocked)
	}

	spent, err := s.store.RevokeToken(ctx, claims.JTI, account.ID, claims.ExpiresAt)
	if err != nil {
		return AuthTokens{}, response.Internal(err)
	}
	if !spent {
		s.logger.Warn("refresh_token_replayed", zap.String("email", claims.Email))
		return AuthTokens{}, response.Unauthorized(msgInvalidRefreshToken)
	}

	tokens, err := s.issueTokens(account)
	if err != nil {
		return AuthTokens{}, response.Internal(err)
	}

	s.logger.Info("refresh_ok", zap.String("email", account.Email), zap.Int64("user_id", account.ID))
	return tokens, nil
}

// Logout revokes the presented refresh token until its natural expiry.
// Access tokens stay stateless and simply run out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.validateRefreshToken(refreshToken)
	if err != nil {
		return err
	}

	spent, err := s.store.RevokeToken(ctx, claims.JTI, claims.UserID, claims.ExpiresAt)
	if err != nil {
		return response.Internal(err)
	}
	if !spent {
		return response.Unauthorized(msgInvalidRefreshToken)
	}

	s.logger.Info("logout_ok", zap.String("email", claims.Email))
	return nil
}

// Unlock is the explicit admin operation that returns a locked account to
// ACTIVE. There is no time-based unlock.
func (s *Service) Unlock(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return response.Validation(map[string]string{"email": "Email is required"})
	}

	if err := s.store.UnlockAccount(ctx, email); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return response.NotFound("Account not found")
		}
		return response.Internal(err)
	}

	s.logger.Info("account_unlocked", zap.String("email", email))
	return nil
}

// EnsureAdmin seeds the bootstrap ADMIN account from the environment.
// Both values empty means no seeding; one empty is a config error.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return s.store.EnsureAdminAccount(ctx, email, passwordHash)
}

// validateRefreshToken checks shape and type only. Whether the token was
// already spent is decided by the revocation insert, not a lookup here.
func (s *Service) validateRefreshToken(refreshToken string) (Claims, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Claims{}, response.Unauthorized(msgInvalidRefreshToken)
	}

	claims, err := s.tokens.Validate(refreshToken)
	if err != nil {
		s.logger.Warn("refresh_token_rejected", zap.Error(err))
		return Claims{}, response.Unauthorized(msgInvalidRefreshToken)
	}
	if claims.TokenType != TokenTypeRefresh {
		s.logger.Warn("refresh_token_wrong_type", zap.String("type", claims.TokenType))
		return Claims{}, response.Unauthorized(msgInvalidRefreshToken)
	}

	return claims, nil
}

func (s *Service) issueTokens(account Account) (AuthTokens, error) {
	accessToken, err := s.tokens.IssueAccessToken(account.ID, account.Email, account.Role)
	if err != nil {
		return AuthTokens{}, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken(account.ID, account.Email)
	if err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		Email:        account.Email,
		Role:         string(account.Role),
	}, nil
}
