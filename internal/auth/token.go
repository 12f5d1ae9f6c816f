package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	minSecretBytes = 32
)

var (
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenMalformed        = errors.New("invalid token format")
	ErrTokenSignatureInvalid = errors.New("invalid token signature")
)

// Claims is the decoded, validated content of a token.
type Claims struct {
	UserID    int64
	Email     string
	Role      Role
	TokenType string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and validates HS256-signed access and refresh
// tokens. Both token types share the signing secret, so callers must
// check TokenType before trusting a token for resource access.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}

	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}, nil
}

func (s *TokenService) WithTTL(accessTTL, refreshTTL time.Duration) {
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
}

// WithClock overrides the time source, used by expiry boundary tests.
func (s *TokenService) WithClock(now func() time.Time) {
	s.now = now
}

func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessToken signs a short-lived token carrying identity and role.
func (s *TokenService) IssueAccessToken(userID int64, email string, role Role) (string, error) {
	return s.sign(jwt.MapClaims{
		"userId": userID,
		"email":  email,
		"role":   string(role),
		"type":   TokenTypeAccess,
	}, email, s.accessTTL)
}

// IssueRefreshToken signs a long-lived token without a role claim: a
// refresh token is not authorized for resource access.
func (s *TokenService) IssueRefreshToken(userID int64, email string) (string, error) {
	return s.sign(jwt.MapClaims{
		"userId": userID,
		"email":  email,
		"type":   TokenTypeRefresh,
	}, email, s.refreshTTL)
}

func (s *TokenService) sign(claims jwt.MapClaims, subject string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims["sub"] = subject
	claims["jti"] = uuid.NewString()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, nil
}

// Validate verifies signature and expiry and decodes the claims. The
// typed errors it returns are collapsed to a generic unauthorized at the
// HTTP boundary; they exist so the server log keeps the specific cause.
func (s *TokenService) Validate(tokenString string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, mapClaims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrTokenSignatureInvalid
		default:
			return Claims{}, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return Claims{}, ErrTokenSignatureInvalid
	}

	return decodeClaims(mapClaims)
}

func decodeClaims(mapClaims jwt.MapClaims) (Claims, error) {
	var claims Claims

	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return Claims{}, ErrTokenMalformed
	}
	claims.Email = subject

	userID, ok := mapClaims["userId"].(float64)
	if !ok {
		return Claims{}, ErrTokenMalformed
	}
	claims.UserID = int64(userID)

	tokenType, ok := mapClaims["type"].(string)
	if !ok {
		return Claims{}, ErrTokenMalformed
	}
	claims.TokenType = tokenType

	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = Role(role)
	}
	if jti, ok := mapClaims["jti"].(string); ok {
		claims.JTI = jti
	}
	if issuedAt, err := mapClaims.GetIssuedAt(); err == nil && issuedAt != nil {
		claims.IssuedAt = issuedAt.Time
	}
	if expiresAt, err := mapClaims.GetExpirationTime(); err == nil && expiresAt != nil {
		claims.ExpiresAt = expiresAt.Time
	}

	return claims, nil
}
