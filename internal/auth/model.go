package auth

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Account is the persisted credential record. Email is stored lowercase
// and is the unique lookup key.
type Account struct {
	ID                  int64
	Email               string
	PasswordHash        string
	Role                Role
	FailedLoginAttempts int
	Locked              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AuthTokens is the success payload for register, login and refresh.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	Email        string `json:"email"`
	Role         string `json:"role"`
}

// Identity is the authenticated caller established by the middleware for
// the remainder of request handling. It is also the payload of the
// profile endpoint.
type Identity struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}
