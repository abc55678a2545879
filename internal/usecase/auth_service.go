package usecase

import (
	"time"

	"reserva-backend/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

type Claims struct {
	UserID string
	Role   string
}

func (c Claims) IsStaff() bool { return c.Role == RoleStaff }

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService verifies the bearer tokens minted by the storefront's login
// flow. Issue exists for tooling and tests; both sides share JWTSecret.
type AuthService struct {
	JWTSecret string
	TTL       time.Duration
	Now       func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) Issue(userID, role string) (string, error) {
	if userID == "" {
		return "", apperr.Validation("user_id", "user id is required")
	}
	if role == "" {
		role = RoleCustomer
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	now := s.now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.JWTSecret))
}

func (s *AuthService) Verify(token string) (Claims, error) {
	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Claims{}, apperr.Unauthorized("invalid or expired token")
	}
	if tc.Subject == "" {
		return Claims{}, apperr.Unauthorized("token has no subject")
	}
	return Claims{UserID: tc.Subject, Role: tc.Role}, nil
}
