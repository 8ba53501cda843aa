package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Roles granted by the permission subsystem. Viewers read; operators may
// also close periods, regenerate snapshots and manage the cache.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// Claims identify the operator behind a request. Actor is what gets
// recorded as closed_by and generated_by.
type Claims struct {
	jwt.RegisteredClaims
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

func (c *Claims) CanOperate() bool {
	return c.Role == RoleOperator
}

type Config struct {
	Secret   string
	Duration time.Duration
	Issuer   string
	Now      func() time.Time
}

type Service struct {
	secret   []byte
	duration time.Duration
	issuer   string
	now      func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Duration == 0 {
		cfg.Duration = 12 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "farm-bi"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		duration: cfg.Duration,
		issuer:   cfg.Issuer,
		now:      now,
	}
}

func (s *Service) GenerateToken(actor, role string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("jwt secret is required")
	}
	if actor == "" {
		return "", fmt.Errorf("actor is required")
	}
	if role != RoleViewer && role != RoleOperator {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
		Actor: actor,
		Role:  role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Actor == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
