// Package session issues and verifies the bearer tokens of the admin API.
package session

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"go.uber.org/zap"
)

const issuer = "posbridge"

var ErrInvalidToken = errors.New("invalid_token")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

// New reads the signing key from config. Without one, a random key is used
// and tokens do not survive a restart.
func New(cfg config.Config, clk clock.Clock, log *zap.Logger) (*Manager, error) {
	secret := []byte(strings.TrimSpace(cfg.Auth.JWTSecret))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Named("auth.session").Warn("AUTH_JWT_SECRET not set; using a per-process signing key")
	}
	return NewManager(secret, cfg.Auth.TokenTTL, clk), nil
}

func NewManager(secret []byte, ttl time.Duration, clk clock.Clock) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{
		secret: secret,
		ttl:    ttl,
		clock:  clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}
}

// Issue signs a token for user and returns it with its expiry.
func (m *Manager) Issue(user appuserdomain.AppUser) (string, time.Time, error) {
	now := m.clock.Now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies raw and returns the user id it was issued for. The role
// claim is informational; callers reload the user.
func (m *Manager) Parse(raw string) (snowflake.ID, error) {
	var claims Claims
	_, err := m.parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
