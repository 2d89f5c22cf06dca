// Package auth verifies staff bearer tokens against configured bcrypt hashes.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

// Errors
var (
	ErrInvalidToken = errors.New("invalid staff token")
	ErrEmptyToken   = errors.New("token must not be empty")
)

// StaffToken is one configured credential. Hash is a bcrypt hash of the token.
type StaffToken struct {
	Name string `yaml:"name"`
	// RSN links the staff member to a clan member for audit records
	RSN  string `yaml:"rsn"`
	Hash string `yaml:"hash"`
}

// Staff is an authenticated staff member
type Staff struct {
	Name string
	RSN  string
}

// Config holds configuration for the auth service
type Config struct {
	StaffTokens []StaffToken `yaml:"staff_tokens"`
	// CacheTTL is how long a verified token skips bcrypt
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		CacheTTL: 10 * time.Minute,
	}
}

// Service authenticates staff
type Service struct {
	tokens   []StaffToken
	verified *cache.Cache
	logger   *slog.Logger
}

// New creates a new auth Service
func New(cfg Config, logger *slog.Logger) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Service{
		tokens:   cfg.StaffTokens,
		verified: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:   logger,
	}
}

// Enabled reports whether any staff token is configured
func (s *Service) Enabled() bool {
	return len(s.tokens) > 0
}

// Authenticate returns the staff member owning the token
func (s *Service) Authenticate(token string) (*Staff, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	// Key by digest so raw tokens never sit in memory longer than a request
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if cached, ok := s.verified.Get(key); ok {
		staff := cached.(Staff)
		return &staff, nil
	}

	for _, t := range s.tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(token)) == nil {
			staff := Staff{Name: t.Name, RSN: t.RSN}
			s.verified.SetDefault(key, staff)
			return &staff, nil
		}
	}
	s.logger.Warn("rejected staff token")
	return nil, ErrInvalidToken
}

// HashToken returns the bcrypt hash to put in configuration for a token
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateToken returns a new random token
func GenerateToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
