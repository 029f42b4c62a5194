package auth

import (
	"mesh-trading-engine/config"
)

// Service authenticates the configured operator and issues tokens.
type Service struct {
	cfg config.AuthConfig
	jwt *JWTManager
}

// NewService creates the auth service from configuration.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		cfg: cfg,
		jwt: NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration, cfg.RefreshTokenDuration),
	}
}

// JWT exposes the token manager for middleware wiring.
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// Login verifies operator credentials against the configured bcrypt hash
// and issues a token pair.
func (s *Service) Login(username, password string) (*TokenPair, error) {
	if username != s.cfg.OperatorUser || !VerifyPassword(password, s.cfg.OperatorPassHash) {
		return nil, ErrInvalidCredentials
	}
	return s.jwt.GenerateTokenPair(OperatorClaims{Username: username})
}
