package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoleAdmin is the only role allowed on the admin endpoints.
const RoleAdmin = "admin"

// TokenStore defines the Redis operations needed for token revocation.
type TokenStore interface {
	BlacklistToken(ctx context.Context, jti string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// JWTService issues and validates the operator tokens that protect the
// admin endpoints (cleanup, metrics, listing). Public session endpoints are
// not authenticated.
//
// Tokens are HS256 signed and carry the operator name, the role and a
// unique JTI. Revoked tokens are blacklisted in Redis for their remaining
// lifetime.
type JWTService struct {
	secret []byte
	expiry time.Duration
	store  TokenStore // nil disables revocation checks (CLI issuing)
}

// AdminToken is returned by IssueAdminToken.
//
// Example JSON:
//
//	{
//	  "token": "eyJhbGciOiJIUzI1NiIs...",
//	  "jti": "6f1c3c1e-3b5a-4a0e-9d0c-5f3b9a0e2d11",
//	  "expires_at": "2025-01-15T22:30:00Z"
//	}
type AdminToken struct {
	Token     string    `json:"token"`
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims are the custom claims embedded in admin tokens. The JTI is the
// registered "jti" claim.
type Claims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTService creates a token service.
//
// Example:
//
//	jwtSvc := services.NewJWTService(&cfg.JWT, redisDB)
func NewJWTService(cfg *config.JWTConfig, store TokenStore) *JWTService {
	return &JWTService{
		secret: cfg.Secret,
		expiry: cfg.AdminExpiry,
		store:  store,
	}
}

// IssueAdminToken signs a new admin token for an operator.
//
// Example:
//
//	token, err := jwtSvc.IssueAdminToken("ops@cvperfect.pl")
//	if err != nil {
//	    return err
//	}
//	req.Header.Set("Authorization", "Bearer "+token.Token)
func (s *JWTService) IssueAdminToken(operator string) (*AdminToken, error) {
	if operator == "" {
		return nil, errors.New("operator is required")
	}

	now := time.Now()
	expiresAt := now.Add(s.expiry)
	jti := uuid.NewString()

	claims := Claims{
		Operator: operator,
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	log.Info().
		Str("operator", operator).
		Str("jti", jti).
		Time("expires_at", expiresAt).
		Msg("Admin token issued")

	return &AdminToken{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

// ValidateToken verifies the signature, expiry, role and revocation status
// of a token and returns its claims.
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Role != RoleAdmin {
		return nil, fmt.Errorf("token role %q is not allowed", claims.Role)
	}

	if s.store != nil {
		blacklisted, err := s.store.IsTokenBlacklisted(ctx, claims.ID)
		if err != nil {
			log.Error().Err(err).Str("jti", claims.ID).Msg("Failed to check token blacklist")
			return nil, fmt.Errorf("failed to verify token status: %w", err)
		}
		if blacklisted {
			return nil, fmt.Errorf("token has been revoked")
		}
	}

	return claims, nil
}

// RevokeToken blacklists a token until it would have expired anyway.
// Already expired tokens need no revocation and return nil. Failures to
// record the revocation match ErrStorageFailure; any other error means the
// token itself is invalid.
func (s *JWTService) RevokeToken(ctx context.Context, tokenString string) error {
	if s.store == nil {
		return &Error{Op: "revoke", Kind: ErrStorageFailure, Err: errors.New("token revocation is not available")}
	}

	claims, err := s.parse(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}

	if err := s.store.BlacklistToken(ctx, claims.ID, ttl); err != nil {
		return storageFailure("revoke", claims.ID, fmt.Errorf("failed to blacklist token: %w", err))
	}

	log.Info().
		Str("jti", claims.ID).
		Str("operator", claims.Operator).
		Msg("Admin token revoked")

	return nil
}

func (s *JWTService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("token has no jti")
	}
	return claims, nil
}
