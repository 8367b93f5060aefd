// Package token implements the access/refresh token lifecycle: issuing
// signed JWTs with unique jti identifiers, verifying them against the
// correct per-kind secret, and revoking them through the blacklist. It also
// owns the refresh-rotation and logout protocols.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/devfleet/iot-device-api/internal/model"
)

// Sentinel failures surfaced to handlers, which translate them into the
// HTTP error taxonomy.
var (
	// ErrConfig means a signing secret is unset; this is a server fault.
	ErrConfig = errors.New("token signing secret is not configured")
	// ErrExpired means the token's exp claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers malformed, tampered and wrong-secret tokens.
	ErrInvalid = errors.New("token invalid")
	// ErrUnauthorized covers revoked tokens and missing subjects.
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	UserID    uint64
	Email     string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// BlacklistStore is the persistence consumed for revocation checks.
type BlacklistStore interface {
	Insert(ctx context.Context, jti, kind string, userID uint64, expiresAt time.Time) error
	Exists(ctx context.Context, jti, kind string) (bool, error)
}

// UserStore re-loads the subject during refresh rotation.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Service issues, verifies and revokes tokens. Access and refresh tokens
// use independent secrets, so a token of one kind never validates as the
// other.
type Service struct {
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	blacklist     BlacklistStore
	users         UserStore
	now           func() time.Time
}

// New builds a Service. TTLs follow the product defaults: short-lived
// access tokens (minutes) and long-lived refresh tokens (days).
func New(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, bl BlacklistStore, users UserStore) *Service {
	return &Service{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		blacklist:     bl,
		users:         users,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL returns the configured access-token lifetime. Logout uses it as
// the blacklist TTL for the presented access token.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func (s *Service) secretFor(kind string) (string, error) {
	switch kind {
	case model.TokenKindAccess:
		if s.accessSecret == "" {
			return "", ErrConfig
		}
		return s.accessSecret, nil
	case model.TokenKindRefresh:
		if s.refreshSecret == "" {
			return "", ErrConfig
		}
		return s.refreshSecret, nil
	}
	return "", fmt.Errorf("%w: unknown token kind %q", ErrInvalid, kind)
}

// issue builds and signs an HS256 JWT carrying sub, email, role and a
// random jti, expiring after ttl.
func (s *Service) issue(u model.User, kind string, ttl time.Duration) (string, Claims, error) {
	secret, err := s.secretFor(kind)
	if err != nil {
		return "", Claims{}, err
	}
	now := s.now()
	cl := Claims{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		JTI:       uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   cl.UserID,
		"email": cl.Email,
		"role":  cl.Role,
		"jti":   cl.JTI,
		"exp":   cl.ExpiresAt.Unix(),
		"iat":   now.Unix(),
	})
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", Claims{}, err
	}
	return signed, cl, nil
}

// IssueAccess signs a short-lived access token for u.
func (s *Service) IssueAccess(u model.User) (string, Claims, error) {
	return s.issue(u, model.TokenKindAccess, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for u.
func (s *Service) IssueRefresh(u model.User) (string, Claims, error) {
	return s.issue(u, model.TokenKindRefresh, s.refreshTTL)
}

// Verify parses and validates a token of the given kind and returns its
// claims. Expiry maps to ErrExpired; every other parse failure, including a
// signature made with the other kind's secret, maps to ErrInvalid.
func (s *Service) Verify(raw, kind string) (Claims, error) {
	secret, err := s.secretFor(kind)
	if err != nil {
		return Claims{}, err
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, ErrInvalid
	}

	cl := Claims{}
	if sub, ok := mc["sub"].(float64); ok {
		cl.UserID = uint64(sub)
	}
	if cl.UserID == 0 {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	cl.Email, _ = mc["email"].(string)
	cl.Role, _ = mc["role"].(string)
	cl.JTI, _ = mc["jti"].(string)
	if cl.JTI == "" {
		return Claims{}, fmt.Errorf("%w: missing token identifier", ErrUnauthorized)
	}
	if exp, ok := mc["exp"].(float64); ok {
		cl.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return cl, nil
}

// Revoke blacklists a jti until expiresAt. Revoking an already-revoked
// token succeeds; the unique index absorbs the duplicate.
func (s *Service) Revoke(ctx context.Context, jti, kind string, userID uint64, expiresAt time.Time) error {
	return s.blacklist.Insert(ctx, jti, kind, userID, expiresAt)
}

// IsRevoked reports whether a jti of the given kind has been blacklisted.
func (s *Service) IsRevoked(ctx context.Context, jti, kind string) (bool, error) {
	return s.blacklist.Exists(ctx, jti, kind)
}

// Pair bundles a freshly issued access/refresh token pair.
type Pair struct {
	User         model.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// IssuePair signs a new access and refresh token for u.
func (s *Service) IssuePair(u model.User) (Pair, error) {
	access, acl, err := s.IssueAccess(u)
	if err != nil {
		return Pair{}, err
	}
	refresh, rcl, err := s.IssueRefresh(u)
	if err != nil {
		return Pair{}, err
	}
	return Pair{User: u, AccessToken: access, AccessExp: acl.ExpiresAt, RefreshToken: refresh, RefreshExp: rcl.ExpiresAt}, nil
}

// Rotate exchanges a refresh token for a brand-new pair. Refresh tokens are
// single-use: the presented token is blacklisted for its real remaining
// lifetime before the new pair is issued, so a replayed token fails the
// revocation check.
func (s *Service) Rotate(ctx context.Context, oldRefresh string) (Pair, error) {
	cl, err := s.Verify(oldRefresh, model.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, ErrConfig) {
			return Pair{}, err
		}
		return Pair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	revoked, err := s.IsRevoked(ctx, cl.JTI, model.TokenKindRefresh)
	if err != nil {
		return Pair{}, err
	}
	if revoked {
		return Pair{}, fmt.Errorf("%w: refresh token revoked", ErrUnauthorized)
	}

	// Single-use: burn the presented token before issuing a replacement.
	if err := s.Revoke(ctx, cl.JTI, model.TokenKindRefresh, cl.UserID, cl.ExpiresAt); err != nil {
		return Pair{}, err
	}

	u, err := s.users.GetByID(ctx, cl.UserID)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: unknown subject", ErrUnauthorized)
	}

	return s.IssuePair(u)
}

// Logout revokes a session. The refresh token is optional; an absent or
// unverifiable one still counts as a successful logout so that a client
// with a stale or malformed cookie can always terminate cleanly. When the
// refresh token is valid, it is blacklisted for its remaining lifetime, and
// if the caller's access identity is known and matches the refresh
// subject, the access jti is blacklisted too, with the fixed access-token
// lifetime as a best-effort TTL.
func (s *Service) Logout(ctx context.Context, refreshToken string, access *Claims) error {
	if refreshToken == "" {
		return nil
	}
	cl, err := s.Verify(refreshToken, model.TokenKindRefresh)
	if err != nil {
		return nil // treated as already logged out
	}
	if err := s.Revoke(ctx, cl.JTI, model.TokenKindRefresh, cl.UserID, cl.ExpiresAt); err != nil {
		return err
	}
	if access != nil && access.JTI != "" && access.UserID == cl.UserID {
		exp := s.now().Add(s.accessTTL)
		if err := s.Revoke(ctx, access.JTI, model.TokenKindAccess, access.UserID, exp); err != nil {
			return err
		}
	}
	return nil
}
