// Package service contains application services for authentication and the
// message board.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/crosstalk-io/crosstalk/internal/crypto"
	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/limiter"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/repository"
)

// usernameRe bounds account names to something a terminal can always echo.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

// DefaultLevel is the authorization level granted to new accounts.
const DefaultLevel = 20

// AuthService defines authentication operations.
type AuthService interface {
	// Register creates a new principal with secure password hashing.
	Register(ctx context.Context, username, password string) (*model.Principal, error)
	// LoginWithIP applies rate limiting and authenticates the principal.
	LoginWithIP(ctx context.Context, username, password, ip string) (*model.Principal, model.ResumeToken, error)
	// Resume authenticates from a previously issued resume token.
	Resume(ctx context.Context, token string) (*model.Principal, error)
}

type AuthServiceImpl struct {
	principals repository.PrincipalRepository
	signKey    []byte
	resumeTTL  time.Duration
	lim        limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(principals repository.PrincipalRepository, signKey []byte, resumeTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{principals: principals, signKey: signKey, resumeTTL: resumeTTL, lim: lim}
}

// Register creates a new principal with a per-account salt and the default
// authorization level.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (*model.Principal, error) {
	if !usernameRe.MatchString(username) {
		return nil, errors.New("validation: username must be 3-20 letters, digits, _ or -")
	}
	if len(password) < 6 {
		return nil, errors.New("validation: password too short")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return nil, err
	}
	p := &model.Principal{
		ID:       uid,
		Username: username,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), salt),
		SaltAuth: salt,
		Level:    DefaultLevel,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (*model.Principal, model.ResumeToken, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return nil, model.ResumeToken{}, err
	}
	if !allowed {
		return nil, model.ResumeToken{}, errs.ErrRateLimited
	}

	p, err := s.principals.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), p.SaltAuth, p.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return nil, model.ResumeToken{}, errs.ErrRateLimited
		}
		// One answer whether the account exists or the password is wrong.
		return nil, model.ResumeToken{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)
	_ = s.principals.TouchLastSeen(ctx, p.ID)

	tok, err := s.issueResumeToken(p.ID)
	if err != nil {
		return nil, model.ResumeToken{}, err
	}
	return p, tok, nil
}

// issueResumeToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueResumeToken(id uuid.UUID) (model.ResumeToken, error) {
	now := time.Now()
	exp := now.Add(s.resumeTTL)
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.ResumeToken{}, err
	}
	return model.ResumeToken{Token: signed, ExpiresAt: exp}, nil
}

// Resume verifies a resume token and reloads the principal, including a
// fresh authorization level.
func (s *AuthServiceImpl) Resume(ctx context.Context, token string) (*model.Principal, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errs.ErrUnauthorized
	}
	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, errs.ErrUnauthorized
	}
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", errs.ErrUnauthorized)
	}
	return p, nil
}
