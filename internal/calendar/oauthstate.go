package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

const stateIssuer = "syllabus-sync"

type stateClaims struct {
	UserID   string `json:"uid"`
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateSigner issues and checks the OAuth state parameter. The state is an
// HS256 token naming the user, so the callback needs no session.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration, now func() time.Time) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("oauth state secret is empty")
	}
	if now == nil {
		now = time.Now
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: now}, nil
}

func (s *StateSigner) Sign(userID, provider string) (string, error) {
	now := s.now()
	claims := stateClaims{
		UserID:   userID,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the user and provider named by a state token.
func (s *StateSigner) Verify(token string) (userID, provider string, err error) {
	var claims stateClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", "", common.NewAppError("AUTHORIZATION_REQUIRED", "invalid oauth state",
			errors.Join(common.ErrAuthorizationRequired, fmt.Errorf("verify state: %w", err)))
	}
	if claims.UserID == "" {
		return "", "", common.NewAppError("AUTHORIZATION_REQUIRED", "oauth state has no user", common.ErrAuthorizationRequired)
	}
	return claims.UserID, claims.Provider, nil
}
