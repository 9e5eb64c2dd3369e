// Package identity resolves the verified caller from bearer tokens minted by
// the external identity provider.
package identity

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt"
	"github.com/mentorlane/mentorlane/internal/config"
	"go.uber.org/fx"
)

var (
	ErrMissingSecret = errors.New("missing_auth_secret")
	ErrInvalidToken  = errors.New("invalid_token")
)

const (
	RoleLearner = "learner"
	RoleExpert  = "expert"
)

// Identity is the verified caller extracted from a bearer token.
type Identity struct {
	UserID snowflake.ID
	Role   string
}

// Verifier validates HS256 bearer tokens against the shared provider secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(cfg config.Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses the token and returns the caller identity. The identity
// provider owns issuance; only the subject and role claims are trusted here.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	userID, err := snowflake.ParseString(strings.TrimSpace(sub))
	if err != nil || userID == 0 {
		return Identity{}, ErrInvalidToken
	}

	role, _ := claims["role"].(string)
	role = strings.ToLower(strings.TrimSpace(role))

	return Identity{UserID: userID, Role: role}, nil
}

// Module provides the token verifier.
var Module = fx.Module("identity",
	fx.Provide(NewVerifier),
)
