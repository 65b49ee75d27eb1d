// Package utils holds small helpers shared by the HTTP layer and tests.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/booking-engine/internal/model"
)

// Claims is the identity carried by an access token.
type Claims struct {
	UserID uint64
	Role   model.Role
}

// NewAccessToken builds and signs an HS256 JWT with the standard subject
// (sub), role, expiry (exp) and issued-at (iat) claims. Tokens are issued
// by the identity provider in production; this is used by tooling and
// tests.
func NewAccessToken(secret string, userID uint64, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": string(role),
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseAccessToken verifies raw with secret and extracts its identity. The
// subject may be encoded as a JSON string or number.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !tok.Valid {
		return Claims{}, errors.New("invalid token")
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}

	var out Claims
	switch sub := mc["sub"].(type) {
	case string:
		id, err := strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return Claims{}, errors.New("invalid sub claim")
		}
		out.UserID = id
	case float64:
		if sub < 1 {
			return Claims{}, errors.New("invalid sub claim")
		}
		out.UserID = uint64(sub)
	default:
		return Claims{}, errors.New("missing sub claim")
	}
	role, _ := mc["role"].(string)
	switch r := model.Role(role); r {
	case model.RoleCustomer, model.RoleOperator, model.RoleAdmin:
		out.Role = r
	default:
		return Claims{}, fmt.Errorf("unknown role %q", role)
	}
	return out, nil
}
