// Package auth provides JWT-based authentication and role-based
// authorization for the RPC API.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service provides JWT token generation and validation
type Service struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewService creates a new Service with the given secret key and token TTL
func NewService(secretKey string, tokenTTL time.Duration) *Service {
	return &Service{
		secretKey: secretKey,
		tokenTTL:  tokenTTL,
	}
}

// Identity is the authenticated principal extracted from a token
type Identity struct {
	UserID   int64
	Username string
	Roles    []string
}

// GenerateToken generates a JWT token for the given user
func (s *Service) GenerateToken(userID int64, username string, roles []string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"roles":    roles,
		"exp":      now.Add(s.tokenTTL).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// ValidateToken validates a JWT token and returns the identity it carries
func (s *Service) ValidateToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify exact signing method to prevent algorithm confusion attacks
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return nil, fmt.Errorf("invalid token claims: user_id")
	}

	username, _ := claims["username"].(string)

	var roles []string
	if rolesClaim, ok := claims["roles"].([]interface{}); ok {
		for _, role := range rolesClaim {
			if roleStr, ok := role.(string); ok {
				roles = append(roles, roleStr)
			}
		}
	}

	return &Identity{
		UserID:   int64(userID),
		Username: username,
		Roles:    roles,
	}, nil
}
