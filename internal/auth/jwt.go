package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hstudio-dev/glasschat/internal/models"
)

// Claims is the payload inside every session token. Role decides which field
// namespace the holder may write; ConversationID pins an end-user to the one
// conversation their access code unlocked (empty for admins, who roam).
type Claims struct {
	Role           models.Role `json:"role"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Email          string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 session token.
func GenerateToken(role models.Role, conversationID, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		Role:           role,
		ConversationID: conversationID,
		Email:          email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "glasschat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and extracts the claims. The signing
// method check rejects algorithm-confusion tokens before verification.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("invalid role in token")
	}
	return claims, nil
}
