package utils

import (
	"fmt"
	"time"

	"evhelper/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

// UserClaims represents JWT claims for authenticated users
type UserClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.StandardClaims
}

// GenerateUserJWT generates a JWT token carrying a stable user id
func GenerateUserJWT(cfg config.JWTConfig, userID, name string) (string, error) {
	claims := UserClaims{
		UserID: userID,
		Name:   name,
		StandardClaims: jwt.StandardClaims{
			Issuer:    cfg.Issuer,
			Subject:   userID,
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(cfg.ExpiryHour)).Unix(),
			NotBefore: time.Now().Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ValidateUserJWT validates a user JWT token and returns its claims
func ValidateUserJWT(cfg config.JWTConfig, tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
