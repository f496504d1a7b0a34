package accounts

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

type sessionClaims struct {
	Kind SessionKind `json:"knd"`
	jwt.RegisteredClaims
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// signSessionToken wraps the session id in an HS256 token. Expiry is
// enforced against the stored session record.
func signSessionToken(secret []byte, session Session, issued time.Time) (string, error) {
	claims := sessionClaims{
		Kind: session.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       session.ID,
			Subject:  session.UserEmail,
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseSessionToken(secret []byte, tokenString string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
