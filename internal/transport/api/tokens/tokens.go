package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenExpired = errors.New("token expired")

type RoleType string

const (
	RoleAdmin  RoleType = "admin"
	RoleSeller RoleType = "seller"
)

// Claims — полезная нагрузка токена: кто обращается и от чьего имени.
// Выпуск токенов остается за внешней системой идентификации, здесь они
// только проверяются (и генерируются в тестах).
type Claims struct {
	jwt.RegisteredClaims
	ID   int64
	Role RoleType
}

func GenerateJWT(id int64, role RoleType, expire time.Duration, key []byte) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expire)),
		},
		ID:   id,
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("generating jwt token: %s", err.Error())
	}
	return tokenString, nil
}

func ValidateJWT(tokenString string, key []byte) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(tokenString, new(Claims), func(_ *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("parsing jwt token: %w", err)
	}

	if _, ok := token.Claims.(*Claims); !ok {
		return nil, errors.New("invalid claims")
	}
	return token, nil
}
