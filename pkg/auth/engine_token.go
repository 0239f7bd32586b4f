package auth

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// engineCallbackUsage — назначение токена в claims. Токены с другим usage
// не принимаются на callback-эндпоинте движка.
const engineCallbackUsage = "engine_callback"

// EngineCallbackClaims содержит поля токена для callback-ов движка верификации
type EngineCallbackClaims struct {
	Usage string `json:"usage"`
	jwt.RegisteredClaims
}

// EngineTokenService выпускает и проверяет токены, которыми движок
// верификации авторизует свои callback-и с вердиктами
type EngineTokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewEngineTokenService создает сервис токенов движка и возвращает ошибку при проблемах
func NewEngineTokenService(secret string, ttl time.Duration) (*EngineTokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("engine callback secret is required")
	}
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &EngineTokenService{
		secret: []byte(secret),
		ttl:    ttl,
	}, nil
}

// Issue выпускает токен для движка верификации
func (s *EngineTokenService) Issue() (string, error) {
	claims := &EngineCallbackClaims{
		Usage: engineCallbackUsage,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "cipherquiz-api",
			Audience:  jwt.ClaimStrings{"cipherquiz-engine"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[EngineToken] Ошибка генерации токена движка: %v", err)
		return "", err
	}
	return tokenString, nil
}

// Verify проверяет токен callback-а: подпись, срок действия и назначение
func (s *EngineTokenService) Verify(tokenString string) (*EngineCallbackClaims, error) {
	claims := &EngineCallbackClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errors.New("engine callback token is expired")
		}
		return nil, fmt.Errorf("invalid engine callback token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid engine callback token")
	}

	if claims.Usage != engineCallbackUsage {
		log.Printf("[EngineToken] Токен с некорректным назначением: %q", claims.Usage)
		return nil, errors.New("invalid engine callback token usage")
	}

	return claims, nil
}
