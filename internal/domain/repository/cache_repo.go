package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем
type CacheRepository interface {
	Delete(key string) error
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
	// SetNX ставит ключ только если его нет; используется для маркеров
	// выполняющихся проверок и дедупликации callback-ов вычислителя.
	SetNX(key string, value interface{}, expiration time.Duration) (bool, error)
}
