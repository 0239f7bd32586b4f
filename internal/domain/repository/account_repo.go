package repository

import (
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// AccountRepository определяет методы для работы со счетами участников
type AccountRepository interface {
	// GetOrCreate возвращает счёт участника, создавая его с initialBalance
	// при первом обращении. Гонка создания разрешается уникальным индексом.
	GetOrCreate(identity entity.Identity, initialBalance uint64) (*entity.Account, error)
	GetByIdentity(identity entity.Identity) (*entity.Account, error)
	// Credit атомарно зачисляет сумму на счёт.
	Credit(identity entity.Identity, amount uint64) error
}
