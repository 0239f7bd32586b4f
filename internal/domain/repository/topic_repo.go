package repository

import (
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// TopicRepository определяет методы для работы с темами
type TopicRepository interface {
	// Create создаёт тему; занятый адрес или имя — конфликт (ErrAlreadyExists).
	Create(topic *entity.Topic) error
	GetByAddress(address entity.Address) (*entity.Topic, error)
	GetByName(name string) (*entity.Topic, error)
	// List возвращает темы с пагинацией и total count.
	List(activeOnly bool, limit, offset int) ([]entity.Topic, int64, error)
}
