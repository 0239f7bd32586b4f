package repository

import (
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// QuestionBlockRepository определяет методы для работы с блоками вопросов
type QuestionBlockRepository interface {
	// Create атомарно вставляет блок и увеличивает questions_added набора,
	// вычисляя is_initialized в том же запросе. Гонка на одном
	// (quizSet, questionIndex) разрешается уникальным индексом, проигравший
	// получает ErrDuplicateIndex; вставка в собранный набор невозможна
	// (ErrQuizSetInitialized). Возвращает true, когда набор стал
	// инициализированным этим вызовом.
	Create(block *entity.QuestionBlock) (bool, error)
	GetByAddress(address entity.Address) (*entity.QuestionBlock, error)
	GetByQuizSetAndIndex(quizSet entity.Address, index uint32) (*entity.QuestionBlock, error)
	// ListByQuizSet возвращает блоки набора в порядке questionIndex.
	ListByQuizSet(quizSet entity.Address) ([]entity.QuestionBlock, error)
}
