package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// QuestionBlockRepo реализует repository.QuestionBlockRepository
type QuestionBlockRepo struct {
	db *gorm.DB
}

// NewQuestionBlockRepo создает новый репозиторий зашифрованных блоков
func NewQuestionBlockRepo(db *gorm.DB) *QuestionBlockRepo {
	return &QuestionBlockRepo{db: db}
}

// Create сохраняет блок и в той же транзакции продвигает счётчик набора.
// Гонку двух вставок с одним индексом разрешает уникальный индекс
// (quiz_set_address, question_index): ровно одна вставка проходит, вторая
// получает ErrDuplicateIndex и счётчик не трогает. is_initialized
// вычисляется в том же UPDATE и перещёлкивается ровно на последнем блоке.
func (r *QuestionBlockRepo) Create(block *entity.QuestionBlock) (bool, error) {
	var initialized bool

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(block).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: index %d in quiz set %s", repository.ErrDuplicateIndex, block.QuestionIndex, block.QuizSetAddress.Short())
			}
			return err
		}

		err := tx.Raw(`
			UPDATE quiz_sets
			SET questions_added = questions_added + 1,
			    is_initialized = (questions_added + 1 = question_count)
			WHERE address = ? AND questions_added < question_count
			RETURNING is_initialized`, block.QuizSetAddress).Row().Scan(&initialized)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: quiz set %s", repository.ErrQuizSetInitialized, block.QuizSetAddress.Short())
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return initialized, nil
}

// GetByAddress возвращает блок по адресу
func (r *QuestionBlockRepo) GetByAddress(address entity.Address) (*entity.QuestionBlock, error) {
	var block entity.QuestionBlock
	err := r.db.First(&block, "address = ?", address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &block, nil
}

// GetByQuizSetAndIndex возвращает блок по набору и порядковому номеру
func (r *QuestionBlockRepo) GetByQuizSetAndIndex(quizSet entity.Address, index uint32) (*entity.QuestionBlock, error) {
	var block entity.QuestionBlock
	err := r.db.First(&block, "quiz_set_address = ? AND question_index = ?", quizSet, index).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &block, nil
}

// ListByQuizSet возвращает все блоки набора в порядке индексов
func (r *QuestionBlockRepo) ListByQuizSet(quizSet entity.Address) ([]entity.QuestionBlock, error) {
	var blocks []entity.QuestionBlock
	err := r.db.Where("quiz_set_address = ?", quizSet).
		Order("question_index ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
