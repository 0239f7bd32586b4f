package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// QuizSetRepo реализует repository.QuizSetRepository
type QuizSetRepo struct {
	db *gorm.DB
}

// NewQuizSetRepo создает новый репозиторий наборов вопросов
func NewQuizSetRepo(db *gorm.DB) *QuizSetRepo {
	return &QuizSetRepo{db: db}
}

// CreateWithFunding атомарно создаёт набор и его эскроу, списывая награду
// со счёта автора и увеличивая total_quizzes темы. Любая ошибка откатывает
// всю связку — частичного финансирования не бывает.
func (r *QuizSetRepo) CreateWithFunding(quizSet *entity.QuizSet, vault *entity.Vault) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// 1. Условное списание: проходит только при достаточном балансе
		res := tx.Model(&entity.Account{}).
			Where("identity = ? AND balance >= ?", quizSet.Authority, quizSet.RewardAmount).
			Update("balance", gorm.Expr("balance - ?", quizSet.RewardAmount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: authority %s, required %d", repository.ErrInsufficientFunds, quizSet.Authority, quizSet.RewardAmount)
		}

		// 2. Создание набора: занятый адрес — конфликт, не перезапись
		if err := tx.Create(quizSet).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: quiz set %s", apperrors.ErrAlreadyExists, quizSet.Address.Short())
			}
			return err
		}

		// 3. Эскроу наполняется суммой награды
		if err := tx.Create(vault).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: vault %s", apperrors.ErrAlreadyExists, vault.Address.Short())
			}
			return err
		}

		// 4. Счётчик наборов темы
		if quizSet.HasTopic() {
			if err := tx.Model(&entity.Topic{}).
				Where("address = ?", quizSet.TopicAddress).
				Update("total_quizzes", gorm.Expr("total_quizzes + 1")).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// GetByAddress возвращает набор по адресу
func (r *QuizSetRepo) GetByAddress(address entity.Address) (*entity.QuizSet, error) {
	var quizSet entity.QuizSet
	err := r.db.First(&quizSet, "address = ?", address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &quizSet, nil
}

// ListByAuthority возвращает наборы автора с пагинацией и total count
func (r *QuizSetRepo) ListByAuthority(authority entity.Identity, limit, offset int) ([]entity.QuizSet, int64, error) {
	return r.list("authority = ?", authority, limit, offset)
}

// ListByTopic возвращает наборы темы с пагинацией и total count
func (r *QuizSetRepo) ListByTopic(topic entity.Address, limit, offset int) ([]entity.QuizSet, int64, error) {
	return r.list("topic_address = ?", topic, limit, offset)
}

func (r *QuizSetRepo) list(cond string, arg interface{}, limit, offset int) ([]entity.QuizSet, int64, error) {
	var quizSets []entity.QuizSet
	var total int64

	tx := r.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()
	if tx.Error != nil {
		return nil, 0, tx.Error
	}

	if err := tx.Model(&entity.QuizSet{}).Where(cond, arg).Count(&total).Error; err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Where(cond, arg).Order("created_at DESC").Limit(limit).Offset(offset).Find(&quizSets).Error; err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, 0, err
	}

	return quizSets, total, nil
}

// SetWinner фиксирует победителя не более одного раза (CAS по пустому winner).
// RowsAffected == 0 означает, что другая попытка уже выиграла гонку.
func (r *QuizSetRepo) SetWinner(address entity.Address, winner entity.Identity, correctAnswers uint32) error {
	res := r.db.Model(&entity.QuizSet{}).
		Where("address = ? AND winner = ''", address).
		Updates(map[string]interface{}{
			"winner":                winner,
			"correct_answers_count": correctAnswers,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByAddress(address); err != nil {
			return err
		}
		return fmt.Errorf("%w: quiz set %s", repository.ErrWinnerAlreadySet, address.Short())
	}
	return nil
}

// ClaimReward атомарно выплачивает эскроу победителю. Проверки и CAS по
// is_reward_claimed идут в одной транзакции: конкурентный повтор проигрывает
// на условном UPDATE, выплата выполняется ровно один раз.
func (r *QuizSetRepo) ClaimReward(address entity.Address, claimer entity.Identity) (uint64, error) {
	var amount uint64

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var quizSet entity.QuizSet
		if err := tx.First(&quizSet, "address = ?", address).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		if !quizSet.HasWinner() {
			return fmt.Errorf("%w: quiz set %s", repository.ErrNoWinnerSet, address.Short())
		}
		if quizSet.Winner != claimer {
			return fmt.Errorf("%w: %s is not the winner of quiz set %s", apperrors.ErrUnauthorized, claimer, address.Short())
		}

		// CAS по флагу выплаты
		res := tx.Model(&entity.QuizSet{}).
			Where("address = ? AND is_reward_claimed = false", address).
			Update("is_reward_claimed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: quiz set %s", repository.ErrAlreadyClaimed, address.Short())
		}

		// Обнуляем эскроу, запомнив сумму выплаты
		vaultAddr := entity.VaultAddress(address)
		var vault entity.Vault
		if err := tx.First(&vault, "address = ?", vaultAddr).Error; err != nil {
			return err
		}
		amount = vault.Balance
		if err := tx.Model(&entity.Vault{}).
			Where("address = ?", vaultAddr).
			Update("balance", 0).Error; err != nil {
			return err
		}

		// Зачисляем победителю; счёт создаётся, если его ещё нет
		res = tx.Model(&entity.Account{}).
			Where("identity = ?", claimer).
			Update("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			account := &entity.Account{
				Address:  entity.AccountAddress(claimer),
				Identity: claimer,
				Balance:  amount,
			}
			if err := tx.Create(account).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return amount, nil
}

// GetVault возвращает эскроу-хранилище набора
func (r *QuizSetRepo) GetVault(quizSet entity.Address) (*entity.Vault, error) {
	var vault entity.Vault
	err := r.db.First(&vault, "address = ?", entity.VaultAddress(quizSet)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &vault, nil
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
