package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// AccountRepo реализует repository.AccountRepository
type AccountRepo struct {
	db *gorm.DB
}

// NewAccountRepo создает новый репозиторий счетов
func NewAccountRepo(db *gorm.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// GetOrCreate возвращает счёт участника, создавая его со стартовым балансом
// при первом обращении. Гонка двух создателей разрешается через unique
// violation: проигравший перечитывает уже созданный счёт.
func (r *AccountRepo) GetOrCreate(identity entity.Identity, initialBalance uint64) (*entity.Account, error) {
	var account entity.Account
	err := r.db.First(&account, "identity = ?", identity).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = entity.Account{
		Address:  entity.AccountAddress(identity),
		Identity: identity,
		Balance:  initialBalance,
	}
	if err := r.db.Create(&account).Error; err != nil {
		if isUniqueViolation(err) {
			var existing entity.Account
			if err := r.db.First(&existing, "identity = ?", identity).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByIdentity возвращает счёт по идентификатору участника
func (r *AccountRepo) GetByIdentity(identity entity.Identity) (*entity.Account, error) {
	var account entity.Account
	err := r.db.First(&account, "identity = ?", identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Credit зачисляет сумму на существующий счёт
func (r *AccountRepo) Credit(identity entity.Identity, amount uint64) error {
	res := r.db.Model(&entity.Account{}).
		Where("identity = ?", identity).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, identity)
	}
	return nil
}
