package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// TopicRepo реализует repository.TopicRepository
type TopicRepo struct {
	db *gorm.DB
}

// NewTopicRepo создает новый репозиторий тем
func NewTopicRepo(db *gorm.DB) *TopicRepo {
	return &TopicRepo{db: db}
}

// Create создает новую тему. Имя и адрес уникальны: повторное создание —
// конфликт (ErrAlreadyExists), данные первой темы не затрагиваются.
func (r *TopicRepo) Create(topic *entity.Topic) error {
	if err := r.db.Create(topic).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: topic %q", apperrors.ErrAlreadyExists, topic.Name)
		}
		return err
	}
	return nil
}

// GetByAddress возвращает тему по адресу
func (r *TopicRepo) GetByAddress(address entity.Address) (*entity.Topic, error) {
	var topic entity.Topic
	err := r.db.First(&topic, "address = ?", address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// GetByName возвращает тему по имени
func (r *TopicRepo) GetByName(name string) (*entity.Topic, error) {
	var topic entity.Topic
	err := r.db.First(&topic, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// List возвращает темы с пагинацией и общим количеством
func (r *TopicRepo) List(activeOnly bool, limit, offset int) ([]entity.Topic, int64, error) {
	var topics []entity.Topic
	var total int64

	// Транзакция для согласованности данных и total count
	tx := r.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()
	if tx.Error != nil {
		return nil, 0, tx.Error
	}

	query := tx.Model(&entity.Topic{})
	if activeOnly {
		query = query.Where("is_active = true")
	}

	if err := query.Count(&total).Error; err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	if err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&topics).Error; err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, 0, err
	}

	return topics, total, nil
}
