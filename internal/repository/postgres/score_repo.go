package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// ScoreRepo реализует repository.ScoreRepository
type ScoreRepo struct {
	db *gorm.DB
}

// NewScoreRepo создает новый репозиторий результатов
func NewScoreRepo(db *gorm.DB) *ScoreRepo {
	return &ScoreRepo{db: db}
}

// ApplyCompletion атомарно фиксирует прохождение: добавляет запись журнала
// и обновляет счётчики UserScore в одной транзакции. Повтор той же тройки
// (user, quiz_set, completed_at) отсекается уникальным индексом журнала,
// поэтому счётчики не задваиваются.
func (r *ScoreRepo) ApplyCompletion(history *entity.QuizHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// 1. Журнал: только добавление, повтор — конфликт
		if err := tx.Create(history).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: user %s, quiz set %s", repository.ErrDuplicateCompletion, history.User, history.QuizSetAddress.Short())
			}
			return err
		}

		var winInc uint32
		if history.IsWinner {
			winInc = 1
		}
		now := time.Now()

		// 2. Счёт по теме: вставка или инкремент одним запросом.
		// Внутри транзакции Postgres ошибка 23505 делает её непоправимой,
		// поэтому гонку первых прохождений разрешает сама база через
		// INSERT ... ON CONFLICT, а не повтор после отказа.
		score := &entity.UserScore{
			Address:        entity.UserScoreAddress(history.User, history.TopicAddress),
			User:           history.User,
			TopicAddress:   history.TopicAddress,
			Score:          winInc,
			TotalCompleted: 1,
			TotalRewards:   history.RewardClaimed,
			LastActivity:   now,
		}
		if err := tx.Clauses(scoreUpsertClause(winInc, history.RewardClaimed, now)).Create(score).Error; err != nil {
			return err
		}

		// 3. Новый участник темы: после первого прохождения его счёт
		// остаётся с total_completed = 1, это и есть признак вставки
		if !history.TopicAddress.IsZero() {
			if err := tx.Model(&entity.Topic{}).
				Where(`address = ? AND EXISTS (
					SELECT 1 FROM user_scores
					WHERE "user" = ? AND topic_address = ? AND total_completed = 1
				)`, history.TopicAddress, history.User, history.TopicAddress).
				Update("total_participants", gorm.Expr("total_participants + 1")).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// scoreUpsertClause переводит конфликт уникального индекса (user, topic_address)
// в инкремент существующего счёта. Обновление опирается на значения текущей
// строки, а не на вставляемые.
func scoreUpsertClause(winInc uint32, rewardClaimed uint64, now time.Time) clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "user"}, {Name: "topic_address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"score":           gorm.Expr("user_scores.score + ?", winInc),
			"total_completed": gorm.Expr("user_scores.total_completed + 1"),
			"total_rewards":   gorm.Expr("user_scores.total_rewards + ?", rewardClaimed),
			"last_activity":   now,
		}),
	}
}

// GetUserScore возвращает счёт пользователя в теме
func (r *ScoreRepo) GetUserScore(user entity.Identity, topic entity.Address) (*entity.UserScore, error) {
	var score entity.UserScore
	err := r.db.First(&score, `"user" = ? AND topic_address = ?`, user, topic).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &score, nil
}

// ListByUser возвращает все счета пользователя по темам
func (r *ScoreRepo) ListByUser(user entity.Identity) ([]entity.UserScore, error) {
	var scores []entity.UserScore
	err := r.db.Where(`"user" = ?`, user).
		Order("score DESC, total_completed DESC").
		Find(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// TopicLeaderboard возвращает таблицу лидеров темы: победы, затем доля побед,
// затем количество прохождений. Доля вычисляется в SQL, чтобы сортировка
// и пагинация жили на стороне базы.
func (r *ScoreRepo) TopicLeaderboard(topic entity.Address, limit int) ([]entity.UserScore, error) {
	var scores []entity.UserScore
	err := r.db.Where("topic_address = ?", topic).
		Order("score DESC, (CASE WHEN total_completed > 0 THEN score::numeric / total_completed ELSE 0 END) DESC, total_completed DESC").
		Limit(limit).
		Find(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// GlobalLeaderboard агрегирует счета пользователя по всем темам.
// Суммы считаются при чтении, отдельная глобальная запись не хранится.
func (r *ScoreRepo) GlobalLeaderboard(limit int) ([]repository.GlobalScore, error) {
	var scores []repository.GlobalScore
	err := r.db.Raw(`
		SELECT "user",
		       SUM(score)           AS total_score,
		       SUM(total_rewards)   AS total_rewards,
		       SUM(total_completed) AS total_completed
		FROM user_scores
		GROUP BY "user"
		ORDER BY total_score DESC, total_rewards DESC, total_completed DESC
		LIMIT ?`, limit).Scan(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// ListHistory возвращает журнал прохождений пользователя с пагинацией
func (r *ScoreRepo) ListHistory(user entity.Identity, limit, offset int) ([]entity.QuizHistory, int64, error) {
	var history []entity.QuizHistory
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

	if err := tx.Model(&entity.QuizHistory{}).Where(`"user" = ?`, user).Count(&total).Error; err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Where(`"user" = ?`, user).
		Order("completed_at DESC").
		Limit(limit).Offset(offset).
		Find(&history).Error; err != nil {
		tx.Rollback()
		return nil, 0, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, 0, err
	}

	return history, total, nil
}
