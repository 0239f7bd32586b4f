package repository

import (
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// GlobalScore — строка глобального лидерборда: агрегат UserScore участника
// по всем темам. Не хранится, вычисляется при чтении.
type GlobalScore struct {
	User           entity.Identity `json:"user"`
	TotalScore     uint64          `json:"total_score"`
	TotalRewards   uint64          `json:"total_rewards"`
	TotalCompleted uint64          `json:"total_completed"`
}

// ScoreRepository определяет методы для работы со счетами участников и журналом прохождений
type ScoreRepository interface {
	// ApplyCompletion атомарно применяет прохождение: вставляет запись журнала
	// (повтор точного ключа → ErrDuplicateCompletion) и обновляет счётчики
	// UserScore инкрементами, создавая запись при отсутствии. Первый счёт
	// участника в теме увеличивает total_participants темы.
	ApplyCompletion(history *entity.QuizHistory) error
	GetUserScore(user entity.Identity, topic entity.Address) (*entity.UserScore, error)
	ListByUser(user entity.Identity) ([]entity.UserScore, error)
	// TopicLeaderboard: сортировка score DESC, win rate DESC, total_completed DESC.
	TopicLeaderboard(topic entity.Address, limit int) ([]entity.UserScore, error)
	// GlobalLeaderboard: сортировка total_score DESC, total_rewards DESC, total_completed DESC.
	GlobalLeaderboard(limit int) ([]GlobalScore, error)
	// ListHistory возвращает записи журнала участника, новые сначала.
	ListHistory(user entity.Identity, limit, offset int) ([]entity.QuizHistory, int64, error)
}
