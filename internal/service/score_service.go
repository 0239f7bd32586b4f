package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

const (
	// leaderboardCacheTTL ограничивает устаревание таблиц лидеров в кеше
	leaderboardCacheTTL = 30 * time.Second

	// exportLimit — потолок строк при выгрузке таблицы лидеров
	exportLimit = 1000
)

// ScoreService отдаёт таблицы лидеров и журналы прохождений
type ScoreService struct {
	scoreRepo repository.ScoreRepository
	cacheRepo repository.CacheRepository
}

// NewScoreService создает новый сервис результатов
func NewScoreService(scoreRepo repository.ScoreRepository, cacheRepo repository.CacheRepository) *ScoreService {
	return &ScoreService{
		scoreRepo: scoreRepo,
		cacheRepo: cacheRepo,
	}
}

// TopicLeaderboard возвращает таблицу лидеров темы: победы, доля побед,
// количество прохождений. Результат кешируется на leaderboardCacheTTL.
func (s *ScoreService) TopicLeaderboard(topic entity.Address, limit int) ([]entity.UserScore, error) {
	limit = clampLeaderboardLimit(limit)
	cacheKey := fmt.Sprintf("leaderboard:topic:%s:%d", topic.String(), limit)

	if s.cacheRepo != nil {
		var cached []entity.UserScore
		if err := s.cacheRepo.GetJSON(cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[ScoreService] Ошибка чтения кеша таблицы лидеров: %v", err)
		}
	}

	scores, err := s.scoreRepo.TopicLeaderboard(topic, limit)
	if err != nil {
		return nil, err
	}

	if s.cacheRepo != nil {
		if err := s.cacheRepo.SetJSON(cacheKey, scores, leaderboardCacheTTL); err != nil {
			log.Printf("[ScoreService] Ошибка записи кеша таблицы лидеров: %v", err)
		}
	}
	return scores, nil
}

// GlobalLeaderboard возвращает суммарную таблицу лидеров по всем темам
func (s *ScoreService) GlobalLeaderboard(limit int) ([]repository.GlobalScore, error) {
	limit = clampLeaderboardLimit(limit)
	cacheKey := fmt.Sprintf("leaderboard:global:%d", limit)

	if s.cacheRepo != nil {
		var cached []repository.GlobalScore
		if err := s.cacheRepo.GetJSON(cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[ScoreService] Ошибка чтения кеша глобальной таблицы: %v", err)
		}
	}

	scores, err := s.scoreRepo.GlobalLeaderboard(limit)
	if err != nil {
		return nil, err
	}

	if s.cacheRepo != nil {
		if err := s.cacheRepo.SetJSON(cacheKey, scores, leaderboardCacheTTL); err != nil {
			log.Printf("[ScoreService] Ошибка записи кеша глобальной таблицы: %v", err)
		}
	}
	return scores, nil
}

// InvalidateLeaderboards сбрасывает кеш таблиц после записи прохождения.
// Сбрасываются только ключи лимита по умолчанию, остальные доживают TTL.
func (s *ScoreService) InvalidateLeaderboards(topic entity.Address) {
	if s.cacheRepo == nil {
		return
	}
	keys := []string{
		fmt.Sprintf("leaderboard:global:%d", defaultLeaderboardLimit),
	}
	if !topic.IsZero() {
		keys = append(keys, fmt.Sprintf("leaderboard:topic:%s:%d", topic.String(), defaultLeaderboardLimit))
	}
	for _, key := range keys {
		if err := s.cacheRepo.Delete(key); err != nil {
			log.Printf("[ScoreService] Ошибка сброса кеша %s: %v", key, err)
		}
	}
}

// GetUserScore возвращает счёт участника в теме
func (s *ScoreService) GetUserScore(user entity.Identity, topic entity.Address) (*entity.UserScore, error) {
	return s.scoreRepo.GetUserScore(user, topic)
}

// ListUserScores возвращает счета участника по всем темам
func (s *ScoreService) ListUserScores(user entity.Identity) ([]entity.UserScore, error) {
	return s.scoreRepo.ListByUser(user)
}

// ListHistory возвращает журнал прохождений участника с пагинацией
func (s *ScoreService) ListHistory(user entity.Identity, page, pageSize int) ([]entity.QuizHistory, int64, error) {
	limit, offset := normalizePage(page, pageSize)
	return s.scoreRepo.ListHistory(user, limit, offset)
}

// ExportTopicLeaderboard возвращает таблицу лидеров темы для выгрузки,
// минуя кеш
func (s *ScoreService) ExportTopicLeaderboard(topic entity.Address) ([]entity.UserScore, error) {
	return s.scoreRepo.TopicLeaderboard(topic, exportLimit)
}

// ExportGlobalLeaderboard возвращает глобальную таблицу для выгрузки, минуя кеш
func (s *ScoreService) ExportGlobalLeaderboard() ([]repository.GlobalScore, error) {
	return s.scoreRepo.GlobalLeaderboard(exportLimit)
}

const defaultLeaderboardLimit = 20

func clampLeaderboardLimit(limit int) int {
	if limit < 1 {
		return defaultLeaderboardLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
