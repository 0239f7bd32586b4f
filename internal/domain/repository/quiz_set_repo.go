package repository

import (
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// QuizSetRepository определяет методы для работы с наборами вопросов и их эскроу
type QuizSetRepository interface {
	// CreateWithFunding атомарно в одной транзакции: списывает rewardAmount
	// со счёта автора (ErrInsufficientFunds при нехватке), создаёт набор
	// (занятый адрес → ErrAlreadyExists), создаёт наполненное эскроу-хранилище
	// и увеличивает total_quizzes темы, если тема привязана.
	CreateWithFunding(quizSet *entity.QuizSet, vault *entity.Vault) error
	GetByAddress(address entity.Address) (*entity.QuizSet, error)
	ListByAuthority(authority entity.Identity, limit, offset int) ([]entity.QuizSet, int64, error)
	ListByTopic(topic entity.Address, limit, offset int) ([]entity.QuizSet, int64, error)
	// SetWinner фиксирует победителя не более одного раза (CAS по пустому
	// winner); проигравшая гонку попытка получает ErrWinnerAlreadySet.
	SetWinner(address entity.Address, winner entity.Identity, correctAnswers uint32) error
	// ClaimReward атомарно выплачивает эскроу: проверяет победителя
	// (ErrNoWinnerSet, ErrUnauthorized), условно выставляет is_reward_claimed
	// (повтор → ErrAlreadyClaimed), обнуляет баланс хранилища и зачисляет
	// сумму на счёт победителя. Возвращает размер выплаты.
	ClaimReward(address entity.Address, claimer entity.Identity) (uint64, error)
	// GetVault возвращает эскроу-хранилище набора.
	GetVault(quizSet entity.Address) (*entity.Vault, error)
}
