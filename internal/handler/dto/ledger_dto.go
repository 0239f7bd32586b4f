package dto

import (
	"time"

	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	"github.com/yourusername/cipherquiz-api/internal/handler/helper"
)

// TopicResponse представляет тему в формате для ответа клиенту
type TopicResponse struct {
	Address           string    `json:"address"`
	Name              string    `json:"name"`
	Owner             string    `json:"owner"`
	IsActive          bool      `json:"is_active"`
	MinQuestionCount  uint32    `json:"min_question_count"`
	MinRewardAmount   uint64    `json:"min_reward_amount"`
	TotalQuizzes      uint32    `json:"total_quizzes"`
	TotalParticipants uint32    `json:"total_participants"`
	CreatedAt         time.Time `json:"created_at"`
}

// QuestionBlockResponse представляет расшифрованную вопросную сторону блока.
// Правильный ответ в DTO отсутствует: наружу он не выходит никогда.
type QuestionBlockResponse struct {
	Address       string                `json:"address"`
	QuestionIndex uint32                `json:"question_index"`
	Nonce         uint64                `json:"nonce"`
	Question      string                `json:"question"`
	Choices       []helper.ChoiceOption `json:"choices"`
	CreatedAt     time.Time             `json:"created_at"`
}

// QuizSetResponse представляет набор вопросов в формате для ответа клиенту
type QuizSetResponse struct {
	Address             string                  `json:"address"`
	Authority           string                  `json:"authority"`
	TopicAddress        *string                 `json:"topic_address,omitempty"` // nil = без темы
	Name                string                  `json:"name"`
	UniqueID            uint64                  `json:"unique_id"`
	QuestionCount       uint32                  `json:"question_count"`
	QuestionsAdded      uint32                  `json:"questions_added"`
	IsInitialized       bool                    `json:"is_initialized"`
	RewardAmount        uint64                  `json:"reward_amount"`
	Winner              string                  `json:"winner,omitempty"`
	CorrectAnswersCount uint32                  `json:"correct_answers_count,omitempty"`
	IsRewardClaimed     bool                    `json:"is_reward_claimed"`
	Questions           []QuestionBlockResponse `json:"questions,omitempty"` // Слайс DTO вопросов
	CreatedAt           time.Time               `json:"created_at"`
}

// PaginatedQuizSetsResponse представляет пагинированный список наборов
type PaginatedQuizSetsResponse struct {
	QuizSets []QuizSetResponse `json:"quiz_sets"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

// LeaderboardEntryResponse — строка таблицы лидеров темы
type LeaderboardEntryResponse struct {
	Rank           int       `json:"rank"`
	User           string    `json:"user"`
	Score          uint32    `json:"score"`
	TotalCompleted uint32    `json:"total_completed"`
	WinRate        float64   `json:"win_rate"`
	TotalRewards   uint64    `json:"total_rewards"`
	LastActivity   time.Time `json:"last_activity"`
}

// GlobalLeaderboardEntryResponse — строка глобальной таблицы лидеров
type GlobalLeaderboardEntryResponse struct {
	Rank           int    `json:"rank"`
	User           string `json:"user"`
	TotalScore     uint64 `json:"total_score"`
	TotalRewards   uint64 `json:"total_rewards"`
	TotalCompleted uint64 `json:"total_completed"`
}

// UserScoreResponse представляет счёт участника по теме
type UserScoreResponse struct {
	Address        string    `json:"address"`
	User           string    `json:"user"`
	TopicAddress   *string   `json:"topic_address,omitempty"`
	Score          uint32    `json:"score"`
	TotalCompleted uint32    `json:"total_completed"`
	WinRate        float64   `json:"win_rate"`
	TotalRewards   uint64    `json:"total_rewards"`
	LastActivity   time.Time `json:"last_activity"`
}

// HistoryResponse представляет запись журнала прохождений
type HistoryResponse struct {
	Address        string  `json:"address"`
	User           string  `json:"user"`
	QuizSetAddress string  `json:"quiz_set_address"`
	TopicAddress   *string `json:"topic_address,omitempty"`
	Score          uint32  `json:"score"`
	TotalQuestions uint32  `json:"total_questions"`
	IsWinner       bool    `json:"is_winner"`
	RewardClaimed  uint64  `json:"reward_claimed"`
	CompletedAt    int64   `json:"completed_at"`
}

// PaginatedHistoryResponse представляет пагинированный журнал прохождений
type PaginatedHistoryResponse struct {
	History []HistoryResponse `json:"history"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// VaultResponse представляет эскроу-хранилище набора
type VaultResponse struct {
	Address        string    `json:"address"`
	QuizSetAddress string    `json:"quiz_set_address"`
	Balance        uint64    `json:"balance"`
	FundedAt       time.Time `json:"funded_at"`
}

// AccountResponse представляет счёт участника
type AccountResponse struct {
	Address  string `json:"address"`
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

// addressOrNil возвращает указатель на строковый адрес или nil для нулевого
func addressOrNil(a entity.Address) *string {
	if a.IsZero() {
		return nil
	}
	s := a.String()
	return &s
}

// NewTopicResponse создает DTO для темы
func NewTopicResponse(topic *entity.Topic) *TopicResponse {
	if topic == nil {
		return nil
	}
	return &TopicResponse{
		Address:           topic.Address.String(),
		Name:              topic.Name,
		Owner:             string(topic.Owner),
		IsActive:          topic.IsActive,
		MinQuestionCount:  topic.MinQuestionCount,
		MinRewardAmount:   topic.MinRewardAmount,
		TotalQuizzes:      topic.TotalQuizzes,
		TotalParticipants: topic.TotalParticipants,
		CreatedAt:         topic.CreatedAt,
	}
}

// NewQuestionBlockResponse создает DTO для расшифрованного блока вопроса.
// payload должен быть очищен от ответа до вызова (GetQuestionPayload это
// гарантирует).
func NewQuestionBlockResponse(block *entity.QuestionBlock, payload *codec.QuestionPayload) QuestionBlockResponse {
	choicesDTO := helper.ConvertChoicesToObjects(payload.Choices)

	return QuestionBlockResponse{
		Address:       block.Address.String(),
		QuestionIndex: block.QuestionIndex,
		Nonce:         block.Nonce,
		Question:      payload.Question,
		Choices:       choicesDTO,
		CreatedAt:     block.CreatedAt,
	}
}

// NewQuizSetResponse создает DTO для набора вопросов
func NewQuizSetResponse(set *entity.QuizSet, questions []QuestionBlockResponse) *QuizSetResponse {
	if set == nil {
		return nil
	}
	return &QuizSetResponse{
		Address:             set.Address.String(),
		Authority:           string(set.Authority),
		TopicAddress:        addressOrNil(set.TopicAddress),
		Name:                set.Name,
		UniqueID:            set.UniqueID,
		QuestionCount:       set.QuestionCount,
		QuestionsAdded:      set.QuestionsAdded,
		IsInitialized:       set.IsInitialized,
		RewardAmount:        set.RewardAmount,
		Winner:              string(set.Winner),
		CorrectAnswersCount: set.CorrectAnswersCount,
		IsRewardClaimed:     set.IsRewardClaimed,
		Questions:           questions,
		CreatedAt:           set.CreatedAt,
	}
}

// NewPaginatedQuizSetsResponse создает пагинированный список наборов
func NewPaginatedQuizSetsResponse(sets []entity.QuizSet, total int64, page, perPage int) *PaginatedQuizSetsResponse {
	out := make([]QuizSetResponse, len(sets))
	for i := range sets {
		out[i] = *NewQuizSetResponse(&sets[i], nil)
	}
	return &PaginatedQuizSetsResponse{
		QuizSets: out,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	}
}

// NewTopicLeaderboardResponse создает таблицу лидеров темы с рангами
func NewTopicLeaderboardResponse(scores []entity.UserScore) []LeaderboardEntryResponse {
	out := make([]LeaderboardEntryResponse, len(scores))
	for i := range scores {
		s := &scores[i]
		out[i] = LeaderboardEntryResponse{
			Rank:           i + 1,
			User:           string(s.User),
			Score:          s.Score,
			TotalCompleted: s.TotalCompleted,
			WinRate:        s.WinRate(),
			TotalRewards:   s.TotalRewards,
			LastActivity:   s.LastActivity,
		}
	}
	return out
}

// NewGlobalLeaderboardResponse создает глобальную таблицу лидеров с рангами
func NewGlobalLeaderboardResponse(scores []repository.GlobalScore) []GlobalLeaderboardEntryResponse {
	out := make([]GlobalLeaderboardEntryResponse, len(scores))
	for i, s := range scores {
		out[i] = GlobalLeaderboardEntryResponse{
			Rank:           i + 1,
			User:           string(s.User),
			TotalScore:     s.TotalScore,
			TotalRewards:   s.TotalRewards,
			TotalCompleted: s.TotalCompleted,
		}
	}
	return out
}

// NewUserScoreResponse создает DTO для счёта участника
func NewUserScoreResponse(score *entity.UserScore) *UserScoreResponse {
	if score == nil {
		return nil
	}
	return &UserScoreResponse{
		Address:        score.Address.String(),
		User:           string(score.User),
		TopicAddress:   addressOrNil(score.TopicAddress),
		Score:          score.Score,
		TotalCompleted: score.TotalCompleted,
		WinRate:        score.WinRate(),
		TotalRewards:   score.TotalRewards,
		LastActivity:   score.LastActivity,
	}
}

// NewHistoryResponse создает DTO для записи журнала
func NewHistoryResponse(h *entity.QuizHistory) HistoryResponse {
	return HistoryResponse{
		Address:        h.Address.String(),
		User:           string(h.User),
		QuizSetAddress: h.QuizSetAddress.String(),
		TopicAddress:   addressOrNil(h.TopicAddress),
		Score:          h.Score,
		TotalQuestions: h.TotalQuestions,
		IsWinner:       h.IsWinner,
		RewardClaimed:  h.RewardClaimed,
		CompletedAt:    h.CompletedAt,
	}
}

// NewPaginatedHistoryResponse создает пагинированный журнал прохождений
func NewPaginatedHistoryResponse(history []entity.QuizHistory, total int64, page, perPage int) *PaginatedHistoryResponse {
	out := make([]HistoryResponse, len(history))
	for i := range history {
		out[i] = NewHistoryResponse(&history[i])
	}
	return &PaginatedHistoryResponse{
		History: out,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}
}

// NewVaultResponse создает DTO для эскроу-хранилища
func NewVaultResponse(vault *entity.Vault) *VaultResponse {
	if vault == nil {
		return nil
	}
	return &VaultResponse{
		Address:        vault.Address.String(),
		QuizSetAddress: vault.QuizSetAddress.String(),
		Balance:        vault.Balance,
		FundedAt:       vault.FundedAt,
	}
}

// NewAccountResponse создает DTO для счёта
func NewAccountResponse(account *entity.Account) *AccountResponse {
	if account == nil {
		return nil
	}
	return &AccountResponse{
		Address:  account.Address.String(),
		Identity: string(account.Identity),
		Balance:  account.Balance,
	}
}
