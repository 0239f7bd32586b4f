// Package verification реализует протокол проверки ответов через внешний
// движок конфиденциальных вычислений. Сервис никогда не сравнивает открытые
// тексты сам: недоступность движка означает отказ проверки, а не тихий
// переход на локальное сравнение.
package verification

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	"github.com/yourusername/cipherquiz-api/internal/engine"
	"github.com/yourusername/cipherquiz-api/internal/websocket"
)

// Константы значений по умолчанию
const (
	// DefaultResultTimeout — потолок ожидания вердикта одного сравнения
	DefaultResultTimeout = 30 * time.Second

	// DefaultMaxBatch — максимум ответов в одной попытке прохождения
	DefaultMaxBatch = entity.MaxQuestionCount
)

// ErrComputationTimeout означает, что вердикт движка не получен в отведённый
// срок. Проверка завершается отказом, локального сравнения не происходит.
var ErrComputationTimeout = errors.New("вердикт движка не получен в отведённый срок")

// ErrAttestationInvalid означает, что аттестация вердикта не прошла проверку
// ключом верификации блока. Такой вердикт не принимается.
var ErrAttestationInvalid = errors.New("аттестация вердикта не прошла проверку")

// State — состояние проверки ответа
type State string

const (
	// StateSubmitted — задание принято и отправляется движку
	StateSubmitted State = "submitted"
	// StatePending — движок принял задание, вердикт ожидается
	StatePending State = "pending"
	// StateResolvedCorrect — вердикт получен: ответ совпал
	StateResolvedCorrect State = "resolved_correct"
	// StateResolvedIncorrect — вердикт получен: ответ не совпал
	StateResolvedIncorrect State = "resolved_incorrect"
	// StateFailed — проверка не состоялась: таймаут, отказ движка
	// или негодная аттестация
	StateFailed State = "failed"
)

// Config содержит настройки протокола верификации
type Config struct {
	// ResultTimeout — потолок ожидания вердикта, если вызывающий не задал свой
	ResultTimeout time.Duration
	// MaxBatch — максимум ответов в одной попытке прохождения
	MaxBatch int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		ResultTimeout: DefaultResultTimeout,
		MaxBatch:      DefaultMaxBatch,
	}
}

// CompletionRecorder — фиксация прохождений. Интерфейс сужен до того,
// что нужно протоколу.
type CompletionRecorder interface {
	RecordCompletion(user entity.Identity, quizSet entity.Address, score uint32, completedAt time.Time, isWinner bool) (*entity.QuizHistory, error)
}

// LeaderboardInvalidator сбрасывает кеш таблиц лидеров после фиксации
type LeaderboardInvalidator interface {
	InvalidateLeaderboards(topic entity.Address)
}

// WinnerNotifier уведомляет победителя о выигрыше
type WinnerNotifier interface {
	SendWinnerNotification(ctx context.Context, recipient, quizSetName string, rewardAmount uint64, idempotencyKey string) error
}

// Dependencies содержит зависимости протокола верификации
type Dependencies struct {
	QuizSetRepo  repository.QuizSetRepository
	QuestionRepo repository.QuestionBlockRepository
	CacheRepo    repository.CacheRepository
	Engine       engine.Engine
	Completions  CompletionRecorder
	Scores       LeaderboardInvalidator
	Notifier     WinnerNotifier
	Hub          *websocket.Hub
}

// Result — итог одной проверки ответа
type Result struct {
	RequestID       string         `json:"request_id"`
	QuestionAddress entity.Address `json:"question_address"`
	QuestionIndex   uint32         `json:"question_index"`
	State           State          `json:"state"`
	Matched         bool           `json:"matched"`
}

// AttemptItem — итог проверки одного ответа в попытке прохождения
type AttemptItem struct {
	QuestionIndex uint32 `json:"question_index"`
	State         State  `json:"state"`
	Matched       bool   `json:"matched"`
	RequestID     string `json:"request_id,omitempty"`
	FailReason    string `json:"fail_reason,omitempty"`
}

// AttemptResult — итог попытки прохождения набора целиком
type AttemptResult struct {
	QuizSetAddress entity.Address      `json:"quiz_set"`
	User           entity.Identity     `json:"user"`
	Items          []AttemptItem       `json:"items"`
	CorrectCount   uint32              `json:"correct_count"`
	AllResolved    bool                `json:"all_resolved"`
	BecameWinner   bool                `json:"became_winner"`
	History        *entity.QuizHistory `json:"history,omitempty"`
}
